package audits

import (
	"context"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

type totalBlockingTime struct{}

func init() { audit.Register(totalBlockingTime{}) }

func (totalBlockingTime) Meta() audit.Meta {
	return audit.Meta{
		ID:               "total-blocking-time",
		Title:            "Total Blocking Time",
		FailureTitle:     "The main thread blocked input for too long",
		Description:      "Sum of all time periods between First Contentful Paint and Time to Interactive where a task blocked the main thread past the responsiveness threshold.",
		ScoreDisplayMode: audit.ModeNumeric,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (totalBlockingTime) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	// Blocking time is only defined over the [FCP, TTI] window; surface the
	// interactive failure rather than a misleading zero.
	if _, err := arts.ProcessedTrace.LongTasks.TTITime(); err != nil {
		return nil, err
	}
	tbt := arts.ProcessedTrace.LongTasks.TotalBlockingMS
	curve := curveFor(arts,
		scoring.Curve{P10: 200, Median: 600},
		scoring.Curve{P10: 150, Median: 350})
	return &audit.Result{
		Score:        audit.Score(scoring.RoundScore(curve.Score(tbt))),
		NumericValue: audit.Float(tbt),
		NumericUnit:  "millisecond",
		DisplayValue: audit.FormatMS(tbt),
	}, nil
}
