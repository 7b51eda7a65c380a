package audits

import (
	"context"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

type interactive struct{}

func init() { audit.Register(interactive{}) }

func (interactive) Meta() audit.Meta {
	return audit.Meta{
		ID:               "interactive",
		Title:            "Time to Interactive",
		FailureTitle:     "The page takes too long to become interactive",
		Description:      "Time to Interactive is the time at which the page has painted, the main thread has calmed down, and the network is mostly idle.",
		ScoreDisplayMode: audit.ModeNumeric,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (interactive) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	tti, err := arts.ProcessedTrace.LongTasks.TTITime()
	if err != nil {
		return nil, err
	}
	curve := curveFor(arts,
		scoring.Curve{P10: 3785, Median: 7300},
		scoring.Curve{P10: 2500, Median: 4500})
	return &audit.Result{
		Score:        audit.Score(scoring.RoundScore(curve.Score(tti.MS))),
		NumericValue: audit.Float(tti.MS),
		NumericUnit:  "millisecond",
		DisplayValue: audit.FormatMS(tti.MS),
	}, nil
}
