package audits

import (
	"context"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

type firstContentfulPaint struct{}

func init() { audit.Register(firstContentfulPaint{}) }

func (firstContentfulPaint) Meta() audit.Meta {
	return audit.Meta{
		ID:               "first-contentful-paint",
		Title:            "First Contentful Paint",
		FailureTitle:     "First Contentful Paint is slow",
		Description:      "First Contentful Paint marks the time at which the first text or image is painted.",
		ScoreDisplayMode: audit.ModeNumeric,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (firstContentfulPaint) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	fcp, err := arts.ProcessedTrace.PageLoad.FCPTime()
	if err != nil {
		return nil, err
	}
	curve := curveFor(arts,
		scoring.Curve{P10: 1800, Median: 3000},
		scoring.Curve{P10: 934, Median: 1600})
	return &audit.Result{
		Score:        audit.Score(scoring.RoundScore(curve.Score(fcp.MS))),
		NumericValue: audit.Float(fcp.MS),
		NumericUnit:  "millisecond",
		DisplayValue: audit.FormatMS(fcp.MS),
	}, nil
}
