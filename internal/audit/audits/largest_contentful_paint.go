package audits

import (
	"context"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

type largestContentfulPaint struct{}

func init() { audit.Register(largestContentfulPaint{}) }

func (largestContentfulPaint) Meta() audit.Meta {
	return audit.Meta{
		ID:               "largest-contentful-paint",
		Title:            "Largest Contentful Paint",
		FailureTitle:     "Largest Contentful Paint is slow",
		Description:      "Largest Contentful Paint marks the time at which the largest text or image is painted.",
		ScoreDisplayMode: audit.ModeNumeric,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (largestContentfulPaint) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	lcp, err := arts.ProcessedTrace.PageLoad.LCPTime()
	if err != nil {
		return nil, err
	}
	curve := curveFor(arts,
		scoring.Curve{P10: 2500, Median: 4000},
		scoring.Curve{P10: 1200, Median: 2400})
	return &audit.Result{
		Score:        audit.Score(scoring.RoundScore(curve.Score(lcp.MS))),
		NumericValue: audit.Float(lcp.MS),
		NumericUnit:  "millisecond",
		DisplayValue: audit.FormatMS(lcp.MS),
	}, nil
}
