package audits

import (
	"context"
	"fmt"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

type cumulativeLayoutShift struct{}

func init() { audit.Register(cumulativeLayoutShift{}) }

func (cumulativeLayoutShift) Meta() audit.Meta {
	return audit.Meta{
		ID:               "cumulative-layout-shift",
		Title:            "Cumulative Layout Shift",
		FailureTitle:     "The page layout shifts while loading",
		Description:      "Cumulative Layout Shift measures the movement of visible elements within the viewport.",
		ScoreDisplayMode: audit.ModeNumeric,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (cumulativeLayoutShift) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	cls := arts.ProcessedTrace.LayoutShifts.CLS
	// The CLS curve is device independent; shifting content hurts the same
	// everywhere.
	curve := scoring.Curve{P10: 0.1, Median: 0.25}
	return &audit.Result{
		Score:        audit.Score(scoring.RoundScore(curve.Score(cls))),
		NumericValue: audit.Float(cls),
		NumericUnit:  "unitless",
		DisplayValue: fmt.Sprintf("%.3f", cls),
	}, nil
}
