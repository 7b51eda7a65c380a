package audits

import (
	"context"
	"fmt"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

type userTimings struct{}

func init() { audit.Register(userTimings{}) }

func (userTimings) Meta() audit.Meta {
	return audit.Meta{
		ID:               "user-timings",
		Title:            "User Timing marks and measures",
		Description:      "The performance.mark and performance.measure entries the page recorded about itself.",
		ScoreDisplayMode: audit.ModeInformative,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (userTimings) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	timings := arts.ProcessedTrace.UserTimings
	if len(timings) == 0 {
		return &audit.Result{ScoreDisplayMode: audit.ModeNotApplicable}, nil
	}
	items := make([]map[string]any, 0, len(timings))
	for _, ut := range timings {
		timingType := "Mark"
		if ut.IsMeasure {
			timingType = "Measure"
		}
		item := map[string]any{
			"name":       ut.Name,
			"startTime":  ut.MS,
			"timingType": timingType,
		}
		if ut.IsMeasure {
			item["duration"] = ut.DurationMS
		}
		items = append(items, item)
	}
	return &audit.Result{
		NumericValue: audit.Float(float64(len(items))),
		NumericUnit:  "element",
		DisplayValue: fmt.Sprintf("%d user timings", len(items)),
		Details: &audit.Table{
			Headings: []audit.Heading{
				{Key: "name", Label: "Name", ValueType: "text"},
				{Key: "timingType", Label: "Type", ValueType: "text"},
				{Key: "startTime", Label: "Start Time", ValueType: "ms"},
				{Key: "duration", Label: "Duration", ValueType: "ms"},
			},
			Items: items,
		},
	}, nil
}
