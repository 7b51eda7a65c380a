package audits

import (
	"context"
	"sort"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/engine"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

type mainthreadWorkBreakdown struct{}

func init() { audit.Register(mainthreadWorkBreakdown{}) }

var groupLabels = map[engine.TaskGroup]string{}

func init() {
	for group, label := range map[engine.TaskGroup]string{
		engine.GroupParseHTML:            "Parse HTML & CSS",
		engine.GroupStyleLayout:          "Style & Layout",
		engine.GroupPaintCompositeRender: "Rendering",
		engine.GroupScriptParseCompile:   "Script Parsing & Compilation",
		engine.GroupScriptEvaluation:     "Script Evaluation",
		engine.GroupGarbageCollection:    "Garbage Collection",
		engine.GroupOther:                "Other",
	} {
		groupLabels[group] = label
	}
}

func (mainthreadWorkBreakdown) Meta() audit.Meta {
	return audit.Meta{
		ID:               "mainthread-work-breakdown",
		Title:            "Minimizes main-thread work",
		FailureTitle:     "Minimize main-thread work",
		Description:      "How long the browser's main thread was busy parsing, scripting, styling, and painting while the page loaded.",
		ScoreDisplayMode: audit.ModeNumeric,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (mainthreadWorkBreakdown) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	mt := arts.ProcessedTrace.MainThread
	curve := curveFor(arts,
		scoring.Curve{P10: 2017, Median: 3500},
		scoring.Curve{P10: 1500, Median: 2500})

	type row struct {
		group engine.TaskGroup
		ms    float64
	}
	rows := make([]row, 0, len(mt.ByGroup))
	for group, ms := range mt.ByGroup {
		rows = append(rows, row{group, ms})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ms != rows[j].ms {
			return rows[i].ms > rows[j].ms
		}
		return rows[i].group < rows[j].group
	})
	items := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		items = append(items, map[string]any{
			"group":      string(r.group),
			"groupLabel": groupLabels[r.group],
			"duration":   r.ms,
		})
	}

	return &audit.Result{
		Score:        audit.Score(scoring.RoundScore(curve.Score(mt.TotalMS))),
		NumericValue: audit.Float(mt.TotalMS),
		NumericUnit:  "millisecond",
		DisplayValue: audit.FormatMS(mt.TotalMS),
		Details: &audit.Table{
			Headings: []audit.Heading{
				{Key: "groupLabel", Label: "Category", ValueType: "text"},
				{Key: "duration", Label: "Time Spent", ValueType: "ms"},
			},
			Items: items,
		},
	}, nil
}
