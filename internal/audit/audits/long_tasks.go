package audits

import (
	"context"
	"fmt"
	"sort"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

// Reports cap the long-task table; beyond this the list stops being
// actionable.
const maxLongTaskRows = 20

type longTasks struct{}

func init() { audit.Register(longTasks{}) }

func (longTasks) Meta() audit.Meta {
	return audit.Meta{
		ID:               "long-tasks",
		Title:            "Avoid long main-thread tasks",
		Description:      "The longest main-thread tasks of the page load. Tasks over 50 ms delay input handling.",
		ScoreDisplayMode: audit.ModeInformative,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (longTasks) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	tasks := make([]int, 0, len(arts.ProcessedTrace.LongTasks.Tasks))
	for i := range arts.ProcessedTrace.LongTasks.Tasks {
		tasks = append(tasks, i)
	}
	all := arts.ProcessedTrace.LongTasks.Tasks
	sort.Slice(tasks, func(i, j int) bool {
		return all[tasks[i]].DurMS > all[tasks[j]].DurMS
	})
	if len(tasks) > maxLongTaskRows {
		tasks = tasks[:maxLongTaskRows]
	}

	items := make([]map[string]any, 0, len(tasks))
	for _, i := range tasks {
		items = append(items, map[string]any{
			"startTime": all[i].StartMS,
			"duration":  all[i].DurMS,
		})
	}
	return &audit.Result{
		NumericValue: audit.Float(float64(len(all))),
		NumericUnit:  "element",
		DisplayValue: fmt.Sprintf("%d long tasks found", len(all)),
		Details: &audit.Table{
			Headings: []audit.Heading{
				{Key: "startTime", Label: "Start Time", ValueType: "ms"},
				{Key: "duration", Label: "Duration", ValueType: "ms"},
			},
			Items: items,
		},
	}, nil
}
