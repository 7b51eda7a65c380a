package audits

import (
	"context"
	"fmt"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

type errorsInConsole struct{}

func init() { audit.Register(errorsInConsole{}) }

func (errorsInConsole) Meta() audit.Meta {
	return audit.Meta{
		ID:               "errors-in-console",
		Title:            "No browser errors logged to the console",
		FailureTitle:     "Browser errors were logged to the console",
		Description:      "Errors logged while the page loaded usually mean broken requests, failed scripts, or other real problems.",
		ScoreDisplayMode: audit.ModeBinary,
	}
}

func (errorsInConsole) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	var items []map[string]any
	for _, msg := range arts.ConsoleMessages {
		if msg.Level != "error" {
			continue
		}
		items = append(items, map[string]any{
			"source":      msg.URL,
			"description": msg.Text,
		})
	}

	res := &audit.Result{Score: audit.BinaryScore(len(items) == 0)}
	if len(items) > 0 {
		res.DisplayValue = fmt.Sprintf("%d errors logged", len(items))
		res.Details = &audit.Table{
			Headings: []audit.Heading{
				{Key: "source", Label: "Source", ValueType: "url"},
				{Key: "description", Label: "Description", ValueType: "text"},
			},
			Items: items,
		}
	}
	return res, nil
}
