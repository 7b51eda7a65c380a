package audits

import (
	"context"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/csp"
	"github.com/treosh/lightci/pkg/artifacts"
)

type cspXSS struct{}

func init() { audit.Register(cspXSS{}) }

func (cspXSS) Meta() audit.Meta {
	return audit.Meta{
		ID:               "csp-xss",
		Title:            "Content Security Policy is effective against XSS",
		FailureTitle:     "Content Security Policy does not prevent XSS",
		Description:      "A strict Content Security Policy blocks injected scripts even when markup injection succeeds.",
		ScoreDisplayMode: audit.ModeBinary,
		Requirements:     []string{audit.RequiresMainDocument},
	}
}

func (cspXSS) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	headers := arts.MainDocumentHeaders.Values("Content-Security-Policy")
	var metaPolicies []string
	if el, ok := arts.MetaHTTPEquiv("Content-Security-Policy"); ok {
		metaPolicies = append(metaPolicies, el.Content)
	}

	if len(headers) == 0 && len(metaPolicies) == 0 {
		return &audit.Result{
			Score:        audit.BinaryScore(false),
			DisplayValue: "No Content-Security-Policy found",
			Details: &audit.Table{
				Headings: findingHeadings(),
				Items: []map[string]any{{
					"severity":    string(csp.SeverityHigh),
					"directive":   "",
					"description": "No CSP found in enforcement mode",
				}},
			},
		}, nil
	}

	evaluated := csp.EvaluateHeaders(headers, metaPolicies)
	var items []map[string]any
	failed := false
	for _, pf := range evaluated {
		for _, f := range pf.Findings {
			if f.Severity == csp.SeverityHigh && pf.Source == "header" {
				failed = true
			}
			items = append(items, map[string]any{
				"severity":    string(f.Severity),
				"directive":   f.Directive,
				"description": f.Message,
			})
		}
	}

	res := &audit.Result{
		Score: audit.BinaryScore(!failed),
	}
	if len(items) > 0 {
		res.Details = &audit.Table{Headings: findingHeadings(), Items: items}
	}
	return res, nil
}

func findingHeadings() []audit.Heading {
	return []audit.Heading{
		{Key: "severity", Label: "Severity", ValueType: "text"},
		{Key: "directive", Label: "Directive", ValueType: "text"},
		{Key: "description", Label: "Description", ValueType: "text"},
	}
}
