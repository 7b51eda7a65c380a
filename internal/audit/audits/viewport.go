package audits

import (
	"context"
	"fmt"
	"strings"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/viewport"
	"github.com/treosh/lightci/pkg/artifacts"
)

type viewportAudit struct{}

func init() { audit.Register(viewportAudit{}) }

func (viewportAudit) Meta() audit.Meta {
	return audit.Meta{
		ID:               "viewport",
		Title:            "Has a viewport meta tag optimized for mobile screens",
		FailureTitle:     "Is missing a mobile-friendly viewport meta tag",
		Description:      "Without a viewport meta tag, mobile browsers render the page at desktop width and scale it down.",
		ScoreDisplayMode: audit.ModeBinary,
	}
}

func (viewportAudit) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	el, ok := arts.MetaElement("viewport")
	if !ok {
		return &audit.Result{
			Score:        audit.BinaryScore(false),
			DisplayValue: "No viewport meta tag found",
		}, nil
	}

	parsed := viewport.Parse(el.Content)
	res := &audit.Result{Score: audit.BinaryScore(parsed.IsMobileOptimized())}
	var warnings []string
	for name, value := range parsed.UnknownProperties {
		warnings = append(warnings, fmt.Sprintf("unknown viewport property %q (value %q)", name, value))
	}
	for name, value := range parsed.InvalidValues {
		warnings = append(warnings, fmt.Sprintf("invalid value %q for viewport property %q", value, name))
	}
	res.Warnings = warnings
	if !parsed.IsMobileOptimized() {
		res.DisplayValue = fmt.Sprintf("Viewport %q does not adapt to mobile screens", strings.TrimSpace(el.Content))
	}
	return res, nil
}
