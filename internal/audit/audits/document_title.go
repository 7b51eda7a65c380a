package audits

import (
	"context"
	"strings"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

type documentTitle struct{}

func init() { audit.Register(documentTitle{}) }

func (documentTitle) Meta() audit.Meta {
	return audit.Meta{
		ID:               "document-title",
		Title:            "Document has a title element",
		FailureTitle:     "Document does not have a title element",
		Description:      "The title tells search engines and screen reader users what the page is about.",
		ScoreDisplayMode: audit.ModeBinary,
	}
}

func (documentTitle) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	return &audit.Result{
		Score: audit.BinaryScore(strings.TrimSpace(arts.DocumentTitle) != ""),
	}, nil
}
