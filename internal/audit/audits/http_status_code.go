package audits

import (
	"context"
	"fmt"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

type httpStatusCode struct{}

func init() { audit.Register(httpStatusCode{}) }

func (httpStatusCode) Meta() audit.Meta {
	return audit.Meta{
		ID:               "http-status-code",
		Title:            "Page has a successful HTTP status code",
		FailureTitle:     "Page returned an unsuccessful HTTP status code",
		Description:      "Pages answering with a 4xx or 5xx status are dropped from search indexes.",
		ScoreDisplayMode: audit.ModeBinary,
		Requirements:     []string{audit.RequiresMainDocument},
	}
}

func (httpStatusCode) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	code := arts.MainDocumentStatusCode
	ok := code >= 200 && code < 400
	res := &audit.Result{Score: audit.BinaryScore(ok)}
	if !ok {
		res.DisplayValue = fmt.Sprintf("Status code: %d", code)
	}
	return res, nil
}
