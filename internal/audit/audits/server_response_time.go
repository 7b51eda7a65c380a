package audits

import (
	"context"
	"fmt"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/artifacts"
)

// Server responses slower than this point at backend work, not page work.
const responseTimeThresholdMS = 600

type serverResponseTime struct{}

func init() { audit.Register(serverResponseTime{}) }

func (serverResponseTime) Meta() audit.Meta {
	return audit.Meta{
		ID:               "server-response-time",
		Title:            "Initial server response time was short",
		FailureTitle:     "Reduce initial server response time",
		Description:      "The time the server took to answer the main document request, before any rendering could start.",
		ScoreDisplayMode: audit.ModeBinary,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (serverResponseTime) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	doc := arts.ProcessedTrace.Network.DocumentRequest
	if doc == nil {
		return nil, runnererr.New(runnererr.NoDocumentRequest, "no document request found in the capture")
	}
	if doc.Timing.SendStart == 0 || doc.Timing.ReceiveHeadersEnd == 0 {
		return &audit.Result{ScoreDisplayMode: audit.ModeNotApplicable}, nil
	}
	responseMS := float64(doc.Timing.ReceiveHeadersEnd-doc.Timing.SendStart) / 1000
	return &audit.Result{
		Score:        audit.BinaryScore(responseMS <= responseTimeThresholdMS),
		NumericValue: audit.Float(responseMS),
		NumericUnit:  "millisecond",
		DisplayValue: fmt.Sprintf("Root document took %s", audit.FormatMS(responseMS)),
		Details: &audit.Table{
			Headings: []audit.Heading{
				{Key: "url", Label: "URL", ValueType: "url"},
				{Key: "responseTime", Label: "Time Spent", ValueType: "ms"},
			},
			Items: []map[string]any{
				{"url": doc.URL, "responseTime": responseMS},
			},
		},
	}, nil
}
