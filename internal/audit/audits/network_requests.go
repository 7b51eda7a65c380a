package audits

import (
	"context"
	"fmt"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

type networkRequests struct{}

func init() { audit.Register(networkRequests{}) }

func (networkRequests) Meta() audit.Meta {
	return audit.Meta{
		ID:               "network-requests",
		Title:            "Network Requests",
		Description:      "Every network request made while the page loaded, with transfer sizes and timings.",
		ScoreDisplayMode: audit.ModeInformative,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

func (networkRequests) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	pt := arts.ProcessedTrace
	items := make([]map[string]any, 0, len(pt.Network.Requests))
	for _, req := range pt.Network.Requests {
		item := map[string]any{
			"url":          req.URL,
			"resourceType": string(req.ResourceType),
			"mimeType":     req.MIMEType,
			"protocol":     req.Protocol,
			"statusCode":   req.StatusCode,
			"transferSize": req.EncodedByteLength,
			"resourceSize": req.DecodedByteLength,
			"finished":     req.Finished(),
		}
		if req.Timing.SendStart != 0 {
			item["startTime"] = pt.MSSinceNav(req.Timing.SendStart)
		}
		if req.Timing.Finish != 0 {
			item["endTime"] = pt.MSSinceNav(req.Timing.Finish)
		}
		items = append(items, item)
	}
	return &audit.Result{
		NumericValue: audit.Float(float64(len(items))),
		NumericUnit:  "element",
		DisplayValue: fmt.Sprintf("%d requests", len(items)),
		Details: &audit.Table{
			Headings: []audit.Heading{
				{Key: "url", Label: "URL", ValueType: "url"},
				{Key: "resourceType", Label: "Type", ValueType: "text"},
				{Key: "startTime", Label: "Start Time", ValueType: "ms"},
				{Key: "endTime", Label: "End Time", ValueType: "ms"},
				{Key: "transferSize", Label: "Transfer Size", ValueType: "bytes"},
				{Key: "resourceSize", Label: "Resource Size", ValueType: "bytes"},
				{Key: "statusCode", Label: "Status Code", ValueType: "numeric"},
			},
			Items: items,
		},
	}, nil
}
