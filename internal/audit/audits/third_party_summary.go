package audits

import (
	"context"
	"fmt"
	"sort"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/thirdparty"
	"github.com/treosh/lightci/pkg/artifacts"
)

// Embedded code that blocks the main thread longer than this fails the
// audit outright.
const thirdPartyBlockingBudgetMS = 250

type thirdPartySummary struct{}

func init() { audit.Register(thirdPartySummary{}) }

func (thirdPartySummary) Meta() audit.Meta {
	return audit.Meta{
		ID:               "third-party-summary",
		Title:            "Minimize third-party usage",
		FailureTitle:     "Reduce the impact of third-party code",
		Description:      "Transfer size and main-thread blocking time attributed to the third-party services the page embeds.",
		ScoreDisplayMode: audit.ModeBinary,
		Requirements:     []string{audit.RequiresProcessedTrace},
	}
}

type entityImpact struct {
	entity       *thirdparty.Entity
	transferSize int64
	mainThreadMS float64
	blockingMS   float64
}

func (thirdPartySummary) Audit(_ context.Context, arts *artifacts.Artifacts) (*audit.Result, error) {
	pt := arts.ProcessedTrace
	finalURL := arts.URL.Final

	impacts := map[string]*entityImpact{}
	impactFor := func(entity *thirdparty.Entity) *entityImpact {
		imp, ok := impacts[entity.Name]
		if !ok {
			imp = &entityImpact{entity: entity}
			impacts[entity.Name] = imp
		}
		return imp
	}

	for _, req := range pt.Network.Requests {
		if thirdparty.IsFirstParty(req.URL, finalURL) {
			continue
		}
		if entity, ok := thirdparty.Classify(req.URL); ok {
			impactFor(entity).transferSize += req.EncodedByteLength
		}
	}

	for _, task := range pt.MainThread.Tasks {
		url := task.AttributionURL()
		if url == "" || thirdparty.IsFirstParty(url, finalURL) {
			continue
		}
		entity, ok := thirdparty.Classify(url)
		if !ok {
			continue
		}
		imp := impactFor(entity)
		durMS := float64(task.Dur) / 1000
		imp.mainThreadMS += durMS
		if blocking := durMS - 50; blocking > 0 {
			imp.blockingMS += blocking
		}
	}

	if len(impacts) == 0 {
		return &audit.Result{
			Score:        audit.BinaryScore(true),
			DisplayValue: "No third-party code detected",
		}, nil
	}

	rows := make([]*entityImpact, 0, len(impacts))
	totalBlockingMS := 0.0
	for _, imp := range impacts {
		rows = append(rows, imp)
		totalBlockingMS += imp.blockingMS
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].blockingMS != rows[j].blockingMS {
			return rows[i].blockingMS > rows[j].blockingMS
		}
		return rows[i].transferSize > rows[j].transferSize
	})

	items := make([]map[string]any, 0, len(rows))
	for _, imp := range rows {
		items = append(items, map[string]any{
			"entity":         imp.entity.Name,
			"homepage":       imp.entity.Homepage,
			"transferSize":   imp.transferSize,
			"mainThreadTime": imp.mainThreadMS,
			"blockingTime":   imp.blockingMS,
		})
	}

	return &audit.Result{
		Score:        audit.BinaryScore(totalBlockingMS <= thirdPartyBlockingBudgetMS),
		NumericValue: audit.Float(totalBlockingMS),
		NumericUnit:  "millisecond",
		DisplayValue: fmt.Sprintf("Third-party code blocked the main thread for %s", audit.FormatMS(totalBlockingMS)),
		Details: &audit.Table{
			Headings: []audit.Heading{
				{Key: "entity", Label: "Third-Party", ValueType: "text"},
				{Key: "transferSize", Label: "Transfer Size", ValueType: "bytes"},
				{Key: "blockingTime", Label: "Main-Thread Blocking Time", ValueType: "ms"},
			},
			Items: items,
		},
	}, nil
}
