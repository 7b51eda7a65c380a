package server

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/caio/go-tdigest/v4"

	"github.com/treosh/lightci/internal/server/datastore"
)

const digestCompression = float64(1000)

// statisticAudits are the audit families aggregated into build statistics
// when a build seals; each contributes an audit_<id>_median over its
// numericValue. Categories contribute median, min, and max of their score.
var statisticAudits = []string{
	"first-contentful-paint",
	"largest-contentful-paint",
	"interactive",
	"total-blocking-time",
	"cumulative-layout-shift",
}

// lhrDocument is the fragment of an uploaded report that statistics are
// computed from.
type lhrDocument struct {
	Audits     map[string]lhrAudit    `json:"audits"`
	Categories map[string]lhrCategory `json:"categories"`
}

type lhrAudit struct {
	Score        *float64 `json:"score"`
	NumericValue *float64 `json:"numericValue"`
}

type lhrCategory struct {
	// Score is null in the report when no member audit scored.
	Score *float64 `json:"score"`
}

type statisticPoint struct {
	URL   string
	Name  string
	Value float64
}

type parsedRun struct {
	run *datastore.Run
	doc *lhrDocument
}

func newDigest() (*tdigest.TDigest, error) {
	return tdigest.New(tdigest.Compression(digestCompression))
}

// computeStatistics aggregates a build's runs into per-URL statistics and
// picks one representative run per URL. Runs whose reports cannot be
// parsed contribute nothing.
func computeStatistics(runs []*datastore.Run) ([]statisticPoint, []string, error) {
	byURL := map[string][]parsedRun{}
	var urls []string
	for _, run := range runs {
		var doc lhrDocument
		if err := json.Unmarshal(run.LHR, &doc); err != nil {
			continue
		}
		if _, seen := byURL[run.URL]; !seen {
			urls = append(urls, run.URL)
		}
		byURL[run.URL] = append(byURL[run.URL], parsedRun{run: run, doc: &doc})
	}
	sort.Strings(urls)

	var points []statisticPoint
	var representatives []string
	for _, url := range urls {
		parsed := byURL[url]

		for _, auditID := range statisticAudits {
			digest, err := newDigest()
			if err != nil {
				return nil, nil, err
			}
			for _, p := range parsed {
				if value := numericValue(p.doc, auditID); value != nil {
					if err := digest.Add(*value); err != nil {
						return nil, nil, err
					}
				}
			}
			if digest.Count() == 0 {
				continue
			}
			points = append(points, statisticPoint{
				URL:   url,
				Name:  "audit_" + auditID + "_median",
				Value: digest.Quantile(0.5),
			})
		}

		for _, categoryID := range categoryIDs(parsed) {
			digest, err := newDigest()
			if err != nil {
				return nil, nil, err
			}
			for _, p := range parsed {
				if category, ok := p.doc.Categories[categoryID]; ok && category.Score != nil {
					if err := digest.Add(*category.Score); err != nil {
						return nil, nil, err
					}
				}
			}
			if digest.Count() == 0 {
				continue
			}
			points = append(points,
				statisticPoint{URL: url, Name: "category_" + categoryID + "_median", Value: digest.Quantile(0.5)},
				statisticPoint{URL: url, Name: "category_" + categoryID + "_min", Value: digest.Quantile(0)},
				statisticPoint{URL: url, Name: "category_" + categoryID + "_max", Value: digest.Quantile(1)},
			)
		}

		representative, err := representativeRun(parsed)
		if err != nil {
			return nil, nil, err
		}
		representatives = append(representatives, representative)
	}

	return points, representatives, nil
}

func categoryIDs(parsed []parsedRun) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, p := range parsed {
		for id := range p.doc.Categories {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func numericValue(doc *lhrDocument, auditID string) *float64 {
	audit, ok := doc.Audits[auditID]
	if !ok {
		return nil
	}
	return audit.NumericValue
}

// representativeRun picks the run whose first-contentful-paint and
// interactive land closest to the group's medians. Groups without those
// metrics fall back to the first run.
func representativeRun(parsed []parsedRun) (string, error) {
	if len(parsed) == 1 {
		return parsed[0].run.ID, nil
	}

	fcpDigest, err := newDigest()
	if err != nil {
		return "", err
	}
	ttiDigest, err := newDigest()
	if err != nil {
		return "", err
	}
	for _, p := range parsed {
		if value := numericValue(p.doc, "first-contentful-paint"); value != nil {
			if err := fcpDigest.Add(*value); err != nil {
				return "", err
			}
		}
		if value := numericValue(p.doc, "interactive"); value != nil {
			if err := ttiDigest.Add(*value); err != nil {
				return "", err
			}
		}
	}
	if fcpDigest.Count() == 0 || ttiDigest.Count() == 0 {
		return parsed[0].run.ID, nil
	}

	fcpMedian := fcpDigest.Quantile(0.5)
	ttiMedian := ttiDigest.Quantile(0.5)

	best := parsed[0].run.ID
	bestDistance := math.Inf(1)
	for _, p := range parsed {
		fcp := numericValue(p.doc, "first-contentful-paint")
		tti := numericValue(p.doc, "interactive")
		if fcp == nil || tti == nil {
			continue
		}
		distance := relativeDelta(*fcp, fcpMedian) + relativeDelta(*tti, ttiMedian)
		if distance < bestDistance {
			best = p.run.ID
			bestDistance = distance
		}
	}
	return best, nil
}

func relativeDelta(value, reference float64) float64 {
	if reference == 0 {
		return math.Abs(value)
	}
	return math.Abs(value-reference) / reference
}
