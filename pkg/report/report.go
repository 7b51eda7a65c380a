// Package report assembles audit output into the JSON document the rest of
// the system exchanges: assertions read it, the upload targets ship it, and
// the server stores it.
package report

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
	"github.com/treosh/lightci/pkg/releases"
)

// SchemaVersion identifies the report document layout.
const SchemaVersion = 1

// Category is a scored audit grouping inside a report. Score is nil when no
// member audit produced a score.
type Category struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Score     *float64         `json:"score"`
	AuditRefs []audit.AuditRef `json:"auditRefs"`
}

// Environment records what gathered the artifacts behind a report.
type Environment struct {
	HostUserAgent    string  `json:"hostUserAgent"`
	NetworkUserAgent string  `json:"networkUserAgent"`
	BenchmarkIndex   float64 `json:"benchmarkIndex"`
}

// TimingEntry is one measured phase of producing the report.
type TimingEntry struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration"`
}

// Timing is the report's own production cost.
type Timing struct {
	TotalMS float64       `json:"total"`
	Entries []TimingEntry `json:"entries,omitempty"`
}

// Report is the complete result of auditing one page load once.
type Report struct {
	SchemaVersion  int                      `json:"schemaVersion"`
	Version        string                   `json:"lightciVersion"`
	RequestedURL   string                   `json:"requestedUrl"`
	FinalURL       string                   `json:"finalUrl"`
	FetchTime      string                   `json:"fetchTime"`
	UserAgent      string                   `json:"userAgent"`
	Environment    Environment              `json:"environment"`
	Audits         map[string]*audit.Result `json:"audits"`
	Categories     map[string]*Category     `json:"categories"`
	ConfigSettings artifacts.Settings       `json:"configSettings"`
	Timing         Timing                   `json:"timing"`
	RunWarnings    []string                 `json:"runWarnings"`
}

var binaryVersion = sync.OnceValue(func() string {
	v, err := releases.CurrentVersion()
	if err != nil || v == "" {
		return "dev"
	}
	return v
})

// Build assembles a report from gathered artifacts and the audit results.
// Category scores are the weighted mean of their members; categories whose
// members all failed to score stay nil rather than reading as zero.
func Build(arts *artifacts.Artifacts, results map[string]*audit.Result, timing Timing) *Report {
	categories := make(map[string]*Category)
	for _, def := range audit.Categories() {
		cat := &Category{ID: def.ID, Title: def.Title, AuditRefs: def.AuditRefs}
		items := make([]scoring.ScoredItem, 0, len(def.AuditRefs))
		for _, ref := range def.AuditRefs {
			if res, ok := results[ref.ID]; ok {
				items = append(items, scoring.ScoredItem{Score: res.Score, Weight: ref.Weight})
			}
		}
		if mean, ok := scoring.WeightedMean(items); ok {
			cat.Score = audit.Score(scoring.RoundScore(mean))
		}
		categories[def.ID] = cat
	}

	return &Report{
		SchemaVersion: SchemaVersion,
		Version:       binaryVersion(),
		RequestedURL:  arts.URL.Requested,
		FinalURL:      arts.URL.Final,
		FetchTime:     arts.FetchTime.UTC().Format(time.RFC3339),
		UserAgent:     arts.Settings.UserAgent,
		Environment: Environment{
			HostUserAgent:    arts.UserAgent,
			NetworkUserAgent: arts.Settings.UserAgent,
			BenchmarkIndex:   arts.BenchmarkIndex,
		},
		Audits:         results,
		Categories:     categories,
		ConfigSettings: arts.Settings,
		Timing:         timing,
	}
}

// Fingerprint hashes the report's canonical JSON form. Two identical runs
// produce the same fingerprint; file names and deduplication rely on that.
func (r *Report) Fingerprint() string {
	// encoding/json sorts map keys, so marshaling is canonical already.
	data, err := json.Marshal(r)
	if err != nil {
		// A report is plain data; failing to marshal one is a bug.
		panic(fmt.Sprintf("report not marshalable: %v", err))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// AuditNumericValue returns an audit's numeric value if present.
func (r *Report) AuditNumericValue(id string) (float64, bool) {
	res, ok := r.Audits[id]
	if !ok || res.NumericValue == nil {
		return 0, false
	}
	return *res.NumericValue, true
}

// CategoryScore returns a category's score if present.
func (r *Report) CategoryScore(id string) (float64, bool) {
	cat, ok := r.Categories[id]
	if !ok || cat.Score == nil {
		return 0, false
	}
	return *cat.Score, true
}
