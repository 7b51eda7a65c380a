// Package audit defines the audit contract and the registry the runner
// executes. Audits read gathered artifacts, never the live page, so every
// audit runs against a capture the same way twice.
package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/treosh/lightci/pkg/artifacts"
)

// ScoreDisplayMode tells report consumers how to read an audit's score.
type ScoreDisplayMode string

const (
	// ModeNumeric scores on a continuous 0..1 curve.
	ModeNumeric ScoreDisplayMode = "numeric"
	// ModeBinary scores pass or fail.
	ModeBinary ScoreDisplayMode = "binary"
	// ModeInformative carries data but no judgment; score stays nil.
	ModeInformative ScoreDisplayMode = "informative"
	// ModeNotApplicable means the page has nothing for this audit to look at.
	ModeNotApplicable ScoreDisplayMode = "notApplicable"
	// ModeError means the audit itself failed to produce a result.
	ModeError ScoreDisplayMode = "error"
	// ModeManual marks checks a human has to do; none ship builtin.
	ModeManual ScoreDisplayMode = "manual"
)

// Artifact requirement names audits declare in Meta.Requirements.
const (
	RequiresTrace          = "trace"
	RequiresProcessedTrace = "processed-trace"
	RequiresMainDocument   = "main-document"
)

// Meta describes an audit: identity, prose, and what it needs to run.
type Meta struct {
	ID               string
	Title            string
	FailureTitle     string
	Description      string
	ScoreDisplayMode ScoreDisplayMode
	Requirements     []string
}

// Heading describes one column of a details table. ValueType hints
// rendering: text, url, ms, bytes, numeric.
type Heading struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	ValueType string `json:"valueType"`
}

// Table is the tabular details payload of an audit result.
type Table struct {
	Headings []Heading        `json:"headings"`
	Items    []map[string]any `json:"items"`
}

// Result is what one audit produced for one run.
type Result struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Score            *float64         `json:"score"`
	ScoreDisplayMode ScoreDisplayMode `json:"scoreDisplayMode"`
	NumericValue     *float64         `json:"numericValue,omitempty"`
	NumericUnit      string           `json:"numericUnit,omitempty"`
	DisplayValue     string           `json:"displayValue,omitempty"`
	Details          *Table           `json:"details,omitempty"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// Audit is one check over gathered artifacts.
type Audit interface {
	Meta() Meta
	Audit(ctx context.Context, arts *artifacts.Artifacts) (*Result, error)
}

var registry = map[string]Audit{}

// Register adds an audit to the registry. Audits self-register from their
// file's init; a duplicate ID is a programming error.
func Register(a Audit) {
	id := a.Meta().ID
	if _, ok := registry[id]; ok {
		panic(fmt.Sprintf("audit %q registered twice", id))
	}
	registry[id] = a
}

// All returns every registered audit, ordered by ID.
func All() []Audit {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	audits := make([]Audit, 0, len(ids))
	for _, id := range ids {
		audits = append(audits, registry[id])
	}
	return audits
}

// Get looks up one audit by ID.
func Get(id string) (Audit, bool) {
	a, ok := registry[id]
	return a, ok
}

// Run executes one audit. Missing requirements produce a notApplicable
// result, and any error becomes an error-mode result instead of aborting
// the run. The returned result always carries the audit's identity and a
// display mode.
func Run(ctx context.Context, a Audit, arts *artifacts.Artifacts) *Result {
	meta := a.Meta()
	if missing := missingRequirement(meta, arts); missing != "" {
		return finish(meta, &Result{
			ScoreDisplayMode: ModeNotApplicable,
			ErrorMessage:     fmt.Sprintf("required artifact %q was not gathered", missing),
		})
	}

	result, err := a.Audit(ctx, arts)
	if err != nil {
		// Typed run errors already lead with their code; anything else gets
		// reported verbatim.
		return finish(meta, &Result{
			ScoreDisplayMode: ModeError,
			ErrorMessage:     err.Error(),
		})
	}
	if result == nil {
		result = &Result{ScoreDisplayMode: ModeNotApplicable}
	}
	return finish(meta, result)
}

func finish(meta Meta, res *Result) *Result {
	res.ID = meta.ID
	res.Title = meta.Title
	if res.Score != nil && *res.Score < 1 && meta.FailureTitle != "" {
		res.Title = meta.FailureTitle
	}
	res.Description = meta.Description
	if res.ScoreDisplayMode == "" {
		res.ScoreDisplayMode = meta.ScoreDisplayMode
	}
	return res
}

func missingRequirement(meta Meta, arts *artifacts.Artifacts) string {
	for _, req := range meta.Requirements {
		switch req {
		case RequiresTrace:
			if arts.Trace == nil {
				return req
			}
		case RequiresProcessedTrace:
			if arts.ProcessedTrace == nil {
				return req
			}
		case RequiresMainDocument:
			if arts.MainDocumentStatusCode == 0 {
				return req
			}
		}
	}
	return ""
}

// Float wraps a value for the optional numeric fields.
func Float(v float64) *float64 { return &v }

// Score wraps a float for the *float64 score fields.
func Score(v float64) *float64 { return &v }

// BinaryScore maps pass/fail onto the score scale.
func BinaryScore(pass bool) *float64 {
	if pass {
		return Score(1)
	}
	return Score(0)
}

// FormatMS renders a millisecond quantity the way report summaries show
// them: sub-second values in ms, the rest in seconds.
func FormatMS(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%d ms", int64(ms+0.5))
	}
	return fmt.Sprintf("%.1f s", ms/1000)
}
