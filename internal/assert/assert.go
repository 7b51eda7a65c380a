// Package assert checks collected reports against the thresholds and
// budgets configured in the rc file. Each threshold folds the value it
// reads across every run of a URL into a single number, compares it, and
// produces a Result; error-level failures decide the process exit code.
package assert

import (
	"encoding/json"
	"sort"

	"github.com/treosh/lightci/internal/dotpath"
	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/report"
)

// Level decides what a failed assertion does to the build.
type Level string

const (
	LevelOff   Level = "off"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Aggregation folds one value per run into the single value a threshold
// judges.
type Aggregation string

const (
	// AggregateMedian takes the middle value, averaging the two middle
	// values for an even run count.
	AggregateMedian Aggregation = "median"
	// AggregateOptimistic takes the value most likely to pass.
	AggregateOptimistic Aggregation = "optimistic"
	// AggregatePessimistic takes the value most likely to fail.
	AggregatePessimistic Aggregation = "pessimistic"
	// AggregateLatest takes the last run's value.
	AggregateLatest Aggregation = "latest"
)

// Assertion is one named check. Names are audit IDs
// ("first-contentful-paint") or "categories.<id>". Every threshold that is
// set produces its own result. An unset level means error; an unset
// aggregation method means optimistic.
type Assertion struct {
	Level             Level       `yaml:"level" json:"level,omitempty"`
	MinScore          *float64    `yaml:"minScore" json:"minScore,omitempty"`
	MaxNumericValue   *float64    `yaml:"maxNumericValue" json:"maxNumericValue,omitempty"`
	MaxLength         *int        `yaml:"maxLength" json:"maxLength,omitempty"`
	AggregationMethod Aggregation `yaml:"aggregationMethod" json:"aggregationMethod,omitempty"`
}

// Config selects which assertions and budgets run. Preset assertions apply
// first; explicit assertions override them name by name.
type Config struct {
	Preset     string               `yaml:"preset" json:"preset,omitempty"`
	Assertions map[string]Assertion `yaml:"assertions" json:"assertions,omitempty"`
	Budgets    []Budget             `yaml:"budgets" json:"budgets,omitempty"`
}

// Result is the outcome of one threshold over one URL's runs. Values holds
// the raw per-run values; an empty Values means no run produced the
// asserted property, which always fails.
type Result struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Level    Level     `json:"level"`
	Property string    `json:"property"`
	Expected float64   `json:"expected"`
	Actual   float64   `json:"actual"`
	Operator string    `json:"operator"`
	Passed   bool      `json:"passed"`
	Values   []float64 `json:"values,omitempty"`
}

// Evaluate runs every configured assertion and budget against the reports,
// grouped by requested URL. Values are read off the marshaled JSON form of
// each report, so assertions see exactly what report consumers see.
func Evaluate(reports []*report.Report, cfg Config) []Result {
	assertions := merged(cfg)
	names := make([]string, 0, len(assertions))
	for name := range assertions {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []Result
	for _, group := range groupByURL(reports) {
		docs := make([]map[string]any, 0, len(group.reports))
		for _, r := range group.reports {
			docs = append(docs, decode(r))
		}
		for _, name := range names {
			results = append(results, evaluateAssertion(group.url, name, assertions[name], docs)...)
		}
		results = append(results, evaluateBudgets(group.url, cfg.Budgets, docs)...)
	}
	return results
}

// ExitCode maps results onto the process exit code: any error-level
// failure fails the build.
func ExitCode(results []Result) int {
	for _, r := range results {
		if !r.Passed && r.Level == LevelError {
			return 1
		}
	}
	return 0
}

func merged(cfg Config) map[string]Assertion {
	out := map[string]Assertion{}
	for name, a := range presetAssertions(cfg.Preset) {
		out[name] = a
	}
	for name, a := range cfg.Assertions {
		out[name] = a
	}
	return out
}

type urlGroup struct {
	url     string
	reports []*report.Report
}

func groupByURL(reports []*report.Report) []urlGroup {
	var groups []urlGroup
	index := map[string]int{}
	for _, r := range reports {
		i, ok := index[r.RequestedURL]
		if !ok {
			i = len(groups)
			index[r.RequestedURL] = i
			groups = append(groups, urlGroup{url: r.RequestedURL})
		}
		groups[i].reports = append(groups[i].reports, r)
	}
	return groups
}

func decode(r *report.Report) map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		log.Err(err).Msg("report does not marshal; assertions will see an empty document")
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}

// threshold is one comparison an assertion performs.
type threshold struct {
	property       string
	operator       string
	expected       float64
	higherIsBetter bool
}

func (a Assertion) thresholds() []threshold {
	var ts []threshold
	if a.MinScore != nil {
		ts = append(ts, threshold{"score", ">=", *a.MinScore, true})
	}
	if a.MaxNumericValue != nil {
		ts = append(ts, threshold{"numericValue", "<=", *a.MaxNumericValue, false})
	}
	if a.MaxLength != nil {
		ts = append(ts, threshold{"details.items.length", "<=", float64(*a.MaxLength), false})
	}
	return ts
}

func evaluateAssertion(url, name string, a Assertion, docs []map[string]any) []Result {
	level := a.Level
	if level == "" {
		level = LevelError
	}
	if level == LevelOff {
		return nil
	}
	method := a.AggregationMethod
	if method == "" {
		method = AggregateOptimistic
	}

	base := "audits." + name
	if isCategoryName(name) {
		base = name
	}

	var out []Result
	for _, t := range a.thresholds() {
		values := collectValues(docs, base, t.property)
		res := Result{
			URL:      url,
			Name:     name,
			Level:    level,
			Property: t.property,
			Expected: t.expected,
			Operator: t.operator,
			Values:   values,
		}
		if len(values) > 0 {
			res.Actual = aggregate(values, method, t.higherIsBetter)
			res.Passed = compare(res.Actual, t.operator, t.expected)
		}
		out = append(out, res)
	}
	return out
}

func isCategoryName(name string) bool {
	const prefix = "categories."
	return len(name) > len(prefix) && name[:len(prefix)] == prefix
}

func collectValues(docs []map[string]any, base, property string) []float64 {
	var values []float64
	for _, doc := range docs {
		if property == "details.items.length" {
			items, ok := dotpath.Get(doc, base+".details.items")
			if !ok {
				continue
			}
			list, ok := items.([]any)
			if !ok {
				continue
			}
			values = append(values, float64(len(list)))
			continue
		}
		if v, ok := dotpath.GetFloat(doc, base+"."+property); ok {
			values = append(values, v)
		}
	}
	return values
}

func aggregate(values []float64, method Aggregation, higherIsBetter bool) float64 {
	switch method {
	case AggregateLatest:
		return values[len(values)-1]
	case AggregateOptimistic:
		if higherIsBetter {
			return maxOf(values)
		}
		return minOf(values)
	case AggregatePessimistic:
		if higherIsBetter {
			return minOf(values)
		}
		return maxOf(values)
	default:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid]
		}
		return (sorted[mid-1] + sorted[mid]) / 2
	}
}

func compare(actual float64, operator string, expected float64) bool {
	if operator == ">=" {
		return actual >= expected
	}
	return actual <= expected
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
