package assert

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/audit"
	_ "github.com/treosh/lightci/internal/audit/audits"
	"github.com/treosh/lightci/pkg/report"
)

func runReport(url string, perfScore float64, numeric map[string]float64) *report.Report {
	audits := map[string]*audit.Result{}
	for id, v := range numeric {
		audits[id] = &audit.Result{
			ID:               id,
			Score:            audit.Score(0.5),
			ScoreDisplayMode: audit.ModeNumeric,
			NumericValue:     audit.Float(v),
		}
	}
	return &report.Report{
		RequestedURL: url,
		FinalURL:     url,
		Audits:       audits,
		Categories: map[string]*report.Category{
			"performance": {ID: "performance", Score: audit.Score(perfScore)},
		},
	}
}

func singleAssertion(name string, a Assertion) Config {
	return Config{Assertions: map[string]Assertion{name: a}}
}

func TestMinScoreMedianAggregation(t *testing.T) {
	reports := []*report.Report{
		runReport("https://example.com/", 0.7, nil),
		runReport("https://example.com/", 0.9, nil),
		runReport("https://example.com/", 0.75, nil),
	}
	minScore := 0.8
	results := Evaluate(reports, singleAssertion("categories.performance", Assertion{
		Level:             LevelError,
		MinScore:          &minScore,
		AggregationMethod: AggregateMedian,
	}))

	require.Len(t, results, 1)
	r := results[0]
	require.Equal(t, "https://example.com/", r.URL)
	require.Equal(t, "categories.performance", r.Name)
	require.Equal(t, "score", r.Property)
	require.Equal(t, ">=", r.Operator)
	require.InDelta(t, 0.75, r.Actual, 1e-9)
	require.False(t, r.Passed)
	require.Equal(t, []float64{0.7, 0.9, 0.75}, r.Values)
	require.Equal(t, 1, ExitCode(results))
}

func TestMinScoreOptimisticAggregation(t *testing.T) {
	reports := []*report.Report{
		runReport("https://example.com/", 0.7, nil),
		runReport("https://example.com/", 0.9, nil),
	}
	minScore := 0.8
	results := Evaluate(reports, singleAssertion("categories.performance", Assertion{
		MinScore: &minScore,
	}))

	// Optimistic is the default method and picks the best run.
	require.Len(t, results, 1)
	require.InDelta(t, 0.9, results[0].Actual, 1e-9)
	require.True(t, results[0].Passed)
	require.Equal(t, LevelError, results[0].Level)
}

func TestMaxNumericValueAggregations(t *testing.T) {
	reports := []*report.Report{
		runReport("https://example.com/", 0.5, map[string]float64{"interactive": 5000}),
		runReport("https://example.com/", 0.5, map[string]float64{"interactive": 3000}),
	}
	limit := 4000.0

	results := Evaluate(reports, singleAssertion("interactive", Assertion{
		MaxNumericValue:   &limit,
		AggregationMethod: AggregateLatest,
	}))
	require.Len(t, results, 1)
	require.InDelta(t, 3000, results[0].Actual, 1e-9)
	require.True(t, results[0].Passed)

	results = Evaluate(reports, singleAssertion("interactive", Assertion{
		MaxNumericValue:   &limit,
		AggregationMethod: AggregatePessimistic,
	}))
	require.InDelta(t, 5000, results[0].Actual, 1e-9)
	require.False(t, results[0].Passed)
}

func TestMaxLength(t *testing.T) {
	r := runReport("https://example.com/", 0.5, nil)
	r.Audits["long-tasks"] = &audit.Result{
		ID:               "long-tasks",
		ScoreDisplayMode: audit.ModeInformative,
		Details: &audit.Table{
			Items: []map[string]any{{"duration": 120.0}, {"duration": 80.0}},
		},
	}
	maxLength := 1
	results := Evaluate([]*report.Report{r}, singleAssertion("long-tasks", Assertion{
		MaxLength: &maxLength,
	}))

	require.Len(t, results, 1)
	require.Equal(t, "details.items.length", results[0].Property)
	require.InDelta(t, 2, results[0].Actual, 1e-9)
	require.False(t, results[0].Passed)
}

func TestMissingAuditAlwaysFails(t *testing.T) {
	limit := 4000.0
	results := Evaluate(
		[]*report.Report{runReport("https://example.com/", 0.5, nil)},
		singleAssertion("speed-index", Assertion{MaxNumericValue: &limit}),
	)

	require.Len(t, results, 1)
	require.False(t, results[0].Passed)
	require.Empty(t, results[0].Values)
}

func TestLevelOffSkips(t *testing.T) {
	minScore := 0.9
	results := Evaluate(
		[]*report.Report{runReport("https://example.com/", 0.5, nil)},
		singleAssertion("categories.performance", Assertion{Level: LevelOff, MinScore: &minScore}),
	)
	require.Empty(t, results)
}

func TestRecommendedPresetWithOverride(t *testing.T) {
	reports := []*report.Report{
		runReport("https://example.com/", 0.92, map[string]float64{
			"first-contentful-paint":   2000,
			"largest-contentful-paint": 2900,
			"total-blocking-time":      120,
			"cumulative-layout-shift":  0.05,
			"interactive":              3400,
		}),
	}

	results := Evaluate(reports, Config{Preset: PresetRecommended})
	require.Len(t, results, 6)
	for _, r := range results {
		require.True(t, r.Passed, "expected %s to pass", r.Name)
		require.Equal(t, LevelWarn, r.Level)
	}

	results = Evaluate(reports, Config{
		Preset: PresetRecommended,
		Assertions: map[string]Assertion{
			"first-contentful-paint": {Level: LevelOff},
		},
	})
	require.Len(t, results, 5)
	for _, r := range results {
		require.NotEqual(t, "first-contentful-paint", r.Name)
	}
}

func TestAllPresetUsesRegistry(t *testing.T) {
	results := Evaluate(
		[]*report.Report{runReport("https://example.com/", 0.5, nil)},
		Config{Preset: PresetAll},
	)

	// Every scored audit asserts; informative audits stay out.
	require.Len(t, results, 13)
	for _, r := range results {
		require.NotEqual(t, "network-requests", r.Name)
		require.NotEqual(t, "long-tasks", r.Name)
		require.NotEqual(t, "user-timings", r.Name)
	}
	require.Equal(t, 1, ExitCode(results))
}

func budgetReport() *report.Report {
	r := runReport("https://example.com/page", 0.5, map[string]float64{"interactive": 3500})
	r.Audits["network-requests"] = &audit.Result{
		ID:               "network-requests",
		ScoreDisplayMode: audit.ModeInformative,
		Details: &audit.Table{
			Items: []map[string]any{
				{"url": "https://example.com/page", "resourceType": "Document", "transferSize": 10240},
				{"url": "https://example.com/app.js", "resourceType": "Script", "transferSize": 307200},
				{"url": "https://www.googletagmanager.com/gtm.js", "resourceType": "Script", "transferSize": 51200},
			},
		},
	}
	return r
}

func TestBudgets(t *testing.T) {
	results := Evaluate([]*report.Report{budgetReport()}, Config{
		Budgets: []Budget{{
			Path:           "/",
			ResourceSizes:  []ResourceBudget{{ResourceType: "script", Budget: 200}},
			ResourceCounts: []ResourceBudget{{ResourceType: "total", Budget: 2}},
			Timings:        []TimingBudget{{Metric: "interactive", Budget: 3000}},
		}},
	})

	require.Len(t, results, 3)
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}

	size := byName["budget.script.size"]
	require.InDelta(t, 350, size.Actual, 1e-9)
	require.False(t, size.Passed)

	count := byName["budget.total.count"]
	require.InDelta(t, 3, count.Actual, 1e-9)
	require.False(t, count.Passed)

	timing := byName["budget.interactive"]
	require.InDelta(t, 3500, timing.Actual, 1e-9)
	require.False(t, timing.Passed)

	require.Equal(t, 1, ExitCode(results))
}

func TestBudgetThirdParty(t *testing.T) {
	results := Evaluate([]*report.Report{budgetReport()}, Config{
		Budgets: []Budget{{
			ResourceCounts: []ResourceBudget{{ResourceType: "third-party", Budget: 0}},
		}},
	})

	require.Len(t, results, 1)
	require.InDelta(t, 1, results[0].Actual, 1e-9)
	require.False(t, results[0].Passed)
}

func TestBudgetPathFiltering(t *testing.T) {
	results := Evaluate([]*report.Report{budgetReport()}, Config{
		Budgets: []Budget{{
			Path:          "/blog",
			ResourceSizes: []ResourceBudget{{ResourceType: "script", Budget: 1}},
		}},
	})
	require.Empty(t, results)
}

func TestMatchBudgetPath(t *testing.T) {
	cases := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"", "https://example.com/anything", true},
		{"/", "https://example.com/anything", true},
		{"/", "https://example.com", true},
		{"/blog", "https://example.com/blog/post", true},
		{"/blog", "https://example.com/about", false},
		{"/blog$", "https://example.com/blog", true},
		{"/blog$", "https://example.com/blog/post", false},
		{"/*.html$", "https://example.com/a/index.html", true},
		{"/*.html$", "https://example.com/a/index.htm", false},
		{"/*/post", "https://example.com/blog/post", true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, matchBudgetPath(tc.pattern, tc.url),
			"pattern %q url %q", tc.pattern, tc.url)
	}
}

func TestFormat(t *testing.T) {
	minScore := 0.8
	results := Evaluate(
		[]*report.Report{runReport("https://example.com/", 0.7, nil)},
		singleAssertion("categories.performance", Assertion{MinScore: &minScore}),
	)

	var buf bytes.Buffer
	Format(&buf, results)
	out := buf.String()
	require.Contains(t, out, "https://example.com/")
	require.Contains(t, out, "categories.performance.score")
	require.Contains(t, out, "expected: >=0.8")
	require.Contains(t, out, "found: 0.7")
	require.Contains(t, out, "1 assertion failures, 0 warnings")
	require.NotContains(t, out, "\x1b[")
}

func TestFormatAllPassed(t *testing.T) {
	var buf bytes.Buffer
	Format(&buf, []Result{{Name: "interactive", Passed: true}})
	require.Contains(t, buf.String(), "1 assertions passed")
}

func TestExitCodeIgnoresWarnings(t *testing.T) {
	results := []Result{
		{Name: "a", Level: LevelWarn, Passed: false},
		{Name: "b", Level: LevelError, Passed: true},
	}
	require.Equal(t, 0, ExitCode(results))
}
