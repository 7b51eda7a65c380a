package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/pkg/artifacts"
)

func numericResult(id string, score, value float64) *audit.Result {
	return &audit.Result{
		ID:               id,
		Title:            id,
		Score:            audit.Score(score),
		ScoreDisplayMode: audit.ModeNumeric,
		NumericValue:     audit.Float(value),
		NumericUnit:      "millisecond",
	}
}

func testResults() map[string]*audit.Result {
	return map[string]*audit.Result{
		"first-contentful-paint":   numericResult("first-contentful-paint", 0.8, 2000),
		"largest-contentful-paint": numericResult("largest-contentful-paint", 0.7, 3000),
		"total-blocking-time":      numericResult("total-blocking-time", 0.9, 180),
		"cumulative-layout-shift":  numericResult("cumulative-layout-shift", 1.0, 0.01),
		"interactive":              numericResult("interactive", 0.6, 4800),
		"viewport": {
			ID: "viewport", Score: audit.Score(1), ScoreDisplayMode: audit.ModeBinary,
		},
		"document-title": {
			ID: "document-title", Score: audit.Score(0), ScoreDisplayMode: audit.ModeBinary,
		},
		"http-status-code": {
			ID: "http-status-code", Score: audit.Score(1), ScoreDisplayMode: audit.ModeBinary,
		},
	}
}

func testReport(t *testing.T) *Report {
	t.Helper()
	arts := &artifacts.Artifacts{
		URL: artifacts.URL{
			Requested: "https://example.com/",
			Final:     "https://www.example.com/",
		},
		FetchTime:      time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC),
		UserAgent:      "HeadlessChrome/124.0",
		BenchmarkIndex: 1500,
		Settings:       artifacts.MobileSettings(),
	}
	return Build(arts, testResults(), Timing{TotalMS: 8000})
}

func TestBuildCategoryScores(t *testing.T) {
	r := testReport(t)

	perf := r.Categories["performance"]
	require.NotNil(t, perf.Score)
	// (0.8*10 + 0.7*25 + 0.9*30 + 1.0*25 + 0.6*10) / 100 = 0.835, rounded.
	require.InDelta(t, 0.84, *perf.Score, 1e-9)

	seo := r.Categories["seo"]
	require.NotNil(t, seo.Score)
	require.InDelta(t, 0.67, *seo.Score, 1e-9)

	// Neither best-practices audit produced a score.
	require.Nil(t, r.Categories["best-practices"].Score)
}

func TestBuildMetadata(t *testing.T) {
	r := testReport(t)

	require.Equal(t, SchemaVersion, r.SchemaVersion)
	require.Equal(t, "https://example.com/", r.RequestedURL)
	require.Equal(t, "https://www.example.com/", r.FinalURL)
	require.Equal(t, "2024-05-10T12:30:00Z", r.FetchTime)
	require.Equal(t, "HeadlessChrome/124.0", r.Environment.HostUserAgent)
	require.Equal(t, artifacts.FormFactorMobile, r.ConfigSettings.FormFactor)
	require.NotEmpty(t, r.Version)
}

func TestJSONRoundTrip(t *testing.T) {
	r := testReport(t)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, r.FinalURL, back.FinalURL)
	require.Equal(t, *r.Categories["performance"].Score, *back.Categories["performance"].Score)
	require.Equal(t, *r.Audits["interactive"].NumericValue, *back.Audits["interactive"].NumericValue)
}

func TestFingerprint(t *testing.T) {
	a := testReport(t)
	b := testReport(t)
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Len(t, a.Fingerprint(), 16)

	b.FinalURL = "https://other.example.com/"
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func reportWithMetrics(fcp, tti float64) *Report {
	return &Report{
		Audits: map[string]*audit.Result{
			"first-contentful-paint": numericResult("first-contentful-paint", 0.5, fcp),
			"interactive":            numericResult("interactive", 0.5, tti),
		},
	}
}

func TestRepresentative(t *testing.T) {
	require.Equal(t, -1, Representative(nil))
	require.Equal(t, 0, Representative([]*Report{reportWithMetrics(1000, 4000)}))

	runs := []*Report{
		reportWithMetrics(900, 3600),
		reportWithMetrics(1000, 4000),
		reportWithMetrics(1800, 7000),
	}
	require.Equal(t, 1, Representative(runs))
}

func TestRepresentativeFallsBackToScore(t *testing.T) {
	score := func(s float64) *Report {
		return &Report{
			Categories: map[string]*Category{
				"performance": {ID: "performance", Score: audit.Score(s)},
			},
		}
	}
	runs := []*Report{score(0.2), score(0.5), score(0.9)}
	require.Equal(t, 1, Representative(runs))
}

func TestSummaryPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, testReport(t))

	out := buf.String()
	require.Contains(t, out, "https://www.example.com/")
	require.Contains(t, out, "Performance")
	require.Contains(t, out, "84")
	require.Contains(t, out, "SEO")
	// A bytes.Buffer is not a terminal, so no escape codes.
	require.NotContains(t, out, "\x1b[")
}
