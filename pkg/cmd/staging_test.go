package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/audit"
	"github.com/treosh/lightci/internal/runner"
	"github.com/treosh/lightci/pkg/report"
)

func stubReport(url string, fcpMS float64) *report.Report {
	return &report.Report{
		SchemaVersion: report.SchemaVersion,
		RequestedURL:  url,
		FinalURL:      url,
		FetchTime:     "2026-03-14T09:00:00Z",
		Audits: map[string]*audit.Result{
			"first-contentful-paint": {
				ID:           "first-contentful-paint",
				Score:        audit.Score(0.93),
				NumericValue: &fcpMS,
				NumericUnit:  "millisecond",
			},
		},
	}
}

func TestStageAndLoadReports(t *testing.T) {
	dir := t.TempDir()
	set := &runner.ResultSet{Results: []*runner.URLResult{
		{URL: "https://example.com/", Reports: []*report.Report{
			stubReport("https://example.com/", 1200),
			stubReport("https://example.com/", 1350),
		}},
		{URL: "https://example.com/pricing", Reports: []*report.Report{
			stubReport("https://example.com/pricing", 900),
		}},
	}}
	require.NoError(t, StageReports(dir, set))

	loaded, err := LoadStagedReports(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.Equal(t, "https://example.com/", loaded[0].RequestedURL)
	require.Equal(t, "https://example.com/", loaded[1].RequestedURL)
	require.Equal(t, "https://example.com/pricing", loaded[2].RequestedURL)
	require.NotNil(t, loaded[0].Audits["first-contentful-paint"])
	require.InDelta(t, 1200, *loaded[0].Audits["first-contentful-paint"].NumericValue, 0.001)
}

func TestStageReportsReplacesPreviousCollection(t *testing.T) {
	dir := t.TempDir()
	first := &runner.ResultSet{Results: []*runner.URLResult{
		{URL: "https://example.com/", Reports: []*report.Report{
			stubReport("https://example.com/", 1200),
			stubReport("https://example.com/", 1300),
		}},
	}}
	require.NoError(t, StageReports(dir, first))

	second := &runner.ResultSet{Results: []*runner.URLResult{
		{URL: "https://example.com/about", Reports: []*report.Report{
			stubReport("https://example.com/about", 700),
		}},
	}}
	require.NoError(t, StageReports(dir, second))

	loaded, err := LoadStagedReports(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "https://example.com/about", loaded[0].RequestedURL)
}

func TestLoadStagedReportsIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	set := &runner.ResultSet{Results: []*runner.URLResult{
		{URL: "https://example.com/", Reports: []*report.Report{
			stubReport("https://example.com/", 1100),
		}},
	}}
	require.NoError(t, StageReports(dir, set))

	// Files the filesystem upload target leaves behind.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lhr-20260314T090000-00000000deadbeef.json"), []byte("{}"), 0o644))

	loaded, err := LoadStagedReports(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestLoadStagedReportsEmpty(t *testing.T) {
	_, err := LoadStagedReports(t.TempDir())
	require.ErrorIs(t, err, ErrNoStagedReports)

	_, err = LoadStagedReports(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, ErrNoStagedReports)
}
