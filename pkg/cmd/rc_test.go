package cmd

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/assert"
	"github.com/treosh/lightci/internal/server"
	"github.com/treosh/lightci/pkg/rcfile"
)

func parseRC(t *testing.T, contents string) *rcfile.RC {
	t.Helper()
	rc, err := rcfile.Parse([]byte(contents))
	require.NoError(t, err)
	return rc
}

func TestCollectConfigAppliesRCFile(t *testing.T) {
	rc := parseRC(t, `
collect:
  url:
    - https://example.com/
  numberOfRuns: 5
  settings:
    preset: desktop
    chromeFlags:
      - --no-sandbox
    headless: false
    maxWaitForLoad: 60000
upload:
  outputDir: perf-reports
`)

	config := &CollectConfig{}
	cmd := &cobra.Command{Use: "collect"}
	RegisterCollectFlags(cmd, config)
	require.NoError(t, cmd.ParseFlags(nil))
	config.applyRC(cmd.Flags(), rc)

	require.Equal(t, []string{"https://example.com/"}, config.URLs)
	require.Equal(t, 5, config.NumberOfRuns)
	require.Equal(t, "desktop", config.Preset)
	require.Equal(t, []string{"--no-sandbox"}, config.ChromeFlags)
	require.False(t, config.Headless)
	require.Equal(t, "perf-reports", config.OutputDir)
	require.Equal(t, 60*time.Second, config.MaxWaitForLoad)
	require.Equal(t, 30*time.Second, config.MaxWaitForFCP)
	require.Equal(t, time.Second, config.PauseAfterLoad)
}

func TestCollectFlagsWinOverRCFile(t *testing.T) {
	rc := parseRC(t, `
collect:
  url:
    - https://example.com/
  numberOfRuns: 5
  settings:
    preset: desktop
`)

	config := &CollectConfig{}
	cmd := &cobra.Command{Use: "collect"}
	RegisterCollectFlags(cmd, config)
	require.NoError(t, cmd.ParseFlags([]string{
		"--url", "https://staging.example.com/",
		"--num-runs", "1",
		"--preset", "mobile",
	}))
	config.applyRC(cmd.Flags(), rc)

	require.Equal(t, []string{"https://staging.example.com/"}, config.URLs)
	require.Equal(t, 1, config.NumberOfRuns)
	require.Equal(t, "mobile", config.Preset)
	require.Equal(t, ".lightci", config.OutputDir)
}

func TestUploadConfigAppliesRCFile(t *testing.T) {
	rc := parseRC(t, `
upload:
  target: lhci
  serverBaseUrl: https://lightci.example.com
  token: rc-token
  urlReplacementPatterns:
    - s/:other-branch/:main/
`)

	config := &UploadConfig{}
	cmd := &cobra.Command{Use: "upload"}
	RegisterUploadFlags(cmd, config)
	require.NoError(t, cmd.ParseFlags([]string{"--token", "flag-token"}))
	config.applyRC(cmd.Flags(), rc)

	require.Equal(t, "lhci", config.Target)
	require.Equal(t, "https://lightci.example.com", config.ServerBaseURL)
	require.Equal(t, "flag-token", config.Token)
	require.Equal(t, []string{"s/:other-branch/:main/"}, config.URLReplacementPatterns)
	require.Equal(t, ".lightci", config.OutputDir)
}

func TestAssertMergedPresetFlagWins(t *testing.T) {
	rc := parseRC(t, "assert:\n  preset: recommended\n")

	config := &AssertConfig{}
	cmd := &cobra.Command{Use: "assert"}
	RegisterAssertFlags(cmd, config)
	require.NoError(t, cmd.ParseFlags([]string{"--preset", "all"}))

	cfg := config.merged(cmd.Flags(), rc, "preset")
	require.Equal(t, "all", cfg.Preset)
}

func TestAssertMergedTakesRCFile(t *testing.T) {
	rc := parseRC(t, `
assert:
  preset: recommended
  assertions:
    first-contentful-paint:
      maxNumericValue: 2000
upload:
  outputDir: perf-reports
`)

	config := &AssertConfig{}
	cmd := &cobra.Command{Use: "assert"}
	RegisterAssertFlags(cmd, config)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := config.merged(cmd.Flags(), rc, "preset")
	require.Equal(t, "recommended", cfg.Preset)
	require.Contains(t, cfg.Assertions, "first-contentful-paint")
	require.Equal(t, "perf-reports", config.OutputDir)
	require.True(t, config.configured(cfg))
}

func TestAssertMergedRenamedPresetFlag(t *testing.T) {
	rc := parseRC(t, "assert:\n  preset: recommended\n")

	collectConfig := &CollectConfig{}
	assertConfig := &AssertConfig{}
	uploadConfig := &UploadConfig{}
	cmd := &cobra.Command{Use: "autorun"}
	RegisterAutorunFlags(cmd, collectConfig, assertConfig, uploadConfig)
	require.NoError(t, cmd.ParseFlags([]string{"--assert-preset", "all"}))

	cfg := assertConfig.merged(cmd.Flags(), rc, "assert-preset")
	require.Equal(t, "all", cfg.Preset)
}

func TestAssertConfigured(t *testing.T) {
	config := &AssertConfig{}
	require.False(t, config.configured(assert.Config{}))
	require.True(t, config.configured(assert.Config{Preset: "all"}))
	require.True(t, config.configured(assert.Config{
		Assertions: map[string]assert.Assertion{"first-contentful-paint": {}},
	}))
}

func TestServerRCOverlay(t *testing.T) {
	rc := parseRC(t, `
server:
  httpAddr: ":8888"
  datastoreEngine: postgres
  datastoreConnUri: postgres://localhost:5432/lightci
`)

	config := &server.Config{}
	cmd := &cobra.Command{Use: "serve"}
	RegisterServeFlags(cmd, config)
	require.NoError(t, cmd.ParseFlags([]string{"--http-addr", ":7777"}))
	applyServerRC(cmd.Flags(), rc, config)

	require.Equal(t, ":7777", config.API.HTTPAddress)
	require.Equal(t, ":9090", config.MetricsAPI.HTTPAddress)
	require.Equal(t, "postgres", config.DatastoreEngine)
	require.Equal(t, "postgres://localhost:5432/lightci", config.DatastoreConnURI)
}
