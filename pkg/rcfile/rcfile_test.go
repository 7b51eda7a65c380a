package rcfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/assert"
)

const fullYAML = `
collect:
  url:
    - https://example.com/
    - https://example.com/pricing
  numberOfRuns: 5
  settings:
    preset: desktop
    chromePath: /usr/bin/chromium
    chromeFlags:
      - --no-sandbox
    headless: false
assert:
  preset: recommended
  assertions:
    first-contentful-paint:
      level: warn
      maxNumericValue: 2500
      aggregationMethod: median
  budgets:
    - path: /
      resourceSizes:
        - resourceType: script
          budget: 300
upload:
  target: lhci
  serverBaseUrl: https://lightci.example.com
  token: abc123
server:
  httpAddr: ":9005"
  datastoreEngine: postgres
  datastoreConnUri: postgres://localhost/lightci
`

func TestParseFullDocument(t *testing.T) {
	rc, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	headless := false
	maxNumericValue := 2500.0
	want := &RC{
		Collect: CollectRC{
			URL:          []string{"https://example.com/", "https://example.com/pricing"},
			NumberOfRuns: 5,
			Settings: SettingsRC{
				Preset:           "desktop",
				ChromePath:       "/usr/bin/chromium",
				ChromeFlags:      []string{"--no-sandbox"},
				Headless:         &headless,
				MaxWaitForLoadMs: 45000,
				MaxWaitForFCPMs:  30000,
				PauseAfterLoadMs: 1000,
			},
		},
		Assert: assert.Config{
			Preset: "recommended",
			Assertions: map[string]assert.Assertion{
				"first-contentful-paint": {
					Level:             assert.LevelWarn,
					MaxNumericValue:   &maxNumericValue,
					AggregationMethod: assert.AggregateMedian,
				},
			},
			Budgets: []assert.Budget{{
				Path:          "/",
				ResourceSizes: []assert.ResourceBudget{{ResourceType: "script", Budget: 300}},
			}},
		},
		Upload: UploadRC{
			Target:        "lhci",
			ServerBaseURL: "https://lightci.example.com",
			Token:         "abc123",
			OutputDir:     ".lightci",
		},
		Server: ServerRC{
			HTTPAddr:         ":9005",
			MetricsAddr:      ":9090",
			DatastoreEngine:  "postgres",
			DatastoreConnURI: "postgres://localhost/lightci",
		},
	}
	if diff := cmp.Diff(want, rc); diff != "" {
		t.Fatalf("unexpected rc (-want +got):\n%s", diff)
	}
	require.False(t, rc.Collect.Settings.IsHeadless())
}

func TestParseDefaults(t *testing.T) {
	rc, err := Parse([]byte("{}"))
	require.NoError(t, err)

	require.Equal(t, 3, rc.Collect.NumberOfRuns)
	require.Equal(t, "mobile", rc.Collect.Settings.Preset)
	require.Equal(t, 45000, rc.Collect.Settings.MaxWaitForLoadMs)
	require.True(t, rc.Collect.Settings.IsHeadless())
	require.Equal(t, "filesystem", rc.Upload.Target)
	require.Equal(t, ".lightci", rc.Upload.OutputDir)
	require.Equal(t, "memory", rc.Server.DatastoreEngine)
	require.Equal(t, ":9001", rc.Server.HTTPAddr)

	require.Empty(t, cmp.Diff(Default(), rc))
}

func TestParseJSON(t *testing.T) {
	rc, err := Parse([]byte(`{"collect": {"url": ["https://example.com/"], "numberOfRuns": 2}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/"}, rc.Collect.URL)
	require.Equal(t, 2, rc.Collect.NumberOfRuns)
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("LIGHTCI_TEST_TOKEN", "s3cret")
	rc, err := Parse([]byte(`
upload:
  token: ${LIGHTCI_TEST_TOKEN}
  serverBaseUrl: https://$HOST/${LIGHTCI_TEST_UNSET}
`))
	require.NoError(t, err)
	require.Equal(t, "s3cret", rc.Upload.Token)
	// Unset vars expand empty, plain $NAME stays as written.
	require.Equal(t, "https://$HOST/", rc.Upload.ServerBaseURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "lightci.yml"))
	require.Error(t, err)
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "lightci.yml"),
		[]byte("collect:\n  numberOfRuns: 7\n"), 0o644))

	rc, path, err := Discover(nested)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "lightci.yml"), path)
	require.Equal(t, 7, rc.Collect.NumberOfRuns)
}

func TestDiscoverPriority(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "lightci.json"),
		[]byte(`{"collect": {"numberOfRuns": 1}}`), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "lightci.yml"),
		[]byte("collect:\n  numberOfRuns: 2\n"), 0o644))

	rc, path, err := Discover(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "lightci.yml"), path)
	require.Equal(t, 2, rc.Collect.NumberOfRuns)
}

func TestDiscoverNothing(t *testing.T) {
	rc, path, err := Discover(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, path)
	require.Equal(t, &RC{}, rc)
}
