// Package rcfile loads the lightci configuration file. The file is YAML
// (JSON parses as YAML), carries one section per command, and expands
// ${VAR} references from the environment before parsing. Values the file
// does not set fall back to the declared defaults; flags override file
// values at the command layer.
package rcfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/treosh/lightci/internal/assert"
)

// RC is the parsed configuration file.
type RC struct {
	Collect CollectRC     `yaml:"collect" json:"collect"`
	Assert  assert.Config `yaml:"assert" json:"assert"`
	Upload  UploadRC      `yaml:"upload" json:"upload"`
	Server  ServerRC      `yaml:"server" json:"server"`
}

// CollectRC configures how runs are gathered.
type CollectRC struct {
	URL          []string   `yaml:"url" json:"url"`
	StaticDir    string     `yaml:"staticDir" json:"staticDir"`
	NumberOfRuns int        `yaml:"numberOfRuns" json:"numberOfRuns" default:"3"`
	Settings     SettingsRC `yaml:"settings" json:"settings"`
}

// SettingsRC picks the emulation preset and browser particulars.
type SettingsRC struct {
	Preset           string   `yaml:"preset" json:"preset" default:"mobile"`
	ChromePath       string   `yaml:"chromePath" json:"chromePath"`
	ChromeFlags      []string `yaml:"chromeFlags" json:"chromeFlags"`
	Headless         *bool    `yaml:"headless" json:"headless" default:"true"`
	MaxWaitForLoadMs int      `yaml:"maxWaitForLoad" json:"maxWaitForLoad" default:"45000"`
	MaxWaitForFCPMs  int      `yaml:"maxWaitForFcp" json:"maxWaitForFcp" default:"30000"`
	PauseAfterLoadMs int      `yaml:"pauseAfterLoad" json:"pauseAfterLoad" default:"1000"`
}

// IsHeadless reports whether Chrome should run headless. Unset means yes.
func (s SettingsRC) IsHeadless() bool {
	return s.Headless == nil || *s.Headless
}

// UploadRC configures where finished reports go.
type UploadRC struct {
	Target                 string   `yaml:"target" json:"target" default:"filesystem"`
	ServerBaseURL          string   `yaml:"serverBaseUrl" json:"serverBaseUrl"`
	Token                  string   `yaml:"token" json:"token"`
	OutputDir              string   `yaml:"outputDir" json:"outputDir" default:".lightci"`
	URLReplacementPatterns []string `yaml:"urlReplacementPatterns" json:"urlReplacementPatterns"`
}

// ServerRC carries the server settings an rc file can pin.
type ServerRC struct {
	HTTPAddr         string `yaml:"httpAddr" json:"httpAddr" default:":9001"`
	MetricsAddr      string `yaml:"metricsAddr" json:"metricsAddr" default:":9090"`
	DatastoreEngine  string `yaml:"datastoreEngine" json:"datastoreEngine" default:"memory"`
	DatastoreConnURI string `yaml:"datastoreConnUri" json:"datastoreConnUri"`
}

// Default returns an RC with every declared default applied.
func Default() *RC {
	rc := &RC{}
	defaults.MustSet(rc)
	return rc
}

// Load reads and parses the rc file at path.
func Load(path string) (*RC, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rc file %s: %w", path, err)
	}
	rc, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("error parsing rc file %s: %w", path, err)
	}
	return rc, nil
}

// Parse decodes rc file contents and applies defaults.
func Parse(contents []byte) (*RC, error) {
	rc := &RC{}
	if err := yaml.Unmarshal(expandEnv(contents), rc); err != nil {
		return nil, err
	}
	if err := defaults.Set(rc); err != nil {
		return nil, err
	}
	return rc, nil
}

// File names Discover accepts, in priority order.
var discoverNames = []string{"lightci.yml", "lightci.yaml", "lightci.json", "lightci.rc"}

// Discover walks from dir toward the filesystem root looking for an rc
// file and loads the first one found, returning its path. No file is not
// an error; the zero RC comes back so flag defaults decide everything.
func Discover(dir string) (*RC, string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", err
	}
	for {
		for _, name := range discoverNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			rc, err := Load(candidate)
			if err != nil {
				return nil, candidate, err
			}
			return rc, candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return &RC{}, "", nil
		}
		dir = parent
	}
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv rewrites ${VAR} references. Unset variables expand to the
// empty string; $VAR without braces stays as written.
func expandEnv(contents []byte) []byte {
	return envPattern.ReplaceAllFunc(contents, func(match []byte) []byte {
		name := string(match[2 : len(match)-1])
		return []byte(os.Getenv(name))
	})
}
