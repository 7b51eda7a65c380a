// Package artifacts defines everything a collection run gathers about a
// page before auditing starts. Audits consume artifacts only; they never
// talk to the browser.
package artifacts

import (
	"net/http"
	"strings"
	"time"

	"github.com/treosh/lightci/internal/engine"
	"github.com/treosh/lightci/pkg/trace"
)

// FormFactor selects which device class a run emulates.
type FormFactor string

const (
	FormFactorMobile  FormFactor = "mobile"
	FormFactorDesktop FormFactor = "desktop"
)

// ScreenEmulation is the device metrics override applied before navigating.
type ScreenEmulation struct {
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor" yaml:"deviceScaleFactor"`
	Mobile            bool    `json:"mobile" yaml:"mobile"`
}

// Throttling is the network and CPU throttling applied through the devtools
// protocol for the whole run.
type Throttling struct {
	RTTMs                 float64 `json:"rttMs" yaml:"rttMs"`
	ThroughputKbps        float64 `json:"throughputKbps" yaml:"throughputKbps"`
	CPUSlowdownMultiplier float64 `json:"cpuSlowdownMultiplier" yaml:"cpuSlowdownMultiplier"`
}

// Settings is the emulation profile of a run. The zero value means no
// emulation at all; use MobileSettings or DesktopSettings for the presets.
type Settings struct {
	FormFactor      FormFactor      `json:"formFactor" yaml:"formFactor"`
	ScreenEmulation ScreenEmulation `json:"screenEmulation" yaml:"screenEmulation"`
	UserAgent       string          `json:"userAgent" yaml:"userAgent"`
	Throttling      Throttling      `json:"throttling" yaml:"throttling"`
}

const (
	mobileUserAgent  = "Mozilla/5.0 (Linux; Android 11; moto g power (2022)) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"
	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// MobileSettings emulates a mid-range phone on a slow 4G connection.
func MobileSettings() Settings {
	return Settings{
		FormFactor: FormFactorMobile,
		ScreenEmulation: ScreenEmulation{
			Width:             412,
			Height:            823,
			DeviceScaleFactor: 1.75,
			Mobile:            true,
		},
		UserAgent: mobileUserAgent,
		Throttling: Throttling{
			RTTMs:                 150,
			ThroughputKbps:        1638,
			CPUSlowdownMultiplier: 4,
		},
	}
}

// DesktopSettings emulates a laptop on a broadband connection.
func DesktopSettings() Settings {
	return Settings{
		FormFactor: FormFactorDesktop,
		ScreenEmulation: ScreenEmulation{
			Width:             1350,
			Height:            940,
			DeviceScaleFactor: 1,
			Mobile:            false,
		},
		UserAgent: desktopUserAgent,
		Throttling: Throttling{
			RTTMs:                 40,
			ThroughputKbps:        10240,
			CPUSlowdownMultiplier: 1,
		},
	}
}

// SettingsForPreset maps a preset name to its settings. Unknown names get
// the mobile preset, matching the default device class.
func SettingsForPreset(preset string) Settings {
	if FormFactor(strings.ToLower(preset)) == FormFactorDesktop {
		return DesktopSettings()
	}
	return MobileSettings()
}

// URL tracks the audited page's address through redirects.
type URL struct {
	// Requested is the URL the run was asked to audit.
	Requested string `json:"requestedUrl"`
	// MainDocument is the URL the document request resolved to.
	MainDocument string `json:"mainDocumentUrl"`
	// Final is the URL the page showed once loading settled.
	Final string `json:"finalUrl"`
}

// MetaElement is one <meta> tag found in the loaded document.
type MetaElement struct {
	Name      string `json:"name"`
	Property  string `json:"property"`
	HTTPEquiv string `json:"httpEquiv"`
	Content   string `json:"content"`
}

// ConsoleMessage is one console API call or browser-reported error captured
// while the page loaded.
type ConsoleMessage struct {
	// Level is the console method or report severity: log, warning, error.
	Level string `json:"level"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// Artifacts is the complete gathered state of one page load.
type Artifacts struct {
	URL       URL
	FetchTime time.Time

	Trace *trace.Trace
	// ProcessedTrace is filled by the runner after the engine has run; the
	// collector leaves it nil.
	ProcessedTrace *engine.ProcessedTrace

	MetaElements           []MetaElement
	MainDocumentHeaders    http.Header
	MainDocumentStatusCode int
	ConsoleMessages        []ConsoleMessage
	DocumentTitle          string

	// UserAgent is what the browser actually reported, which differs from
	// Settings.UserAgent when no override was applied.
	UserAgent string
	// BenchmarkIndex estimates the host machine's speed, for comparing
	// results gathered on different hardware.
	BenchmarkIndex float64

	Settings Settings
}

// MetaElement returns the first meta tag with the given name attribute.
func (a *Artifacts) MetaElement(name string) (MetaElement, bool) {
	for _, el := range a.MetaElements {
		if strings.EqualFold(el.Name, name) {
			return el, true
		}
	}
	return MetaElement{}, false
}

// MetaHTTPEquiv returns the first meta tag with the given http-equiv
// attribute, the delivery path for document-level policies.
func (a *Artifacts) MetaHTTPEquiv(name string) (MetaElement, bool) {
	for _, el := range a.MetaElements {
		if strings.EqualFold(el.HTTPEquiv, name) {
			return el, true
		}
	}
	return MetaElement{}, false
}
