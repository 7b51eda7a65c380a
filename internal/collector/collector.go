// Package collector drives Chrome over the devtools protocol and gathers
// what a single page load produces: the trace, console output, document
// metadata and the response that served the page, all under an emulated
// device and connection profile.
package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/puzpuzpuz/xsync/v4"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/artifacts"
)

const (
	defaultMaxWaitForLoad = 45 * time.Second

	// pollInterval is how often the settle loop samples page activity.
	pollInterval = 100 * time.Millisecond

	// traceDrainTimeout bounds the wait for the browser to flush its trace
	// buffers after Tracing.end.
	traceDrainTimeout = 15 * time.Second
)

// QuietThresholds tunes the heuristic that decides when a page has
// finished loading.
type QuietThresholds struct {
	// NetworkQuiet is how long the network must stay at or below
	// NetworkMaxInflight outstanding requests.
	NetworkQuiet time.Duration
	// NetworkMaxInflight is the number of in-flight requests the network
	// quiet window tolerates, which keeps long-polling connections from
	// stalling collection forever.
	NetworkMaxInflight int
	// CPUQuiet is how long the main thread must go without a long task.
	CPUQuiet time.Duration
	// PauseAfterLoad is the minimum time collection keeps observing after
	// the load event, whatever the quiet windows say.
	PauseAfterLoad time.Duration
	// MaxWaitForFCP bounds how long a page may take to paint its first
	// content before the run fails with NO_FCP.
	MaxWaitForFCP time.Duration
}

// DefaultQuietThresholds returns the observation windows collection uses
// unless told otherwise: a second of network and CPU quiet, a second of
// grace after load, and half a minute for the first paint.
func DefaultQuietThresholds() QuietThresholds {
	return QuietThresholds{
		NetworkQuiet:       time.Second,
		NetworkMaxInflight: 2,
		CPUQuiet:           time.Second,
		PauseAfterLoad:     time.Second,
		MaxWaitForFCP:      30 * time.Second,
	}
}

// Option configures a Collector.
type Option func(*Collector)

// WithChromePath points the launcher at a specific Chrome binary instead of
// the one it would otherwise find or download.
func WithChromePath(path string) Option {
	return func(c *Collector) { c.chromePath = path }
}

// WithChromeFlags passes extra command line flags to the launched Chrome,
// written the way they appear on a command line: --name or --name=value.
func WithChromeFlags(chromeFlags []string) Option {
	return func(c *Collector) { c.chromeFlags = chromeFlags }
}

// WithHeadless toggles headless mode. Collection is headless unless a
// debugging session wants to watch the page load.
func WithHeadless(headless bool) Option {
	return func(c *Collector) { c.headless = headless }
}

// WithSettings applies a device emulation profile to every collected page.
func WithSettings(settings artifacts.Settings) Option {
	return func(c *Collector) { c.settings = settings }
}

// WithMaxWaitForLoad bounds the total time one collection may spend waiting
// for the page to load and settle.
func WithMaxWaitForLoad(d time.Duration) Option {
	return func(c *Collector) { c.maxWaitForLoad = d }
}

// WithQuietThresholds replaces the load-settled heuristic's windows.
func WithQuietThresholds(q QuietThresholds) Option {
	return func(c *Collector) { c.quiet = q }
}

// Collector owns a Chrome instance and produces the artifacts of page
// loads. The browser is shared across runs; each run gets a fresh
// incognito context so no cache or storage survives between them.
type Collector struct {
	chromePath     string
	chromeFlags    []string
	headless       bool
	settings       artifacts.Settings
	maxWaitForLoad time.Duration
	quiet          QuietThresholds

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// New returns a collector that launches Chrome lazily on the first
// Collect. The default profile is the mobile preset, headless.
func New(opts ...Option) *Collector {
	c := &Collector{
		headless:       true,
		settings:       artifacts.MobileSettings(),
		maxWaitForLoad: defaultMaxWaitForLoad,
		quiet:          DefaultQuietThresholds(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect loads pageURL in a fresh incognito page and gathers its
// artifacts. Load failures come back as typed run errors; anything else is
// a protocol or browser problem.
func (c *Collector) Collect(ctx context.Context, pageURL string) (*artifacts.Artifacts, error) {
	browser, err := c.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("creating incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer func() {
		_ = page.Close()
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(browser)
	}()

	run := &pageRun{
		collector: c,
		page:      page.Context(ctx),
		requested: pageURL,
		inflight:  xsync.NewMap[proto.NetworkRequestID, string](),
		traceDone: make(chan struct{}),
	}
	return run.collect(ctx)
}

// ensureBrowser launches Chrome on first use and reconnects when a
// previous instance has gone away underneath us.
func (c *Collector) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return c.browser, nil
		}
		log.Ctx(ctx).Warn().Msg("browser connection went stale, relaunching")
		_ = c.browser.Close()
		c.browser = nil
	}

	l := launcher.New().Headless(c.headless)
	if c.chromePath != "" {
		l = l.Bin(c.chromePath)
	}
	for _, rawFlag := range c.chromeFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
		if hasValue {
			l = l.Set(flags.Flag(name), value)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}

	c.launcher = l
	c.browser = browser
	log.Ctx(ctx).Debug().
		Bool("headless", c.headless).
		Str("form_factor", string(c.settings.FormFactor)).
		Msg("launched chrome")
	return browser, nil
}

// Close shuts the browser down and removes its temporary profile. The
// collector stays usable; the next Collect launches a fresh instance.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Cleanup()
		c.launcher = nil
	}
	return err
}
