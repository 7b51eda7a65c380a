// Package runner sequences full audit runs: collect artifacts, process the
// trace, execute every registered audit and assemble the report, n times
// per URL.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/treosh/lightci/internal/audit"
	// Populates the audit registry.
	_ "github.com/treosh/lightci/internal/audit/audits"
	"github.com/treosh/lightci/internal/engine"
	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/artifacts"
	"github.com/treosh/lightci/pkg/report"
)

// Collector is the artifact source for runs. *collector.Collector satisfies
// it; tests substitute canned artifacts.
type Collector interface {
	Collect(ctx context.Context, url string) (*artifacts.Artifacts, error)
}

// URLResult is every report produced for one URL plus which run represents
// it.
type URLResult struct {
	URL     string
	Reports []*report.Report
	// Representative indexes the run whose metrics sit closest to the
	// median, the report a single-result consumer should read.
	Representative int
}

// ResultSet groups the reports of one invocation by URL, in input order.
type ResultSet struct {
	Results []*URLResult
}

// TotalRuns counts every report in the set.
func (s *ResultSet) TotalRuns() int {
	total := 0
	for _, res := range s.Results {
		total += len(res.Reports)
	}
	return total
}

// Option configures a Runner.
type Option func(*Runner)

// WithSettings records the emulation profile runs are collected under. The
// collector owns the actual emulation; the runner only reports it.
func WithSettings(settings artifacts.Settings) Option {
	return func(r *Runner) { r.settings = settings }
}

// WithProgress sets where the per-URL progress bar draws. The bar only
// appears when the writer is an interactive terminal.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.progress = w }
}

// Runner executes audit runs against a collector.
type Runner struct {
	collector Collector
	processor *engine.Processor
	settings  artifacts.Settings
	progress  io.Writer
}

// New builds a runner around a collector. The trace processor is wired
// here once and reused across every run.
func New(c Collector, opts ...Option) (*Runner, error) {
	processor, err := engine.NewProcessor()
	if err != nil {
		return nil, fmt.Errorf("building trace processor: %w", err)
	}
	r := &Runner{
		collector: c,
		processor: processor,
		settings:  artifacts.MobileSettings(),
		progress:  os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run audits every URL n times and groups the reports. URLs run in input
// order; the first failed run aborts the whole invocation.
func (r *Runner) Run(ctx context.Context, urls []string, runs int) (*ResultSet, error) {
	set := &ResultSet{Results: make([]*URLResult, 0, len(urls))}
	for _, u := range urls {
		res, err := r.RunURL(ctx, u, runs)
		if err != nil {
			return nil, err
		}
		set.Results = append(set.Results, res)
	}
	return set, nil
}

// RunURL audits one URL n times sequentially. A failed run aborts the
// remaining ones and surfaces its typed error.
func (r *Runner) RunURL(ctx context.Context, pageURL string, runs int) (*URLResult, error) {
	if runs <= 0 {
		runs = 1
	}
	log.Ctx(ctx).Info().
		Str("url", pageURL).
		Int("runs", runs).
		Str("form_factor", string(r.settings.FormFactor)).
		Msg("auditing")

	bar := r.newProgressBar(pageURL, runs)
	reports := make([]*report.Report, 0, runs)
	for i := 0; i < runs; i++ {
		rep, err := r.runOnce(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("run %d of %d for %s: %w", i+1, runs, pageURL, err)
		}
		reports = append(reports, rep)
		if bar != nil {
			_ = bar.Add(1)
		}
		log.Ctx(ctx).Debug().
			Str("url", pageURL).
			Int("run", i+1).
			Float64("total_ms", rep.Timing.TotalMS).
			Msg("run finished")
	}
	if bar != nil {
		_ = bar.Finish()
	}

	return &URLResult{
		URL:            pageURL,
		Reports:        reports,
		Representative: report.Representative(reports),
	}, nil
}

// runOnce performs one collect, process, audit, assemble cycle.
func (r *Runner) runOnce(ctx context.Context, pageURL string) (*report.Report, error) {
	started := time.Now()
	var entries []report.TimingEntry
	mark := func(name string, from time.Time) time.Time {
		now := time.Now()
		entries = append(entries, report.TimingEntry{
			Name:       name,
			DurationMS: float64(now.Sub(from).Microseconds()) / 1000,
		})
		return now
	}

	arts, err := r.collector.Collect(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	phase := mark("collect", started)

	processed, err := r.processor.Process(ctx, arts.Trace)
	if err != nil {
		return nil, err
	}
	arts.ProcessedTrace = processed
	phase = mark("process-trace", phase)

	results := make(map[string]*audit.Result)
	for _, a := range audit.All() {
		results[a.Meta().ID] = audit.Run(ctx, a, arts)
	}
	mark("audit", phase)

	timing := report.Timing{
		TotalMS: float64(time.Since(started).Microseconds()) / 1000,
		Entries: entries,
	}
	return report.Build(arts, results, timing), nil
}

func (r *Runner) newProgressBar(pageURL string, runs int) *progressbar.ProgressBar {
	f, ok := r.progress.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil
	}
	return progressbar.NewOptions(runs,
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription(pageURL),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
}
