package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/treosh/lightci/internal/collector"
	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/runner"
	"github.com/treosh/lightci/internal/staticserver"
	"github.com/treosh/lightci/pkg/artifacts"
	"github.com/treosh/lightci/pkg/rcfile"
	"github.com/treosh/lightci/pkg/report"
)

// CollectConfig is the flag-facing configuration of the collect command.
type CollectConfig struct {
	URLs         []string
	StaticDir    string
	NumberOfRuns int
	Preset       string
	ChromePath   string
	ChromeFlags  []string
	Headless     bool
	OutputDir    string
	RCFile       string

	// Timeouts only the rc file can tune.
	MaxWaitForLoad time.Duration
	MaxWaitForFCP  time.Duration
	PauseAfterLoad time.Duration
}

// RegisterCollectFlags registers the flags of the collect command.
func RegisterCollectFlags(cmd *cobra.Command, config *CollectConfig) {
	registerGatherFlags(cmd.Flags(), config)
	registerStagingFlags(cmd.Flags(), &config.OutputDir, &config.RCFile)
}

// registerGatherFlags holds the flags shared between collect and autorun.
func registerGatherFlags(flags *pflag.FlagSet, config *CollectConfig) {
	flags.StringArrayVar(&config.URLs, "url", nil,
		"URL to audit; repeat the flag for multiple pages")
	flags.StringVar(&config.StaticDir, "static-dir", "",
		"serve this directory on a local port and audit the HTML pages inside it")
	flags.IntVar(&config.NumberOfRuns, "num-runs", 3,
		"number of runs to collect for each URL")
	flags.StringVar(&config.Preset, "preset", "mobile",
		`device preset to emulate ("mobile", "desktop")`)
	flags.StringVar(&config.ChromePath, "chrome-path", "",
		"path to the Chrome binary, located automatically when empty")
	flags.StringArrayVar(&config.ChromeFlags, "chrome-flag", nil,
		"extra flag to pass to Chrome; repeat the flag for multiple")
	flags.BoolVar(&config.Headless, "headless", true,
		"run Chrome headless")
}

func registerStagingFlags(flags *pflag.FlagSet, outputDir, rcFile *string) {
	flags.StringVar(outputDir, "output-dir", ".lightci",
		"directory where reports are staged between commands")
	flags.StringVar(rcFile, "rc-file", "",
		"path to the configuration file, discovered upward from the working directory when empty")
}

// applyRC overlays rc-file values onto the flag-bound config. Flags the
// user set explicitly win; everything else the rc file decides.
func (c *CollectConfig) applyRC(flags *pflag.FlagSet, rc *rcfile.RC) {
	col := rc.Collect
	if !flags.Changed("url") {
		c.URLs = col.URL
	}
	if !flags.Changed("static-dir") {
		c.StaticDir = col.StaticDir
	}
	if !flags.Changed("num-runs") {
		c.NumberOfRuns = col.NumberOfRuns
	}
	if !flags.Changed("preset") {
		c.Preset = col.Settings.Preset
	}
	if !flags.Changed("chrome-path") {
		c.ChromePath = col.Settings.ChromePath
	}
	if !flags.Changed("chrome-flag") {
		c.ChromeFlags = col.Settings.ChromeFlags
	}
	if !flags.Changed("headless") {
		c.Headless = col.Settings.IsHeadless()
	}
	if !flags.Changed("output-dir") && rc.Upload.OutputDir != "" {
		c.OutputDir = rc.Upload.OutputDir
	}
	c.MaxWaitForLoad = time.Duration(col.Settings.MaxWaitForLoadMs) * time.Millisecond
	c.MaxWaitForFCP = time.Duration(col.Settings.MaxWaitForFCPMs) * time.Millisecond
	c.PauseAfterLoad = time.Duration(col.Settings.PauseAfterLoadMs) * time.Millisecond
}

// NewCollectCommand creates the command that audits the configured URLs
// and stages their reports for assert and upload.
func NewCollectCommand(programName string, config *CollectConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "collect",
		Short:   "audit the configured URLs and stage the reports",
		Long:    "Launches Chrome, audits every configured URL the configured number of times, and stages the resulting reports under the output directory for the assert and upload commands.",
		PreRunE: DefaultPreRunE(programName),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, rcPath, err := loadRC(config.RCFile)
			if err != nil {
				return err
			}
			logRC(rcPath)
			if rcPath != "" {
				config.applyRC(cmd.Flags(), rc)
			}
			_, err = runCollect(cmd.Context(), config)
			return err
		},
		Args: cobra.NoArgs,
	}
}

// runCollect performs the collection phase shared by collect and autorun:
// resolve URLs (spinning up the static server when asked), run the
// audits, and stage the reports.
func runCollect(ctx context.Context, config *CollectConfig) (*runner.ResultSet, error) {
	settings := artifacts.SettingsForPreset(config.Preset)

	urls := config.URLs
	if config.StaticDir != "" {
		static := staticserver.New(config.StaticDir, 0)
		if err := static.Start(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := static.Close(); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("error stopping static server")
			}
		}()

		staticURLs, err := static.URLs(config.URLs)
		if err != nil {
			return nil, err
		}
		if len(staticURLs) == 0 {
			return nil, fmt.Errorf("no HTML pages found under %s", config.StaticDir)
		}
		urls = staticURLs
	}
	if len(urls) == 0 {
		return nil, errors.New("no URLs to audit; pass --url or --static-dir")
	}

	opts := []collector.Option{
		collector.WithSettings(settings),
		collector.WithHeadless(config.Headless),
	}
	if config.ChromePath != "" {
		opts = append(opts, collector.WithChromePath(config.ChromePath))
	}
	if len(config.ChromeFlags) > 0 {
		opts = append(opts, collector.WithChromeFlags(config.ChromeFlags))
	}
	if config.MaxWaitForLoad > 0 {
		opts = append(opts, collector.WithMaxWaitForLoad(config.MaxWaitForLoad))
	}
	quiet := collector.DefaultQuietThresholds()
	if config.MaxWaitForFCP > 0 {
		quiet.MaxWaitForFCP = config.MaxWaitForFCP
	}
	if config.PauseAfterLoad > 0 {
		quiet.PauseAfterLoad = config.PauseAfterLoad
	}
	opts = append(opts, collector.WithQuietThresholds(quiet))

	col := collector.New(opts...)
	defer func() {
		if err := col.Close(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("error shutting down browser")
		}
	}()

	r, err := runner.New(col, runner.WithSettings(settings))
	if err != nil {
		return nil, err
	}
	set, err := r.Run(ctx, urls, config.NumberOfRuns)
	if err != nil {
		return nil, err
	}

	if err := StageReports(config.OutputDir, set); err != nil {
		return nil, err
	}
	for _, res := range set.Results {
		if res.Representative >= 0 && res.Representative < len(res.Reports) {
			report.Summary(os.Stdout, res.Reports[res.Representative])
		}
	}
	return set, nil
}
