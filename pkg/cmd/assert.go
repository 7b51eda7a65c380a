package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/treosh/lightci/internal/assert"
	"github.com/treosh/lightci/pkg/rcfile"
)

// ErrAssertionsFailed marks a run where at least one error-level assertion
// failed.
var ErrAssertionsFailed = errors.New("one or more assertions failed")

// AssertConfig is the flag-facing configuration of the assert command.
type AssertConfig struct {
	Preset    string
	OutputDir string
	RCFile    string
}

// RegisterAssertFlags registers the flags of the assert command.
func RegisterAssertFlags(cmd *cobra.Command, config *AssertConfig) {
	cmd.Flags().StringVar(&config.Preset, "preset", "",
		`assertion preset to start from ("recommended", "all")`)
	registerStagingFlags(cmd.Flags(), &config.OutputDir, &config.RCFile)
}

// merged builds the effective assertion config: the rc file's assert
// section with the preset flag layered on top. presetFlags lists the flag
// names that may carry the preset; autorun renames it to avoid clashing
// with the collect preset.
func (c *AssertConfig) merged(flags *pflag.FlagSet, rc *rcfile.RC, presetFlags ...string) assert.Config {
	cfg := rc.Assert
	for _, name := range presetFlags {
		if flags.Changed(name) {
			cfg.Preset = c.Preset
		}
	}
	if !flags.Changed("output-dir") && rc.Upload.OutputDir != "" {
		c.OutputDir = rc.Upload.OutputDir
	}
	return cfg
}

func (c *AssertConfig) configured(cfg assert.Config) bool {
	return cfg.Preset != "" || len(cfg.Assertions) > 0 || len(cfg.Budgets) > 0
}

// NewAssertCommand creates the command that checks staged reports against
// the configured assertions and budgets.
func NewAssertCommand(programName string, config *AssertConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "assert",
		Short:   "check the staged reports against assertions and budgets",
		Long:    "Reads the reports staged by collect and evaluates the assertions and budgets from the configuration file against them. Exits non-zero when an error-level assertion fails.",
		PreRunE: DefaultPreRunE(programName),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, rcPath, err := loadRC(config.RCFile)
			if err != nil {
				return err
			}
			logRC(rcPath)

			cfg := config.merged(cmd.Flags(), rc, "preset")
			if !config.configured(cfg) {
				return errors.New("no assertions configured; add an assert section to the rc file or pass --preset")
			}

			reports, err := LoadStagedReports(config.OutputDir)
			if err != nil {
				return err
			}

			results := assert.Evaluate(reports, cfg)
			assert.Format(os.Stderr, results)
			if assert.ExitCode(results) != 0 {
				return ErrAssertionsFailed
			}
			return nil
		},
		Args: cobra.NoArgs,
	}
}
