package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/treosh/lightci/internal/assert"
	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/runner"
	"github.com/treosh/lightci/internal/upload"
	"github.com/treosh/lightci/pkg/report"
)

// RegisterAutorunFlags registers the combined flag surface of autorun:
// everything collect and upload accept, plus the assert preset under a
// distinct name.
func RegisterAutorunFlags(cmd *cobra.Command, collectConfig *CollectConfig, assertConfig *AssertConfig, uploadConfig *UploadConfig) {
	registerGatherFlags(cmd.Flags(), collectConfig)
	registerTargetFlags(cmd.Flags(), uploadConfig)
	cmd.Flags().StringVar(&assertConfig.Preset, "assert-preset", "",
		`assertion preset to start from ("recommended", "all")`)
	registerStagingFlags(cmd.Flags(), &collectConfig.OutputDir, &collectConfig.RCFile)
}

// NewAutorunCommand creates the command that chains collect, assert, and
// upload into a single CI entrypoint.
func NewAutorunCommand(programName string, collectConfig *CollectConfig, assertConfig *AssertConfig, uploadConfig *UploadConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "autorun",
		Short:   "collect, assert, and upload in one command",
		Long:    "Runs the full pipeline: collects audits for the configured URLs, checks the assertions from the configuration file, and uploads the reports. Assertion failures surface in the exit code after the upload finishes.",
		PreRunE: DefaultPreRunE(programName),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()

			rc, rcPath, err := loadRC(collectConfig.RCFile)
			if err != nil {
				return err
			}
			logRC(rcPath)
			if rcPath != "" {
				collectConfig.applyRC(flags, rc)
				uploadConfig.applyRC(flags, rc)
			}
			assertCfg := assertConfig.merged(flags, rc, "assert-preset")
			uploadConfig.OutputDir = collectConfig.OutputDir

			set, err := runCollect(ctx, collectConfig)
			if err != nil {
				return err
			}
			reports := allReports(set)

			assertionsFailed := false
			if assertConfig.configured(assertCfg) {
				results := assert.Evaluate(reports, assertCfg)
				assert.Format(os.Stderr, results)
				assertionsFailed = assert.ExitCode(results) != 0
			} else {
				log.Ctx(ctx).Info().Msg("no assertions configured, skipping the assert phase")
			}

			// Assertion failures do not block the upload.
			if err := upload.Upload(ctx, reports, uploadConfig.options()); err != nil {
				return err
			}

			if assertionsFailed {
				return ErrAssertionsFailed
			}
			return nil
		},
		Args: cobra.NoArgs,
	}
}

func allReports(set *runner.ResultSet) []*report.Report {
	var reports []*report.Report
	for _, res := range set.Results {
		reports = append(reports, res.Reports...)
	}
	return reports
}
