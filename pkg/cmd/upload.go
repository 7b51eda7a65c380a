package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/treosh/lightci/internal/upload"
	"github.com/treosh/lightci/pkg/rcfile"
)

// UploadConfig is the flag-facing configuration of the upload command.
type UploadConfig struct {
	Target                 string
	ServerBaseURL          string
	Token                  string
	URLReplacementPatterns []string
	OutputDir              string
	RCFile                 string
}

// RegisterUploadFlags registers the flags of the upload command.
func RegisterUploadFlags(cmd *cobra.Command, config *UploadConfig) {
	registerTargetFlags(cmd.Flags(), config)
	registerStagingFlags(cmd.Flags(), &config.OutputDir, &config.RCFile)
}

// registerTargetFlags holds the flags shared between upload and autorun.
func registerTargetFlags(flags *pflag.FlagSet, config *UploadConfig) {
	flags.StringVar(&config.Target, "target", upload.TargetFilesystem,
		`where to send the reports ("filesystem", "lhci", "temporary-public-storage")`)
	flags.StringVar(&config.ServerBaseURL, "server-base-url", "",
		"base URL of the report server for the lhci target")
	flags.StringVar(&config.Token, "token", "",
		"build token of the project on the report server")
	flags.StringArrayVar(&config.URLReplacementPatterns, "url-replacement-pattern", nil,
		`sed-style pattern ("s/search/replacement/") applied to report URLs before upload; repeat the flag for multiple`)
}

func (c *UploadConfig) applyRC(flags *pflag.FlagSet, rc *rcfile.RC) {
	up := rc.Upload
	if !flags.Changed("target") && up.Target != "" {
		c.Target = up.Target
	}
	if !flags.Changed("server-base-url") {
		c.ServerBaseURL = up.ServerBaseURL
	}
	if !flags.Changed("token") {
		c.Token = up.Token
	}
	if !flags.Changed("url-replacement-pattern") {
		c.URLReplacementPatterns = up.URLReplacementPatterns
	}
	if !flags.Changed("output-dir") && up.OutputDir != "" {
		c.OutputDir = up.OutputDir
	}
}

func (c *UploadConfig) options() upload.Options {
	return upload.Options{
		Target:                 c.Target,
		ServerBaseURL:          c.ServerBaseURL,
		Token:                  c.Token,
		OutputDir:              c.OutputDir,
		URLReplacementPatterns: c.URLReplacementPatterns,
	}
}

// NewUploadCommand creates the command that ships staged reports to the
// configured target.
func NewUploadCommand(programName string, config *UploadConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "upload",
		Short:   "send the staged reports to the configured target",
		Long:    "Reads the reports staged by collect and sends them to the configured target: the local filesystem, a lightci report server, or temporary public storage.",
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

			reports, err := LoadStagedReports(config.OutputDir)
			if err != nil {
				return err
			}
			return upload.Upload(cmd.Context(), reports, config.options())
		},
		Args: cobra.NoArgs,
	}
}
