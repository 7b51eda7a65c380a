package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/treosh/lightci/internal/server"
	"github.com/treosh/lightci/pkg/rcfile"
)

// RegisterServeFlags registers the flags of the serve command.
func RegisterServeFlags(cmd *cobra.Command, config *server.Config) {
	server.RegisterServerFlags(cmd.Flags(), config)
	cmd.Flags().Duration("shutdown-grace-period", 0*time.Second,
		"amount of time after receiving sigint to continue serving")
	cmd.Flags().String("rc-file", "",
		"path to the configuration file, discovered upward from the working directory when empty")
}

// ServeExample creates an example usage string with the provided program name.
func ServeExample(programName string) string {
	return fmt.Sprintf(`	%[1]s:
		%[3]s serve

	%[2]s:
		%[3]s serve --http-tls-cert-path path/to/tls/cert --http-tls-key-path path/to/tls/key \
			--datastore-engine postgres --datastore-conn-uri "postgres-connection-string-here"
`,
		color.YellowString("No TLS and in-memory"),
		color.GreenString("TLS and a real datastore"),
		programName,
	)
}

// applyServerRC overlays the rc file's server section onto the
// flag-bound config. Flags the user set explicitly win.
func applyServerRC(flags *pflag.FlagSet, rc *rcfile.RC, config *server.Config) {
	srv := rc.Server
	if !flags.Changed("http-addr") && srv.HTTPAddr != "" {
		config.API.HTTPAddress = srv.HTTPAddr
	}
	if !flags.Changed("metrics-addr") && srv.MetricsAddr != "" {
		config.MetricsAPI.HTTPAddress = srv.MetricsAddr
	}
	if !flags.Changed("datastore-engine") && srv.DatastoreEngine != "" {
		config.DatastoreEngine = srv.DatastoreEngine
	}
	if !flags.Changed("datastore-conn-uri") && srv.DatastoreConnURI != "" {
		config.DatastoreConnURI = srv.DatastoreConnURI
	}
}

// NewServeCommand creates the command that runs the report server.
func NewServeCommand(programName string, config *server.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "serve the lightci report API",
		Long:    "Runs the report server that stores builds and runs uploaded from CI and computes statistics across them.",
		PreRunE: DefaultPreRunE(programName),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, rcPath, err := loadRC(cobrautil.MustGetStringExpanded(cmd, "rc-file"))
			if err != nil {
				return err
			}
			logRC(rcPath)
			if rcPath != "" {
				applyServerRC(cmd.Flags(), rc, config)
			}

			srv, err := config.Complete(cmd.Context())
			if err != nil {
				return err
			}
			signalctx := SignalContextWithGracePeriod(
				context.Background(),
				cobrautil.MustGetDuration(cmd, "shutdown-grace-period"),
			)
			return srv.Run(signalctx)
		},
		Example: ServeExample(programName),
		Args:    cobra.NoArgs,
	}
}
