package main

import (
	"errors"
	"os"

	"github.com/sean-/sysexits"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/internal/server"
	"github.com/treosh/lightci/pkg/cmd"
)

const programName = "lightci"

func main() {
	rootCmd := cmd.NewRootCommand(programName)
	cmd.RegisterRootFlags(rootCmd)

	collectConfig := &cmd.CollectConfig{}
	collectCmd := cmd.NewCollectCommand(programName, collectConfig)
	cmd.RegisterCollectFlags(collectCmd, collectConfig)
	rootCmd.AddCommand(collectCmd)

	assertConfig := &cmd.AssertConfig{}
	assertCmd := cmd.NewAssertCommand(programName, assertConfig)
	cmd.RegisterAssertFlags(assertCmd, assertConfig)
	rootCmd.AddCommand(assertCmd)

	uploadConfig := &cmd.UploadConfig{}
	uploadCmd := cmd.NewUploadCommand(programName, uploadConfig)
	cmd.RegisterUploadFlags(uploadCmd, uploadConfig)
	rootCmd.AddCommand(uploadCmd)

	autorunCollect := &cmd.CollectConfig{}
	autorunAssert := &cmd.AssertConfig{}
	autorunUpload := &cmd.UploadConfig{}
	autorunCmd := cmd.NewAutorunCommand(programName, autorunCollect, autorunAssert, autorunUpload)
	cmd.RegisterAutorunFlags(autorunCmd, autorunCollect, autorunAssert, autorunUpload)
	rootCmd.AddCommand(autorunCmd)

	serverConfig := &server.Config{}
	serveCmd := cmd.NewServeCommand(programName, serverConfig)
	cmd.RegisterServeFlags(serveCmd, serverConfig)
	rootCmd.AddCommand(serveCmd)

	migrateConfig := &cmd.MigrateConfig{}
	migrateCmd := cmd.NewMigrateCommand(programName, migrateConfig)
	cmd.RegisterMigrateFlags(migrateCmd, migrateConfig)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(cmd.NewVersionCommand(programName))

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrAssertionsFailed) {
			log.Err(err).Msg("terminated with errors")
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps command failures onto sysexits-style process exit codes.
// Assertion failures keep the conventional exit 1 CI systems look for.
func exitCode(err error) int {
	switch {
	case errors.Is(err, cmd.ErrAssertionsFailed):
		return 1
	case errors.Is(err, cmd.ErrNoStagedReports):
		return sysexits.NoInput
	case errors.Is(err, cmd.ErrInvalidConfiguration):
		return sysexits.Config
	default:
		if _, ok := runnererr.CodeOf(err); ok {
			return sysexits.Unavailable
		}
		return sysexits.Software
	}
}
