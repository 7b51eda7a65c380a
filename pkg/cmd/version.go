package cmd

import (
	"fmt"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"

	"github.com/treosh/lightci/pkg/releases"
)

// NewVersionCommand creates the command that prints the running version.
func NewVersionCommand(programName string) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "display the version of " + programName,
		PreRunE: DefaultPreRunE(programName),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(releases.UsageVersion(cobrautil.MustGetBool(cmd, "include-deps")))
			return nil
		},
		Args: cobra.NoArgs,
	}
	versionCmd.Flags().Bool("include-deps", false, "include versions of dependencies")
	return versionCmd
}
