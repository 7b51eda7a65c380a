package releases

import (
	"context"
	"time"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	log "github.com/treosh/lightci/internal/logging"
)

// RegisterFlags registers the flags for the CheckAndLogRunE function.
func RegisterFlags(flagset *flag.FlagSet) {
	flagset.Bool("skip-release-check", false, "if true, skips checking for new lightci releases")
}

// CheckAndLogRunE is a run function that checks if the current version of
// lightci is the latest and, if not, logs a warning. The check is disabled
// with --skip-release-check.
func CheckAndLogRunE() cobrautil.CobraRunFunc {
	return func(cmd *cobra.Command, args []string) error {
		if cobrautil.MustGetBool(cmd, "skip-release-check") {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
		defer cancel()

		state, currentVersion, release, err := CheckIsLatestVersion(ctx, CurrentVersion, GetLatestRelease)
		if err != nil {
			log.Ctx(ctx).Warn().Str("this-version", currentVersion).Err(err).Msg("could not perform version checking; if this problem persists or to skip this check, add --skip-release-check")
			return nil
		}

		switch state {
		case UnreleasedVersion:
			log.Ctx(ctx).Warn().Str("version", currentVersion).Msg("not running a released version of lightci")

		case UpdateAvailable:
			log.Ctx(ctx).Warn().Str("this-version", currentVersion).Str("latest-released-version", release.Version).Msgf("this version of lightci is out of date. See: %s", release.ViewURL)

		case UpToDate:
			log.Ctx(ctx).Debug().Str("latest-released-version", release.Version).Msg("this is the latest released version of lightci")

		case Unknown:
			log.Ctx(ctx).Warn().Str("this-version", currentVersion).Msg("unable to check for a new lightci version")
		}
		return nil
	}
}
