package runtime

import (
	"runtime"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	log "github.com/treosh/lightci/internal/logging"
)

// RegisterFlags adds flags for tuning the Go runtime.
//
// The following flags are added:
// - "pprof-mutex-profile-rate"
// - "pprof-block-profile-rate"
// - "gomaxprocs"
// - "enable-automemlimit"
func RegisterFlags(flags *pflag.FlagSet) {
	flags.Int("pprof-mutex-profile-rate", 0, "sets the mutex profile sampling rate")
	flags.Int("pprof-block-profile-rate", 0, "sets the block profile sampling rate")
	flags.Int("gomaxprocs", 0, "overrides the number of OS threads running Go code simultaneously; 0 keeps the Go default")
	flags.Bool("enable-automemlimit", true, "sets GOMEMLIMIT from the cgroup or system memory limit")
}

// RunE returns a Cobra RunFunc that applies the runtime tuning flags.
//
// The required flags can be added to a command by using RegisterFlags().
func RunE() cobrautil.CobraRunFunc {
	return func(cmd *cobra.Command, args []string) error {
		if cobrautil.IsBuiltinCommand(cmd) {
			return nil // No-op for builtins
		}

		runtime.SetMutexProfileFraction(cobrautil.MustGetInt(cmd, "pprof-mutex-profile-rate"))
		runtime.SetBlockProfileRate(cobrautil.MustGetInt(cmd, "pprof-block-profile-rate"))

		if procs := cobrautil.MustGetInt(cmd, "gomaxprocs"); procs > 0 {
			runtime.GOMAXPROCS(procs)
			log.Debug().Int("gomaxprocs", procs).Msg("overrode GOMAXPROCS")
		}
		if cobrautil.MustGetBool(cmd, "enable-automemlimit") {
			setMemoryLimit()
		}
		return nil
	}
}
