package runtime

import (
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"

	log "github.com/treosh/lightci/internal/logging"
)

// MemoryLimitRefreshInterval is how often the memory limit is reloaded
// from the cgroup.
const MemoryLimitRefreshInterval = 30 * time.Second

// setMemoryLimit sets GOMEMLIMIT from the cgroup memory limit, falling
// back to total system memory outside a container.
func setMemoryLimit() {
	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
		memlimit.WithRefreshInterval(MemoryLimitRefreshInterval),
	)
	if err != nil {
		log.Warn().Err(err).Msg("unable to set GOMEMLIMIT")
		return
	}
	log.Debug().Int64("limit-bytes", limit).Msg("set GOMEMLIMIT")
}
