package server

import (
	"context"
	"math/rand"
	"time"

	"github.com/lthibault/jitterbug"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/server/datastore"
)

var storedRecordsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "lightci",
	Subsystem: "datastore",
	Name:      "stored_records",
	Help:      "records stored, by table, as of the last maintenance pass",
}, []string{"table"})

// maintenanceWorker periodically prunes idle rate limiters and publishes
// datastore size. Ticks are jittered so replicas don't stampede a shared
// database.
type maintenanceWorker struct {
	ds       datastore.Datastore
	authn    *authenticator
	interval time.Duration
}

func (w *maintenanceWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}

	ticker := jitterbug.New(w.interval, jitterbug.Uniform{
		Source: rand.New(rand.NewSource(time.Now().Unix())),
		Min:    w.interval,
	})
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *maintenanceWorker) runOnce(ctx context.Context) {
	pruned := w.authn.prune()

	stats, err := w.ds.Stats(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("maintenance failed to read datastore stats")
		return
	}
	storedRecordsGauge.WithLabelValues("projects").Set(float64(stats.Projects))
	storedRecordsGauge.WithLabelValues("builds").Set(float64(stats.Builds))
	storedRecordsGauge.WithLabelValues("runs").Set(float64(stats.Runs))

	log.Ctx(ctx).Debug().
		Int("projects", stats.Projects).
		Int("builds", stats.Builds).
		Int("runs", stats.Runs).
		Int("prunedLimiters", pruned).
		Msg("maintenance pass complete")
}
