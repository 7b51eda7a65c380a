package postgres

import (
	"time"

	pgxcommon "github.com/treosh/lightci/internal/server/datastore/postgres/common"
)

type postgresOptions struct {
	connMaxIdleTime         *time.Duration
	connMaxLifetime         *time.Duration
	connMaxLifetimeJitter   *time.Duration
	connHealthCheckInterval *time.Duration
	minOpenConns            *int
	maxOpenConns            *int

	enablePrometheusStats bool
}

// Option provides the facility to configure how the datastore interacts
// with the running Postgres database.
type Option func(*postgresOptions)

func generateConfig(options []Option) postgresOptions {
	var computed postgresOptions
	for _, option := range options {
		option(&computed)
	}
	return computed
}

func (opts postgresOptions) poolOptions() pgxcommon.PoolOptions {
	return pgxcommon.PoolOptions{
		ConnMaxIdleTime:         opts.connMaxIdleTime,
		ConnMaxLifetime:         opts.connMaxLifetime,
		ConnMaxLifetimeJitter:   opts.connMaxLifetimeJitter,
		ConnHealthCheckInterval: opts.connHealthCheckInterval,
		MinOpenConns:            opts.minOpenConns,
		MaxOpenConns:            opts.maxOpenConns,
	}
}

// ConnMaxIdleTime is the duration after which an idle connection will be
// automatically closed by the health check.
//
// This value defaults to having no maximum.
func ConnMaxIdleTime(idle time.Duration) Option {
	return func(po *postgresOptions) { po.connMaxIdleTime = &idle }
}

// ConnMaxLifetime is the duration since creation after which a connection
// will be automatically closed.
//
// This value defaults to having no maximum.
func ConnMaxLifetime(lifetime time.Duration) Option {
	return func(po *postgresOptions) { po.connMaxLifetime = &lifetime }
}

// ConnMaxLifetimeJitter is an interval to wait up to after the max
// lifetime to close the connection.
//
// This value defaults to 20% of the max lifetime.
func ConnMaxLifetimeJitter(jitter time.Duration) Option {
	return func(po *postgresOptions) { po.connMaxLifetimeJitter = &jitter }
}

// ConnHealthCheckInterval is the duration between checks of the health of
// idle connections.
func ConnHealthCheckInterval(interval time.Duration) Option {
	return func(po *postgresOptions) { po.connHealthCheckInterval = &interval }
}

// MinOpenConns is the minimum size of the connection pool. The health
// check will increase the number of connections to this amount if it had
// dropped below.
//
// This value defaults to the maximum open connections.
func MinOpenConns(conns int) Option {
	return func(po *postgresOptions) { po.minOpenConns = &conns }
}

// MaxOpenConns is the maximum size of the connection pool.
//
// This value defaults to having no maximum.
func MaxOpenConns(conns int) Option {
	return func(po *postgresOptions) { po.maxOpenConns = &conns }
}

// WithEnablePrometheusStats marks whether Prometheus metrics provided by
// the connection pool should be registered.
//
// Prometheus metrics are disabled by default.
func WithEnablePrometheusStats(enable bool) Option {
	return func(po *postgresOptions) { po.enablePrometheusStats = enable }
}
