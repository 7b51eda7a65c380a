// Package common holds pgx plumbing shared by the Postgres datastore and
// its migration driver: logging, tracing, and pool tuning.
package common

import (
	"context"
	"time"

	"github.com/ccoveille/go-safecast/v2"
	"github.com/exaring/otelpgx"
	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	log "github.com/treosh/lightci/internal/logging"
)

// ConfigureLogger routes pgx's tracelog output through the global zerolog
// logger. pgx logs every statement at info, which is too chatty for a
// report server's info level, so info is remapped to debug.
func ConfigureLogger(connConfig *pgx.ConnConfig) {
	levelMappingFn := func(logger tracelog.Logger) tracelog.LoggerFunc {
		return func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
			if level == tracelog.LogLevelInfo {
				level = tracelog.LogLevelDebug
			}
			truncateLargeSQL(data)
			logger.Log(ctx, level, msg, data)
		}
	}

	l := zerologadapter.NewLogger(log.Logger,
		zerologadapter.WithoutPGXModule(),
		zerologadapter.WithSubDictionary("pgx"),
		zerologadapter.WithContextFunc(func(ctx context.Context, z zerolog.Context) zerolog.Context {
			if logger := log.Ctx(ctx); logger != nil {
				return logger.With()
			}
			return z
		}))
	addTracer(connConfig, &tracelog.TraceLog{Logger: levelMappingFn(l), LogLevel: tracelog.LogLevelInfo})
}

// truncateLargeSQL shortens statements and argument lists in log fields.
// Run uploads carry whole report documents as arguments; logging them
// verbatim would drown everything else.
func truncateLargeSQL(data map[string]any) {
	const (
		maxSQLLen     = 350
		maxSQLArgsLen = 50
	)

	if sqlData, ok := data["sql"]; ok {
		if sqlString, ok := sqlData.(string); ok && len(sqlString) > maxSQLLen {
			data["sql"] = sqlString[:maxSQLLen] + "..."
		}
	}
	if argsData, ok := data["args"]; ok {
		if argsSlice, ok := argsData.([]any); ok && len(argsSlice) > maxSQLArgsLen {
			data["args"] = argsSlice[:maxSQLArgsLen]
		}
	}
}

// ConfigureTracer adds OpenTelemetry spans to every query on the
// connection.
func ConfigureTracer(connConfig *pgx.ConnConfig) {
	addTracer(connConfig, otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()))
}

func addTracer(connConfig *pgx.ConnConfig, tracer pgx.QueryTracer) {
	composed := addComposedTracer(connConfig)
	composed.Tracers = append(composed.Tracers, tracer)
}

func addComposedTracer(connConfig *pgx.ConnConfig) *ComposedTracer {
	var composed *ComposedTracer
	if connConfig.Tracer == nil {
		composed = &ComposedTracer{}
		connConfig.Tracer = composed
	} else {
		var ok bool
		composed, ok = connConfig.Tracer.(*ComposedTracer)
		if !ok {
			composed = &ComposedTracer{Tracers: []pgx.QueryTracer{connConfig.Tracer}}
			connConfig.Tracer = composed
		}
	}
	return composed
}

// ComposedTracer fans one connection's trace callbacks out to multiple
// tracers, since pgx accepts only one.
type ComposedTracer struct {
	Tracers []pgx.QueryTracer
}

func (m *ComposedTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range m.Tracers {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (m *ComposedTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, t := range m.Tracers {
		t.TraceQueryEnd(ctx, conn, data)
	}
}

// PoolOptions is the pool tuning surface exposed through serve flags.
// Nil fields keep pgx's defaults.
type PoolOptions struct {
	ConnMaxIdleTime         *time.Duration
	ConnMaxLifetime         *time.Duration
	ConnMaxLifetimeJitter   *time.Duration
	ConnHealthCheckInterval *time.Duration
	MinOpenConns            *int
	MaxOpenConns            *int
}

// ConfigurePgx applies the options and instrumentation to a pool config.
func (opts PoolOptions) ConfigurePgx(pgxConfig *pgxpool.Config) error {
	if opts.MaxOpenConns != nil {
		maxConns, err := safecast.Convert[int32](*opts.MaxOpenConns)
		if err != nil {
			return err
		}
		pgxConfig.MaxConns = maxConns
	}

	// Default to keeping the pool maxed out at all times.
	pgxConfig.MinConns = pgxConfig.MaxConns
	if opts.MinOpenConns != nil {
		minConns, err := safecast.Convert[int32](*opts.MinOpenConns)
		if err != nil {
			return err
		}
		pgxConfig.MinConns = minConns
	}

	if pgxConfig.MaxConns > 0 && pgxConfig.MinConns > 0 && pgxConfig.MaxConns < pgxConfig.MinConns {
		log.Warn().
			Int32("max-connections", pgxConfig.MaxConns).
			Int32("min-connections", pgxConfig.MinConns).
			Msg("maximum number of connections is less than minimum; minimum will be used")
	}

	if opts.ConnMaxIdleTime != nil {
		pgxConfig.MaxConnIdleTime = *opts.ConnMaxIdleTime
	}
	if opts.ConnMaxLifetime != nil {
		pgxConfig.MaxConnLifetime = *opts.ConnMaxLifetime
	}
	if opts.ConnHealthCheckInterval != nil {
		pgxConfig.HealthCheckPeriod = *opts.ConnHealthCheckInterval
	}
	if opts.ConnMaxLifetimeJitter != nil {
		pgxConfig.MaxConnLifetimeJitter = *opts.ConnMaxLifetimeJitter
	} else if opts.ConnMaxLifetime != nil {
		pgxConfig.MaxConnLifetimeJitter = time.Duration(0.2 * float64(*opts.ConnMaxLifetime))
	}

	ConfigureLogger(pgxConfig.ConnConfig)
	ConfigureTracer(pgxConfig.ConnConfig)
	return nil
}
