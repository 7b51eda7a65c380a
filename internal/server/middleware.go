package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/treosh/lightci/internal/auth"
	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/server/datastore"
)

var (
	inFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lightci",
		Subsystem: "api",
		Name:      "in_flight_requests",
		Help:      "number of requests currently being served",
	})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lightci",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "request latency distribution",
		Buckets:   prometheus.DefBuckets,
	}, []string{"code", "method"})
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lightci",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "total requests served",
	}, []string{"code", "method"})
	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lightci",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "mutating requests rejected by the per-token rate limit",
	})
)

// wrapMiddleware applies the ambient middleware stack. Order matters: the
// otel handler is outermost so every other layer runs inside its span,
// and hlog's context handler sits above the access logger that reads it.
func (c *Config) wrapMiddleware(next http.Handler) http.Handler {
	handler := promhttp.InstrumentHandlerInFlight(inFlightRequests,
		promhttp.InstrumentHandlerDuration(requestDuration,
			promhttp.InstrumentHandlerCounter(requestsTotal, next)))

	handler = cors.New(cors.Options{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(handler)

	handler = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("handled request")
	})(handler)
	handler = hlog.RequestIDHandler("request_id", "Request-Id")(handler)
	handler = hlog.NewHandler(log.Logger)(handler)

	return otelhttp.NewHandler(handler, "lightci.api")
}

type authenticatorConfig struct {
	tokenTTL  time.Duration
	maxTokens int64
	writeRate float64
	burst     int
}

// authenticator resolves bearer tokens to projects, caching lookups so an
// upload burst does not hammer the datastore, and rate limits writes per
// token.
type authenticator struct {
	ds       datastore.Datastore
	tokens   *theine.Cache[string, *datastore.Project]
	limiters *xsync.Map[string, *rate.Limiter]
	config   authenticatorConfig
}

func newAuthenticator(ds datastore.Datastore, config authenticatorConfig) (*authenticator, error) {
	tokens, err := theine.NewBuilder[string, *datastore.Project](config.maxTokens).Build()
	if err != nil {
		return nil, err
	}
	return &authenticator{
		ds:       ds,
		tokens:   tokens,
		limiters: xsync.NewMap[string, *rate.Limiter](),
		config:   config,
	}, nil
}

// projectForToken resolves a build token, serving repeats from cache.
func (a *authenticator) projectForToken(ctx context.Context, token string) (*datastore.Project, error) {
	if project, ok := a.tokens.Get(token); ok {
		return project, nil
	}

	project, err := a.ds.GetProjectByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	a.tokens.SetWithTTL(token, project, 1, a.config.tokenTTL)
	return project, nil
}

func (a *authenticator) allowWrite(token string) bool {
	limiter, _ := a.limiters.LoadOrCompute(token, func() (*rate.Limiter, bool) {
		return rate.NewLimiter(rate.Limit(a.config.writeRate), a.config.burst), false
	})
	return limiter.Allow()
}

// prune drops idle per-token limiters. A pruned token gets a fresh
// limiter with a full burst on its next write.
func (a *authenticator) prune() int {
	pruned := 0
	a.limiters.Range(func(token string, limiter *rate.Limiter) bool {
		if limiter.Tokens() >= float64(a.config.burst) {
			a.limiters.Delete(token)
			pruned++
		}
		return true
	})
	return pruned
}

// invalidate removes a token from the cache, e.g. after project deletion.
func (a *authenticator) invalidate(token string) {
	a.tokens.Delete(token)
}

type projectHandler func(w http.ResponseWriter, r *http.Request, project *datastore.Project)

// requireBuildToken wraps mutating handlers: the bearer token must resolve
// to the project named in the path, and writes are rate limited per token.
func (a *authenticator) requireBuildToken(next projectHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		project, err := a.projectForToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid build token")
			return
		}
		if projectID := r.PathValue("projectID"); projectID != "" && projectID != project.ID {
			writeError(w, http.StatusForbidden, "forbidden", "token does not match project")
			return
		}

		if !a.allowWrite(token) {
			rateLimitedTotal.Inc()
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests for this token")
			return
		}

		next(w, r, project)
	}
}

// requireAdminToken wraps destructive handlers: the bearer token must
// match the project's admin token exactly.
func (a *authenticator) requireAdminToken(next projectHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		project, err := a.ds.GetProject(r.Context(), r.PathValue("projectID"))
		if err != nil {
			writeDatastoreError(w, err)
			return
		}
		if !auth.Equal(token, project.AdminToken) {
			writeError(w, http.StatusForbidden, "forbidden", "invalid admin token")
			return
		}

		next(w, r, project)
	}
}
