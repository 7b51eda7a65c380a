// Package upload ships finished reports to their destination: a local
// directory, a lightci report server, or the ephemeral public store. HTTP
// traffic runs through a small policy pipeline so every target gets the
// same identification, retry, and logging behavior.
package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"

	log "github.com/treosh/lightci/internal/logging"
)

// Request wraps an outgoing http.Request together with the byte body the
// retry policy needs to replay it.
type Request struct {
	*http.Request

	body []byte
}

// NewRequest builds a pipeline request with a replayable body. A nil body
// means no body.
func NewRequest(ctx context.Context, method, url string, body []byte) (*Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	return &Request{Request: req, body: body}, nil
}

// rewind resets the body reader so the transport can send it again.
func (r *Request) rewind() {
	if r.body != nil {
		r.Body = io.NopCloser(bytes.NewReader(r.body))
		r.ContentLength = int64(len(r.body))
	}
}

// replayable reports whether the request can be safely retried.
func (r *Request) replayable() bool {
	return r.body != nil || r.Request.Body == nil
}

// Next advances the pipeline to the remaining policies.
type Next func(*Request) (*http.Response, error)

// Policy is one stage of the request pipeline. A policy may mutate the
// request and call next zero or more times.
type Policy interface {
	Do(req *Request, next Next) (*http.Response, error)
}

// Pipeline runs requests through an ordered policy chain ending at an
// HTTP transport.
type Pipeline struct {
	policies []Policy
}

// NewPipeline chains the given policies ahead of the terminal transport
// policy. A nil transport uses http.DefaultTransport.
func NewPipeline(transport http.RoundTripper, policies ...Policy) *Pipeline {
	if transport == nil {
		transport = http.DefaultTransport
	}
	chain := make([]Policy, 0, len(policies)+1)
	chain = append(chain, policies...)
	chain = append(chain, transportPolicy{transport})
	return &Pipeline{policies: chain}
}

// Do sends the request through every policy.
func (p *Pipeline) Do(req *Request) (*http.Response, error) {
	return p.next(0)(req)
}

func (p *Pipeline) next(i int) Next {
	return func(req *Request) (*http.Response, error) {
		return p.policies[i].Do(req, p.next(i+1))
	}
}

// DefaultPolicies assembles the standard chain for an authenticated API
// client: identification, auth, request IDs, retries, and logging.
func DefaultPolicies(userAgent, token string, maxElapsed time.Duration) []Policy {
	return []Policy{
		UserAgent(userAgent),
		Auth(token),
		RequestID(),
		Retry(maxElapsed),
		Log(),
	}
}

// UserAgent returns a policy stamping the User-Agent header when the
// request has none.
func UserAgent(value string) Policy { return userAgentPolicy{value} }

type userAgentPolicy struct{ value string }

func (p userAgentPolicy) Do(req *Request, next Next) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.value)
	}
	return next(req)
}

// Auth returns a policy attaching a bearer token. An empty token attaches
// nothing, which keeps unauthenticated targets on the same pipeline.
func Auth(token string) Policy { return authPolicy{token} }

type authPolicy struct{ token string }

func (p authPolicy) Do(req *Request, next Next) (*http.Response, error) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	return next(req)
}

// RequestIDHeader carries the client-generated request ID.
const RequestIDHeader = "X-Request-Id"

// RequestID returns a policy stamping a fresh xid on each request so
// client and server logs correlate.
func RequestID() Policy { return requestIDPolicy{} }

type requestIDPolicy struct{}

func (requestIDPolicy) Do(req *Request, next Next) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, xid.New().String())
	}
	return next(req)
}

// Retry returns a policy retrying network errors, 429s, and 5xx
// responses with exponential backoff until maxElapsed passes. Retry-After
// on a throttled response overrides the computed wait. Requests whose
// bodies cannot be replayed go through exactly once.
func Retry(maxElapsed time.Duration) Policy { return retryPolicy{maxElapsed} }

type retryPolicy struct{ maxElapsed time.Duration }

func (p retryPolicy) Do(req *Request, next Next) (*http.Response, error) {
	if !req.replayable() {
		return next(req)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = p.maxElapsed
	// Reset applies InitialInterval; the constructor already latched the
	// default before the assignment above.
	policy.Reset()

	for {
		resp, err := next(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			// Out of time; surface whatever the last attempt produced.
			return resp, err
		}
		if err == nil {
			if after := retryAfter(resp); after > 0 {
				wait = after
			}
			// Drop the failed response before replaying.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at)
	}
	return 0
}

// Log returns a policy logging each attempt at debug level.
func Log() Policy { return logPolicy{} }

type logPolicy struct{}

func (logPolicy) Do(req *Request, next Next) (*http.Response, error) {
	start := time.Now()
	resp, err := next(req)
	event := log.Ctx(req.Context()).Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Dur("duration", time.Since(start))
	if err != nil {
		event.Err(err).Msg("upload request failed")
		return resp, err
	}
	event.Int("status", resp.StatusCode).Msg("upload request completed")
	return resp, nil
}

type transportPolicy struct{ transport http.RoundTripper }

func (t transportPolicy) Do(req *Request, _ Next) (*http.Response, error) {
	req.rewind()
	return t.transport.RoundTrip(req.Request)
}
