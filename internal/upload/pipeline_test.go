package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipelineStampsHeaders(t *testing.T) {
	var gotUA, gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pipeline := NewPipeline(nil, DefaultPolicies("lightci/test", "tok123", time.Second)...)
	req, err := NewRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := pipeline.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "lightci/test", gotUA)
	require.Equal(t, "Bearer tok123", gotAuth)
	require.NotEmpty(t, gotRequestID)
}

func TestRetryReplaysBody(t *testing.T) {
	var attempts atomic.Int32
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody = string(body)
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pipeline := NewPipeline(nil, Retry(30*time.Second))
	req, err := NewRequest(context.Background(), http.MethodPost, srv.URL, []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	resp, err := pipeline.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), attempts.Load())
	require.Equal(t, `{"hello":"world"}`, lastBody)
}

func TestRetryGivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pipeline := NewPipeline(nil, Retry(500*time.Millisecond))
	req, err := NewRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := pipeline.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	// The final failed response comes back for the caller to decode.
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestRetrySkipsNonReplayableBodies(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, strings.NewReader("stream"))
	require.NoError(t, err)

	pipeline := NewPipeline(nil, Retry(30*time.Second))
	resp, err := pipeline.Do(&Request{Request: httpReq})
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, int32(1), attempts.Load())
}

func TestRetryAfterParsing(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}

	resp.Header.Set("Retry-After", "2")
	require.Equal(t, 2*time.Second, retryAfter(resp))

	resp.Header.Set("Retry-After", time.Now().Add(5*time.Second).UTC().Format(http.TimeFormat))
	after := retryAfter(resp)
	require.Greater(t, after, time.Second)
	require.LessOrEqual(t, after, 5*time.Second)

	resp.Header.Set("Retry-After", "garbage")
	require.Equal(t, time.Duration(0), retryAfter(resp))
}

func TestRetryRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	pipeline := NewPipeline(nil, Retry(time.Hour))
	req, err := NewRequest(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = pipeline.Do(req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
