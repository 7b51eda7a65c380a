package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/trace"
)

func TestQuietAt(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	thresholds := QuietThresholds{
		NetworkQuiet:       time.Second,
		NetworkMaxInflight: 2,
		CPUQuiet:           time.Second,
	}

	// seq builds one sample per entry, 100ms apart, with the CPU idle for
	// idle at the final sample.
	seq := func(idle time.Duration, inflight ...int) []activitySample {
		samples := make([]activitySample, len(inflight))
		for i, n := range inflight {
			samples[i] = activitySample{
				At:         base.Add(time.Duration(i) * 100 * time.Millisecond),
				Inflight:   n,
				CPUIdleFor: idle,
			}
		}
		return samples
	}

	tests := []struct {
		name    string
		samples []activitySample
		want    bool
	}{
		{"no samples", nil, false},
		{
			"settled page",
			seq(2*time.Second, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
			true,
		},
		{
			"long polling tolerated",
			seq(2*time.Second, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2),
			true,
		},
		{
			"cpu still busy",
			seq(200*time.Millisecond, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
			false,
		},
		{
			"request burst resets the window",
			seq(2*time.Second, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 0),
			false,
		},
		{
			"still fetching",
			seq(2*time.Second, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3),
			false,
		},
		{
			"window too short",
			seq(2*time.Second, 0, 0, 0),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, quietAt(tt.samples, thresholds))
		})
	}
}

func TestAssembleTraceInterleavesChunks(t *testing.T) {
	chunkA := []*trace.Event{
		{Name: "EventA", Phase: trace.PhaseComplete, TS: 100},
		{Name: "EventC", Phase: trace.PhaseComplete, TS: 300},
	}
	chunkB := []*trace.Event{
		{Name: "EventB", Phase: trace.PhaseComplete, TS: 200},
		{Name: "process_name", Phase: trace.PhaseMetadata, TS: 400},
	}

	tr := assembleTrace(chunkA, chunkB)
	require.Len(t, tr.Events, 4)

	names := make([]string, 0, len(tr.Events))
	for _, ev := range tr.Events {
		names = append(names, ev.Name)
	}
	// Metadata sorts ahead of everything, the rest by timestamp.
	require.Equal(t, []string{"process_name", "EventA", "EventB", "EventC"}, names)
}

func TestAssembleTraceEmpty(t *testing.T) {
	tr := assembleTrace()
	require.NotNil(t, tr)
	require.Empty(t, tr.Events)
}

func TestEventsFromBatch(t *testing.T) {
	batch := []map[string]gson.JSON{
		gson.New(map[string]any{
			"name": "navigationStart",
			"cat":  "blink.user_timing",
			"ph":   "R",
			"ts":   1000,
			"pid":  7,
			"tid":  1,
		}).Map(),
		gson.New(map[string]any{
			"name": "RunTask",
			"cat":  "devtools.timeline",
			"ph":   "X",
			"ts":   2000,
			"dur":  50,
		}).Map(),
	}

	events, err := eventsFromBatch(batch)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "navigationStart", events[0].Name)
	require.True(t, events[0].IsNavigationStart())
	require.Equal(t, int64(2000), events[1].TS)
	require.Equal(t, int64(50), events[1].Dur)
}

func TestHeadersFromNetwork(t *testing.T) {
	raw := proto.NetworkHeaders{
		"Cache-Control": gson.New("max-age=600"),
		"Set-Cookie":    gson.New("a=1\nb=2"),
	}

	h := headersFromNetwork(raw)
	require.Equal(t, "max-age=600", h.Get("Cache-Control"))
	require.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}

func TestClassifyNavigationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want runnererr.Code
	}{
		{
			"certificate failure",
			errors.New("navigation failed: net::ERR_CERT_DATE_INVALID"),
			runnererr.InsecureDocumentRequest,
		},
		{
			"ssl failure",
			errors.New("navigation failed: net::ERR_SSL_PROTOCOL_ERROR"),
			runnererr.InsecureDocumentRequest,
		},
		{
			"dns failure",
			errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED"),
			runnererr.ErroredDocumentRequest,
		},
		{
			"timeout",
			fmt.Errorf("navigating: %w", context.DeadlineExceeded),
			runnererr.PageHung,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyNavigationError("https://example.com", tt.err)
			code, ok := runnererr.CodeOf(err)
			require.True(t, ok)
			require.Equal(t, tt.want, code)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestConsoleLevel(t *testing.T) {
	require.Equal(t, "error", consoleLevel("error"))
	require.Equal(t, "error", consoleLevel("assert"))
	require.Equal(t, "warning", consoleLevel("warning"))
	require.Equal(t, "log", consoleLevel("log"))
	require.Equal(t, "log", consoleLevel("table"))
}

func TestStringifyRemoteObjects(t *testing.T) {
	args := []*proto.RuntimeRemoteObject{
		{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("loaded in")},
		{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42)},
		{Type: proto.RuntimeRemoteObjectTypeObject, Description: "PerformanceEntry"},
		nil,
	}
	require.Equal(t, "loaded in 42 PerformanceEntry", stringifyRemoteObjects(args))
}
