package runner

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/artifacts"
	"github.com/treosh/lightci/pkg/trace"
)

// fakeCollector serves synthetic artifacts with a controllable first paint
// per call, and can be told to fail a specific call.
type fakeCollector struct {
	calls   int
	failOn  int // 1-based call that fails, 0 for never
	failErr error
	fcpUS   []int64
}

func (f *fakeCollector) Collect(_ context.Context, pageURL string) (*artifacts.Artifacts, error) {
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return nil, f.failErr
	}
	offset := int64(500_000)
	if len(f.fcpUS) > 0 {
		offset = f.fcpUS[(f.calls-1)%len(f.fcpUS)]
	}
	return syntheticArtifacts(pageURL, offset), nil
}

// syntheticArtifacts models a small successful load whose first contentful
// paint lands fcpOffsetUS after navigation.
func syntheticArtifacts(pageURL string, fcpOffsetUS int64) *artifacts.Artifacts {
	const (
		rendererPID = trace.ProcessID(7)
		mainTID     = trace.ThreadID(7)
		navTS       = int64(1_000_000)
	)
	ev := func(name, cat string, ph trace.Phase, ts int64, args string) *trace.Event {
		e := &trace.Event{Name: name, Cat: cat, Phase: ph, PID: rendererPID, TID: mainTID, TS: ts}
		if args != "" {
			e.Args = []byte(args)
		}
		return e
	}

	events := []*trace.Event{
		{Name: "process_name", Cat: "__metadata", Phase: trace.PhaseMetadata, PID: 1, TID: 1, Args: []byte(`{"name":"Browser"}`)},
		{Name: "process_name", Cat: "__metadata", Phase: trace.PhaseMetadata, PID: rendererPID, TID: mainTID, Args: []byte(`{"name":"Renderer"}`)},
		{Name: "thread_name", Cat: "__metadata", Phase: trace.PhaseMetadata, PID: rendererPID, TID: mainTID, Args: []byte(`{"name":"CrRendererMain"}`)},
		ev("TracingStartedInBrowser", "devtools.timeline", trace.PhaseInstant, 900_000,
			fmt.Sprintf(`{"data":{"frames":[{"frame":"F1","url":%q,"processId":7}]}}`, pageURL)),
		ev("navigationStart", "blink.user_timing", trace.PhaseMark, navTS,
			fmt.Sprintf(`{"frame":"F1","data":{"documentLoaderURL":%q,"navigationId":"N1","isLoadingMainFrame":true}}`, pageURL)),
		ev("firstContentfulPaint", "loading,rail,devtools.timeline", trace.PhaseMark, navTS+fcpOffsetUS,
			`{"frame":"F1"}`),
		ev("largestContentfulPaint::Candidate", "loading,rail,devtools.timeline", trace.PhaseMark, navTS+fcpOffsetUS+200_000,
			`{"frame":"F1","data":{"size":4000}}`),
		ev("MarkLoad", "blink.user_timing,rail", trace.PhaseInstant, navTS+900_000,
			`{"data":{"frame":"F1"}}`),
		// Stretch the capture so metrics that need a quiet tail can settle.
		ev("CommitLoad", "devtools.timeline", trace.PhaseInstant, navTS+7_000_000, ""),
	}

	return &artifacts.Artifacts{
		URL:       artifacts.URL{Requested: pageURL, MainDocument: pageURL, Final: pageURL},
		FetchTime: time.Now().UTC(),
		Trace:     &trace.Trace{Events: events},
		MetaElements: []artifacts.MetaElement{
			{Name: "viewport", Content: "width=device-width, initial-scale=1"},
		},
		MainDocumentHeaders:    http.Header{"Content-Type": []string{"text/html"}},
		MainDocumentStatusCode: 200,
		DocumentTitle:          "Synthetic page",
		UserAgent:              "synthetic",
		BenchmarkIndex:         1000,
		Settings:               artifacts.MobileSettings(),
	}
}

func TestRunURLProducesReports(t *testing.T) {
	// FCP 500ms, 900ms, 600ms: the median is 600, so run 3 represents.
	fake := &fakeCollector{fcpUS: []int64{500_000, 900_000, 600_000}}
	r, err := New(fake, WithProgress(nil))
	require.NoError(t, err)

	res, err := r.RunURL(context.Background(), "https://example.com/", 3)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/", res.URL)
	require.Len(t, res.Reports, 3)
	require.Equal(t, 2, res.Representative)

	rep := res.Reports[res.Representative]
	fcp, ok := rep.AuditNumericValue("first-contentful-paint")
	require.True(t, ok)
	require.InDelta(t, 600, fcp, 0.01)

	require.Contains(t, rep.Categories, "performance")
	require.NotZero(t, rep.Timing.TotalMS)

	phases := make([]string, 0, len(rep.Timing.Entries))
	for _, entry := range rep.Timing.Entries {
		phases = append(phases, entry.Name)
	}
	require.Equal(t, []string{"collect", "process-trace", "audit"}, phases)
}

func TestRunURLDefaultsToSingleRun(t *testing.T) {
	fake := &fakeCollector{}
	r, err := New(fake, WithProgress(nil))
	require.NoError(t, err)

	res, err := r.RunURL(context.Background(), "https://example.com/", 0)
	require.NoError(t, err)
	require.Len(t, res.Reports, 1)
	require.Equal(t, 0, res.Representative)
	require.Equal(t, 1, fake.calls)
}

func TestRunURLAbortsOnFailedRun(t *testing.T) {
	fake := &fakeCollector{
		failOn:  2,
		failErr: runnererr.New(runnererr.PageHung, "the page never settled"),
	}
	r, err := New(fake, WithProgress(nil))
	require.NoError(t, err)

	_, err = r.RunURL(context.Background(), "https://example.com/", 3)
	require.Error(t, err)
	require.True(t, runnererr.HasCode(err, runnererr.PageHung))
	require.Equal(t, 2, fake.calls)
}

func TestRunGroupsByURL(t *testing.T) {
	fake := &fakeCollector{}
	r, err := New(fake, WithProgress(nil))
	require.NoError(t, err)

	set, err := r.Run(context.Background(), []string{"https://a.example/", "https://b.example/"}, 2)
	require.NoError(t, err)
	require.Len(t, set.Results, 2)
	require.Equal(t, "https://a.example/", set.Results[0].URL)
	require.Equal(t, "https://b.example/", set.Results[1].URL)
	require.Equal(t, 4, set.TotalRuns())
}
