package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/trace"
)

const (
	browserPID  = trace.ProcessID(1)
	rendererPID = trace.ProcessID(7)
	mainTID     = trace.ThreadID(7)
	ioTID       = trace.ThreadID(20)

	navTS = int64(1_000_000)
)

type traceBuilder struct {
	events []*trace.Event
}

func (b *traceBuilder) add(ev *trace.Event) *traceBuilder {
	b.events = append(b.events, ev)
	return b
}

func (b *traceBuilder) event(name, cat string, ph trace.Phase, pid trace.ProcessID, tid trace.ThreadID, ts, dur int64, args string) *traceBuilder {
	ev := &trace.Event{Name: name, Cat: cat, Phase: ph, PID: pid, TID: tid, TS: ts, Dur: dur}
	if args != "" {
		ev.Args = []byte(args)
	}
	return b.add(ev)
}

func (b *traceBuilder) metadata(name string, pid trace.ProcessID, tid trace.ThreadID, value string) *traceBuilder {
	return b.event(name, "__metadata", trace.PhaseMetadata, pid, tid, 0, 0,
		fmt.Sprintf(`{"name":%q}`, value))
}

func (b *traceBuilder) build() *trace.Trace {
	return &trace.Trace{Events: b.events}
}

// loadedPageTrace models a simple successful load: one navigation, paint
// milestones, two requests, one long task with nested script work, a couple
// of layout shifts, and a user timing pair. The trailing instant stretches
// the capture far enough for a quiet window.
func loadedPageTrace() *trace.Trace {
	b := &traceBuilder{}
	b.metadata("process_name", browserPID, 1, "Browser")
	b.metadata("process_name", rendererPID, mainTID, "Renderer")
	b.metadata("thread_name", rendererPID, mainTID, "CrRendererMain")

	b.event("TracingStartedInBrowser", "devtools.timeline", trace.PhaseInstant, browserPID, 1, 900_000, 0,
		`{"data":{"frames":[{"frame":"F1","url":"https://example.com/","processId":7}]}}`)
	b.event("navigationStart", "blink.user_timing", trace.PhaseMark, rendererPID, mainTID, navTS, 0,
		`{"frame":"F1","data":{"documentLoaderURL":"https://example.com/","navigationId":"N1","isLoadingMainFrame":true}}`)

	// Document request plus one script.
	b.event("ResourceSendRequest", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_010_000, 0,
		`{"data":{"requestId":"1","url":"https://example.com/","requestMethod":"GET","priority":"VeryHigh","resourceType":"Document"}}`)
	b.event("ResourceReceiveResponse", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_080_000, 0,
		`{"data":{"requestId":"1","statusCode":200,"mimeType":"text/html","protocol":"h2"}}`)
	b.event("ResourceFinish", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_150_000, 0,
		`{"data":{"requestId":"1","didFail":false,"encodedDataLength":5400,"decodedBodyLength":17000}}`)
	b.event("ResourceSendRequest", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_200_000, 0,
		`{"data":{"requestId":"2","url":"https://cdn.example.com/app.js","requestMethod":"GET","priority":"High","resourceType":"Script"}}`)
	b.event("ResourceReceiveResponse", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_260_000, 0,
		`{"data":{"requestId":"2","statusCode":200,"mimeType":"application/javascript","protocol":"h2"}}`)
	b.event("ResourceChangePriority", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_270_000, 0,
		`{"data":{"requestId":"2","priority":"VeryHigh"}}`)
	b.event("ResourceFinish", "devtools.timeline", trace.PhaseInstant, rendererPID, ioTID, 1_400_000, 0,
		`{"data":{"requestId":"2","didFail":false,"encodedDataLength":48000,"decodedBodyLength":140000}}`)

	// Paint and document milestones.
	b.event("firstPaint", "loading,rail,devtools.timeline", trace.PhaseMark, rendererPID, mainTID, 1_450_000, 0,
		`{"frame":"F1"}`)
	b.event("firstContentfulPaint", "loading,rail,devtools.timeline", trace.PhaseMark, rendererPID, mainTID, 1_500_000, 0,
		`{"frame":"F1"}`)
	b.event("largestContentfulPaint::Candidate", "loading,rail,devtools.timeline", trace.PhaseMark, rendererPID, mainTID, 2_000_000, 0,
		`{"frame":"F1","data":{"size":8000}}`)
	b.event("MarkDOMContent", "blink.user_timing,rail", trace.PhaseInstant, rendererPID, mainTID, 1_900_000, 0,
		`{"data":{"frame":"F1"}}`)
	b.event("MarkLoad", "blink.user_timing,rail", trace.PhaseInstant, rendererPID, mainTID, 2_300_000, 0,
		`{"data":{"frame":"F1"}}`)
	b.event("domInteractive", "blink.user_timing", trace.PhaseMark, rendererPID, mainTID, 1_850_000, 0,
		`{"frame":"F1"}`)

	// One 200ms task with nested script evaluation and parsing.
	b.event("RunTask", "disabled-by-default-lighthouse", trace.PhaseComplete, rendererPID, mainTID, 1_600_000, 200_000, "")
	b.event("EvaluateScript", "devtools.timeline", trace.PhaseComplete, rendererPID, mainTID, 1_620_000, 100_000,
		`{"data":{"url":"https://cdn.example.com/app.js"}}`)
	b.event("ParseHTML", "devtools.timeline", trace.PhaseBegin, rendererPID, mainTID, 1_621_000, 0, "")
	b.event("ParseHTML", "devtools.timeline", trace.PhaseEnd, rendererPID, mainTID, 1_640_000, 0, "")

	// Layout shifts: two in one session window, a third after a gap.
	for _, shift := range []struct {
		ts    int64
		score float64
	}{{2_100_000, 0.1}, {2_500_000, 0.2}, {4_000_000, 0.05}} {
		b.event("LayoutShift", "loading", trace.PhaseInstant, rendererPID, mainTID, shift.ts, 0,
			fmt.Sprintf(`{"data":{"is_main_frame":true,"had_recent_input":false,"score":%v,"weighted_score_delta":%v}}`, shift.score, shift.score))
	}
	// A shift right after input does not count.
	b.event("LayoutShift", "loading", trace.PhaseInstant, rendererPID, mainTID, 2_600_000, 0,
		`{"data":{"is_main_frame":true,"had_recent_input":true,"score":0.9}}`)

	// User timings.
	b.event("hero-visible", "blink.user_timing", trace.PhaseMark, rendererPID, mainTID, 2_200_000, 0, "")
	b.event("fetch-data", "blink.user_timing", trace.PhaseAsyncBegin, rendererPID, mainTID, 1_700_000, 0, "")
	b.events[len(b.events)-1].ID = "0x1"
	b.event("fetch-data", "blink.user_timing", trace.PhaseAsyncEnd, rendererPID, mainTID, 2_400_000, 0, "")
	b.events[len(b.events)-1].ID = "0x1"

	// Keep the capture open long enough for a quiet window after the task.
	b.event("CommitLoad", "devtools.timeline", trace.PhaseInstant, rendererPID, mainTID, 9_000_000, 0, "")
	return b.build()
}

func processLoadedPage(t *testing.T) *ProcessedTrace {
	t.Helper()
	p, err := NewProcessor()
	require.NoError(t, err)
	pt, err := p.Process(context.Background(), loadedPageTrace())
	require.NoError(t, err)
	return pt
}

func TestProcessMeta(t *testing.T) {
	pt := processLoadedPage(t)

	require.Equal(t, "F1", pt.Meta.MainFrameID)
	require.Equal(t, rendererPID, pt.Meta.MainPID)
	require.Equal(t, mainTID, pt.Meta.MainTID)
	require.Equal(t, browserPID, pt.Meta.BrowserPID)
	require.Len(t, pt.Meta.Navigations, 1)
	require.Equal(t, "https://example.com/", pt.Meta.Navigations[0].URL)
	require.Equal(t, int64(900_000), pt.Bounds.Start)
	require.Equal(t, int64(9_000_000), pt.Bounds.End)
}

func TestProcessPageLoad(t *testing.T) {
	pt := processLoadedPage(t)

	fcp, err := pt.PageLoad.FCPTime()
	require.NoError(t, err)
	require.Equal(t, 500.0, fcp.MS)

	lcp, err := pt.PageLoad.LCPTime()
	require.NoError(t, err)
	require.Equal(t, 1000.0, lcp.MS)
	require.Equal(t, 8000.0, pt.PageLoad.LCPSize)

	require.Equal(t, 450.0, pt.PageLoad.FirstPaint.MS)
	require.Equal(t, 900.0, pt.PageLoad.DOMContentLoaded.MS)
	require.Equal(t, 1300.0, pt.PageLoad.Load.MS)
	require.Equal(t, 850.0, pt.PageLoad.DOMInteractive.MS)
}

func TestProcessLayoutShifts(t *testing.T) {
	pt := processLoadedPage(t)

	require.Len(t, pt.LayoutShifts.Shifts, 3)
	require.InDelta(t, 0.3, pt.LayoutShifts.CLS, 1e-9)
	require.Len(t, pt.LayoutShifts.Windows, 2)
	require.InDelta(t, 0.3, pt.LayoutShifts.Windows[0].Score, 1e-9)
	require.InDelta(t, 0.05, pt.LayoutShifts.Windows[1].Score, 1e-9)
	require.Equal(t, 1100.0, pt.LayoutShifts.Shifts[0].MS)
	require.InDelta(t, 0.3, pt.LayoutShifts.Shifts[2].Cumulative-0.05, 1e-9)
}

func TestProcessNetwork(t *testing.T) {
	pt := processLoadedPage(t)

	require.Len(t, pt.Network.Requests, 2)
	doc := pt.Network.DocumentRequest
	require.NotNil(t, doc)
	require.Equal(t, "https://example.com/", doc.URL)
	require.Equal(t, 200, doc.StatusCode)
	require.Equal(t, "h2", doc.Protocol)
	require.Equal(t, int64(5400), doc.EncodedByteLength)
	require.True(t, doc.FinishedSuccessfully)

	script := pt.Network.Requests[1]
	require.Equal(t, ResourceScript, script.ResourceType)
	require.Equal(t, "VeryHigh", script.Priority)
	require.Equal(t, int64(140000), script.DecodedByteLength)

	require.Equal(t, 1, pt.Network.InFlightAt(1_250_000))
	require.Equal(t, 0, pt.Network.InFlightAt(1_500_000))
}

func TestProcessMainThread(t *testing.T) {
	pt := processLoadedPage(t)

	require.Len(t, pt.MainThread.Tasks, 1)
	task := pt.MainThread.Tasks[0]
	require.Equal(t, "RunTask", task.Name)
	require.Equal(t, int64(200_000), task.Dur)
	require.Equal(t, int64(100_000), task.SelfTime)
	require.Len(t, task.Children, 1)

	script := task.Children[0]
	require.Equal(t, "EvaluateScript", script.Name)
	require.Equal(t, int64(81_000), script.SelfTime)
	require.Len(t, script.Children, 1)
	require.Equal(t, "ParseHTML", script.Children[0].Name)

	require.InDelta(t, 81.0, pt.MainThread.ByGroup[GroupScriptEvaluation], 1e-9)
	require.InDelta(t, 19.0, pt.MainThread.ByGroup[GroupParseHTML], 1e-9)
	require.InDelta(t, 100.0, pt.MainThread.ByGroup[GroupOther], 1e-9)
	require.Equal(t, 200.0, pt.MainThread.TotalMS)
	require.Equal(t, 1, pt.MainThread.ByName["EvaluateScript"].Count)
}

func TestProcessLongTasks(t *testing.T) {
	pt := processLoadedPage(t)

	require.Len(t, pt.LongTasks.Tasks, 1)
	lt := pt.LongTasks.Tasks[0]
	require.Equal(t, 600.0, lt.StartMS)
	require.Equal(t, 200.0, lt.DurMS)
	require.Equal(t, 150.0, lt.BlockingMS)

	tti, err := pt.LongTasks.TTITime()
	require.NoError(t, err)
	require.Equal(t, 800.0, tti.MS)
	require.Equal(t, 150.0, pt.LongTasks.TotalBlockingMS)
}

func TestProcessUserTimings(t *testing.T) {
	pt := processLoadedPage(t)

	require.Len(t, pt.UserTimings, 2)
	byName := map[string]UserTiming{}
	for _, ut := range pt.UserTimings {
		byName[ut.Name] = ut
	}
	require.Equal(t, 1200.0, byName["hero-visible"].MS)
	require.False(t, byName["hero-visible"].IsMeasure)
	require.Equal(t, 700.0, byName["fetch-data"].DurationMS)
	require.True(t, byName["fetch-data"].IsMeasure)
}

func TestProcessWithoutNavigation(t *testing.T) {
	b := &traceBuilder{}
	b.metadata("process_name", rendererPID, mainTID, "Renderer")
	b.metadata("thread_name", rendererPID, mainTID, "CrRendererMain")
	b.event("TracingStartedInBrowser", "devtools.timeline", trace.PhaseInstant, browserPID, 1, 900_000, 0,
		`{"data":{"frames":[{"frame":"F1","url":"https://example.com/","processId":7}]}}`)
	b.event("CommitLoad", "devtools.timeline", trace.PhaseInstant, rendererPID, mainTID, 1_000_000, 0, "")

	p, err := NewProcessor()
	require.NoError(t, err)
	_, err = p.Process(context.Background(), b.build())
	require.Error(t, err)
	require.True(t, runnererr.HasCode(err, runnererr.NoNavStart))
}

func TestProcessWithoutTTIQuietWindow(t *testing.T) {
	tr := loadedPageTrace()
	// Drop the trailing instant so the capture ends right after the long
	// task; no quiet window fits.
	tr.Events = tr.Events[:len(tr.Events)-1]

	p, err := NewProcessor()
	require.NoError(t, err)
	pt, err := p.Process(context.Background(), tr)
	require.NoError(t, err)

	_, ttiErr := pt.LongTasks.TTITime()
	require.True(t, runnererr.HasCode(ttiErr, runnererr.NoTTI))
	require.Nil(t, pt.LongTasks.TTI)
}

func TestProcessEmptyTrace(t *testing.T) {
	p, err := NewProcessor()
	require.NoError(t, err)
	_, err = p.Process(context.Background(), &trace.Trace{})
	require.Error(t, err)
}

func TestProcessorIsReusable(t *testing.T) {
	p, err := NewProcessor()
	require.NoError(t, err)

	first, err := p.Process(context.Background(), loadedPageTrace())
	require.NoError(t, err)
	second, err := p.Process(context.Background(), loadedPageTrace())
	require.NoError(t, err)

	require.Equal(t, first.PageLoad.FCP.MS, second.PageLoad.FCP.MS)
	require.Len(t, second.Network.Requests, 2)
	require.Len(t, second.MainThread.Tasks, 1)
}

func TestScheduleRejectsCycles(t *testing.T) {
	a := &fakeHandler{name: "a", deps: []HandlerName{"b"}}
	c := &fakeHandler{name: "b", deps: []HandlerName{"a"}}
	_, _, err := schedule([]Handler{a, c})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestScheduleRejectsUnknownDeps(t *testing.T) {
	a := &fakeHandler{name: "a", deps: []HandlerName{"missing"}}
	_, _, err := schedule([]Handler{a})
	require.Error(t, err)
}

func TestScheduleStagesRespectDeps(t *testing.T) {
	a := &fakeHandler{name: "a"}
	c := &fakeHandler{name: "b", deps: []HandlerName{"a"}}
	d := &fakeHandler{name: "c", deps: []HandlerName{"a"}}
	e := &fakeHandler{name: "d", deps: []HandlerName{"b", "c"}}

	stages, order, err := schedule([]Handler{e, d, c, a})
	require.NoError(t, err)
	require.Len(t, order, 4)
	require.Len(t, stages, 3)
	require.Len(t, stages[1], 2)
	require.Equal(t, HandlerName("a"), stages[0][0].Name())
	require.Equal(t, HandlerName("d"), stages[2][0].Name())
}

type fakeHandler struct {
	name HandlerName
	deps []HandlerName
}

func (f *fakeHandler) Name() HandlerName              { return f.name }
func (f *fakeHandler) Deps() []HandlerName            { return f.deps }
func (f *fakeHandler) Reset()                         {}
func (f *fakeHandler) HandleEvent(*trace.Event) error { return nil }
func (f *fakeHandler) Finalize(context.Context) error { return nil }
