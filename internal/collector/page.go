package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/ysmood/gson"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/artifacts"
	"github.com/treosh/lightci/pkg/trace"
)

// traceCategories is the category filter for the tracing session. The
// leading -* drops Chrome's default set; what remains are the timeline,
// paint and user timing streams the trace processor reads.
var traceCategories = []string{
	"-*",
	"toplevel",
	"v8.execute",
	"blink.console",
	"blink.user_timing",
	"benchmark",
	"loading",
	"latencyInfo",
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"disabled-by-default-devtools.timeline.stack",
}

// activityObserverJS runs before any document script and records main
// thread long tasks plus the first contentful paint, which the settle loop
// polls to judge CPU quiet.
const activityObserverJS = `(() => {
	const state = {lastLongTask: 0, firstContentfulPaint: 0};
	window.__lightciActivity = state;
	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				const end = entry.startTime + entry.duration;
				if (end > state.lastLongTask) state.lastLongTask = end;
			}
		}).observe({type: 'longtask', buffered: true});
	} catch (err) {}
	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				if (entry.name === 'first-contentful-paint') state.firstContentfulPaint = entry.startTime;
			}
		}).observe({type: 'paint', buffered: true});
	} catch (err) {}
})();`

// documentStateJS reads what only the page itself can report once the load
// has settled: the final location, title, user agent and meta tags.
const documentStateJS = `() => ({
	title: document.title,
	url: location.href,
	userAgent: navigator.userAgent,
	metas: Array.from(document.querySelectorAll('meta')).map((el) => ({
		name: (el.getAttribute('name') || '').toLowerCase(),
		property: el.getAttribute('property') || '',
		httpEquiv: (el.getAttribute('http-equiv') || '').toLowerCase(),
		content: el.getAttribute('content') || '',
	})),
})`

// benchmarkJS measures scripting throughput for about 100ms and reports
// iterations per 10ms, a rough index of how fast the host machine is.
const benchmarkJS = `() => {
	const start = performance.now();
	let iterations = 0;
	while (performance.now() - start < 100) {
		let str = '';
		for (let i = 0; i < 100; i++) str += 'a';
		iterations++;
	}
	return Math.round(iterations / (performance.now() - start) * 10);
}`

// pageRun is the mutable state of one collection. Event subscriptions fill
// it while the settle loop polls it.
type pageRun struct {
	collector *Collector
	page      *rod.Page
	requested string

	// inflight tracks outstanding network requests by id. Lifecycle events
	// arrive on the event pump while the settle loop reads the size.
	inflight *xsync.Map[proto.NetworkRequestID, string]

	mu           sync.Mutex
	console      []artifacts.ConsoleMessage
	mainRequest  proto.NetworkRequestID
	mainDocument string
	mainHeaders  http.Header
	mainStatus   int
	traceChunks  [][]*trace.Event
	loadedAt     time.Time

	crashed   atomic.Bool
	traceDone chan struct{}
	traceOnce sync.Once
}

// documentState is what the in-page inspection script reports.
type documentState struct {
	Title     string                  `json:"title"`
	URL       string                  `json:"url"`
	UserAgent string                  `json:"userAgent"`
	Metas     []artifacts.MetaElement `json:"metas"`
}

// pageActivity is one poll of the activity observer.
type pageActivity struct {
	idleFor time.Duration
	painted bool
}

func (r *pageRun) collect(ctx context.Context) (*artifacts.Artifacts, error) {
	c := r.collector

	if err := r.emulate(); err != nil {
		return nil, err
	}
	// The benchmark runs on the still-blank page before the CPU throttle
	// lands, so it measures the host rather than the emulated device.
	benchmarkIndex := r.benchmarkIndex()
	if err := r.throttle(); err != nil {
		return nil, err
	}
	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: activityObserverJS}).Call(r.page); err != nil {
		return nil, fmt.Errorf("installing activity observer: %w", err)
	}

	// Subscribing enables each event's domain, so this has to happen
	// before navigation or the early request events are lost.
	eventCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	waitEvents := r.subscribe(eventCtx)
	go waitEvents()

	if err := (proto.TracingStart{
		TransferMode: proto.TracingStartTransferModeReportEvents,
		TraceConfig: &proto.TracingTraceConfig{
			IncludedCategories: traceCategories,
		},
	}).Call(r.page); err != nil {
		if strings.Contains(err.Error(), "already started") {
			return nil, runnererr.Wrap(runnererr.TracingAlreadyStarted, err, "a trace was already being recorded")
		}
		return nil, fmt.Errorf("starting trace: %w", err)
	}

	fetchTime := time.Now().UTC()
	navStart := time.Now()
	if err := r.page.Timeout(c.maxWaitForLoad).Navigate(r.requested); err != nil {
		if r.crashed.Load() {
			return nil, runnererr.Wrap(runnererr.TargetCrashed, err, "the page crashed while loading %s", r.requested)
		}
		return nil, classifyNavigationError(r.requested, err)
	}
	if err := r.waitSettled(ctx, navStart); err != nil {
		return nil, err
	}

	tr, err := r.stopTracing(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := r.inspectDocument()
	if err != nil {
		return nil, fmt.Errorf("inspecting document: %w", err)
	}

	r.mu.Lock()
	console := r.console
	mainDocument := r.mainDocument
	headers := r.mainHeaders
	status := r.mainStatus
	r.mu.Unlock()

	if mainDocument == "" {
		return nil, runnererr.New(runnererr.NoDocumentRequest, "the browser never requested %s", r.requested)
	}
	if status >= 400 {
		return nil, runnererr.New(runnererr.ErroredDocumentRequest, "%s returned HTTP status %d", r.requested, status)
	}

	arts := &artifacts.Artifacts{
		URL: artifacts.URL{
			Requested:    r.requested,
			MainDocument: mainDocument,
			Final:        doc.URL,
		},
		FetchTime:              fetchTime,
		Trace:                  tr,
		MetaElements:           doc.Metas,
		MainDocumentHeaders:    headers,
		MainDocumentStatusCode: status,
		ConsoleMessages:        console,
		DocumentTitle:          doc.Title,
		UserAgent:              doc.UserAgent,
		BenchmarkIndex:         benchmarkIndex,
		Settings:               c.settings,
	}
	log.Ctx(ctx).Debug().
		Str("url", r.requested).
		Int("status", status).
		Int("trace_events", len(tr.Events)).
		Int("console_messages", len(console)).
		Msg("collected artifacts")
	return arts, nil
}

// emulate applies the device profile: screen metrics and user agent.
func (r *pageRun) emulate() error {
	s := r.collector.settings
	if se := s.ScreenEmulation; se.Width > 0 && se.Height > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             se.Width,
			Height:            se.Height,
			DeviceScaleFactor: se.DeviceScaleFactor,
			Mobile:            se.Mobile,
		}).Call(r.page); err != nil {
			return fmt.Errorf("applying screen emulation: %w", err)
		}
	}
	if s.UserAgent != "" {
		if err := (proto.EmulationSetUserAgentOverride{UserAgent: s.UserAgent}).Call(r.page); err != nil {
			return fmt.Errorf("applying user agent override: %w", err)
		}
	}
	return nil
}

// throttle applies the connection profile through the protocol's built-in
// throttling. Throughput is configured in kbit/s but the protocol wants
// bytes per second.
func (r *pageRun) throttle() error {
	t := r.collector.settings.Throttling
	if t.RTTMs > 0 || t.ThroughputKbps > 0 {
		throughput := t.ThroughputKbps * 1024 / 8
		if err := (proto.NetworkEmulateNetworkConditions{
			Latency:            t.RTTMs,
			DownloadThroughput: throughput,
			UploadThroughput:   throughput,
		}).Call(r.page); err != nil {
			return fmt.Errorf("applying network throttling: %w", err)
		}
	}
	if t.CPUSlowdownMultiplier > 1 {
		if err := (proto.EmulationSetCPUThrottlingRate{Rate: t.CPUSlowdownMultiplier}).Call(r.page); err != nil {
			return fmt.Errorf("applying cpu throttling: %w", err)
		}
	}
	return nil
}

// subscribe registers every event handler the run needs and returns the
// pump to drive them. Handlers run on the event loop goroutine; shared
// state goes through the mutex or the inflight map.
func (r *pageRun) subscribe(ctx context.Context) func() {
	return r.page.Context(ctx).EachEvent(
		func(ev *proto.InspectorTargetCrashed) {
			r.crashed.Store(true)
		},
		func(ev *proto.PageLoadEventFired) {
			r.mu.Lock()
			if r.loadedAt.IsZero() {
				r.loadedAt = time.Now()
			}
			r.mu.Unlock()
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			msg := artifacts.ConsoleMessage{
				Level: consoleLevel(string(ev.Type)),
				Text:  stringifyRemoteObjects(ev.Args),
			}
			if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
				msg.URL = ev.StackTrace.CallFrames[0].URL
			}
			r.appendConsole(msg)
		},
		func(ev *proto.RuntimeExceptionThrown) {
			if ev.ExceptionDetails == nil {
				return
			}
			details := ev.ExceptionDetails
			text := details.Text
			if details.Exception != nil && details.Exception.Description != "" {
				text = details.Exception.Description
			}
			r.appendConsole(artifacts.ConsoleMessage{Level: "error", Text: text, URL: details.URL})
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			r.trackRequest(ev)
		},
		func(ev *proto.NetworkResponseReceived) {
			r.trackResponse(ev)
		},
		func(ev *proto.NetworkLoadingFinished) {
			r.inflight.Delete(ev.RequestID)
		},
		func(ev *proto.NetworkLoadingFailed) {
			r.inflight.Delete(ev.RequestID)
		},
		func(ev *proto.NetworkRequestServedFromCache) {
			r.inflight.Delete(ev.RequestID)
		},
		func(ev *proto.TracingDataCollected) {
			events, err := eventsFromBatch(ev.Value)
			if err != nil {
				log.Debug().Err(err).Msg("dropping undecodable trace batch")
				return
			}
			if len(events) == 0 {
				return
			}
			r.mu.Lock()
			r.traceChunks = append(r.traceChunks, events)
			r.mu.Unlock()
		},
		func(ev *proto.TracingTracingComplete) {
			if ev.DataLossOccurred {
				log.Warn().Str("url", r.requested).Msg("browser dropped trace events, metrics may be incomplete")
			}
			r.traceOnce.Do(func() { close(r.traceDone) })
		},
	)
}

func (r *pageRun) appendConsole(msg artifacts.ConsoleMessage) {
	r.mu.Lock()
	r.console = append(r.console, msg)
	r.mu.Unlock()
}

func (r *pageRun) trackRequest(ev *proto.NetworkRequestWillBeSent) {
	if ev.Request == nil || strings.HasPrefix(ev.Request.URL, "data:") {
		return
	}
	r.inflight.Store(ev.RequestID, ev.Request.URL)

	if ev.Type != proto.NetworkResourceTypeDocument || ev.FrameID != r.page.FrameID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// The first document request on the main frame is the navigation;
	// redirects re-announce it under the same id with the next hop's URL.
	if r.mainRequest == "" || ev.RequestID == r.mainRequest {
		r.mainRequest = ev.RequestID
		r.mainDocument = ev.Request.URL
	}
}

func (r *pageRun) trackResponse(ev *proto.NetworkResponseReceived) {
	if ev.Response == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.RequestID != r.mainRequest {
		return
	}
	r.mainStatus = ev.Response.Status
	r.mainHeaders = headersFromNetwork(ev.Response.Headers)
	r.mainDocument = ev.Response.URL
}

// waitSettled polls page activity until the load event has fired and the
// quiet windows hold, the paint gate trips, or the overall budget runs out.
func (r *pageRun) waitSettled(ctx context.Context, navStart time.Time) error {
	c := r.collector
	deadline := navStart.Add(c.maxWaitForLoad)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var samples []activitySample
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if r.crashed.Load() {
			return runnererr.New(runnererr.TargetCrashed, "the page crashed while loading %s", r.requested)
		}
		now := time.Now()

		sample := activitySample{At: now, Inflight: r.inflight.Size()}
		if activity, err := r.pageActivity(); err == nil {
			sample.CPUIdleFor = activity.idleFor
			sample.PaintedFirstContent = activity.painted
		} else {
			// A page that resists script evaluation counts as idle and
			// painted; the network window still gates and the trace decides
			// the paint question downstream.
			sample.CPUIdleFor = c.quiet.CPUQuiet
			sample.PaintedFirstContent = true
		}
		samples = append(samples, sample)

		r.mu.Lock()
		loadedAt := r.loadedAt
		r.mu.Unlock()

		settled := !loadedAt.IsZero() &&
			now.Sub(loadedAt) >= c.quiet.PauseAfterLoad &&
			quietAt(samples, c.quiet)
		if settled && sample.PaintedFirstContent {
			return nil
		}
		if c.quiet.MaxWaitForFCP > 0 && !sample.PaintedFirstContent && now.Sub(navStart) >= c.quiet.MaxWaitForFCP {
			return runnererr.New(runnererr.NoFCP, "%s painted no content within %s", r.requested, c.quiet.MaxWaitForFCP)
		}
		if now.After(deadline) {
			return runnererr.New(runnererr.PageHung, "%s did not reach network and CPU quiet within %s", r.requested, c.maxWaitForLoad)
		}
	}
}

// pageActivity reads the activity observer installed before navigation.
func (r *pageRun) pageActivity() (pageActivity, error) {
	res, err := r.page.Evaluate(&rod.EvalOptions{
		JS: `() => {
	const state = window.__lightciActivity || {lastLongTask: 0, firstContentfulPaint: 0};
	return {sinceLongTask: performance.now() - state.lastLongTask, firstContentfulPaint: state.firstContentfulPaint};
}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return pageActivity{}, err
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return pageActivity{}, err
	}
	var decoded struct {
		SinceLongTask        float64 `json:"sinceLongTask"`
		FirstContentfulPaint float64 `json:"firstContentfulPaint"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return pageActivity{}, err
	}
	return pageActivity{
		idleFor: time.Duration(decoded.SinceLongTask * float64(time.Millisecond)),
		painted: decoded.FirstContentfulPaint > 0,
	}, nil
}

// stopTracing ends the session and drains the remaining dataCollected
// batches, which the browser only flushes in full after Tracing.end.
func (r *pageRun) stopTracing(ctx context.Context) (*trace.Trace, error) {
	if err := (proto.TracingEnd{}).Call(r.page); err != nil {
		return nil, fmt.Errorf("stopping trace: %w", err)
	}
	select {
	case <-r.traceDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(traceDrainTimeout):
		if r.crashed.Load() {
			return nil, runnererr.New(runnererr.TargetCrashed, "the page crashed while flushing its trace")
		}
		return nil, runnererr.New(runnererr.PageHung, "the browser never finished flushing trace events")
	}

	r.mu.Lock()
	chunks := r.traceChunks
	r.mu.Unlock()
	return assembleTrace(chunks...), nil
}

func (r *pageRun) inspectDocument() (documentState, error) {
	res, err := r.page.Evaluate(&rod.EvalOptions{JS: documentStateJS, ByValue: true, AwaitPromise: true})
	if err != nil {
		return documentState{}, err
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return documentState{}, err
	}
	var decoded documentState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return documentState{}, err
	}
	return decoded, nil
}

// benchmarkIndex runs the scripting benchmark. A failure only costs the
// index, not the run.
func (r *pageRun) benchmarkIndex() float64 {
	res, err := r.page.Evaluate(&rod.EvalOptions{JS: benchmarkJS, ByValue: true, AwaitPromise: true})
	if err != nil {
		log.Debug().Err(err).Msg("benchmark evaluation failed")
		return 0
	}
	return res.Value.Num()
}

// eventsFromBatch re-decodes one dataCollected payload into trace events.
// The protocol hands each event over as loose JSON; round-tripping through
// the trace codec normalizes them the same way a file load would.
func eventsFromBatch(batch []map[string]gson.JSON) ([]*trace.Event, error) {
	raw, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	var events []*trace.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, err
	}
	return events, nil
}
