package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/trace"
)

// TaskGroup buckets main-thread work by what the browser was doing.
type TaskGroup string

const (
	GroupParseHTML            TaskGroup = "parseHTML"
	GroupStyleLayout          TaskGroup = "styleLayout"
	GroupPaintCompositeRender TaskGroup = "paintCompositeRender"
	GroupScriptParseCompile   TaskGroup = "scriptParseCompile"
	GroupScriptEvaluation     TaskGroup = "scriptEvaluation"
	GroupGarbageCollection    TaskGroup = "garbageCollection"
	GroupOther                TaskGroup = "other"
)

// groupEventNames lists the renderer event names belonging to each work
// group. Unlisted names fall into GroupOther.
var groupEventNames = map[TaskGroup][]string{
	GroupParseHTML: {"ParseHTML", "ParseAuthorStyleSheet"},
	GroupStyleLayout: {
		"ScheduleStyleRecalculation", "RecalculateStyles", "UpdateLayoutTree",
		"InvalidateLayout", "Layout",
	},
	GroupPaintCompositeRender: {
		"Animation", "HitTest", "PaintSetup", "Paint", "PrePaint", "Rasterize",
		"RasterTask", "ScrollLayer", "UpdateLayer", "UpdateLayerTree",
		"CompositeLayers",
	},
	GroupScriptParseCompile: {"v8.compile", "v8.compileModule", "v8.parseOnBackground"},
	GroupScriptEvaluation: {
		"EventDispatch", "EvaluateScript", "v8.evaluateModule", "FunctionCall",
		"TimerFire", "FireIdleCallback", "FireAnimationFrame", "RunMicrotasks",
		"V8.Execute",
	},
	GroupGarbageCollection: {
		"GCEvent", "MinorGC", "MajorGC", "BlinkGC.AtomicPhase", "BlinkGCMarking",
	},
}

var groupForEvent = map[string]TaskGroup{}

func init() {
	for group, names := range groupEventNames {
		for _, name := range names {
			groupForEvent[name] = group
		}
	}
}

// GroupFor returns the work group of a renderer event name.
func GroupFor(name string) TaskGroup {
	if g, ok := groupForEvent[name]; ok {
		return g
	}
	return GroupOther
}

// Task is one span of main-thread work. Top-level tasks are the scheduler's
// RunTask slices; Children is everything nested inside. SelfTime is Dur
// minus the direct children's durations, all microseconds. URL is the
// script or document the event attributed its work to, when it named one.
type Task struct {
	TS       int64
	Dur      int64
	SelfTime int64
	Name     string
	URL      string
	Group    TaskGroup
	Children []*Task
}

// AttributionURL finds the URL responsible for a task: its own, else the
// first one in its subtree.
func (t *Task) AttributionURL() string {
	if t.URL != "" {
		return t.URL
	}
	for _, child := range t.Children {
		if url := child.AttributionURL(); url != "" {
			return url
		}
	}
	return ""
}

// End returns the task's end timestamp.
func (t *Task) End() int64 { return t.TS + t.Dur }

// TimeByName aggregates occurrences of one event name across the capture.
type TimeByName struct {
	Count   int
	TotalMS float64
}

// MainThreadData is the renderer main thread's task view: top-level tasks in
// timestamp order plus self-time aggregates by event name and work group.
type MainThreadData struct {
	Tasks   []*Task
	ByName  map[string]TimeByName
	ByGroup map[TaskGroup]float64
	TotalMS float64
}

type rendererHandler struct {
	meta *metaHandler
	data *MainThreadData
	raw  []*trace.Event
}

func newRendererHandler(meta *metaHandler) *rendererHandler {
	return &rendererHandler{meta: meta}
}

func (h *rendererHandler) Name() HandlerName   { return HandlerRenderer }
func (h *rendererHandler) Deps() []HandlerName { return []HandlerName{HandlerMeta} }

func (h *rendererHandler) Reset() {
	h.data = &MainThreadData{
		ByName:  map[string]TimeByName{},
		ByGroup: map[TaskGroup]float64{},
	}
	h.raw = nil
}

// HandleEvent keeps every span-shaped event; which thread is the renderer
// main thread is only known once meta finalizes.
func (h *rendererHandler) HandleEvent(ev *trace.Event) error {
	switch ev.Phase {
	case trace.PhaseComplete, trace.PhaseBegin, trace.PhaseEnd:
		h.raw = append(h.raw, ev)
	}
	return nil
}

// span is an event flattened to a closed interval.
type span struct {
	ts   int64
	dur  int64
	name string
	url  string
}

// Timeline events name their subject in a few different arg slots.
func attributionURL(ev *trace.Event) string {
	if url := ev.ArgString("data.url"); url != "" {
		return url
	}
	return ev.ArgString("beginData.url")
}

func (h *rendererHandler) Finalize(context.Context) error {
	meta := h.meta.data

	var onThread []*trace.Event
	for _, ev := range h.raw {
		if ev.PID == meta.MainPID && ev.TID == meta.MainTID {
			onThread = append(onThread, ev)
		}
	}
	spans := h.closeSpans(onThread)

	// Parents sort before their children: earlier start first, longer
	// duration first on ties.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].ts != spans[j].ts {
			return spans[i].ts < spans[j].ts
		}
		return spans[i].dur > spans[j].dur
	})

	var stack []*Task
	for _, s := range spans {
		task := &Task{TS: s.ts, Dur: s.dur, Name: s.name, URL: s.url, Group: GroupFor(s.name)}
		for len(stack) > 0 && stack[len(stack)-1].End() <= task.TS {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			if isSchedulerTask(s.name) {
				h.data.Tasks = append(h.data.Tasks, task)
				stack = append(stack, task)
			}
			// Spans outside any RunTask (compositor frames, idle work
			// attributed oddly) do not contribute to the task model.
			continue
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, task)
		stack = append(stack, task)
	}

	for _, task := range h.data.Tasks {
		h.aggregate(task)
		h.data.TotalMS += float64(task.Dur) / 1000
	}
	return nil
}

// closeSpans converts X events directly and pairs B/E events into spans.
// Chrome closes B events in LIFO order per thread; an E that matches no
// open B, or a B still open at capture end, is dropped.
func (h *rendererHandler) closeSpans(events []*trace.Event) []span {
	var spans []span
	var open []*trace.Event
	dropped := 0
	for _, ev := range events {
		switch ev.Phase {
		case trace.PhaseComplete:
			spans = append(spans, span{ts: ev.TS, dur: ev.Dur, name: ev.Name, url: attributionURL(ev)})
		case trace.PhaseBegin:
			open = append(open, ev)
		case trace.PhaseEnd:
			matched := false
			for i := len(open) - 1; i >= 0; i-- {
				if open[i].Name == ev.Name {
					spans = append(spans, span{
						ts: open[i].TS, dur: ev.TS - open[i].TS,
						name: ev.Name, url: attributionURL(open[i]),
					})
					dropped += len(open) - i - 1
					open = open[:i]
					matched = true
					break
				}
			}
			if !matched {
				dropped++
			}
		}
	}
	dropped += len(open)
	if dropped > 0 {
		logging.Debug().Int("events", dropped).Msg("discarded unbalanced begin/end events on main thread")
	}
	return spans
}

func (h *rendererHandler) aggregate(task *Task) {
	childDur := int64(0)
	for _, child := range task.Children {
		childDur += child.Dur
		h.aggregate(child)
	}
	task.SelfTime = task.Dur - childDur
	if task.SelfTime < 0 {
		// Overlapping children from imperfectly nested events; clamp rather
		// than report negative work.
		task.SelfTime = 0
	}

	selfMS := float64(task.SelfTime) / 1000
	agg := h.data.ByName[task.Name]
	agg.Count++
	agg.TotalMS += selfMS
	h.data.ByName[task.Name] = agg
	h.data.ByGroup[task.Group] += selfMS
}

func isSchedulerTask(name string) bool {
	return name == "RunTask" || strings.HasSuffix(name, "::RunTask") || strings.HasSuffix(name, "::DoWork")
}
