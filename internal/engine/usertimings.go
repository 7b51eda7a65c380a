package engine

import (
	"context"

	"github.com/treosh/lightci/pkg/trace"
)

// UserTiming is a performance.mark or performance.measure the page itself
// recorded. Marks have zero duration.
type UserTiming struct {
	Name       string
	TS         int64
	MS         float64
	DurationMS float64
	IsMeasure  bool
}

// The navigation timing marks blink emits into the same category; they are
// the browser's, not the page's.
var builtinTimingMarks = map[string]bool{}

func init() {
	for _, name := range []string{
		"navigationStart", "fetchStart", "requestStart", "responseEnd",
		"unloadEventStart", "unloadEventEnd", "redirectStart", "redirectEnd",
		"domLoading", "domInteractive", "domContentLoadedEventStart",
		"domContentLoadedEventEnd", "domComplete", "loadEventStart",
		"loadEventEnd", "firstPaint", "firstContentfulPaint",
		"firstMeaningfulPaint", "firstMeaningfulPaintCandidate",
		"MarkFirstPaint", "MarkDOMContent", "MarkLoad",
	} {
		builtinTimingMarks[name] = true
	}
}

type userTimingsHandler struct {
	meta *metaHandler
	data []UserTiming
	open map[trace.ID]*trace.Event
}

func newUserTimingsHandler(meta *metaHandler) *userTimingsHandler {
	return &userTimingsHandler{meta: meta}
}

func (h *userTimingsHandler) Name() HandlerName   { return HandlerUserTimings }
func (h *userTimingsHandler) Deps() []HandlerName { return []HandlerName{HandlerMeta} }

func (h *userTimingsHandler) Reset() {
	h.data = nil
	h.open = map[trace.ID]*trace.Event{}
}

func (h *userTimingsHandler) HandleEvent(ev *trace.Event) error {
	if !ev.HasCategory("blink.user_timing") || builtinTimingMarks[ev.Name] {
		return nil
	}
	switch {
	case ev.Phase.IsInstant():
		h.data = append(h.data, UserTiming{Name: ev.Name, TS: ev.TS})
	case ev.Phase == trace.PhaseAsyncBegin:
		h.open[ev.ID] = ev
	case ev.Phase == trace.PhaseAsyncEnd:
		begin, ok := h.open[ev.ID]
		if !ok {
			return nil
		}
		delete(h.open, ev.ID)
		h.data = append(h.data, UserTiming{
			Name:       begin.Name,
			TS:         begin.TS,
			DurationMS: msSpan(begin.TS, ev.TS),
			IsMeasure:  true,
		})
	}
	return nil
}

// Finalize drops measures whose end never arrived; their begin halves are
// already excluded by the pairing in HandleEvent.
func (h *userTimingsHandler) Finalize(context.Context) error {
	h.open = nil
	return nil
}
