package engine

import (
	"context"

	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/trace"
)

// PageLoadData holds the paint and document milestones of the primary
// navigation. Absent milestones stay nil; FCPTime and LCPTime surface the
// absence as typed run errors.
type PageLoadData struct {
	Navigation       Navigation
	FirstPaint       *MetricTime
	FCP              *MetricTime
	LCP              *MetricTime
	LCPSize          float64
	DOMContentLoaded *MetricTime
	Load             *MetricTime
	DOMInteractive   *MetricTime
	TraceEnd         MetricTime
}

// FCPTime returns the first contentful paint, or NO_FCP.
func (d *PageLoadData) FCPTime() (*MetricTime, error) {
	if d.FCP == nil {
		return nil, runnererr.New(runnererr.NoFCP, "the page never painted content")
	}
	return d.FCP, nil
}

// LCPTime returns the largest contentful paint, or NO_LCP when no candidate
// survived to the end of the capture.
func (d *PageLoadData) LCPTime() (*MetricTime, error) {
	if d.LCP == nil {
		return nil, runnererr.New(runnererr.NoLCP, "no largest contentful paint candidate survived")
	}
	return d.LCP, nil
}

type pageLoadHandler struct {
	meta   *metaHandler
	data   *PageLoadData
	events []*trace.Event
}

func newPageLoadHandler(meta *metaHandler) *pageLoadHandler {
	return &pageLoadHandler{meta: meta}
}

func (h *pageLoadHandler) Name() HandlerName   { return HandlerPageLoad }
func (h *pageLoadHandler) Deps() []HandlerName { return []HandlerName{HandlerMeta} }

func (h *pageLoadHandler) Reset() {
	h.data = &PageLoadData{}
	h.events = nil
}

func (h *pageLoadHandler) HandleEvent(ev *trace.Event) error {
	switch ev.Name {
	case "firstPaint", "firstContentfulPaint",
		"largestContentfulPaint::Candidate", "largestContentfulPaint::Invalidate",
		"domInteractive", "domContentLoadedEventEnd", "loadEventEnd",
		"MarkDOMContent", "MarkLoad":
		h.events = append(h.events, ev)
	}
	return nil
}

func (h *pageLoadHandler) Finalize(context.Context) error {
	meta := h.meta.data
	if len(meta.Navigations) == 0 {
		return runnererr.New(runnererr.NoNavStart, "no navigation committed on the main frame")
	}

	onMainFrame := h.events[:0:0]
	for _, ev := range h.events {
		if f := ev.FrameID(); f != "" && f != meta.MainFrameID {
			continue
		}
		onMainFrame = append(onMainFrame, ev)
	}

	// The page may navigate more than once inside one capture (redirects,
	// client-side reloads). The navigation that counts is the last one
	// before the first contentful paint; without a paint, the first.
	nav := meta.Navigations[0]
	if fcp := firstNamed(onMainFrame, "firstContentfulPaint", 0); fcp != nil {
		for _, candidate := range meta.Navigations {
			if candidate.TS <= fcp.TS {
				nav = candidate
			}
		}
	}
	h.data.Navigation = nav

	pick := func(names ...string) *MetricTime {
		for _, name := range names {
			if ev := firstNamed(onMainFrame, name, nav.TS); ev != nil {
				return &MetricTime{TS: ev.TS, MS: msSpan(nav.TS, ev.TS)}
			}
		}
		return nil
	}
	h.data.FirstPaint = pick("firstPaint")
	h.data.FCP = pick("firstContentfulPaint")
	h.data.DOMInteractive = pick("domInteractive")
	h.data.DOMContentLoaded = pick("domContentLoadedEventEnd", "MarkDOMContent")
	h.data.Load = pick("loadEventEnd", "MarkLoad")

	// Every paint of a larger element emits a new candidate; a removal of
	// the current largest emits an invalidate. The last standing candidate
	// is the LCP.
	var lcp *trace.Event
	var lcpSize float64
	for _, ev := range onMainFrame {
		if ev.TS < nav.TS {
			continue
		}
		switch ev.Name {
		case "largestContentfulPaint::Candidate":
			lcp = ev
			lcpSize, _ = ev.ArgFloat("data.size")
		case "largestContentfulPaint::Invalidate":
			lcp = nil
			lcpSize = 0
		}
	}
	if lcp != nil {
		h.data.LCP = &MetricTime{TS: lcp.TS, MS: msSpan(nav.TS, lcp.TS)}
		h.data.LCPSize = lcpSize
	}

	h.data.TraceEnd = MetricTime{TS: meta.Bounds.End, MS: msSpan(nav.TS, meta.Bounds.End)}
	return nil
}

func firstNamed(events []*trace.Event, name string, notBefore int64) *trace.Event {
	for _, ev := range events {
		if ev.Name == name && ev.TS >= notBefore {
			return ev
		}
	}
	return nil
}
