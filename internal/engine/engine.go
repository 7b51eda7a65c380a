// Package engine turns a raw Chrome capture into per-concern views of a
// page load. Handlers each own one concern (frames and processes, paint
// milestones, layout shifts, network requests, main-thread work, long
// tasks, user timings); the processor feeds every event to every handler in
// timestamp order, then finalizes handlers in dependency order so each can
// read the views it builds on.
package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/treosh/lightci/pkg/trace"
)

// HandlerName identifies a registered trace handler.
type HandlerName string

const (
	HandlerMeta         HandlerName = "meta"
	HandlerPageLoad     HandlerName = "pageload"
	HandlerLayoutShifts HandlerName = "layoutshifts"
	HandlerNetwork      HandlerName = "network"
	HandlerRenderer     HandlerName = "renderer"
	HandlerLongTasks    HandlerName = "longtasks"
	HandlerUserTimings  HandlerName = "usertimings"
)

// Handler consumes every event of a capture in timestamp order, then
// derives its view of the page load in Finalize. A handler may read another
// handler's data only during Finalize and only when it declares that
// handler in Deps; the processor guarantees dependencies finalize first.
type Handler interface {
	Name() HandlerName
	Deps() []HandlerName
	Reset()
	HandleEvent(ev *trace.Event) error
	Finalize(ctx context.Context) error
}

// Bounds are the capture's event bounds in trace-clock microseconds.
// Metadata records are excluded; Chrome stamps those at zero.
type Bounds struct {
	Start int64
	End   int64
}

// DurationMS returns the capture length in milliseconds.
func (b Bounds) DurationMS() float64 { return msSpan(b.Start, b.End) }

// MetricTime is a page load milestone: its trace timestamp and its offset
// from the primary navigation in milliseconds.
type MetricTime struct {
	TS int64
	MS float64
}

func msSpan(from, to int64) float64 { return float64(to-from) / 1000 }

// ProcessedTrace is the combined output of a full processing run. All
// millisecond fields are relative to the primary navigation.
type ProcessedTrace struct {
	Bounds       Bounds
	Meta         *MetaData
	PageLoad     *PageLoadData
	LayoutShifts *LayoutShiftsData
	Network      *NetworkData
	MainThread   *MainThreadData
	LongTasks    *LongTasksData
	UserTimings  []UserTiming
}

// MSSinceNav converts a trace timestamp into milliseconds since the primary
// navigation started.
func (pt *ProcessedTrace) MSSinceNav(ts int64) float64 {
	return msSpan(pt.PageLoad.Navigation.TS, ts)
}

// Processor owns the handler set and runs captures through it. A Processor
// is reusable: Process resets every handler before feeding events.
type Processor struct {
	order  []Handler
	stages [][]Handler

	meta         *metaHandler
	pageLoad     *pageLoadHandler
	layoutShifts *layoutShiftsHandler
	network      *networkHandler
	renderer     *rendererHandler
	userTimings  *userTimingsHandler
	longTasks    *longTasksHandler
}

// NewProcessor wires the built-in handler set.
func NewProcessor() (*Processor, error) {
	p := &Processor{}
	p.meta = newMetaHandler()
	p.pageLoad = newPageLoadHandler(p.meta)
	p.layoutShifts = newLayoutShiftsHandler(p.meta)
	p.network = newNetworkHandler(p.meta)
	p.renderer = newRendererHandler(p.meta)
	p.userTimings = newUserTimingsHandler(p.meta)
	p.longTasks = newLongTasksHandler(p.renderer, p.pageLoad, p.network)

	stages, order, err := schedule([]Handler{
		p.meta, p.pageLoad, p.layoutShifts, p.network, p.renderer, p.userTimings, p.longTasks,
	})
	if err != nil {
		return nil, err
	}
	p.stages, p.order = stages, order
	return p, nil
}

// schedule groups handlers into dependency stages: every handler lands in
// the earliest stage after all of its dependencies. Handlers within one
// stage are independent and finalize concurrently.
func schedule(handlers []Handler) ([][]Handler, []Handler, error) {
	byName := make(map[HandlerName]Handler, len(handlers))
	for _, h := range handlers {
		if _, dup := byName[h.Name()]; dup {
			return nil, nil, fmt.Errorf("duplicate handler %q", h.Name())
		}
		byName[h.Name()] = h
	}
	for _, h := range handlers {
		for _, dep := range h.Deps() {
			if _, ok := byName[dep]; !ok {
				return nil, nil, fmt.Errorf("handler %q depends on unregistered handler %q", h.Name(), dep)
			}
		}
	}

	placed := make(map[HandlerName]bool, len(handlers))
	var stages [][]Handler
	var order []Handler
	remaining := len(handlers)
	for remaining > 0 {
		var stage []Handler
		for _, h := range handlers {
			if placed[h.Name()] {
				continue
			}
			ready := true
			for _, dep := range h.Deps() {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				stage = append(stage, h)
			}
		}
		if len(stage) == 0 {
			return nil, nil, fmt.Errorf("dependency cycle among %d remaining handlers", remaining)
		}
		for _, h := range stage {
			placed[h.Name()] = true
		}
		stages = append(stages, stage)
		order = append(order, stage...)
		remaining -= len(stage)
	}
	return stages, order, nil
}

// Process runs a capture through every handler and assembles the combined
// view. The trace is sorted in place first.
func (p *Processor) Process(ctx context.Context, tr *trace.Trace) (*ProcessedTrace, error) {
	if tr == nil || len(tr.Events) == 0 {
		return nil, errors.New("trace contains no events")
	}
	tr.Sort()

	for _, h := range p.order {
		h.Reset()
	}
	for _, ev := range tr.Events {
		for _, h := range p.order {
			if err := h.HandleEvent(ev); err != nil {
				return nil, fmt.Errorf("handler %s: event %q at %dus: %w", h.Name(), ev.Name, ev.TS, err)
			}
		}
	}
	for _, stage := range p.stages {
		g, gctx := errgroup.WithContext(ctx)
		for _, h := range stage {
			g.Go(func() error {
				if err := h.Finalize(gctx); err != nil {
					return fmt.Errorf("handler %s: %w", h.Name(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return p.assemble(), nil
}

func (p *Processor) assemble() *ProcessedTrace {
	pt := &ProcessedTrace{
		Bounds:       p.meta.data.Bounds,
		Meta:         p.meta.data,
		PageLoad:     p.pageLoad.data,
		LayoutShifts: p.layoutShifts.data,
		Network:      p.network.data,
		MainThread:   p.renderer.data,
		LongTasks:    p.longTasks.data,
		UserTimings:  p.userTimings.data,
	}

	// Handlers that only depend on meta never learn which navigation won;
	// their millisecond offsets are filled in here.
	origin := pt.PageLoad.Navigation.TS
	for i := range pt.LayoutShifts.Shifts {
		pt.LayoutShifts.Shifts[i].MS = msSpan(origin, pt.LayoutShifts.Shifts[i].TS)
	}
	for i := range pt.UserTimings {
		pt.UserTimings[i].MS = msSpan(origin, pt.UserTimings[i].TS)
	}

	pt.Network.DocumentRequest = pickDocumentRequest(pt.Network.Requests, pt.PageLoad.Navigation.URL)
	return pt
}

// pickDocumentRequest finds the request that loaded the audited document:
// the first request for the navigation URL, else the first document-typed
// request, else nil.
func pickDocumentRequest(requests []*Request, navURL string) *Request {
	for _, req := range requests {
		if navURL != "" && req.URL == navURL {
			return req
		}
	}
	for _, req := range requests {
		if req.ResourceType == ResourceDocument {
			return req
		}
	}
	return nil
}
