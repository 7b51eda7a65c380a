package engine

import (
	"context"

	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/trace"
)

const (
	// Tasks longer than this block input handling.
	longTaskThresholdUS = 50_000
	// How long the main thread and network must stay calm to call the page
	// interactive.
	quietWindowUS = 5_000_000
	// More concurrent requests than this disqualify a quiet window.
	quietMaxInFlight = 2
)

// LongTask is a top-level main-thread task over the 50ms threshold.
// BlockingMS is the portion over the threshold.
type LongTask struct {
	TS         int64
	StartMS    float64
	DurMS      float64
	BlockingMS float64
}

// LongTasksData is the responsiveness view: long tasks, time to
// interactive, and total blocking time between first paint and interactive.
type LongTasksData struct {
	Tasks []LongTask

	// TTI is the time to interactive, nil when no quiet window exists
	// before the capture ends. TotalBlockingMS only covers [FCP, TTI].
	TTI             *MetricTime
	TotalBlockingMS float64
}

// TTITime returns the time to interactive, or NO_TTI.
func (d *LongTasksData) TTITime() (*MetricTime, error) {
	if d.TTI == nil {
		return nil, runnererr.New(runnererr.NoTTI, "the page never reached a quiet period")
	}
	return d.TTI, nil
}

type longTasksHandler struct {
	renderer *rendererHandler
	pageLoad *pageLoadHandler
	network  *networkHandler
	data     *LongTasksData
}

func newLongTasksHandler(renderer *rendererHandler, pageLoad *pageLoadHandler, network *networkHandler) *longTasksHandler {
	return &longTasksHandler{renderer: renderer, pageLoad: pageLoad, network: network}
}

func (h *longTasksHandler) Name() HandlerName { return HandlerLongTasks }

func (h *longTasksHandler) Deps() []HandlerName {
	return []HandlerName{HandlerRenderer, HandlerPageLoad, HandlerNetwork}
}

func (h *longTasksHandler) Reset() {
	h.data = &LongTasksData{}
}

func (h *longTasksHandler) HandleEvent(*trace.Event) error { return nil }

func (h *longTasksHandler) Finalize(context.Context) error {
	nav := h.pageLoad.data.Navigation.TS

	var longTasks []*Task
	for _, task := range h.renderer.data.Tasks {
		if task.Dur <= longTaskThresholdUS {
			continue
		}
		longTasks = append(longTasks, task)
		h.data.Tasks = append(h.data.Tasks, LongTask{
			TS:         task.TS,
			StartMS:    msSpan(nav, task.TS),
			DurMS:      float64(task.Dur) / 1000,
			BlockingMS: float64(task.Dur-longTaskThresholdUS) / 1000,
		})
	}

	fcp := h.pageLoad.data.FCP
	if fcp == nil {
		// Without a first paint there is no interactive measurement; the
		// FCP absence is reported by the pageload accessor instead.
		return nil
	}

	tti, ok := h.findInteractive(fcp.TS, longTasks)
	if !ok {
		return nil
	}
	h.data.TTI = &MetricTime{TS: tti, MS: msSpan(nav, tti)}

	// Total blocking time counts the over-threshold portion of long tasks
	// clipped to the [FCP, TTI] window.
	for _, task := range longTasks {
		start, end := task.TS, task.End()
		if end <= fcp.TS || start >= tti {
			continue
		}
		if start < fcp.TS {
			start = fcp.TS
		}
		if end > tti {
			end = tti
		}
		if blocking := (end - start) - longTaskThresholdUS; blocking > 0 {
			h.data.TotalBlockingMS += float64(blocking) / 1000
		}
	}
	return nil
}

// findInteractive locates the first span of quietWindowUS after FCP with no
// long task and at most quietMaxInFlight open requests, then backs up to the
// end of the last long task before it. The window must fit before the
// capture ends; otherwise the page never settled as far as we can tell.
func (h *longTasksHandler) findInteractive(fcp int64, longTasks []*Task) (int64, bool) {
	traceEnd := h.pageLoad.data.TraceEnd.TS

	// Candidate window starts: FCP itself and the end of every long task.
	candidates := []int64{fcp}
	for _, task := range longTasks {
		if task.End() > fcp {
			candidates = append(candidates, task.End())
		}
	}

	for _, start := range candidates {
		if start < fcp {
			continue
		}
		if start+quietWindowUS > traceEnd {
			continue
		}
		if !h.isQuiet(start, longTasks) {
			continue
		}
		tti := fcp
		for _, task := range longTasks {
			if task.End() <= start && task.End() > tti {
				tti = task.End()
			}
		}
		return tti, true
	}
	return 0, false
}

func (h *longTasksHandler) isQuiet(start int64, longTasks []*Task) bool {
	end := start + quietWindowUS
	for _, task := range longTasks {
		if task.TS < end && task.End() > start {
			return false
		}
	}
	// Sampling the request count at window edges and task boundaries is
	// enough: in-flight counts only change at request start/finish, and any
	// request alive during the window is alive at one of these points.
	net := h.network.data
	probes := []int64{start, end - 1}
	for _, req := range net.Requests {
		if s := req.Timing.SendStart; s > start && s < end {
			probes = append(probes, s)
		}
	}
	for _, ts := range probes {
		if net.InFlightAt(ts) > quietMaxInFlight {
			return false
		}
	}
	return true
}
