package engine

import (
	"context"

	"github.com/treosh/lightci/pkg/trace"
)

// LayoutShift is one unexpected layout movement on the main frame.
type LayoutShift struct {
	TS         int64
	MS         float64
	Score      float64
	Cumulative float64
}

// ShiftWindow is a session window of layout shifts: shifts separated by less
// than a second, capped at five seconds total.
type ShiftWindow struct {
	Start int64
	End   int64
	Score float64
}

// LayoutShiftsData is the layout instability view of the page load. CLS is
// the windowed cumulative layout shift: the worst session window's score,
// matching how the browser reports the metric for long-lived pages.
type LayoutShiftsData struct {
	Shifts  []LayoutShift
	Windows []ShiftWindow
	CLS     float64
}

const (
	// Shifts further apart than this start a new session window.
	shiftSessionGapUS = 1_000_000
	// A session window never grows past this span.
	shiftSessionMaxUS = 5_000_000
)

type layoutShiftsHandler struct {
	meta *metaHandler
	data *LayoutShiftsData
	raw  []*trace.Event
}

func newLayoutShiftsHandler(meta *metaHandler) *layoutShiftsHandler {
	return &layoutShiftsHandler{meta: meta}
}

func (h *layoutShiftsHandler) Name() HandlerName   { return HandlerLayoutShifts }
func (h *layoutShiftsHandler) Deps() []HandlerName { return []HandlerName{HandlerMeta} }

func (h *layoutShiftsHandler) Reset() {
	h.data = &LayoutShiftsData{}
	h.raw = nil
}

func (h *layoutShiftsHandler) HandleEvent(ev *trace.Event) error {
	if ev.Name == "LayoutShift" && ev.Phase.IsInstant() {
		h.raw = append(h.raw, ev)
	}
	return nil
}

func (h *layoutShiftsHandler) Finalize(context.Context) error {
	meta := h.meta.data

	cumulative := 0.0
	for _, ev := range h.raw {
		if ev.PID != meta.MainPID || ev.TID != meta.MainTID {
			continue
		}
		var data struct {
			IsMainFrame        bool     `json:"is_main_frame"`
			HadRecentInput     bool     `json:"had_recent_input"`
			Score              float64  `json:"score"`
			WeightedScoreDelta *float64 `json:"weighted_score_delta"`
		}
		if err := ev.ArgsData(&data); err != nil {
			continue
		}
		// Shifts right after user input are expected movement and excluded
		// from the metric, as are subframe shifts.
		if !data.IsMainFrame || data.HadRecentInput {
			continue
		}
		score := data.Score
		if data.WeightedScoreDelta != nil {
			score = *data.WeightedScoreDelta
		}
		cumulative += score
		h.data.Shifts = append(h.data.Shifts, LayoutShift{
			TS:         ev.TS,
			Score:      score,
			Cumulative: cumulative,
		})
	}

	h.data.Windows = sessionWindows(h.data.Shifts)
	for _, w := range h.data.Windows {
		if w.Score > h.data.CLS {
			h.data.CLS = w.Score
		}
	}
	return nil
}

func sessionWindows(shifts []LayoutShift) []ShiftWindow {
	var windows []ShiftWindow
	var current *ShiftWindow
	var prevTS int64
	for _, shift := range shifts {
		newWindow := current == nil ||
			shift.TS-prevTS > shiftSessionGapUS ||
			shift.TS-current.Start > shiftSessionMaxUS
		if newWindow {
			windows = append(windows, ShiftWindow{Start: shift.TS, End: shift.TS, Score: shift.Score})
			current = &windows[len(windows)-1]
		} else {
			current.End = shift.TS
			current.Score += shift.Score
		}
		prevTS = shift.TS
	}
	return windows
}
