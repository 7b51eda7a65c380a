package engine

import (
	"context"
	"errors"
	"math"

	"github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/trace"
)

var (
	// ErrNoMainFrame means the capture never identified which frame is the
	// page under audit, usually because tracing started after the browser
	// announced its frame tree.
	ErrNoMainFrame = errors.New("trace has no identifiable main frame")
	// ErrNoRenderer means no CrRendererMain thread was named for the main
	// frame's process.
	ErrNoRenderer = errors.New("trace has no renderer main thread")
)

// FrameInfo describes one frame announced by the browser process.
type FrameInfo struct {
	ID     string
	URL    string
	Parent string
	PID    trace.ProcessID
}

// Navigation is one committed main-frame navigation.
type Navigation struct {
	TS  int64
	URL string
	ID  string
}

// ThreadKey addresses a thread within the capture.
type ThreadKey struct {
	PID trace.ProcessID
	TID trace.ThreadID
}

// MetaData identifies who is who in the capture: event bounds, the frame
// tree, process and thread names, and every committed main-frame
// navigation in timestamp order.
type MetaData struct {
	Bounds       Bounds
	BrowserPID   trace.ProcessID
	MainFrameID  string
	MainPID      trace.ProcessID
	MainTID      trace.ThreadID
	Frames       map[string]FrameInfo
	ProcessNames map[trace.ProcessID]string
	ThreadNames  map[ThreadKey]string
	Navigations  []Navigation
}

// ThreadName returns the announced name for a thread, or "".
func (d *MetaData) ThreadName(pid trace.ProcessID, tid trace.ThreadID) string {
	return d.ThreadNames[ThreadKey{PID: pid, TID: tid}]
}

type navCandidate struct {
	ts        int64
	pid       trace.ProcessID
	frame     string
	url       string
	id        string
	mainFrame *bool
}

type metaHandler struct {
	data *MetaData
	navs []navCandidate
}

func newMetaHandler() *metaHandler { return &metaHandler{} }

func (h *metaHandler) Name() HandlerName   { return HandlerMeta }
func (h *metaHandler) Deps() []HandlerName { return nil }

func (h *metaHandler) Reset() {
	h.data = &MetaData{
		Bounds:       Bounds{Start: math.MaxInt64},
		Frames:       map[string]FrameInfo{},
		ProcessNames: map[trace.ProcessID]string{},
		ThreadNames:  map[ThreadKey]string{},
	}
	h.navs = nil
}

func (h *metaHandler) HandleEvent(ev *trace.Event) error {
	if ev.IsMetadata() {
		var args struct {
			Name string `json:"name"`
		}
		if err := ev.DecodeArgs(&args); err != nil || args.Name == "" {
			return nil
		}
		switch {
		case ev.IsProcessName():
			h.data.ProcessNames[ev.PID] = args.Name
			if args.Name == "Browser" {
				h.data.BrowserPID = ev.PID
			}
		case ev.IsThreadName():
			h.data.ThreadNames[ThreadKey{PID: ev.PID, TID: ev.TID}] = args.Name
		}
		return nil
	}

	if ev.TS < h.data.Bounds.Start {
		h.data.Bounds.Start = ev.TS
	}
	if end := ev.End(); end > h.data.Bounds.End {
		h.data.Bounds.End = end
	}

	switch {
	case ev.Name == "TracingStartedInBrowser" || ev.Name == "FrameCommittedInBrowser":
		h.recordFrames(ev)
	case ev.IsNavigationStart():
		h.recordNavigation(ev)
	}
	return nil
}

func (h *metaHandler) recordFrames(ev *trace.Event) {
	type frameArg struct {
		Frame     string          `json:"frame"`
		URL       string          `json:"url"`
		ProcessID trace.ProcessID `json:"processId"`
		Parent    string          `json:"parent"`
	}
	var data struct {
		frameArg            // FrameCommittedInBrowser carries the frame inline
		Frames   []frameArg `json:"frames"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	record := func(f frameArg) {
		if f.Frame == "" {
			return
		}
		info := h.data.Frames[f.Frame]
		info.ID = f.Frame
		if f.URL != "" {
			info.URL = f.URL
		}
		if f.ProcessID != 0 {
			info.PID = f.ProcessID
		}
		if f.Parent != "" {
			info.Parent = f.Parent
		}
		h.data.Frames[f.Frame] = info
	}
	record(data.frameArg)
	for _, f := range data.Frames {
		record(f)
	}
}

func (h *metaHandler) recordNavigation(ev *trace.Event) {
	var data struct {
		DocumentLoaderURL  string `json:"documentLoaderURL"`
		NavigationID       string `json:"navigationId"`
		IsLoadingMainFrame *bool  `json:"isLoadingMainFrame"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	h.navs = append(h.navs, navCandidate{
		ts:        ev.TS,
		pid:       ev.PID,
		frame:     ev.FrameID(),
		url:       data.DocumentLoaderURL,
		id:        data.NavigationID,
		mainFrame: data.IsLoadingMainFrame,
	})
}

func (h *metaHandler) Finalize(context.Context) error {
	if h.data.Bounds.Start == math.MaxInt64 {
		h.data.Bounds.Start = 0
	}

	if err := h.resolveMainFrame(); err != nil {
		return err
	}
	if err := h.resolveMainThread(); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, nav := range h.navs {
		if nav.frame != h.data.MainFrameID || nav.url == "" {
			continue
		}
		if nav.mainFrame != nil && !*nav.mainFrame {
			continue
		}
		if nav.id != "" {
			if seen[nav.id] {
				continue
			}
			seen[nav.id] = true
		}
		h.data.Navigations = append(h.data.Navigations, Navigation{TS: nav.ts, URL: nav.url, ID: nav.id})
	}
	return nil
}

// resolveMainFrame prefers the browser-announced frame tree; a frame
// without a parent is the page. Captures that began too late fall back to
// the frame of the first main-frame navigation.
func (h *metaHandler) resolveMainFrame() error {
	var roots []FrameInfo
	for _, f := range h.data.Frames {
		if f.Parent == "" {
			roots = append(roots, f)
		}
	}
	switch len(roots) {
	case 1:
		h.data.MainFrameID = roots[0].ID
		h.data.MainPID = roots[0].PID
	case 0:
		for _, nav := range h.navs {
			if nav.mainFrame != nil && *nav.mainFrame && nav.frame != "" {
				h.data.MainFrameID = nav.frame
				h.data.MainPID = nav.pid
				break
			}
		}
	default:
		// Multiple parentless frames: pick the one whose process owns a
		// renderer main thread and committed a navigation.
		for _, root := range roots {
			for _, nav := range h.navs {
				if nav.frame == root.ID {
					h.data.MainFrameID = root.ID
					h.data.MainPID = root.PID
					break
				}
			}
			if h.data.MainFrameID != "" {
				break
			}
		}
		if h.data.MainFrameID == "" {
			h.data.MainFrameID = roots[0].ID
			h.data.MainPID = roots[0].PID
		}
	}
	if h.data.MainFrameID == "" {
		return ErrNoMainFrame
	}
	if h.data.MainPID == 0 {
		for _, nav := range h.navs {
			if nav.frame == h.data.MainFrameID && nav.pid != 0 {
				h.data.MainPID = nav.pid
				break
			}
		}
	}
	return nil
}

func (h *metaHandler) resolveMainThread() error {
	for key, name := range h.data.ThreadNames {
		if key.PID == h.data.MainPID && name == "CrRendererMain" {
			h.data.MainTID = key.TID
			return nil
		}
	}
	logging.Debug().
		Int64("pid", int64(h.data.MainPID)).
		Str("mainFrame", h.data.MainFrameID).
		Msg("no CrRendererMain thread named for main frame process")
	return ErrNoRenderer
}
