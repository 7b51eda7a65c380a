package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/treosh/lightci/pkg/trace"
)

// ResourceType classifies what a network request fetched, as reported by the
// renderer's loader.
type ResourceType string

const (
	ResourceDocument   ResourceType = "Document"
	ResourceStylesheet ResourceType = "Stylesheet"
	ResourceScript     ResourceType = "Script"
	ResourceImage      ResourceType = "Image"
	ResourceFont       ResourceType = "Font"
	ResourceMedia      ResourceType = "Media"
	ResourceXHR        ResourceType = "XHR"
	ResourceFetch      ResourceType = "Fetch"
	ResourceOther      ResourceType = "Other"
)

// RequestTiming are the loader milestones of one request, trace-clock
// microseconds. Zero means the milestone never happened.
type RequestTiming struct {
	SendStart         int64
	ReceiveHeadersEnd int64
	Finish            int64
}

// Request is one network request correlated across its loading events.
type Request struct {
	RequestID         string
	URL               string
	Method            string
	Priority          string
	MIMEType          string
	StatusCode        int
	Protocol          string
	EncodedByteLength int64
	DecodedByteLength int64
	FromCache         bool
	Timing            RequestTiming
	ResourceType      ResourceType

	// Failed and FinishedSuccessfully discriminate the three terminal
	// states: finished ok, finished failed, or still open when the capture
	// ended (both false).
	Failed               bool
	FinishedSuccessfully bool
}

// Finished reports whether the loader saw this request end, either way.
func (r *Request) Finished() bool { return r.Failed || r.FinishedSuccessfully }

// TransferDurationMS is the time from send to finish in milliseconds, 0 for
// open requests.
func (r *Request) TransferDurationMS() float64 {
	if r.Timing.Finish == 0 || r.Timing.SendStart == 0 {
		return 0
	}
	return msSpan(r.Timing.SendStart, r.Timing.Finish)
}

// NetworkData is the request log of the page load, ordered by send time.
type NetworkData struct {
	Requests        []*Request
	DocumentRequest *Request
}

// InFlightAt counts requests that have been sent but not finished at ts.
// Requests the capture never saw finish stay in flight forever, matching
// how the loader would see them.
func (d *NetworkData) InFlightAt(ts int64) int {
	n := 0
	for _, req := range d.Requests {
		if req.Timing.SendStart == 0 || req.Timing.SendStart > ts {
			continue
		}
		if req.Timing.Finish == 0 || req.Timing.Finish > ts {
			n++
		}
	}
	return n
}

type networkHandler struct {
	meta *metaHandler
	data *NetworkData
	byID map[string]*Request
}

func newNetworkHandler(meta *metaHandler) *networkHandler {
	return &networkHandler{meta: meta}
}

func (h *networkHandler) Name() HandlerName   { return HandlerNetwork }
func (h *networkHandler) Deps() []HandlerName { return []HandlerName{HandlerMeta} }

func (h *networkHandler) Reset() {
	h.data = &NetworkData{}
	h.byID = map[string]*Request{}
}

func (h *networkHandler) HandleEvent(ev *trace.Event) error {
	switch ev.Name {
	case "ResourceSendRequest":
		h.onSend(ev)
	case "ResourceReceiveResponse":
		h.onResponse(ev)
	case "ResourceReceivedData":
		h.onData(ev)
	case "ResourceFinish":
		h.onFinish(ev)
	case "ResourceChangePriority":
		h.onPriority(ev)
	}
	return nil
}

// request returns the tracked request for id, creating it on first sight.
// The loader occasionally emits a response before its send when tracing
// starts mid-flight.
func (h *networkHandler) request(id string) *Request {
	if id == "" {
		return nil
	}
	req, ok := h.byID[id]
	if !ok {
		req = &Request{RequestID: id, ResourceType: ResourceOther}
		h.byID[id] = req
		h.data.Requests = append(h.data.Requests, req)
	}
	return req
}

func (h *networkHandler) onSend(ev *trace.Event) {
	var data struct {
		RequestID     string `json:"requestId"`
		URL           string `json:"url"`
		RequestMethod string `json:"requestMethod"`
		Priority      string `json:"priority"`
		ResourceType  string `json:"resourceType"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	req := h.request(data.RequestID)
	if req == nil {
		return
	}
	req.URL = data.URL
	req.Method = data.RequestMethod
	req.Priority = data.Priority
	if data.ResourceType != "" {
		req.ResourceType = ResourceType(data.ResourceType)
	}
	req.Timing.SendStart = ev.TS
}

func (h *networkHandler) onResponse(ev *trace.Event) {
	var data struct {
		RequestID         string  `json:"requestId"`
		StatusCode        int     `json:"statusCode"`
		MIMEType          string  `json:"mimeType"`
		Protocol          string  `json:"protocol"`
		FromCache         bool    `json:"fromCache"`
		EncodedDataLength float64 `json:"encodedDataLength"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	req := h.request(data.RequestID)
	if req == nil {
		return
	}
	req.StatusCode = data.StatusCode
	req.MIMEType = data.MIMEType
	req.Protocol = data.Protocol
	req.FromCache = req.FromCache || data.FromCache
	req.EncodedByteLength += int64(data.EncodedDataLength)
	req.Timing.ReceiveHeadersEnd = ev.TS
}

func (h *networkHandler) onData(ev *trace.Event) {
	var data struct {
		RequestID         string  `json:"requestId"`
		EncodedDataLength float64 `json:"encodedDataLength"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	if req := h.request(data.RequestID); req != nil {
		req.EncodedByteLength += int64(data.EncodedDataLength)
	}
}

func (h *networkHandler) onFinish(ev *trace.Event) {
	var data struct {
		RequestID         string   `json:"requestId"`
		DidFail           bool     `json:"didFail"`
		EncodedDataLength *float64 `json:"encodedDataLength"`
		DecodedBodyLength float64  `json:"decodedBodyLength"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	req := h.request(data.RequestID)
	if req == nil {
		return
	}
	// The finish event carries the authoritative total; the per-chunk sums
	// above only matter when it is absent.
	if data.EncodedDataLength != nil {
		req.EncodedByteLength = int64(*data.EncodedDataLength)
	}
	req.DecodedByteLength = int64(data.DecodedBodyLength)
	req.Failed = data.DidFail
	req.FinishedSuccessfully = !data.DidFail
	req.Timing.Finish = ev.TS
}

func (h *networkHandler) onPriority(ev *trace.Event) {
	var data struct {
		RequestID string `json:"requestId"`
		Priority  string `json:"priority"`
	}
	if err := ev.ArgsData(&data); err != nil {
		return
	}
	if req := h.request(data.RequestID); req != nil {
		req.Priority = data.Priority
	}
}

func (h *networkHandler) Finalize(context.Context) error {
	// Requests first seen through a response have no send timestamp; order
	// those by whatever milestone they do have.
	sort.SliceStable(h.data.Requests, func(i, j int) bool {
		return requestSortKey(h.data.Requests[i]) < requestSortKey(h.data.Requests[j])
	})
	return nil
}

func requestSortKey(r *Request) int64 {
	if r.Timing.SendStart != 0 {
		return r.Timing.SendStart
	}
	if r.Timing.ReceiveHeadersEnd != 0 {
		return r.Timing.ReceiveHeadersEnd
	}
	return r.Timing.Finish
}

// IsSecureURL reports whether a request URL uses a scheme the document can
// safely load over: https, wss, or a non-network scheme like data.
func IsSecureURL(rawURL string) bool {
	switch {
	case strings.HasPrefix(rawURL, "https://"),
		strings.HasPrefix(rawURL, "wss://"),
		strings.HasPrefix(rawURL, "data:"),
		strings.HasPrefix(rawURL, "blob:"),
		strings.HasPrefix(rawURL, "about:"),
		strings.HasPrefix(rawURL, "filesystem:"),
		strings.HasPrefix(rawURL, "chrome-extension://"):
		return true
	case strings.HasPrefix(rawURL, "http://localhost") ||
		strings.HasPrefix(rawURL, "http://127.0.0.1"):
		return true
	}
	return false
}
