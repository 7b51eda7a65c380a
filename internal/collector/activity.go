package collector

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/treosh/lightci/internal/runnererr"
	"github.com/treosh/lightci/pkg/trace"
)

// activitySample is one observation of page busyness taken by the settle
// loop.
type activitySample struct {
	At       time.Time
	Inflight int
	// CPUIdleFor is how long the main thread had gone without a long task
	// when the sample was taken.
	CPUIdleFor time.Duration
	// PaintedFirstContent records whether first-contentful-paint had fired.
	PaintedFirstContent bool
}

// quietAt reports whether the sample history ends in a window satisfying
// both quiet heuristics: the trailing NetworkQuiet of samples all saw at
// most NetworkMaxInflight requests in flight, and the main thread has been
// idle for at least CPUQuiet.
func quietAt(samples []activitySample, q QuietThresholds) bool {
	if len(samples) == 0 {
		return false
	}
	last := samples[len(samples)-1]
	if last.CPUIdleFor < q.CPUQuiet {
		return false
	}
	quietSince := last.At
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Inflight > q.NetworkMaxInflight {
			break
		}
		quietSince = samples[i].At
	}
	return last.At.Sub(quietSince) >= q.NetworkQuiet
}

// assembleTrace interleaves collected batches into a single trace ordered
// the way the processor expects: metadata records first, then timestamps.
func assembleTrace(chunks ...[]*trace.Event) *trace.Trace {
	tr := &trace.Trace{Events: trace.Merge(chunks...)}
	tr.Sort()
	return tr
}

// headersFromNetwork converts protocol headers to the net/http shape.
// Chrome folds repeated headers into one newline-separated value.
func headersFromNetwork(raw proto.NetworkHeaders) http.Header {
	h := make(http.Header, len(raw))
	for name, value := range raw {
		for _, v := range strings.Split(value.Str(), "\n") {
			h.Add(name, v)
		}
	}
	return h
}

// classifyNavigationError maps a failed navigation onto the run error
// taxonomy. Certificate problems surface separately from plain network
// failures so CI output can say which one bit.
func classifyNavigationError(pageURL string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_CERT") || strings.Contains(msg, "net::ERR_SSL"):
		return runnererr.Wrap(runnererr.InsecureDocumentRequest, err, "the connection to %s is not secure", pageURL)
	case errors.Is(err, context.DeadlineExceeded):
		return runnererr.Wrap(runnererr.PageHung, err, "navigation to %s timed out", pageURL)
	default:
		return runnererr.Wrap(runnererr.ErroredDocumentRequest, err, "%s could not be fetched", pageURL)
	}
}

// consoleLevel folds the console API's many methods into the three levels
// the artifacts carry.
func consoleLevel(apiType string) string {
	switch apiType {
	case "error", "assert":
		return "error"
	case "warning":
		return "warning"
	default:
		return "log"
	}
}

// stringifyRemoteObjects renders console arguments the way the devtools
// console would: primitive values as themselves, objects by description.
func stringifyRemoteObjects(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if !arg.Value.Nil() {
			parts = append(parts, arg.Value.Str())
			continue
		}
		if arg.Description != "" {
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}
