package trace

import (
	"bufio"
	"cmp"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

// ErrTruncated reports a capture that was cut off mid-write, typically by a
// renderer crash or a killed tab. Decode returns it alongside every event
// that decoded cleanly before the cut, so callers can proceed on a best
// effort basis.
var ErrTruncated = errors.New("trace truncated")

// Trace is a decoded capture: its events in written order plus whatever
// top-level metadata the object form carried.
type Trace struct {
	Events   []*Event
	Metadata map[string]json.RawMessage
}

// Sort orders events by timestamp, metadata records first. Equal-timestamp
// events keep their emission order, which the engine relies on for
// begin/end pairing. Negative timestamps, which Chrome emits for a few
// pre-tracing records, clamp to zero the way the trace viewer does.
func (t *Trace) Sort() {
	for _, ev := range t.Events {
		if ev.TS < 0 {
			ev.TS = 0
		}
	}
	slices.SortStableFunc(t.Events, func(a, b *Event) int {
		if am, bm := a.IsMetadata(), b.IsMetadata(); am != bm {
			if am {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.TS, b.TS)
	})
}

// Decode reads a trace from r. Both shapes Chrome writes are accepted: a
// bare JSON array of events, and an object wrapping them in a traceEvents
// field. Event order is preserved as written. A truncated capture decodes
// to the partial trace plus an error matching ErrTruncated.
func Decode(r io.Reader) (*Trace, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	if delim, ok := tok.(json.Delim); ok {
		switch delim {
		case '[':
			events, err := decodeArray(dec, nil)
			return &Trace{Events: events}, err
		case '{':
			return decodeObject(dec)
		}
	}
	return nil, fmt.Errorf("trace must begin with an array or object, got %v", tok)
}

// DecodeFile decodes the trace at path, transparently inflating gzip.
func DecodeFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip trace %s: %w", path, err)
		}
		defer gz.Close()
		return Decode(gz)
	}
	return Decode(br)
}

func decodeArray(dec *json.Decoder, events []*Event) ([]*Event, error) {
	for dec.More() {
		ev := new(Event)
		if err := dec.Decode(ev); err != nil {
			return events, truncated(len(events), err)
		}
		events = append(events, ev)
	}
	if _, err := dec.Token(); err != nil {
		return events, truncated(len(events), err)
	}
	return events, nil
}

func decodeObject(dec *json.Decoder) (*Trace, error) {
	tr := &Trace{}
	sawEvents := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return tr, truncated(len(tr.Events), err)
		}
		key, ok := tok.(string)
		if !ok {
			return tr, fmt.Errorf("trace object key must be a string, got %v", tok)
		}
		if key != "traceEvents" {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return tr, truncated(len(tr.Events), err)
			}
			if tr.Metadata == nil {
				tr.Metadata = map[string]json.RawMessage{}
			}
			tr.Metadata[key] = raw
			continue
		}
		open, err := dec.Token()
		if err != nil {
			return tr, truncated(len(tr.Events), err)
		}
		if delim, ok := open.(json.Delim); !ok || delim != '[' {
			return tr, fmt.Errorf("traceEvents must be an array, got %v", open)
		}
		tr.Events, err = decodeArray(dec, tr.Events)
		if err != nil {
			return tr, err
		}
		sawEvents = true
	}
	if _, err := dec.Token(); err != nil {
		return tr, truncated(len(tr.Events), err)
	}
	if !sawEvents {
		return nil, errors.New("trace object has no traceEvents field")
	}
	return tr, nil
}

func truncated(decoded int, cause error) error {
	if decoded == 0 {
		return fmt.Errorf("decoding trace: %w", cause)
	}
	return fmt.Errorf("%w after %d events: %v", ErrTruncated, decoded, cause)
}

// Encode writes the trace to w in the object form, one event per line. The
// output round-trips through Decode and loads in chrome://tracing.
func Encode(w io.Writer, tr *Trace) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(`{"traceEvents":[`); err != nil {
		return err
	}
	for i, ev := range tr.Events {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %d: %w", i, err)
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n]"); err != nil {
		return err
	}
	for key, raw := range tr.Metadata {
		entry, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, ",\n%s:%s", entry, raw); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("}\n"); err != nil {
		return err
	}
	return bw.Flush()
}
