// Package trace models Chrome trace event streams: the JSON event format
// written by chrome://tracing and the DevTools Tracing domain, a decoder that
// tolerates truncated captures, and helpers for combining sorted streams.
package trace

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/treosh/lightci/internal/dotpath"
)

// Phase is the single-character event phase from the trace event format.
type Phase string

const (
	PhaseBegin    Phase = "B"
	PhaseEnd      Phase = "E"
	PhaseComplete Phase = "X"
	PhaseInstant  Phase = "I"
	PhaseCounter  Phase = "C"
	PhaseMetadata Phase = "M"
	PhaseMark     Phase = "R"
	PhaseSample   Phase = "P"

	PhaseAsyncBegin   Phase = "b"
	PhaseAsyncInstant Phase = "n"
	PhaseAsyncEnd     Phase = "e"

	PhaseFlowStart Phase = "s"
	PhaseFlowStep  Phase = "t"
	PhaseFlowEnd   Phase = "f"

	PhaseObjectCreated   Phase = "N"
	PhaseObjectSnapshot  Phase = "O"
	PhaseObjectDestroyed Phase = "D"

	// phaseInstantLegacy is the pre-2015 spelling still emitted by a few
	// embedders.
	phaseInstantLegacy Phase = "i"
)

// HasDuration reports whether events of this phase carry a dur field.
func (p Phase) HasDuration() bool { return p == PhaseComplete }

// IsInstant reports whether the phase marks a point in time rather than a
// span.
func (p Phase) IsInstant() bool {
	return p == PhaseInstant || p == phaseInstantLegacy || p == PhaseMark
}

// ProcessID and ThreadID are the trace-clock process and thread
// identifiers. They are only meaningful within a single capture.
type (
	ProcessID int64
	ThreadID  int64
)

// ID identifies paired async and object events. Chrome writes it as a hex
// string from most subsystems and as a bare number from a few older ones,
// so it decodes from either and compares as an opaque string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(data)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Event is a single trace event. Timestamps and durations are microseconds
// on the trace clock. Args stays raw until a consumer asks for it; most
// events in a capture are never inspected.
type Event struct {
	Name    string          `json:"name"`
	Cat     string          `json:"cat"`
	Phase   Phase           `json:"ph"`
	PID     ProcessID       `json:"pid"`
	TID     ThreadID        `json:"tid"`
	TS      int64           `json:"ts"`
	Dur     int64           `json:"dur,omitempty"`
	TTS     int64           `json:"tts,omitempty"`
	TDur    int64           `json:"tdur,omitempty"`
	ID      ID              `json:"id,omitempty"`
	Scope   string          `json:"s,omitempty"`
	BindID  ID              `json:"bind_id,omitempty"`
	FlowIn  bool            `json:"flow_in,omitempty"`
	FlowOut bool            `json:"flow_out,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// End returns the event's end timestamp in microseconds.
func (e *Event) End() int64 { return e.TS + e.Dur }

// Duration returns the event's wall duration.
func (e *Event) Duration() time.Duration { return time.Duration(e.Dur) * time.Microsecond }

// HasCategory reports whether cat appears in the event's comma-separated
// category list.
func (e *Event) HasCategory(cat string) bool {
	if e.Cat == cat {
		return true
	}
	rest := e.Cat
	for rest != "" {
		var head string
		head, rest, _ = strings.Cut(rest, ",")
		if head == cat {
			return true
		}
	}
	return false
}

// IsMetadata reports whether this is a metadata record (process and thread
// naming).
func (e *Event) IsMetadata() bool { return e.Phase == PhaseMetadata }

// IsProcessName reports whether this metadata event names its process.
func (e *Event) IsProcessName() bool { return e.IsMetadata() && e.Name == "process_name" }

// IsThreadName reports whether this metadata event names its thread.
func (e *Event) IsThreadName() bool { return e.IsMetadata() && e.Name == "thread_name" }

// IsNavigationStart reports whether this is a navigation commit mark.
func (e *Event) IsNavigationStart() bool {
	return e.Name == "navigationStart" && e.HasCategory("blink.user_timing")
}

// ArgsMap decodes the args payload into a generic map. Events without args
// decode to an empty map.
func (e *Event) ArgsMap() (map[string]any, error) {
	if len(e.Args) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Args, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeArgs unmarshals the args payload into v. Callers pass a struct
// shaped for the events they handle.
func (e *Event) DecodeArgs(v any) error {
	if len(e.Args) == 0 {
		return nil
	}
	return json.Unmarshal(e.Args, v)
}

// ArgsData unmarshals args.data into v. Timeline events nest their payload
// one level down; events without a data member leave v untouched.
func (e *Event) ArgsData(v any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := e.DecodeArgs(&envelope); err != nil {
		return err
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, v)
}

// Arg resolves a dotted path like "data.frame" inside the args payload.
func (e *Event) Arg(path string) (any, bool) {
	m, err := e.ArgsMap()
	if err != nil {
		return nil, false
	}
	return dotpath.Get(m, path)
}

// ArgString returns the string at path inside args, or "".
func (e *Event) ArgString(path string) string {
	m, err := e.ArgsMap()
	if err != nil {
		return ""
	}
	s, _ := dotpath.GetString(m, path)
	return s
}

// ArgFloat returns the number at path inside args.
func (e *Event) ArgFloat(path string) (float64, bool) {
	m, err := e.ArgsMap()
	if err != nil {
		return 0, false
	}
	return dotpath.GetFloat(m, path)
}

// ArgBool returns the boolean at path inside args.
func (e *Event) ArgBool(path string) bool {
	m, err := e.ArgsMap()
	if err != nil {
		return false
	}
	b, _ := dotpath.GetBool(m, path)
	return b
}

// FrameID returns the frame an event belongs to. Blink nests it under
// args.data.frame for timeline events and args.frame for a few loading ones.
func (e *Event) FrameID() string {
	if f := e.ArgString("data.frame"); f != "" {
		return f
	}
	return e.ArgString("frame")
}
