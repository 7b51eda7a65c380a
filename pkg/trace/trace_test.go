package trace

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const arrayForm = `[
	{"name":"navigationStart","cat":"blink.user_timing","ph":"R","pid":7,"tid":7,"ts":1000,"args":{"frame":"F1","data":{"documentLoaderURL":"https://example.com/","isLoadingMainFrame":true}}},
	{"name":"RunTask","cat":"disabled-by-default-lighthouse","ph":"X","pid":7,"tid":7,"ts":1200,"dur":80000,"args":{}},
	{"name":"firstContentfulPaint","cat":"loading,rail,devtools.timeline","ph":"R","pid":7,"tid":7,"ts":2500,"args":{"frame":"F1"}}
]`

func TestDecodeArrayForm(t *testing.T) {
	tr, err := Decode(strings.NewReader(arrayForm))
	require.NoError(t, err)
	require.Len(t, tr.Events, 3)
	require.Equal(t, "navigationStart", tr.Events[0].Name)
	require.Equal(t, PhaseMark, tr.Events[0].Phase)
	require.Equal(t, int64(1000), tr.Events[0].TS)
	require.Equal(t, int64(80000), tr.Events[1].Dur)
	require.Nil(t, tr.Metadata)
}

func TestDecodeObjectForm(t *testing.T) {
	payload := `{"metadata":{"clock-domain":"LINUX_CLOCK_MONOTONIC"},"traceEvents":` + arrayForm + `,"controllerTraceDataKey":"systraceController"}`
	tr, err := Decode(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, tr.Events, 3)
	require.Equal(t, "RunTask", tr.Events[1].Name)
	require.Contains(t, tr.Metadata, "metadata")
	require.Contains(t, tr.Metadata, "controllerTraceDataKey")
}

func TestDecodeEmptyArray(t *testing.T) {
	tr, err := Decode(strings.NewReader(`[]`))
	require.NoError(t, err)
	require.Empty(t, tr.Events)
}

func TestDecodeObjectWithoutEvents(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"metadata":{}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traceEvents")
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		decoded int
	}{
		{"mid event", `[{"name":"a","ph":"I","ts":1},{"name":"b","ph":`, 1},
		{"missing bracket", `[{"name":"a","ph":"I","ts":1},{"name":"b","ph":"I","ts":2}`, 2},
		{"inside object form", `{"traceEvents":[{"name":"a","ph":"I","ts":1},{"na`, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := Decode(strings.NewReader(tc.payload))
			require.ErrorIs(t, err, ErrTruncated)
			require.Len(t, tr.Events, tc.decoded)
		})
	}
}

func TestDecodeTruncatedWithNothingDecoded(t *testing.T) {
	_, err := Decode(strings.NewReader(`[{"name":`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTruncated)
}

func TestDecodeRejectsScalars(t *testing.T) {
	_, err := Decode(strings.NewReader(`42`))
	require.Error(t, err)
}

func TestIDDecodesStringsAndNumbers(t *testing.T) {
	var ev Event
	require.NoError(t, decodeOne(`{"name":"a","ph":"b","id":"0x35c7c7c1","ts":1}`, &ev))
	require.Equal(t, ID("0x35c7c7c1"), ev.ID)

	require.NoError(t, decodeOne(`{"name":"a","ph":"b","id":4242,"ts":1}`, &ev))
	require.Equal(t, ID("4242"), ev.ID)
}

func decodeOne(raw string, ev *Event) error {
	tr, err := Decode(strings.NewReader("[" + raw + "]"))
	if err != nil {
		return err
	}
	*ev = *tr.Events[0]
	return nil
}

func TestEventHelpers(t *testing.T) {
	var ev Event
	require.NoError(t, decodeOne(`{"name":"RunTask","cat":"devtools.timeline,rail","ph":"X","ts":1000,"dur":250,"args":{"data":{"frame":"F1","score":0.07,"had_recent_input":false}}}`, &ev))

	require.Equal(t, int64(1250), ev.End())
	require.True(t, ev.HasCategory("devtools.timeline"))
	require.True(t, ev.HasCategory("rail"))
	require.False(t, ev.HasCategory("rai"))
	require.Equal(t, "F1", ev.FrameID())

	score, ok := ev.ArgFloat("data.score")
	require.True(t, ok)
	require.InDelta(t, 0.07, score, 1e-9)
	require.False(t, ev.ArgBool("data.had_recent_input"))

	var data struct {
		Frame string  `json:"frame"`
		Score float64 `json:"score"`
	}
	require.NoError(t, ev.ArgsData(&data))
	require.Equal(t, "F1", data.Frame)
	require.InDelta(t, 0.07, data.Score, 1e-9)
}

func TestEventPredicates(t *testing.T) {
	nav := Event{Name: "navigationStart", Cat: "blink.user_timing,rail", Phase: PhaseMark}
	require.True(t, nav.IsNavigationStart())

	proc := Event{Name: "process_name", Phase: PhaseMetadata}
	require.True(t, proc.IsMetadata())
	require.True(t, proc.IsProcessName())
	require.False(t, proc.IsThreadName())

	thread := Event{Name: "thread_name", Phase: PhaseMetadata}
	require.True(t, thread.IsThreadName())

	require.True(t, PhaseMark.IsInstant())
	require.True(t, Phase("i").IsInstant())
	require.False(t, PhaseComplete.IsInstant())
	require.True(t, PhaseComplete.HasDuration())
}

func TestFrameIDFallsBackToTopLevelArg(t *testing.T) {
	var ev Event
	require.NoError(t, decodeOne(`{"name":"navigationStart","ph":"R","ts":1,"args":{"frame":"F9"}}`, &ev))
	require.Equal(t, "F9", ev.FrameID())
}

func TestEncodeRoundTrips(t *testing.T) {
	tr, err := Decode(strings.NewReader(`{"metadata":{"cpu":"arm64"},"traceEvents":` + arrayForm + `}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tr))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, decoded.Events, len(tr.Events))
	require.Equal(t, tr.Events[2].Name, decoded.Events[2].Name)
	require.Equal(t, tr.Events[1].Dur, decoded.Events[1].Dur)
	require.Contains(t, decoded.Metadata, "metadata")
}

func TestDecodeFileHandlesGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(arrayForm))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	tr, err := DecodeFile(path)
	require.NoError(t, err)
	require.Len(t, tr.Events, 3)
}

func TestSortOrdersAndClamps(t *testing.T) {
	tr := &Trace{Events: []*Event{
		{Name: "late", TS: 300},
		{Name: "beginX", Phase: PhaseBegin, TS: 100},
		{Name: "endX", Phase: PhaseEnd, TS: 100},
		{Name: "thread_name", Phase: PhaseMetadata, TS: 200},
		{Name: "pretrace", TS: -50},
	}}
	tr.Sort()

	names := make([]string, len(tr.Events))
	for i, ev := range tr.Events {
		names[i] = ev.Name
	}
	require.Equal(t, []string{"thread_name", "pretrace", "beginX", "endX", "late"}, names)
	require.Equal(t, int64(0), tr.Events[1].TS)
}

func TestMerge(t *testing.T) {
	browser := []*Event{{Name: "b1", TS: 10}, {Name: "b2", TS: 40}}
	renderer := []*Event{{Name: "r1", TS: 5}, {Name: "r2", TS: 20}, {Name: "r3", TS: 60}}
	var gpu []*Event

	merged := Merge(browser, renderer, gpu)
	require.Len(t, merged, 5)

	names := make([]string, len(merged))
	for i, ev := range merged {
		names[i] = ev.Name
	}
	require.Equal(t, []string{"r1", "b1", "r2", "b2", "r3"}, names)
}

func TestMergeNoChunks(t *testing.T) {
	require.Empty(t, Merge())
}
