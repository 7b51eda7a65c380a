package server

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/server/datastore"
)

func statRun(id, url string, fcp, tti float64) *datastore.Run {
	return &datastore.Run{
		ID:  id,
		URL: url,
		LHR: json.RawMessage(fmt.Sprintf(`{
			"audits": {
				"first-contentful-paint": {"numericValue": %f},
				"interactive": {"numericValue": %f}
			},
			"categories": {"performance": {"score": 0.9}}
		}`, fcp, tti)),
	}
}

func pointsByName(points []statisticPoint, url string) map[string]float64 {
	out := map[string]float64{}
	for _, p := range points {
		if p.URL == url {
			out[p.Name] = p.Value
		}
	}
	return out
}

func TestComputeStatisticsGroupsByURL(t *testing.T) {
	runs := []*datastore.Run{
		statRun("a1", "https://example.com/", 1000, 3000),
		statRun("a2", "https://example.com/", 1400, 3600),
		statRun("b1", "https://example.com/pricing", 2000, 5000),
	}

	points, representatives, err := computeStatistics(runs)
	require.NoError(t, err)
	require.Len(t, representatives, 2)

	home := pointsByName(points, "https://example.com/")
	require.InDelta(t, 1200, home["audit_first-contentful-paint_median"], 200)
	require.InDelta(t, 0.9, home["category_performance_median"], 0.001)

	pricing := pointsByName(points, "https://example.com/pricing")
	require.InDelta(t, 2000, pricing["audit_first-contentful-paint_median"], 0.001)
	require.Contains(t, representatives, "b1")
}

func TestComputeStatisticsSkipsMalformedReports(t *testing.T) {
	runs := []*datastore.Run{
		{ID: "bad", URL: "https://example.com/", LHR: json.RawMessage(`{not json`)},
		statRun("good", "https://example.com/", 1500, 4000),
	}

	points, representatives, err := computeStatistics(runs)
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, representatives)
	require.NotEmpty(t, points)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	points, representatives, err := computeStatistics(nil)
	require.NoError(t, err)
	require.Empty(t, points)
	require.Empty(t, representatives)
}

func TestRepresentativePrefersMedianRun(t *testing.T) {
	runs := []parsedRun{
		mustParse(t, statRun("fast", "u", 900, 2800)),
		mustParse(t, statRun("median", "u", 1200, 3500)),
		mustParse(t, statRun("slow", "u", 2400, 9000)),
	}

	id, err := representativeRun(runs)
	require.NoError(t, err)
	require.Equal(t, "median", id)
}

func TestRepresentativeFallsBackWithoutMetrics(t *testing.T) {
	run := &datastore.Run{ID: "only", URL: "u", LHR: json.RawMessage(`{"audits": {}}`)}
	runs := []parsedRun{mustParse(t, run), mustParse(t, run)}

	id, err := representativeRun(runs)
	require.NoError(t, err)
	require.Equal(t, "only", id)
}

func mustParse(t *testing.T, run *datastore.Run) parsedRun {
	t.Helper()
	var doc lhrDocument
	require.NoError(t, json.Unmarshal(run.LHR, &doc))
	return parsedRun{run: run, doc: &doc}
}

func TestRelativeDelta(t *testing.T) {
	require.InDelta(t, 0.5, relativeDelta(1500, 1000), 0.001)
	require.InDelta(t, 0.5, relativeDelta(500, 1000), 0.001)
	require.InDelta(t, 7, relativeDelta(7, 0), 0.001)
}
