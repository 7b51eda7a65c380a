package report

import (
	"math"
	"sort"
)

// Representative picks which of several runs of the same URL to treat as
// the run: the one closest to the median first contentful paint and median
// time to interactive, measured as the sum of normalized absolute
// distances. Runs missing those metrics are judged by their performance
// score instead. Ties break toward the earlier run.
func Representative(reports []*Report) int {
	switch len(reports) {
	case 0:
		return -1
	case 1:
		return 0
	}

	var fcps, ttis []float64
	for _, r := range reports {
		if v, ok := r.AuditNumericValue("first-contentful-paint"); ok {
			fcps = append(fcps, v)
		}
		if v, ok := r.AuditNumericValue("interactive"); ok {
			ttis = append(ttis, v)
		}
	}
	medianFCP, haveFCP := median(fcps)
	medianTTI, haveTTI := median(ttis)

	best, bestDistance := -1, math.Inf(1)
	for i, r := range reports {
		fcp, okFCP := r.AuditNumericValue("first-contentful-paint")
		tti, okTTI := r.AuditNumericValue("interactive")
		if !okFCP && !okTTI {
			continue
		}
		distance := 0.0
		if okFCP && haveFCP {
			distance += normalizedDistance(fcp, medianFCP)
		}
		if okTTI && haveTTI {
			distance += normalizedDistance(tti, medianTTI)
		}
		if distance < bestDistance {
			best, bestDistance = i, distance
		}
	}
	if best >= 0 {
		return best
	}

	// No run carried the paint metrics; fall back to the run whose
	// performance score sits at the median.
	var scores []float64
	for _, r := range reports {
		if v, ok := r.CategoryScore("performance"); ok {
			scores = append(scores, v)
		}
	}
	medianScore, haveScore := median(scores)
	if !haveScore {
		return 0
	}
	for i, r := range reports {
		v, ok := r.CategoryScore("performance")
		if !ok {
			continue
		}
		if d := math.Abs(v - medianScore); d < bestDistance {
			best, bestDistance = i, d
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

func normalizedDistance(value, median float64) float64 {
	if median == 0 {
		return math.Abs(value - median)
	}
	return math.Abs(value-median) / median
}

func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}
