// Package scoring maps raw metric values onto the 0..1 scale reports use. A
// metric's curve is a log-normal distribution pinned by two control points:
// the value that scores 0.5 (the median of the field distribution) and the
// value that scores 0.9 (its 10th percentile).
package scoring

import "math"

// erfcinvOneFifth standardizes the p10 control point: erf(erfcinvOneFifth)
// = 0.8, so a value equal to p10 lands at score 0.9.
var erfcinvOneFifth = math.Erfcinv(1.0 / 5.0)

// Curve is one metric's scoring distribution. P10 must be positive and
// below Median.
type Curve struct {
	P10    float64
	Median float64
}

// Score places value on the curve: the complementary CDF of the log-normal
// distribution through both control points, clamped to [0,1]. Lower values
// score higher; zero and below score a perfect 1.
func (c Curve) Score(value float64) float64 {
	if value <= 0 {
		return 1
	}
	xLogRatio := math.Log(math.Max(value/c.Median, math.SmallestNonzeroFloat64))
	p10LogRatio := -math.Log(math.Max(c.P10/c.Median, math.SmallestNonzeroFloat64))
	standardized := xLogRatio * erfcinvOneFifth / p10LogRatio
	score := (1 - math.Erf(standardized)) / 2
	return math.Min(1, math.Max(0, score))
}

// LogNormalScore scores value on the curve through p10 and median.
func LogNormalScore(p10, median, value float64) float64 {
	return Curve{P10: p10, Median: median}.Score(value)
}

// RoundScore rounds to the two decimal places reports display.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

// ScoredItem is one member of a weighted aggregate. A nil Score marks an
// item that produced no value and is skipped.
type ScoredItem struct {
	Score  *float64
	Weight float64
}

// WeightedMean averages the scored items, normalizing weights over the ones
// that actually carry a score. The second return is false when nothing
// scored, which callers surface as a nil aggregate rather than a zero.
func WeightedMean(items []ScoredItem) (float64, bool) {
	totalWeight := 0.0
	weightedSum := 0.0
	for _, item := range items {
		if item.Score == nil || item.Weight <= 0 {
			continue
		}
		totalWeight += item.Weight
		weightedSum += *item.Score * item.Weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return weightedSum / totalWeight, true
}
