package assert

import (
	"github.com/treosh/lightci/internal/audit"
	log "github.com/treosh/lightci/internal/logging"
)

// Preset names accepted by Config.Preset.
const (
	// PresetRecommended warns on a weak performance category and caps the
	// core metrics at their "needs improvement" boundaries.
	PresetRecommended = "recommended"
	// PresetAll requires a 0.9 score from every audit that produces one.
	PresetAll = "all"
)

func presetAssertions(name string) map[string]Assertion {
	switch name {
	case "":
		return nil
	case PresetRecommended:
		return recommendedAssertions()
	case PresetAll:
		return allAssertions()
	default:
		log.Warn().Str("preset", name).Msg("unknown assertion preset; ignoring")
		return nil
	}
}

func recommendedAssertions() map[string]Assertion {
	warnCap := func(v float64) Assertion {
		return Assertion{Level: LevelWarn, MaxNumericValue: &v}
	}
	minScore := 0.8
	return map[string]Assertion{
		"categories.performance":   {Level: LevelWarn, MinScore: &minScore},
		"first-contentful-paint":   warnCap(3000),
		"largest-contentful-paint": warnCap(4000),
		"total-blocking-time":      warnCap(600),
		"cumulative-layout-shift":  warnCap(0.25),
		"interactive":              warnCap(7300),
	}
}

func allAssertions() map[string]Assertion {
	out := map[string]Assertion{}
	for _, a := range audit.All() {
		meta := a.Meta()
		switch meta.ScoreDisplayMode {
		case audit.ModeNumeric, audit.ModeBinary:
			minScore := 0.9
			out[meta.ID] = Assertion{Level: LevelError, MinScore: &minScore}
		}
	}
	return out
}
