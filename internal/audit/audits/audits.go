// Package audits holds the builtin audit set. Each audit lives in its own
// file and registers itself at init; importing this package for side
// effects is enough to populate the registry.
package audits

import (
	"github.com/treosh/lightci/internal/scoring"
	"github.com/treosh/lightci/pkg/artifacts"
)

// Metric curves differ by device class: field distributions on phones are
// a lot slower than on desktops.
func curveFor(arts *artifacts.Artifacts, mobile, desktop scoring.Curve) scoring.Curve {
	if arts.Settings.FormFactor == artifacts.FormFactorDesktop {
		return desktop
	}
	return mobile
}
