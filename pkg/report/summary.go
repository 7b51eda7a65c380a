package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/treosh/lightci/internal/audit"
)

// Metric rows shown under the category scores, in display order.
var summaryMetrics = []string{
	"first-contentful-paint",
	"largest-contentful-paint",
	"total-blocking-time",
	"cumulative-layout-shift",
	"interactive",
}

// Summary writes a terminal scorecard for one report. Colors only appear
// when w is an interactive terminal.
func Summary(w io.Writer, r *Report) {
	pass, average, fail := color.New(color.FgGreen, color.Bold), color.New(color.FgYellow, color.Bold), color.New(color.FgRed, color.Bold)
	if !writerIsTerminal(w) {
		pass.DisableColor()
		average.DisableColor()
		fail.DisableColor()
	}

	fmt.Fprintf(w, "\n%s\n", r.FinalURL)

	ids := make([]string, 0, len(r.Categories))
	for id := range r.Categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cat := r.Categories[id]
		display := "  --"
		painter := average
		if cat.Score != nil {
			display = fmt.Sprintf("%4d", int(*cat.Score*100+0.5))
			switch {
			case *cat.Score >= 0.9:
				painter = pass
			case *cat.Score >= 0.5:
				painter = average
			default:
				painter = fail
			}
		}
		fmt.Fprintf(w, "  %-16s %s\n", cat.Title, painter.Sprint(display))
	}

	for _, id := range summaryMetrics {
		res, ok := r.Audits[id]
		if !ok || res.Score == nil {
			continue
		}
		painter := fail
		switch {
		case *res.Score >= 0.9:
			painter = pass
		case *res.Score >= 0.5:
			painter = average
		}
		fmt.Fprintf(w, "    %s %-26s %s\n", painter.Sprint(scoreGlyph(*res.Score)), auditTitleOrID(res), res.DisplayValue)
	}
}

func scoreGlyph(score float64) string {
	switch {
	case score >= 0.9:
		return "●"
	case score >= 0.5:
		return "◆"
	default:
		return "▲"
	}
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// auditTitleOrID guards against results that never went through the
// registry wrapper.
func auditTitleOrID(res *audit.Result) string {
	if res.Title != "" {
		return res.Title
	}
	return res.ID
}
