package assert

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Format writes the assertion outcome for humans: failures grouped by URL
// with the expected and observed values, then a one-line tally. Colors
// only appear when w is an interactive terminal.
func Format(w io.Writer, results []Result) {
	pass := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	if !writerIsTerminal(w) {
		pass.DisableColor()
		warn.DisableColor()
		fail.DisableColor()
	}

	var errors, warnings int
	for _, r := range results {
		if r.Passed {
			continue
		}
		if r.Level == LevelError {
			errors++
		} else {
			warnings++
		}
	}
	if errors == 0 && warnings == 0 {
		fmt.Fprintf(w, "%s %d assertions passed\n", pass.Sprint("✓"), len(results))
		return
	}

	lastURL := ""
	for _, r := range results {
		if r.Passed {
			continue
		}
		if r.URL != lastURL {
			fmt.Fprintf(w, "\n%s\n", r.URL)
			lastURL = r.URL
		}
		glyph, painter := "✘", fail
		if r.Level == LevelWarn {
			glyph, painter = "⚠", warn
		}
		fmt.Fprintf(w, "  %s  %-5s %s.%s\n", painter.Sprint(glyph), r.Level, r.Name, r.Property)
		fmt.Fprintf(w, "        expected: %s%s\n", r.Operator, formatValue(r.Expected))
		if len(r.Values) == 0 {
			fmt.Fprintf(w, "           found: no value produced\n")
			continue
		}
		fmt.Fprintf(w, "           found: %s\n", formatValue(r.Actual))
		fmt.Fprintf(w, "      all values: %s\n", formatValues(r.Values))
	}

	fmt.Fprintf(w, "\n%d assertion failures, %d warnings\n", errors, warnings)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatValues(values []float64) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, formatValue(v))
	}
	return strings.Join(parts, ", ")
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
