package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/runner"
	"github.com/treosh/lightci/pkg/report"
)

// ErrNoStagedReports marks assert or upload running before collect staged
// anything.
var ErrNoStagedReports = errors.New("no staged reports")

// Staged reports are numbered so loading preserves collection order.
// Files the filesystem upload target writes into the same directory use a
// timestamp in place of the number and never match.
var stagedNamePattern = regexp.MustCompile(`^lhr-\d{3}-[0-9a-f]{16}\.json$`)

func stagedName(n int, r *report.Report) string {
	return fmt.Sprintf("lhr-%03d-%s.json", n, r.Fingerprint())
}

// StageReports writes every report of the set into dir, replacing the
// reports staged by any previous collection.
func StageReports(dir string, set *runner.ResultSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := clearStagedReports(dir); err != nil {
		return err
	}

	n := 0
	for _, res := range set.Results {
		for _, r := range res.Reports {
			data, err := json.MarshalIndent(r, "", "  ")
			if err != nil {
				return err
			}
			path := filepath.Join(dir, stagedName(n, r))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("error staging report: %w", err)
			}
			n++
		}
	}
	log.Debug().Str("dir", dir).Int("reports", n).Msg("staged reports")
	return nil
}

func clearStagedReports(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("error reading output directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !stagedNamePattern.MatchString(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("error clearing staged report: %w", err)
		}
	}
	return nil
}

// LoadStagedReports reads back the reports collect staged under dir, in
// collection order.
func LoadStagedReports(dir string) ([]*report.Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w under %s; run collect first", ErrNoStagedReports, dir)
		}
		return nil, fmt.Errorf("error reading output directory: %w", err)
	}

	var reports []*report.Report
	for _, entry := range entries {
		if entry.IsDir() || !stagedNamePattern.MatchString(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("error reading staged report: %w", err)
		}
		r := &report.Report{}
		if err := json.Unmarshal(data, r); err != nil {
			return nil, fmt.Errorf("error parsing staged report %s: %w", entry.Name(), err)
		}
		reports = append(reports, r)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w under %s; run collect first", ErrNoStagedReports, dir)
	}
	return reports, nil
}
