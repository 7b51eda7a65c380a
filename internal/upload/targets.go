package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/report"
)

// Targets accepted by the upload command.
const (
	TargetFilesystem             = "filesystem"
	TargetLHCI                   = "lhci"
	TargetTemporaryPublicStorage = "temporary-public-storage"
)

// The default endpoint for the temporary-public-storage target.
const temporaryStorageURL = "https://storage.lightci.dev/v1/reports"

// Options configures an upload.
type Options struct {
	Target                 string
	ServerBaseURL          string
	Token                  string
	OutputDir              string
	URLReplacementPatterns []string

	// Transport overrides the HTTP transport; tests point it at a local
	// server.
	Transport http.RoundTripper
}

// Upload ships the reports to the target named in opts. Reports are
// grouped by requested URL and the representative run of each group is
// flagged for the destination.
func Upload(ctx context.Context, reports []*report.Report, opts Options) error {
	if len(reports) == 0 {
		return errors.New("no reports to upload")
	}
	ApplyURLReplacements(reports, opts.URLReplacementPatterns)

	switch opts.Target {
	case "", TargetFilesystem:
		return uploadToFilesystem(reports, opts)
	case TargetLHCI:
		return uploadToServer(ctx, reports, opts)
	case TargetTemporaryPublicStorage:
		return uploadToTemporaryStorage(ctx, reports, opts)
	default:
		return fmt.Errorf("unknown upload target %q", opts.Target)
	}
}

// ApplyURLReplacements rewrites the requested and final URL of each report
// through sed-style patterns ("s/search/replacement/flags") so
// deploy-specific hosts collapse into stable ones before upload. Invalid
// patterns are skipped with a warning.
func ApplyURLReplacements(reports []*report.Report, patterns []string) {
	for _, pattern := range patterns {
		re, replacement, ok := parseReplacement(pattern)
		if !ok {
			log.Warn().Str("pattern", pattern).Msg("ignoring invalid url replacement pattern")
			continue
		}
		for _, r := range reports {
			r.RequestedURL = re.ReplaceAllString(r.RequestedURL, replacement)
			r.FinalURL = re.ReplaceAllString(r.FinalURL, replacement)
		}
	}
}

func parseReplacement(pattern string) (*regexp.Regexp, string, bool) {
	// s<delim>search<delim>replacement<delim>flags, usually s/.../.../
	if len(pattern) < 4 || pattern[0] != 's' {
		return nil, "", false
	}
	parts := strings.Split(pattern[2:], string(pattern[1]))
	if len(parts) < 2 {
		return nil, "", false
	}
	search, replacement := parts[0], parts[1]
	if len(parts) > 2 && strings.Contains(parts[2], "i") {
		search = "(?i)" + search
	}
	re, err := regexp.Compile(search)
	if err != nil {
		return nil, "", false
	}
	return re, replacement, true
}

type runGroup struct {
	url            string
	reports        []*report.Report
	representative int
}

func groupRuns(reports []*report.Report) []runGroup {
	var groups []runGroup
	index := map[string]int{}
	for _, r := range reports {
		i, ok := index[r.RequestedURL]
		if !ok {
			i = len(groups)
			index[r.RequestedURL] = i
			groups = append(groups, runGroup{url: r.RequestedURL})
		}
		groups[i].reports = append(groups[i].reports, r)
	}
	for i := range groups {
		groups[i].representative = report.Representative(groups[i].reports)
	}
	return groups
}

// ManifestEntry describes one stored report in the filesystem target's
// manifest.json.
type ManifestEntry struct {
	URL                 string             `json:"url"`
	IsRepresentativeRun bool               `json:"isRepresentativeRun"`
	JSONPath            string             `json:"jsonPath"`
	Summary             map[string]float64 `json:"summary"`
}

func uploadToFilesystem(reports []*report.Report, opts Options) error {
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = ".lightci"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	var manifest []ManifestEntry
	for _, group := range groupRuns(reports) {
		for i, r := range group.reports {
			data, err := json.MarshalIndent(r, "", "  ")
			if err != nil {
				return err
			}
			path := filepath.Join(outputDir, fmt.Sprintf("lhr-%s-%s.json", fetchTimestamp(r), r.Fingerprint()))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("error writing report: %w", err)
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			log.Info().
				Str("path", path).
				Str("size", humanize.IBytes(uint64(len(data)))).
				Msg("report written")

			manifest = append(manifest, ManifestEntry{
				URL:                 r.FinalURL,
				IsRepresentativeRun: i == group.representative,
				JSONPath:            path,
				Summary:             categorySummary(r),
			})
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(outputDir, "manifest.json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	log.Info().Str("path", manifestPath).Int("reports", len(manifest)).Msg("manifest written")
	return nil
}

func fetchTimestamp(r *report.Report) string {
	t, err := time.Parse(time.RFC3339, r.FetchTime)
	if err != nil {
		t = time.Now()
	}
	return t.UTC().Format("20060102T150405")
}

func categorySummary(r *report.Report) map[string]float64 {
	summary := map[string]float64{}
	for id, cat := range r.Categories {
		if cat.Score != nil {
			summary[id] = *cat.Score
		}
	}
	return summary
}

func uploadToServer(ctx context.Context, reports []*report.Report, opts Options) error {
	if opts.ServerBaseURL == "" {
		return errors.New("the lhci target requires a server base url")
	}
	meta := CurrentBuildContext()
	if meta.Branch == "" || meta.Hash == "" {
		return errors.New("unable to determine the current branch and hash; set LIGHTCI_BUILD_CONTEXT__CURRENT_BRANCH and LIGHTCI_BUILD_CONTEXT__CURRENT_HASH")
	}

	client := NewClientWithTransport(opts.ServerBaseURL, opts.Token, opts.Transport)
	project, err := client.FindProject(ctx, opts.Token)
	if err != nil {
		return err
	}
	build, err := client.CreateBuild(ctx, project.ID, meta)
	if err != nil {
		return err
	}

	uploaded := 0
	for _, group := range groupRuns(reports) {
		for i, r := range group.reports {
			if _, err := client.UploadRun(ctx, project.ID, build.ID, r, i == group.representative); err != nil {
				return err
			}
			uploaded++
		}
	}
	if err := client.SealBuild(ctx, project.ID, build.ID); err != nil {
		return err
	}

	log.Info().
		Str("project", project.Name).
		Str("build", build.ID).
		Str("branch", build.Branch).
		Int("runs", uploaded).
		Msg("build uploaded and sealed")
	return nil
}

func uploadToTemporaryStorage(ctx context.Context, reports []*report.Report, opts Options) error {
	endpoint := temporaryStorageURL
	if opts.ServerBaseURL != "" {
		endpoint = opts.ServerBaseURL
	}
	pipeline := NewPipeline(opts.Transport, DefaultPolicies(clientUserAgent(), "", 30*time.Second)...)

	for _, group := range groupRuns(reports) {
		for i, r := range group.reports {
			raw, err := json.Marshal(r)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			if _, err := gz.Write(raw); err != nil {
				return err
			}
			if err := gz.Close(); err != nil {
				return err
			}

			req, err := NewRequest(ctx, http.MethodPost, endpoint, buf.Bytes())
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Content-Encoding", "gzip")

			resp, err := pipeline.Do(req)
			if err != nil {
				return fmt.Errorf("error uploading report for %s: %w", r.FinalURL, err)
			}
			var out struct {
				URL string `json:"url"`
			}
			if err := DecodeJSON(resp, &out); err != nil {
				return fmt.Errorf("error uploading report for %s: %w", r.FinalURL, err)
			}

			log.Info().
				Str("page", r.FinalURL).
				Str("url", out.URL).
				Bool("representative", i == group.representative).
				Msg("report available on temporary public storage")
		}
	}
	return nil
}
