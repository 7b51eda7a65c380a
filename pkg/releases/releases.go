// Package releases implements the update check against the project's GitHub
// releases.
package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const latestReleaseURL = "https://api.github.com/repos/treosh/lightci/releases/latest"

// Release is one published release of lightci.
type Release struct {
	Version     string
	PublishedAt time.Time
	ViewURL     string
}

// GetLatestRelease fetches the newest published release. Callers bound the
// call with their context; the client adds a hard timeout as a backstop for
// contexts without one.
func GetLatestRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, latestReleaseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from the release API", resp.StatusCode)
	}

	var payload struct {
		TagName     string    `json:"tag_name"`
		PublishedAt time.Time `json:"published_at"`
		HTMLURL     string    `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding release API response: %w", err)
	}
	return &Release{
		Version:     payload.TagName,
		PublishedAt: payload.PublishedAt,
		ViewURL:     payload.HTMLURL,
	}, nil
}
