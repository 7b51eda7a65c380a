package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/treosh/lightci/internal/server/datastore"
	"github.com/treosh/lightci/pkg/releases"
	"github.com/treosh/lightci/pkg/report"
)

// APIError is a structured error response from the report server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
}

// DecodeJSON reads a JSON response into v and closes the body. Non-2xx
// responses become an *APIError built from the server's error payload,
// falling back to a snippet of the raw body.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	if v == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("expected a JSON response, got content type %q", ct)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Code != "" || payload.Message != "") {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		return apiErr
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	apiErr.Message = snippet
	return apiErr
}

var clientUserAgent = sync.OnceValue(func() string {
	version, err := releases.CurrentVersion()
	if err != nil || version == "" {
		version = "dev"
	}
	return "lightci/" + version
})

// Client talks to a lightci report server.
type Client struct {
	baseURL  string
	pipeline *Pipeline
}

// NewClient builds a server client. The token is the project build token;
// it may be empty for read-only calls.
func NewClient(baseURL, token string) *Client {
	return NewClientWithTransport(baseURL, token, nil)
}

// NewClientWithTransport is NewClient with an explicit transport, which
// tests use to point the client at a local server.
func NewClientWithTransport(baseURL, token string, transport http.RoundTripper) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		pipeline: NewPipeline(transport, DefaultPolicies(clientUserAgent(), token, 30*time.Second)...),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := NewRequest(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.pipeline.Do(req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := NewRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.pipeline.Do(req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

// FindProject resolves the client's build token to its project.
func (c *Client) FindProject(ctx context.Context, token string) (*datastore.Project, error) {
	project := &datastore.Project{}
	err := c.getJSON(ctx, "/v1/projects/lookup?token="+url.QueryEscape(token), project)
	if err != nil {
		return nil, fmt.Errorf("error looking up project: %w", err)
	}
	return project, nil
}

// CreateBuild opens a new build for the commit described by meta.
func (c *Client) CreateBuild(ctx context.Context, projectID string, meta BuildContext) (*datastore.Build, error) {
	build := &datastore.Build{}
	payload := &datastore.Build{
		Branch:           meta.Branch,
		Hash:             meta.Hash,
		CommitMessage:    meta.CommitMessage,
		Author:           meta.Author,
		AvatarURL:        meta.AvatarURL,
		AncestorHash:     meta.AncestorHash,
		ExternalBuildURL: meta.ExternalBuildURL,
	}
	err := c.sendJSON(ctx, http.MethodPost, "/v1/projects/"+projectID+"/builds", payload, build)
	if err != nil {
		return nil, fmt.Errorf("error creating build: %w", err)
	}
	return build, nil
}

// UploadRun ships one report into an unsealed build.
func (c *Client) UploadRun(ctx context.Context, projectID, buildID string, r *report.Report, representative bool) (*datastore.Run, error) {
	lhr, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	run := &datastore.Run{}
	payload := &datastore.Run{
		URL:            r.FinalURL,
		Representative: representative,
		LHR:            lhr,
	}
	path := "/v1/projects/" + projectID + "/builds/" + buildID + "/runs"
	if err := c.sendJSON(ctx, http.MethodPost, path, payload, run); err != nil {
		return nil, fmt.Errorf("error uploading run for %s: %w", r.FinalURL, err)
	}
	return run, nil
}

// SealBuild marks the build complete, which freezes its runs and computes
// statistics server-side.
func (c *Client) SealBuild(ctx context.Context, projectID, buildID string) error {
	path := "/v1/projects/" + projectID + "/builds/" + buildID + "/lifecycle"
	if err := c.sendJSON(ctx, http.MethodPut, path, datastore.LifecycleSealed, nil); err != nil {
		return fmt.Errorf("error sealing build: %w", err)
	}
	return nil
}

// BuildContext describes the commit a build was produced from.
type BuildContext struct {
	Branch           string
	Hash             string
	CommitMessage    string
	Author           string
	AvatarURL        string
	AncestorHash     string
	ExternalBuildURL string
}

// CurrentBuildContext reads the build context from LIGHTCI_BUILD_CONTEXT__*
// variables, falling back to the variables common CI providers export.
func CurrentBuildContext() BuildContext {
	return BuildContext{
		Branch:           firstEnv("LIGHTCI_BUILD_CONTEXT__CURRENT_BRANCH", "GITHUB_REF_NAME", "CI_COMMIT_REF_NAME", "TRAVIS_BRANCH"),
		Hash:             firstEnv("LIGHTCI_BUILD_CONTEXT__CURRENT_HASH", "GITHUB_SHA", "CI_COMMIT_SHA", "TRAVIS_COMMIT"),
		CommitMessage:    firstEnv("LIGHTCI_BUILD_CONTEXT__COMMIT_MESSAGE", "CI_COMMIT_MESSAGE"),
		Author:           firstEnv("LIGHTCI_BUILD_CONTEXT__AUTHOR", "GITHUB_ACTOR", "CI_COMMIT_AUTHOR"),
		AvatarURL:        os.Getenv("LIGHTCI_BUILD_CONTEXT__AVATAR_URL"),
		AncestorHash:     os.Getenv("LIGHTCI_BUILD_CONTEXT__ANCESTOR_HASH"),
		ExternalBuildURL: firstEnv("LIGHTCI_BUILD_CONTEXT__EXTERNAL_BUILD_URL", "CI_JOB_URL"),
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
