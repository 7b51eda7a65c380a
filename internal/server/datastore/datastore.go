// Package datastore defines the storage contract of the report server and
// the records it persists. Engine implementations live in the memory and
// postgres subpackages; the server selects one by name at startup.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Engines lists the datastore engines compiled into this binary. Engine
// packages append themselves from init.
var Engines []string

// SortedEngineIDs returns the full set of engine IDs, sorted.
func SortedEngineIDs() []string {
	engines := append([]string{}, Engines...)
	sort.Strings(engines)
	return engines
}

// EngineOptions returns the engine IDs, sorted and quoted, for flag help.
func EngineOptions() string {
	ids := SortedEngineIDs()
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}
	return strings.Join(quoted, ", ")
}

// Sentinel errors shared by every engine.
var (
	// ErrNotFound is returned when the named record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSealed is returned when writing runs to a sealed build.
	ErrSealed = errors.New("build is sealed")
)

// ReadyState communicates whether the datastore can serve traffic and, if
// not, why.
type ReadyState struct {
	// Message is a human-readable status for operators; only meaningful
	// when IsReady is false.
	Message string

	IsReady bool
}

// Project groups the builds of one site under a pair of access tokens.
// BuildToken authorizes uploads; AdminToken authorizes destructive calls.
// Tokens travel only in the creation response.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	ExternalURL string    `json:"externalUrl,omitempty"`
	BaseBranch  string    `json:"baseBranch"`
	BuildToken  string    `json:"buildToken,omitempty"`
	AdminToken  string    `json:"adminToken,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Sanitized returns a copy safe to return from read endpoints.
func (p *Project) Sanitized() *Project {
	out := *p
	out.BuildToken = ""
	out.AdminToken = ""
	return &out
}

// Build lifecycle states.
const (
	LifecycleUnsealed = "unsealed"
	LifecycleSealed   = "sealed"
)

// Build is one CI execution of a project: a commit, the runs uploaded for
// it, and eventually the statistics computed when it seals.
type Build struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"projectId"`
	Branch           string    `json:"branch"`
	Hash             string    `json:"hash"`
	CommitMessage    string    `json:"commitMessage,omitempty"`
	Author           string    `json:"author,omitempty"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	AncestorHash     string    `json:"ancestorHash,omitempty"`
	ExternalBuildURL string    `json:"externalBuildUrl,omitempty"`
	LifecycleState   string    `json:"lifecycleState"`
	RunAt            time.Time `json:"runAt"`
}

// Run is one uploaded report.
type Run struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"projectId"`
	BuildID        string          `json:"buildId"`
	URL            string          `json:"url"`
	Representative bool            `json:"representative"`
	LHR            json.RawMessage `json:"lhr"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Statistic is one aggregated metric over a sealed build's runs for one
// URL, e.g. audit_first-contentful-paint_median.
type Statistic struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	BuildID   string  `json:"buildId"`
	URL       string  `json:"url"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
}

// BuildFilter narrows ListBuilds.
type BuildFilter struct {
	// Branch limits results to one branch when non-empty.
	Branch string
	// Limit caps the result count; zero means the engine default.
	Limit int
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	// URL limits results to runs of one page when non-empty.
	URL string
	// Representative, when set, limits results by representative flag.
	Representative *bool
}

// Stats reports datastore size for maintenance logging.
type Stats struct {
	Projects int
	Builds   int
	Runs     int
}

// Datastore persists projects, builds, runs, and build statistics.
//
// Writes carry fully-populated records: the HTTP layer generates IDs,
// tokens, and timestamps so engines stay storage-only. List methods
// return newest first.
type Datastore interface {
	CreateProject(ctx context.Context, project *Project) error
	ListProjects(ctx context.Context) ([]*Project, error)
	GetProject(ctx context.Context, projectID string) (*Project, error)
	// GetProjectByToken resolves a build token to its project.
	GetProjectByToken(ctx context.Context, buildToken string) (*Project, error)

	CreateBuild(ctx context.Context, build *Build) error
	ListBuilds(ctx context.Context, projectID string, filter BuildFilter) ([]*Build, error)
	GetBuild(ctx context.Context, projectID, buildID string) (*Build, error)
	// FindAncestorBuild locates the build this one should be compared
	// against: the base-branch build with the recorded ancestor hash, or
	// failing that the most recent base-branch build not newer than this
	// one. ErrNotFound when the project has no candidate.
	FindAncestorBuild(ctx context.Context, projectID, buildID string) (*Build, error)
	UpdateBuildLifecycle(ctx context.Context, projectID, buildID, state string) error
	// DeleteBuild removes a build with its runs and statistics.
	DeleteBuild(ctx context.Context, projectID, buildID string) error

	CreateRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, projectID, buildID string, filter RunFilter) ([]*Run, error)
	// SetRunRepresentative flags one run per URL during sealing.
	SetRunRepresentative(ctx context.Context, runID string, representative bool) error

	// ReplaceStatistics swaps the statistics of a build atomically.
	ReplaceStatistics(ctx context.Context, buildID string, stats []*Statistic) error
	ListStatistics(ctx context.Context, projectID, buildID string) ([]*Statistic, error)

	// Ping verifies the backing store answers; healthz calls it.
	Ping(ctx context.Context) error
	// ReadyState reports whether the engine can serve, e.g. whether
	// migrations have run.
	ReadyState(ctx context.Context) (ReadyState, error)
	// Stats counts stored records for maintenance logging.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
