package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/internal/server/datastore"
	"github.com/treosh/lightci/pkg/releases"
	"github.com/treosh/lightci/pkg/secrets"
)

// Reports run a few megabytes; anything past this is abuse.
const maxRequestBytes = 32 << 20

const defaultBaseBranch = "main"

type apiHandler struct {
	ds    datastore.Datastore
	authn *authenticator
}

// newAPIHandler builds the versioned REST API. IDs, tokens, and
// timestamps are generated here so datastore engines stay storage-only.
func newAPIHandler(ds datastore.Datastore, authn *authenticator) http.Handler {
	h := &apiHandler{ds: ds, authn: authn}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /v1/version", h.version)

	mux.HandleFunc("POST /v1/projects", h.createProject)
	mux.HandleFunc("GET /v1/projects", h.listProjects)
	mux.HandleFunc("GET /v1/projects/lookup", h.lookupProject)
	mux.HandleFunc("GET /v1/projects/{projectID}", h.getProject)

	mux.HandleFunc("GET /v1/projects/{projectID}/builds", h.listBuilds)
	mux.Handle("POST /v1/projects/{projectID}/builds", authn.requireBuildToken(h.createBuild))
	mux.HandleFunc("GET /v1/projects/{projectID}/builds/{buildID}", h.getBuild)
	mux.HandleFunc("GET /v1/projects/{projectID}/builds/{buildID}/ancestor", h.findAncestorBuild)
	mux.Handle("DELETE /v1/projects/{projectID}/builds/{buildID}", authn.requireAdminToken(h.deleteBuild))

	mux.Handle("POST /v1/projects/{projectID}/builds/{buildID}/runs", authn.requireBuildToken(h.createRun))
	mux.HandleFunc("GET /v1/projects/{projectID}/builds/{buildID}/runs", h.listRuns)
	mux.Handle("PUT /v1/projects/{projectID}/builds/{buildID}/lifecycle", authn.requireBuildToken(h.updateBuildLifecycle))
	mux.HandleFunc("GET /v1/projects/{projectID}/builds/{buildID}/statistics", h.listStatistics)

	return mux
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
}

func writeDatastoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, datastore.ErrSealed):
		writeError(w, http.StatusConflict, "sealed", "build is sealed and accepts no further runs")
	default:
		log.Err(err).Msg("datastore error")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *apiHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.ds.Ping(r.Context()); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("datastore ping failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "datastore unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) version(w http.ResponseWriter, _ *http.Request) {
	version, err := releases.CurrentVersion()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "unable to determine version")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (h *apiHandler) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		ExternalURL string `json:"externalUrl"`
		BaseBranch  string `json:"baseBranch"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "project name is required")
		return
	}
	if req.BaseBranch == "" {
		req.BaseBranch = defaultBaseBranch
	}

	adminToken, err := secrets.TokenHex(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "unable to generate tokens")
		return
	}
	project := &datastore.Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		ExternalURL: req.ExternalURL,
		BaseBranch:  req.BaseBranch,
		BuildToken:  uuid.NewString(),
		AdminToken:  adminToken,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.ds.CreateProject(r.Context(), project); err != nil {
		writeDatastoreError(w, err)
		return
	}

	log.Ctx(r.Context()).Info().
		Str("project", project.ID).
		Str("slug", project.Slug).
		Msg("created project")

	// The only response that carries the tokens.
	writeJSON(w, http.StatusCreated, project)
}

func (h *apiHandler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.ds.ListProjects(r.Context())
	if err != nil {
		writeDatastoreError(w, err)
		return
	}

	sanitized := make([]*datastore.Project, 0, len(projects))
	for _, project := range projects {
		sanitized = append(sanitized, project.Sanitized())
	}
	writeJSON(w, http.StatusOK, sanitized)
}

func (h *apiHandler) lookupProject(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "token query parameter is required")
		return
	}

	project, err := h.ds.GetProjectByToken(r.Context(), token)
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project.Sanitized())
}

func (h *apiHandler) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.ds.GetProject(r.Context(), r.PathValue("projectID"))
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project.Sanitized())
}

func (h *apiHandler) listBuilds(w http.ResponseWriter, r *http.Request) {
	filter := datastore.BuildFilter{Branch: r.URL.Query().Get("branch")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		filter.Limit = parsed
	}

	builds, err := h.ds.ListBuilds(r.Context(), r.PathValue("projectID"), filter)
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, builds)
}

func (h *apiHandler) createBuild(w http.ResponseWriter, r *http.Request, project *datastore.Project) {
	var req struct {
		Branch           string    `json:"branch"`
		Hash             string    `json:"hash"`
		CommitMessage    string    `json:"commitMessage"`
		Author           string    `json:"author"`
		AvatarURL        string    `json:"avatarUrl"`
		AncestorHash     string    `json:"ancestorHash"`
		ExternalBuildURL string    `json:"externalBuildUrl"`
		RunAt            time.Time `json:"runAt"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Branch == "" || req.Hash == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "branch and hash are required")
		return
	}
	if req.RunAt.IsZero() {
		req.RunAt = time.Now().UTC()
	}

	build := &datastore.Build{
		ID:               uuid.NewString(),
		ProjectID:        project.ID,
		Branch:           req.Branch,
		Hash:             req.Hash,
		CommitMessage:    req.CommitMessage,
		Author:           req.Author,
		AvatarURL:        req.AvatarURL,
		AncestorHash:     req.AncestorHash,
		ExternalBuildURL: req.ExternalBuildURL,
		LifecycleState:   datastore.LifecycleUnsealed,
		RunAt:            req.RunAt,
	}
	if err := h.ds.CreateBuild(r.Context(), build); err != nil {
		writeDatastoreError(w, err)
		return
	}

	log.Ctx(r.Context()).Info().
		Str("project", project.ID).
		Str("build", build.ID).
		Str("branch", build.Branch).
		Msg("created build")

	writeJSON(w, http.StatusCreated, build)
}

func (h *apiHandler) getBuild(w http.ResponseWriter, r *http.Request) {
	build, err := h.ds.GetBuild(r.Context(), r.PathValue("projectID"), r.PathValue("buildID"))
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (h *apiHandler) findAncestorBuild(w http.ResponseWriter, r *http.Request) {
	ancestor, err := h.ds.FindAncestorBuild(r.Context(), r.PathValue("projectID"), r.PathValue("buildID"))
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ancestor)
}

func (h *apiHandler) deleteBuild(w http.ResponseWriter, r *http.Request, project *datastore.Project) {
	buildID := r.PathValue("buildID")
	if err := h.ds.DeleteBuild(r.Context(), project.ID, buildID); err != nil {
		writeDatastoreError(w, err)
		return
	}

	log.Ctx(r.Context()).Info().
		Str("project", project.ID).
		Str("build", buildID).
		Msg("deleted build")

	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) createRun(w http.ResponseWriter, r *http.Request, project *datastore.Project) {
	var req struct {
		URL string          `json:"url"`
		LHR json.RawMessage `json:"lhr"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.URL == "" || len(req.LHR) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "url and lhr are required")
		return
	}

	run := &datastore.Run{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		BuildID:   r.PathValue("buildID"),
		URL:       req.URL,
		LHR:       req.LHR,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.ds.CreateRun(r.Context(), run); err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *apiHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := datastore.RunFilter{URL: r.URL.Query().Get("url")}
	if representative := r.URL.Query().Get("representative"); representative != "" {
		parsed, err := strconv.ParseBool(representative)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "representative must be a boolean")
			return
		}
		filter.Representative = &parsed
	}

	runs, err := h.ds.ListRuns(r.Context(), r.PathValue("projectID"), r.PathValue("buildID"), filter)
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// updateBuildLifecycle seals a build: representative runs are chosen per
// URL and the build's statistics are computed and stored. Sealing an
// already-sealed build is a no-op.
func (h *apiHandler) updateBuildLifecycle(w http.ResponseWriter, r *http.Request, project *datastore.Project) {
	var state string
	if err := decodeJSON(w, r, &state); err != nil || state != datastore.LifecycleSealed {
		writeError(w, http.StatusBadRequest, "bad_request", `lifecycle body must be "sealed"`)
		return
	}

	ctx := r.Context()
	buildID := r.PathValue("buildID")
	build, err := h.ds.GetBuild(ctx, project.ID, buildID)
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	if build.LifecycleState == datastore.LifecycleSealed {
		writeJSON(w, http.StatusOK, build)
		return
	}

	runs, err := h.ds.ListRuns(ctx, project.ID, buildID, datastore.RunFilter{})
	if err != nil {
		writeDatastoreError(w, err)
		return
	}

	points, representativeRuns, err := computeStatistics(runs)
	if err != nil {
		log.Ctx(ctx).Err(err).Msg("failed to compute build statistics")
		writeError(w, http.StatusInternalServerError, "internal", "unable to compute statistics")
		return
	}
	for _, runID := range representativeRuns {
		if err := h.ds.SetRunRepresentative(ctx, runID, true); err != nil {
			writeDatastoreError(w, err)
			return
		}
	}

	stats := make([]*datastore.Statistic, 0, len(points))
	for _, point := range points {
		stats = append(stats, &datastore.Statistic{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			BuildID:   buildID,
			URL:       point.URL,
			Name:      point.Name,
			Value:     point.Value,
		})
	}
	if err := h.ds.ReplaceStatistics(ctx, buildID, stats); err != nil {
		writeDatastoreError(w, err)
		return
	}

	if err := h.ds.UpdateBuildLifecycle(ctx, project.ID, buildID, datastore.LifecycleSealed); err != nil {
		writeDatastoreError(w, err)
		return
	}
	build.LifecycleState = datastore.LifecycleSealed

	log.Ctx(ctx).Info().
		Str("project", project.ID).
		Str("build", buildID).
		Int("runs", len(runs)).
		Int("statistics", len(stats)).
		Msg("sealed build")

	writeJSON(w, http.StatusOK, build)
}

func (h *apiHandler) listStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ds.ListStatistics(r.Context(), r.PathValue("projectID"), r.PathValue("buildID"))
	if err != nil {
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
