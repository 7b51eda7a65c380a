package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treosh/lightci/internal/server/datastore"
)

func TestClientFlow(t *testing.T) {
	var gotBuild datastore.Build
	var gotRun datastore.Run
	var sealBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok_abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/projects/lookup":
			require.Equal(t, "tok_abc", r.URL.Query().Get("token"))
			require.NoError(t, json.NewEncoder(w).Encode(datastore.Project{ID: "proj_1", Name: "marketing-site"}))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/projects/proj_1/builds":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBuild))
			gotBuild.ID = "build_1"
			require.NoError(t, json.NewEncoder(w).Encode(gotBuild))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/projects/proj_1/builds/build_1/runs":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRun))
			gotRun.ID = "run_1"
			require.NoError(t, json.NewEncoder(w).Encode(gotRun))
		case r.Method == http.MethodPut && r.URL.Path == "/v1/projects/proj_1/builds/build_1/lifecycle":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			sealBody = string(body)
			require.NoError(t, json.NewEncoder(w).Encode(map[string]string{"lifecycleState": datastore.LifecycleSealed}))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	client := NewClient(srv.URL, "tok_abc")

	project, err := client.FindProject(ctx, "tok_abc")
	require.NoError(t, err)
	require.Equal(t, "proj_1", project.ID)

	build, err := client.CreateBuild(ctx, project.ID, BuildContext{Branch: "main", Hash: "abc123", Author: "dev"})
	require.NoError(t, err)
	require.Equal(t, "build_1", build.ID)
	require.Equal(t, "main", gotBuild.Branch)
	require.Equal(t, "abc123", gotBuild.Hash)
	require.Equal(t, "dev", gotBuild.Author)

	run, err := client.UploadRun(ctx, project.ID, build.ID, newTestReport("https://example.com/", 1200), true)
	require.NoError(t, err)
	require.Equal(t, "run_1", run.ID)
	require.True(t, gotRun.Representative)
	require.Equal(t, "https://example.com/", gotRun.URL)
	require.NotEmpty(t, gotRun.LHR)

	require.NoError(t, client.SealBuild(ctx, project.ID, build.ID))
	require.JSONEq(t, `"sealed"`, sealBody)
}

func TestDecodeJSONStructuredError(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusNotFound)
	rec.Body.WriteString(`{"code":"not_found","message":"no project with that token"}`)

	err := DecodeJSON(rec.Result(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "not_found", apiErr.Code)
	require.Contains(t, apiErr.Error(), "no project with that token")
}

func TestDecodeJSONTextFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusInternalServerError)
	rec.Body.WriteString("upstream exploded")

	err := DecodeJSON(rec.Result(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Empty(t, apiErr.Code)
	require.Equal(t, "upstream exploded", apiErr.Message)
}

func TestDecodeJSONRejectsNonJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "text/html")
	rec.Body.WriteString("<html></html>")

	var out struct{}
	err := DecodeJSON(rec.Result(), &out)
	require.ErrorContains(t, err, "expected a JSON response")
}

func TestCurrentBuildContext(t *testing.T) {
	t.Setenv("LIGHTCI_BUILD_CONTEXT__CURRENT_BRANCH", "feat/header")
	t.Setenv("LIGHTCI_BUILD_CONTEXT__CURRENT_HASH", "")
	t.Setenv("GITHUB_SHA", "4f2c6b1")
	t.Setenv("LIGHTCI_BUILD_CONTEXT__COMMIT_MESSAGE", "tune cache headers")
	t.Setenv("LIGHTCI_BUILD_CONTEXT__AUTHOR", "dev@example.com")

	meta := CurrentBuildContext()
	require.Equal(t, "feat/header", meta.Branch)
	require.Equal(t, "4f2c6b1", meta.Hash)
	require.Equal(t, "tune cache headers", meta.CommitMessage)
	require.Equal(t, "dev@example.com", meta.Author)
}
