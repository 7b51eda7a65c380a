package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/projects", nil)
	r.Header.Set("Authorization", "Bearer build-token-a")

	token, err := FromRequest(r)
	require.NoError(t, err)
	require.Equal(t, "build-token-a", token)
}

func TestFromRequestSchemeIsCaseInsensitive(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/projects", nil)
	r.Header.Set("Authorization", "bearer build-token-a")

	token, err := FromRequest(r)
	require.NoError(t, err)
	require.Equal(t, "build-token-a", token)
}

func TestFromRequestMissing(t *testing.T) {
	for _, header := range []string{"", "Bearer", "Bearer ", "Basic dXNlcg=="} {
		r := httptest.NewRequest("GET", "/v1/projects", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		_, err := FromRequest(r)
		require.ErrorIs(t, err, ErrMissingToken, "header %q", header)
	}
}

func TestEqual(t *testing.T) {
	require.True(t, Equal("admin-token", "admin-token"))
	require.False(t, Equal("admin-token", "admin-tokem"))
	require.False(t, Equal("admin-token", ""))
}
