// Package auth extracts and compares the bearer tokens that authorize
// report-server requests. Build tokens are resolved to projects by the
// caller; admin tokens are compared here in constant time.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingToken is returned when a request carries no usable
// Authorization header.
var ErrMissingToken = errors.New("missing bearer token")

// FromRequest returns the bearer token of a request.
func FromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
