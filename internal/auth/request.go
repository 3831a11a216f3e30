package auth

import (
	"net/http"
	"strings"
)

// ExtractTokenFromRequest pulls a bearer token from the Authorization
// header, falling back to the token query parameter.
func ExtractTokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
