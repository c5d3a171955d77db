// Package api implements the trámites REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/starford/tramites/internal/history"
)

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Change metadata headers.
const (
	HeaderActor  = "X-Actor"
	HeaderReason = "X-Change-Reason"
)

// changeMeta reads who is making a change and why from the request headers.
func changeMeta(r *http.Request) history.Meta {
	return history.Meta{
		Actor:  strings.TrimSpace(r.Header.Get(HeaderActor)),
		Reason: strings.TrimSpace(r.Header.Get(HeaderReason)),
	}
}
