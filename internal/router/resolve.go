// Package router resolves the upstream endpoint for a request.
package router

import (
	"net/http"

	"github.com/keizman/overlay-relay/internal/auth"
)

// Resolve returns the target endpoint for a request: the site_api header
// value when present and non-empty, otherwise the configured default. No
// URL validation happens here; a malformed target surfaces as an upstream
// call error.
func Resolve(h http.Header, defaultEndpoint string) string {
	if target := auth.HeaderValue(h, auth.RouteHeader, auth.RouteHeaderAlt); target != "" {
		return target
	}
	return defaultEndpoint
}
