package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/keizman/overlay-relay/internal/httputil"
)

// SiteHeader is the shared-secret header clients must present. Both the
// underscore and dash spellings are accepted because browser extensions
// differ in how they emit it.
const (
	SiteHeader     = "site_auth"
	SiteHeaderAlt  = "site-auth"
	RouteHeader    = "site_api"
	RouteHeaderAlt = "site-api"
)

// RejectFunc observes an authentication rejection, after the 401 has been
// written. The pipeline uses it to audit-log the terminal transition.
type RejectFunc func(r *http.Request, requestID, reason string)

// Middleware returns a chi middleware that enforces the site_auth shared
// secret and extracts the Authorization credential for upstream forwarding.
// onReject may be nil.
func Middleware(siteToken func() string, onReject RejectFunc) func(http.Handler) http.Handler {
	reject := func(r *http.Request, reqID, reason string) {
		if onReject != nil {
			onReject(r, reqID, reason)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			siteAuth := HeaderValue(r.Header, SiteHeader, SiteHeaderAlt)
			if !tokenEqual(siteAuth, siteToken()) {
				httputil.WriteAuthError(w, reqID, "Unauthorized: Invalid site_auth")
				reject(r, reqID, "invalid site_auth")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteMissingCredentialError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				reject(r, reqID, "missing credential")
				return
			}

			ctx := ContextWithAuth(r.Context(), &AuthInfo{Authorization: authHeader})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderValue returns the first non-empty value among the given header names.
func HeaderValue(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// tokenEqual compares the presented secret against the expected one. The
// comparison is constant-time; a missing header never matches.
func tokenEqual(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
