// ABOUTME: CSRF protection middleware using the custom-header pattern.
// ABOUTME: Cookie-authenticated state-changing requests must include X-Requested-By: TestManager.
package api

import (
	"net/http"
)

// csrfProtect rejects state-changing requests authenticated via cookie when
// the X-Requested-By: TestManager header is absent.
//
// A custom request header cannot be set by a plain HTML form or cross-origin
// fetch without a CORS preflight the server rejects, which makes the header
// an unforgeable proof of intent for browser-initiated requests.
//
// Exemptions:
//   - Safe methods (GET, HEAD, OPTIONS, TRACE) carry no state-change risk.
//   - Requests without an access_token cookie use Bearer token auth and are
//     not susceptible to CSRF (the browser has no token to attach).
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		if _, err := r.Cookie("access_token"); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("X-Requested-By") != "TestManager" {
			http.Error(w, "CSRF check failed: X-Requested-By header required", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
