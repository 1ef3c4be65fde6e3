package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"hot-mess-coach/internal/config"
)

const preflightMaxAge = 3600

var (
	corsAllowedMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	corsDefaultHeaders = []string{"Content-Type", "Authorization", RequestIDHeader}
	// Browsers read "*" literally on credentialed responses, so explicit
	// origin lists name the exposed headers.
	corsExposedHeaders = []string{RequestIDHeader}
)

// CORS applies the cross-origin policy to every response and answers OPTIONS
// preflights itself.
//
// Wildcard mode answers "*" and never allows credentials. With an explicit
// origin list the request origin is echoed only when it is listed. Preflights
// from unlisted origins are rejected with 403, unless policy.PreflightFallback
// is set, in which case they get a 200 carrying the first configured origin.
func CORS(policy config.CORS) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if r.Method == http.MethodOptions {
				preflight(w, r, policy, origin)
				return
			}

			if origin != "" {
				applyOriginHeaders(w.Header(), policy, origin)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func preflight(w http.ResponseWriter, r *http.Request, policy config.CORS, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", strings.Join(corsAllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", allowedHeaders(r))
	h.Set("Access-Control-Max-Age", strconv.Itoa(preflightMaxAge))

	switch {
	case origin == "":
		// Not a browser preflight; nothing to negotiate.
	case policy.Wildcard() || originAllowed(policy, origin):
		applyOriginHeaders(h, policy, origin)
	case policy.PreflightFallback:
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", policy.AllowedOrigins[0])
		h.Set("Access-Control-Allow-Credentials", "true")
	default:
		h.Add("Vary", "Origin")
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Disallowed CORS origin"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

// applyOriginHeaders sets the allow-origin headers for an actual or preflight
// request whose origin is known.
func applyOriginHeaders(h http.Header, policy config.CORS, origin string) {
	if policy.Wildcard() {
		h.Set("Access-Control-Allow-Origin", config.WildcardOrigin)
		h.Set("Access-Control-Expose-Headers", config.WildcardOrigin)
		return
	}
	h.Add("Vary", "Origin")
	if !originAllowed(policy, origin) {
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	if policy.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	h.Set("Access-Control-Expose-Headers", strings.Join(corsExposedHeaders, ", "))
}

func originAllowed(policy config.CORS, origin string) bool {
	return slices.Contains(policy.AllowedOrigins, origin)
}

// allowedHeaders echoes the requested headers so that any header is accepted.
func allowedHeaders(r *http.Request) string {
	if requested := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); requested != "" {
		return requested
	}
	return strings.Join(corsDefaultHeaders, ", ")
}
