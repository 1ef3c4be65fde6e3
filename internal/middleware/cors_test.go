package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"hot-mess-coach/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func explicitPolicy(fallback bool) config.CORS {
	origins, creds := config.ParseAllowedOrigins("https://a.com,https://b.com")
	return config.CORS{AllowedOrigins: origins, AllowCredentials: creds, PreflightFallback: fallback}
}

func serve(t *testing.T, policy config.CORS, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	CORS(policy)(okHandler()).ServeHTTP(w, req)
	return w
}

func TestCORS_Wildcard_AnyOrigin(t *testing.T) {
	for _, origin := range []string{"https://a.com", "https://evil.com", "http://localhost:3000"} {
		w := serve(t, config.CORS{}, http.MethodPost, origin)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), "origin=%s", origin)
		require.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
		require.Equal(t, "*", w.Header().Get("Access-Control-Expose-Headers"))
	}
}

func TestCORS_Wildcard_Preflight(t *testing.T) {
	w := serve(t, config.CORS{}, http.MethodOptions, "https://anything.example")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String())
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_Explicit_AllowedOrigin(t *testing.T) {
	w := serve(t, explicitPolicy(false), http.MethodPost, "https://b.com")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://b.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
	require.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORS_Explicit_DisallowedOriginStillServed(t *testing.T) {
	w := serve(t, explicitPolicy(false), http.MethodPost, "https://evil.com")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Explicit_PreflightAllowed(t *testing.T) {
	w := serve(t, explicitPolicy(false), http.MethodOptions, "https://a.com")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String())
	require.Equal(t, "https://a.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Explicit_PreflightRejected(t *testing.T) {
	w := serve(t, explicitPolicy(false), http.MethodOptions, "https://evil.com")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	require.JSONEq(t, `{"detail":"Disallowed CORS origin"}`, w.Body.String())
}

func TestCORS_Explicit_PreflightFallback(t *testing.T) {
	w := serve(t, explicitPolicy(true), http.MethodOptions, "https://evil.com")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://a.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEqual(t, "https://evil.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightWithoutOrigin(t *testing.T) {
	w := serve(t, explicitPolicy(false), http.MethodOptions, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_PreflightEchoesRequestedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://a.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type, x-custom")
	w := httptest.NewRecorder()

	CORS(explicitPolicy(false))(okHandler()).ServeHTTP(w, req)
	require.Equal(t, "content-type, x-custom", w.Header().Get("Access-Control-Allow-Headers"))

	w = serve(t, explicitPolicy(false), http.MethodOptions, "https://a.com")
	require.Equal(t, "Content-Type, Authorization, X-Request-ID", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_PreflightDoesNotReachHandler(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://a.com")
	CORS(config.CORS{})(next).ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, called)
}

func TestCORS_NoOriginHeader_NoCORSHeaders(t *testing.T) {
	w := serve(t, config.CORS{}, http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
