package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"avidlp/youtube-server/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.POST("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		wantStatus int
	}{
		{"not configured, no header", "", "", http.StatusOK},
		{"not configured, any header", "", "whatever", http.StatusOK},
		{"configured, match", "secret-key", "secret-key", http.StatusOK},
		{"configured, mismatch", "secret-key", "wrong", http.StatusUnauthorized},
		{"configured, missing", "secret-key", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(APIKey(tt.configured, zap.NewNop()))
			headers := map[string]string{}
			if tt.provided != "" {
				headers[APIKeyHeader] = tt.provided
			}
			w := do(r, http.MethodPost, "/ping", headers)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body map[string]any
				json.Unmarshal(w.Body.Bytes(), &body)
				if body["message"] != "Invalid API Key" || body["detail"] != "Invalid API Key" {
					t.Fatalf("body = %s", w.Body.String())
				}
			}
		})
	}
}

func TestCORS(t *testing.T) {
	allowList := &config.CORSConfig{AllowedOrigins: []string{"https://app.example"}, MaxAge: 600}

	t.Run("allowed origin", func(t *testing.T) {
		w := do(newEngine(CORS(allowList)), http.MethodGet, "/ping", map[string]string{"Origin": "https://app.example"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Fatalf("allow-origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Max-Age"); got != "600" {
			t.Fatalf("max-age = %q", got)
		}
	})

	t.Run("rejected origin", func(t *testing.T) {
		w := do(newEngine(CORS(allowList)), http.MethodGet, "/ping", map[string]string{"Origin": "https://evil.example"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("allow-origin = %q, want empty", got)
		}
	})

	t.Run("wildcard reflects origin", func(t *testing.T) {
		w := do(newEngine(CORS(&config.CORSConfig{})), http.MethodGet, "/ping", map[string]string{"Origin": "https://any.example"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example" {
			t.Fatalf("allow-origin = %q", got)
		}
	})

	t.Run("wildcard entry allows any origin", func(t *testing.T) {
		cfg := &config.CORSConfig{AllowedOrigins: []string{"https://app.example", "*"}}
		w := do(newEngine(CORS(cfg)), http.MethodGet, "/ping", map[string]string{"Origin": "https://other.example"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://other.example" {
			t.Fatalf("allow-origin = %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		w := do(newEngine(CORS(&config.CORSConfig{})), http.MethodOptions, "/ping", map[string]string{"Origin": "https://any.example"})
		if w.Code != http.StatusNoContent {
			t.Fatalf("preflight status = %d", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Headers") == "" {
			t.Fatal("missing allow-headers")
		}
	})
}

func TestLoggerSetsRequestID(t *testing.T) {
	r := newEngine(Logger(zap.NewNop()))

	w := do(r, http.MethodGet, "/ping", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("generated request id missing")
	}

	w = do(r, http.MethodGet, "/ping", map[string]string{"X-Request-ID": "given-id"})
	if got := w.Header().Get("X-Request-ID"); got != "given-id" {
		t.Fatalf("request id = %q, want given-id", got)
	}
}

func TestRecovery(t *testing.T) {
	r := newEngine(Logger(zap.NewNop()), Recovery(zap.NewNop()))
	w := do(r, http.MethodGet, "/panic", map[string]string{"X-Request-ID": "rid-1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["request_id"] != "rid-1" {
		t.Fatalf("body = %v", body)
	}
}

func TestIPRateLimit(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{RPS: 1, Burst: 2})
	r := newEngine(IPRateLimit(rl))

	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodGet, "/ping", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/ping", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
}

func TestRateLimiterSweepsIdleIPs(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: 10 * time.Minute})
	t0 := time.Now()
	rl.getIPLimiter("198.51.100.1", t0)
	rl.getIPLimiter("198.51.100.2", t0.Add(9*time.Minute))

	if removed := rl.Sweep(t0.Add(11 * time.Minute)); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if rl.Len() != 1 {
		t.Fatalf("len = %d, want 1", rl.Len())
	}
	if _, ok := rl.ipLimiters.Load("198.51.100.2"); !ok {
		t.Fatal("recently seen ip was evicted")
	}
}

func TestIPRateLimitEvictsIdleIPs(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: 10 * time.Minute})
	rl.getIPLimiter("198.51.100.7", time.Now().Add(-time.Hour))
	rl.lastSweep.Store(time.Now().Add(-2 * sweepInterval).UnixNano())

	if w := do(newEngine(IPRateLimit(rl)), http.MethodGet, "/ping", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := rl.ipLimiters.Load("198.51.100.7"); ok {
		t.Fatal("idle ip not evicted")
	}
	if rl.Len() != 1 {
		t.Fatalf("len = %d, want only the requesting ip", rl.Len())
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{"": "<none>", "abc": "****", "abcdefgh": "abcd****"}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
