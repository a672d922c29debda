package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORS(t *testing.T) {
	newRouter := func(cfg CORSConfig) *gin.Engine {
		r := gin.New()
		r.Use(CORS(cfg))
		r.POST("/functions/v1/quota", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/functions/v1/quota", nil)
		req.Header.Set("Origin", "https://app.example.com")
		newRouter(DefaultCORSConfig()).ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
	})

	t.Run("restricted origin", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://admin.example.com"}
		cfg.AllowCredentials = true
		router := newRouter(cfg)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/quota", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		router.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("credentials header missing")
		}

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodOptions, "/functions/v1/quota", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("unknown origin preflight = %d, want 403", w.Code)
		}
	})
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(HeaderRequestID); got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want req-abc", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get(HeaderRequestID) == "" {
		t.Error("request id not generated")
	}
}
