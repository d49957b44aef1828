package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"mailsync/pkg/trace"
)

func newAuthRouter(secret, audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", WebhookAuthMiddleware(secret, audience), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func signToken(t *testing.T, secret, audience string, expiry time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": audience,
		"exp": expiry.Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestWebhookAuthAcceptsValidToken(t *testing.T) {
	r := newAuthRouter("hush", "mailsync")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "hush", "mailsync", time.Now().Add(time.Hour)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookAuthRejections(t *testing.T) {
	r := newAuthRouter("hush", "mailsync")

	cases := []struct {
		name string
		auth string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", "mailsync", time.Now().Add(time.Hour))},
		{"wrong audience", "Bearer " + signToken(t, "hush", "someone-else", time.Now().Add(time.Hour))},
		{"expired", "Bearer " + signToken(t, "hush", "mailsync", time.Now().Add(-time.Hour))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = trace.FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	// Incoming trace id is propagated.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(trace.HeaderName, "trace-123")
	r.ServeHTTP(w, req)
	if seen != "trace-123" {
		t.Errorf("expected incoming trace id propagated, got %q", seen)
	}
	if got := w.Header().Get(trace.HeaderName); got != "trace-123" {
		t.Errorf("expected trace id echoed in response, got %q", got)
	}

	// Without one, a fresh id is minted.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if seen == "" || seen == "trace-123" {
		t.Errorf("expected a fresh trace id, got %q", seen)
	}
}
