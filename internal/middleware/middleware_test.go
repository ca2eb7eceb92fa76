package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundledger/config"
	"fundledger/internal/auth"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	limiter := NewInMemoryRateLimiter(2, time.Minute)
	defer limiter.Close()
	r := gin.New()
	r.Use(RateLimit(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = w.Code
		if i == 2 && w.Header().Get("Retry-After") == "" {
			t.Fatalf("expected Retry-After on rejection")
		}
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestAuthAndRoles(t *testing.T) {
	cfg := &config.JWTConfig{AccessSecret: "k", AccessExpiry: time.Minute, Issuer: "fundledger"}
	r := gin.New()
	r.GET("/approve", AuthRequired(cfg), RequireRole("APPROVER", "ADMIN"), func(c *gin.Context) {
		c.String(http.StatusOK, GetActorID(c))
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/approve", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := call(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: got %d", w.Code)
	}
	if w := call("Token abc"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme: got %d", w.Code)
	}
	donor, _ := auth.GenerateAccessToken(cfg, "d1", "DONOR")
	if w := call("Bearer " + donor); w.Code != http.StatusForbidden {
		t.Fatalf("donor should be forbidden, got %d", w.Code)
	}
	approver, _ := auth.GenerateAccessToken(cfg, "ap1", "APPROVER")
	w := call("Bearer " + approver)
	if w.Code != http.StatusOK || w.Body.String() != "ap1" {
		t.Fatalf("approver should pass, got %d %q", w.Code, w.Body.String())
	}
}
