package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dating_platform/internal/domain"
	"dating_platform/internal/logger"
	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
)

type stubUsers map[int64]*domain.User

func (s stubUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, service.ErrUserNotFound
}

func init() {
	gin.SetMode(gin.TestMode)
	service.SetJWTSecret("middleware-test-secret")
}

func bearer(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := service.GenerateJWT(userID)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func TestAuth(t *testing.T) {
	users := stubUsers{
		1: {ID: 1, Role: "premium", IsActive: true},
		2: {ID: 2, Role: domain.RoleUser, IsActive: true, IsSuspended: true},
		3: {ID: 3, Role: domain.RoleAdmin, IsActive: true},
	}

	r := gin.New()
	r.GET("/me", Auth(users), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64("user_id"), "role": c.GetString("role")})
	})
	r.GET("/admin", Auth(users), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"not bearer", "/me", "Token abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", http.StatusUnauthorized},
		{"unknown user", "/me", bearer(t, 99), http.StatusUnauthorized},
		{"suspended", "/me", bearer(t, 2), http.StatusForbidden},
		{"active", "/me", bearer(t, 1), http.StatusOK},
		{"admin route as premium", "/admin", bearer(t, 1), http.StatusForbidden},
		{"admin route as admin", "/admin", bearer(t, 3), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d; want %d (body %s)", w.Code, tc.want, w.Body)
			}
		})
	}
}

func TestAuthReloadsRole(t *testing.T) {
	users := stubUsers{1: {ID: 1, Role: domain.RoleAdmin, IsActive: true}}
	r := gin.New()
	r.GET("/admin", Auth(users), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tok := bearer(t, 1)
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if got := call(); got != http.StatusNoContent {
		t.Fatalf("admin status = %d", got)
	}
	users[1].Role = domain.RoleUser
	if got := call(); got != http.StatusForbidden {
		t.Fatalf("demoted status = %d", got)
	}
}

func TestMemoryRateLimit(t *testing.T) {
	l := NewRateLimiter(nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/ip", l.PerIP(2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/pay", func(c *gin.Context) {
		if v := c.GetHeader("X-User"); v != "" {
			c.Set("user_id", int64(len(v)))
		}
	}, l.PerUser("payment", 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(path, user string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i, want := range []int{200, 200, 429} {
		if got := hit("/ip", ""); got != want {
			t.Fatalf("ip hit %d = %d; want %d", i, got, want)
		}
	}
	now = now.Add(2 * time.Minute)
	if got := hit("/ip", ""); got != http.StatusOK {
		t.Fatalf("new window = %d", got)
	}

	if got := hit("/pay", ""); got != http.StatusUnauthorized {
		t.Fatalf("anonymous pay = %d", got)
	}
	if got := hit("/pay", "a"); got != http.StatusOK {
		t.Fatalf("user a first = %d", got)
	}
	if got := hit("/pay", "a"); got != http.StatusTooManyRequests {
		t.Fatalf("user a second = %d", got)
	}
	if got := hit("/pay", "bb"); got != http.StatusOK {
		t.Fatalf("user bb first = %d", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	r := gin.New()
	r.GET("/", RequestID(), func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || w.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("generated id %q header %q", seen, w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Fatalf("caller id not reused: %q", seen)
	}
}
