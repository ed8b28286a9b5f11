package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/gbus-app/gbus-server/internal/config"
	"github.com/gbus-app/gbus-server/internal/logging"
	"github.com/gbus-app/gbus-server/internal/utils"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	g := e.Group("", JWTAuth("secret"))
	g.GET("/me", func(c echo.Context) error {
		id, ok := UserID(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": c.Get(KeyRole)})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole("ADMIN"))

	user, _ := utils.NewAccessToken("secret", 7, "USER", 5)
	admin, _ := utils.NewAccessToken("secret", 1, "ADMIN", 5)
	forged, _ := utils.NewAccessToken("other", 1, "ADMIN", 5)

	cases := []struct {
		name, path, token string
		want              int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"forged", "/me", forged.Token, http.StatusUnauthorized},
		{"user me", "/me", user.Token, http.StatusOK},
		{"user admin", "/admin", user.Token, http.StatusForbidden},
		{"admin admin", "/admin", admin.Token, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := serve(e, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.name == "user me" && !strings.Contains(rec.Body.String(), `"id":7`) {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip", Prefix: "test:rl",
	}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb))

	for i := 0; i < 2; i++ {
		if rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil)
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, mw)
	for i := 0; i < 3; i++ {
		if rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
}

func TestRedisCacheReplaysPerParams(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, Prefix: "test:cache", MaxBodyBytes: 1 << 20,
	}
	calls := 0
	e := echo.New()
	e.GET("/items/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id")})
	}, NewRedisCache(cfg, rdb))

	first := serve(e, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	second := serve(e, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	other := serve(e, httptest.NewRequest(http.MethodGet, "/items/2", nil))

	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache = %q then %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body %q != %q", second.Body.String(), first.Body.String())
	}
	if !strings.Contains(other.Body.String(), `"2"`) || calls != 2 {
		t.Fatalf("calls = %d, other = %s", calls, other.Body.String())
	}
}

func TestRequestLoggerAttachesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestID(), RequestLogger(logger))
	e.GET("/ping", func(c echo.Context) error {
		if logging.FromContext(c.Request().Context()) == nil {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.NoContent(http.StatusOK)
	})
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	id := rec.Header().Get(echo.HeaderXRequestID)
	if len(id) != 36 {
		t.Fatalf("request id = %q", id)
	}
	out := buf.String()
	if !strings.Contains(out, "request completed") || !strings.Contains(out, id) || !strings.Contains(out, `"route":"/ping"`) {
		t.Fatalf("log = %s", out)
	}
}
