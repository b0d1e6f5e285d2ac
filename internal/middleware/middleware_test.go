package middleware

import (
    "crypto/sha256"
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/go-redis/redismock/v9"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/limited-seats/internal/config"
    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/utils"
)

const testSecret = "test-secret"

func identityHandler(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"user_id": UserID(c), "email": Email(c), "role": Role(c)})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func bearer(t *testing.T, secret, sub, role string) string {
    t.Helper()
    tok, err := utils.NewIdentityToken(secret, sub, sub+"@example.com", role, time.Hour)
    require.NoError(t, err)
    return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
    e := echo.New()
    e.GET("/me", identityHandler, JWTAuth(testSecret))

    tests := []struct {
        name   string
        header string
        status int
    }{
        {"missing", "", http.StatusUnauthorized},
        {"not bearer", "Basic abc", http.StatusUnauthorized},
        {"wrong secret", bearer(t, "other", "u1", "authenticated"), http.StatusUnauthorized},
        {"garbage", "Bearer not.a.jwt", http.StatusUnauthorized},
        {"valid", bearer(t, testSecret, "u1", "authenticated"), http.StatusOK},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            req := httptest.NewRequest(http.MethodGet, "/me", nil)
            if tt.header != "" {
                req.Header.Set("Authorization", tt.header)
            }
            rec := serve(e, req)
            assert.Equal(t, tt.status, rec.Code)
            if tt.status == http.StatusOK {
                assert.JSONEq(t, `{"user_id":"u1","email":"u1@example.com","role":"authenticated"}`, rec.Body.String())
            }
        })
    }
}

func TestOptionalJWT(t *testing.T) {
    e := echo.New()
    e.GET("/me", identityHandler, OptionalJWT(testSecret))

    rec := serve(e, httptest.NewRequest(http.MethodGet, "/me", nil))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"user_id":"","email":"","role":""}`, rec.Body.String())

    req := httptest.NewRequest(http.MethodGet, "/me", nil)
    req.Header.Set("Authorization", bearer(t, testSecret, "u2", "authenticated"))
    rec = serve(e, req)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"user_id":"u2"`)

    req = httptest.NewRequest(http.MethodGet, "/me", nil)
    req.Header.Set("Authorization", bearer(t, "other", "u2", "authenticated"))
    assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    e.GET("/admin", identityHandler, JWTAuth(testSecret), RequireRole(RoleService))

    req := httptest.NewRequest(http.MethodGet, "/admin", nil)
    req.Header.Set("Authorization", bearer(t, testSecret, "u1", "authenticated"))
    assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

    req = httptest.NewRequest(http.MethodGet, "/admin", nil)
    req.Header.Set("Authorization", bearer(t, testSecret, "ops", RoleService))
    assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestTokenBucket(t *testing.T) {
    fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
    now = func() time.Time { return fixed }
    t.Cleanup(func() { now = time.Now })

    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       5,
        RefillTokens:   1,
        RefillInterval: 2 * time.Second,
        TTL:            time.Minute,
        KeyStrategy:    "ip",
        Prefix:         "seats:rl",
    }
    key := "seats:rl:ip:192.0.2.1"
    args := []interface{}{fixed.UnixMilli(), 5, 1, int64(2000), int64(60)}

    rdb, mock := redismock.NewClientMock()
    e := echo.New()
    e.POST("/v1/reserve", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
        NewTokenBucket(cfg, rdb, logger.NewNop()))

    mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, args...).SetVal([]interface{}{int64(1), int64(4), int64(0)})
    rec := serve(e, httptest.NewRequest(http.MethodPost, "/v1/reserve", nil))
    assert.Equal(t, http.StatusCreated, rec.Code)
    assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
    assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))

    mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, args...).SetVal([]interface{}{int64(0), int64(0), int64(1500)})
    rec = serve(e, httptest.NewRequest(http.MethodPost, "/v1/reserve", nil))
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.Equal(t, "2", rec.Header().Get("Retry-After"))

    // Redis down: fail open.
    mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, args...).SetErr(errors.New("connection refused"))
    rec = serve(e, httptest.NewRequest(http.MethodPost, "/v1/reserve", nil))
    assert.Equal(t, http.StatusCreated, rec.Code)

    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/reserve", nil)
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/reserve")
    c.Set(ctxUserID, "u9")

    cfg := config.RateLimitConfig{Prefix: "p"}
    assert.Equal(t, "p:ip:192.0.2.1:user:u9:route:POST /v1/reserve", buildRateKey(cfg, c))
    cfg.KeyStrategy = "user"
    assert.Equal(t, "p:user:u9", buildRateKey(cfg, c))
}

func TestRedisCache(t *testing.T) {
    cfg := config.CacheConfig{
        Enabled: true,
        Methods: map[string]bool{http.MethodGet: true},
        TTL:     3 * time.Second,
        Prefix:  "seats:cache",
    }
    key := fmt.Sprintf("seats:cache:%x", sha256.Sum256([]byte("GET /v1/seats/availability?")))

    calls := 0
    handler := func(c echo.Context) error {
        calls++
        return c.String(http.StatusOK, "hello")
    }

    t.Run("miss stores the response", func(t *testing.T) {
        rdb, mock := redismock.NewClientMock()
        e := echo.New()
        e.GET("/v1/seats/availability", handler, NewRedisCache(cfg, rdb))

        hdr := http.Header{}
        hdr.Set("Content-Type", echo.MIMETextPlainCharsetUTF8)
        payload, err := encodePayload(http.StatusOK, hdr, []byte("hello"))
        require.NoError(t, err)

        mock.ExpectGet(key).RedisNil()
        mock.ExpectSetEx(key, payload, 3*time.Second).SetVal("OK")

        rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/seats/availability", nil))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
        assert.Equal(t, "hello", rec.Body.String())
        assert.Equal(t, 1, calls)
        assert.NoError(t, mock.ExpectationsWereMet())
    })

    t.Run("hit skips the handler", func(t *testing.T) {
        rdb, mock := redismock.NewClientMock()
        e := echo.New()
        e.GET("/v1/seats/availability", handler, NewRedisCache(cfg, rdb))

        hdr := http.Header{}
        hdr.Set("Content-Type", echo.MIMETextPlainCharsetUTF8)
        payload, err := encodePayload(http.StatusOK, hdr, []byte("cached"))
        require.NoError(t, err)
        mock.ExpectGet(key).SetVal(string(payload))

        before := calls
        rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/seats/availability", nil))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
        assert.Equal(t, "cached", rec.Body.String())
        assert.Equal(t, before, calls)
        assert.NoError(t, mock.ExpectationsWereMet())
    })

    t.Run("other methods bypass", func(t *testing.T) {
        rdb, mock := redismock.NewClientMock()
        e := echo.New()
        e.POST("/v1/seats/availability", handler, NewRedisCache(cfg, rdb))

        rec := serve(e, httptest.NewRequest(http.MethodPost, "/v1/seats/availability", nil))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Empty(t, rec.Header().Get("X-Cache"))
        assert.NoError(t, mock.ExpectationsWereMet())
    })
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)

    cr, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, cr.Status)
    assert.Equal(t, "application/json", cr.Header.Get("Content-Type"))
    assert.Equal(t, `{"ok":true}`, string(cr.Body))

    _, ok = decodePayload([]byte{0, 0})
    assert.False(t, ok)
    _, ok = decodePayload([]byte(`{}`))
    assert.False(t, ok)
}

func TestRequestLog(t *testing.T) {
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return echo.ErrTeapot }, RequestLog(logger.NewNop()))

    req := httptest.NewRequest(http.MethodGet, "/x", nil)
    req.Header.Set(HeaderRequestID, "rid-1")
    rec := serve(e, req)
    assert.Equal(t, http.StatusTeapot, rec.Code)
    assert.Equal(t, "rid-1", rec.Header().Get(HeaderRequestID))

    rec = serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
    assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}
