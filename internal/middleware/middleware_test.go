package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/utils"
)

const secret = "test-secret"

func newServer() *echo.Echo {
	e := echo.New()
	g := e.Group("/kitchen", JWTAuth(secret), RequireRole(model.RoleChef, model.RoleAdmin))
	g.GET("/whoami", func(c echo.Context) error {
		a, _ := ActorFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"id": a.ID, "role": a.Role})
	})
	return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/kitchen/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuthAndRole(t *testing.T) {
	e := newServer()

	rec := call(e, token(t, 7, "CHEF"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"CHEF"}`, rec.Body.String())

	rec = call(e, token(t, 8, "student"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthRejects(t *testing.T) {
	e := newServer()
	sign := func(claims jwt.MapClaims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", sign(jwt.MapClaims{"sub": "1", "role": "CHEF", "exp": exp}, "other")},
		{"expired", sign(jwt.MapClaims{"sub": "1", "role": "CHEF", "exp": time.Now().Add(-time.Minute).Unix()}, secret)},
		{"system role", sign(jwt.MapClaims{"sub": "1", "role": "SYSTEM", "exp": exp}, secret)},
		{"unknown role", sign(jwt.MapClaims{"sub": "1", "role": "OWNER", "exp": exp}, secret)},
		{"missing subject", sign(jwt.MapClaims{"role": "CHEF", "exp": exp}, secret)},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, call(e, tt.token).Code)
		})
	}
}

func TestSubject(t *testing.T) {
	id, ok := subject(float64(42))
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)
	_, ok = subject(1.5)
	assert.False(t, ok)
	_, ok = subject("0")
	assert.False(t, ok)
	_, ok = subject(nil)
	assert.False(t, ok)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/payments")
	c.Set(ctxUserID, "5")

	cfg := config.RateLimitConfig{Prefix: "meal:rl", KeyStrategy: "ip_user_route"}
	assert.Equal(t, "meal:rl:ip:10.0.0.1:user:5:route:POST /v1/payments", rateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "meal:rl:user:5", rateKey(cfg, c))
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/menu", h,
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
