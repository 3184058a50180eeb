package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/log"
)

func TestRateLimiter_PerIdentifier(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "identifiers have separate buckets")
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()

	limited := 0
	e := echo.New()
	e.POST("/token", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RateLimit(rl, ClientKey, func() { limited++ }))

	post := func(clientID string) *httptest.ResponseRecorder {
		form := url.Values{"client_id": {clientID}}
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, post("one").Code)

	rec := post("one")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "temporarily_unavailable", body["error"])
	assert.Equal(t, 1, limited)

	assert.Equal(t, http.StatusNoContent, post("two").Code)
}

func TestClientKey(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	req.SetBasicAuth("basic%3Aid", "secret")
	assert.Equal(t, "ip:192.0.2.7|client:basic:id", ClientKey(e.NewContext(req, httptest.NewRecorder())),
		"basic credentials are form-urlencoded")

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	assert.Equal(t, "ip:192.0.2.7", ClientKey(e.NewContext(req, httptest.NewRecorder())))
}

func TestRateLimit_ClaimedClientIDDoesNotDrainOtherCallers(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()

	e := echo.New()
	e.POST("/token", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RateLimit(rl, ClientKey, nil))

	post := func(remoteAddr string) int {
		form := url.Values{"client_id": {"victim"}}
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("198.51.100.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.1:1000"))
	assert.Equal(t, http.StatusNoContent, post("203.0.113.9:2000"), "the real client keeps its own budget")
}

func TestRequestLoggerAndTracing(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Tracing(), RequestLogger(log.New(&buf, zerolog.DebugLevel)))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/boom", func(echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "short and stout") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	out := buf.String()
	assert.Contains(t, out, `"path":"/ok"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"level":"error"`)
}
