package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/response"
)

func TestMain(m *testing.M) {
	logger.Init("middleware-test", "error", false)
	os.Exit(m.Run())
}

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	for _, h := range handlers {
		app.Use(h)
	}
	return app
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func errorCode(t *testing.T, body string) string {
	t.Helper()
	var env response.Response
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestRequestID(t *testing.T) {
	app := newApp(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	resp, body := send(t, app, httptest.NewRequest("GET", "/", nil))
	assert.Len(t, body, 36)
	assert.Equal(t, body, resp.Header.Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, body = send(t, app, req)
	assert.Equal(t, "req-42", body)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestGetRequestID_Unset(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	_, body := send(t, app, httptest.NewRequest("GET", "/", nil))
	assert.Empty(t, body)
}

func TestSecurityHeaders(t *testing.T) {
	app := newApp(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, _ := send(t, app, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestLogger_ResolvesHandlerErrors(t *testing.T) {
	app := newApp(RequestID(), Logger())
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	resp, body := send(t, app, httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, body = send(t, app, httptest.NewRequest("GET", "/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))
}

func TestAccountID(t *testing.T) {
	app := newApp()
	app.Get("/accounts/:id", AccountID(), func(c *fiber.Ctx) error {
		return c.SendString(GetAccountID(c))
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"plain", "/accounts/acc-1", http.StatusOK, "acc-1"},
		{"underscore", "/accounts/paper_trading", http.StatusOK, "paper_trading"},
		{"space", "/accounts/bad%20id", http.StatusBadRequest, ""},
		{"dot", "/accounts/a.b", http.StatusBadRequest, ""},
		{"too long", "/accounts/" + strings.Repeat("a", 65), http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := send(t, app, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, body)
			} else {
				assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	app := newApp(RateLimiter(RateLimitConfig{Max: 2, Duration: time.Minute}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < 2; i++ {
		resp, _ := send(t, app, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp, body := send(t, app, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, body))
}

func TestRateLimiter_Disabled(t *testing.T) {
	app := newApp(RateLimiter(RateLimitConfig{}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < 10; i++ {
		resp, _ := send(t, app, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		app := newApp(CORS(CORSConfig{}))
		app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "http://dashboard.local")
		resp, _ := send(t, app, req)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight against an allow list", func(t *testing.T) {
		app := newApp(CORS(CORSConfig{
			AllowOrigins:     []string{"http://dashboard.local"},
			AllowCredentials: true,
			MaxAge:           600,
		}))
		app.Post("/trades", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })

		req := httptest.NewRequest("OPTIONS", "/trades", nil)
		req.Header.Set("Origin", "http://dashboard.local")
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, _ := send(t, app, req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("unlisted origin gets no grant", func(t *testing.T) {
		app := newApp(CORS(CORSConfig{AllowOrigins: []string{"http://dashboard.local"}}))
		app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "http://evil.local")
		resp, _ := send(t, app, req)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}
