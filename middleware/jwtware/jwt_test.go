package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-server/middleware/jwtware"
)

type testClaims struct {
	sub   string
	roles []string
}

func (c testClaims) Subject() string { return c.sub }

func (c testClaims) HasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

var errBadToken = errors.New("bad token")

func staticValidator(valid string, claims testClaims) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
		if raw != valid {
			return nil, errBadToken
		}
		return claims, nil
	})
}

type ctxKey struct{}

func protected(ctx router.Context) error {
	claims, ok := ctx.Locals("user").(jwtware.AuthClaims)
	if !ok {
		return ctx.Status(http.StatusInternalServerError).SendString("no claims")
	}
	if v, ok := ctx.Context().Value(ctxKey{}).(string); ok {
		return ctx.Status(http.StatusOK).SendString(claims.Subject() + ":" + v)
	}
	return ctx.Status(http.StatusOK).SendString(claims.Subject())
}

// startServer mounts routes on a fiber backed router and serves it on a
// loopback port until the test ends.
func startServer(t *testing.T, routes func(r router.Router[*fiber.App])) string {
	t.Helper()
	var app *fiber.App
	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{DisableStartupMessage: true})
		return app
	})
	routes(srv.Router())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	go srv.Serve(addr)
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + addr
}

func newApp(t *testing.T, cfg jwtware.Config) string {
	mw := jwtware.New(cfg)
	return startServer(t, func(r router.Router[*fiber.App]) {
		r.Get("/protected", mw(protected))
		r.Get("/protected/:token", mw(protected))
	})
}

func get(t *testing.T, url string, header ...string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	base := newApp(t, jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "12345"}),
	})

	status, body := get(t, base+"/protected", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12345", body)
}

func TestJWTWare_Rejections(t *testing.T) {
	base := newApp(t, jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "12345"}),
	})

	t.Run("missing token", func(t *testing.T) {
		status, body := get(t, base+"/protected")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, jwtware.ErrJWTMissingOrMalformed.Error(), body)
	})

	t.Run("invalid token", func(t *testing.T) {
		status, _ := get(t, base+"/protected", "Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		status, _ := get(t, base+"/protected", "Authorization", "Basic good")
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	base := newApp(t, jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "abc"}),
		TokenLookup:    "query:access_token,cookie:jwt,param:token",
	})

	t.Run("query", func(t *testing.T) {
		status, _ := get(t, base+"/protected?access_token=good")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("cookie", func(t *testing.T) {
		status, _ := get(t, base+"/protected", "Cookie", "jwt=good")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("param", func(t *testing.T) {
		status, _ := get(t, base+"/protected/good")
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestJWTWare_FilterFunction(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "abc"}),
		Filter: func(ctx router.Context) bool {
			return strings.HasSuffix(ctx.Header("X-Public"), "yes")
		},
	})
	base := startServer(t, func(r router.Router[*fiber.App]) {
		r.Get("/public", mw(func(ctx router.Context) error {
			return ctx.Status(http.StatusOK).SendString("open")
		}))
	})

	status, body := get(t, base+"/public", "X-Public", "yes")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "open", body)

	status, _ = get(t, base+"/public")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestJWTWare_RequiredRole(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		base := newApp(t, jwtware.Config{
			TokenValidator: staticValidator("good", testClaims{sub: "abc", roles: []string{"User"}}),
			RequiredRole:   "Admin",
		})
		status, body := get(t, base+"/protected", "Authorization", "Bearer good")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Forbidden", body)
	})

	t.Run("allowed", func(t *testing.T) {
		base := newApp(t, jwtware.Config{
			TokenValidator: staticValidator("good", testClaims{sub: "abc", roles: []string{"Admin"}}),
			RequiredRole:   "Admin",
		})
		status, _ := get(t, base+"/protected", "Authorization", "Bearer good")
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestJWTWare_ContextEnricherAndListeners(t *testing.T) {
	seen := make(chan string, 1)
	base := newApp(t, jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "abc"}),
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			return context.WithValue(ctx, ctxKey{}, "enriched")
		},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(ctx router.Context, claims jwtware.AuthClaims) error {
				seen <- claims.Subject()
				return nil
			},
		},
	})

	status, body := get(t, base+"/protected", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "abc:enriched", body)
	assert.Equal(t, "abc", <-seen)
}

func TestJWTWare_ListenerErrorRejects(t *testing.T) {
	base := newApp(t, jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "abc"}),
		ValidationListeners: []jwtware.ValidationListener{
			func(ctx router.Context, claims jwtware.AuthClaims) error {
				return errors.New("revoked")
			},
		},
	})

	status, _ := get(t, base+"/protected", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestJWTWare_SuccessHandlerOverridesNext(t *testing.T) {
	mw := jwtware.New(jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{sub: "abc"}),
		SuccessHandler: func(ctx router.Context) error {
			return ctx.Status(http.StatusAccepted).SendString("intercepted")
		},
	})
	base := startServer(t, func(r router.Router[*fiber.App]) {
		r.Get("/protected", mw(protected))
	})

	status, body := get(t, base+"/protected", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "intercepted", body)
}

func TestGetDefaultConfig(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })

	cfg := jwtware.GetDefaultConfig(jwtware.Config{
		TokenValidator: staticValidator("good", testClaims{}),
	})
	assert.Equal(t, "user", cfg.ContextKey)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, "header:Authorization", cfg.TokenLookup)
	assert.NotNil(t, cfg.ErrorHandler)
	assert.Nil(t, cfg.SuccessHandler)
}

func TestGetExtractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, query:token, cookie:jwt, param:id, bogus")
	assert.Len(t, extractors, 4)
}
