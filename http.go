package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-auth-server/middleware/jwtware"
)

// BearerMiddleware validates bearer access tokens and stores the claims
// in the request locals and context. Failures are answered with an
// invalid_token challenge, a missing requiredRole with 403.
func BearerMiddleware(tokens TokenValidator, requiredRole string) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ContextKey:   DefaultContextKey,
		RequiredRole: requiredRole,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			claims, err := tokens.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, ac)
			}
			return ctx
		},
		ErrorHandler: bearerErrorHandler,
	})
}

func bearerErrorHandler(ctx router.Context, err error) error {
	switch {
	case errors.Is(err, jwtware.ErrAccessDenied):
		return ctx.JSON(router.StatusForbidden, map[string]string{
			"error":             "insufficient_scope",
			"error_description": "The access token does not grant access to this resource.",
		})
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		return sendChallenge(ctx, NewGrantError(ErrorCodeInvalidToken, DescriptionMissingToken))
	case IsTokenExpiredError(err):
		return sendChallenge(ctx, NewGrantError(ErrorCodeInvalidToken, DescriptionTokenExpired))
	case IsMalformedError(err):
		return sendChallenge(ctx, NewGrantError(ErrorCodeInvalidToken, DescriptionTokenMalformed))
	default:
		return sendChallenge(ctx, NewGrantError(ErrorCodeInvalidToken, DescriptionInvalidToken))
	}
}

// ServerOptions configures the fiber application.
type ServerOptions struct {
	AppName      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

// HTTPServer is the go-router server backed by fiber. Routes are
// registered through Router(), the wrapped fiber app is kept for
// shutdown.
type HTTPServer struct {
	router.Server[*fiber.App]
	app *fiber.App
}

// NewHTTPServer creates the fiber adapter with an error handler that
// renders errors from the package taxonomy as JSON.
func NewHTTPServer(opts ServerOptions, logger Logger) *HTTPServer {
	logger = normalizeLogger(logger)
	if opts.AppName == "" {
		opts.AppName = "go-auth-server"
	}

	s := &HTTPServer{}
	s.Server = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		s.app = fiber.New(fiber.Config{
			AppName:               opts.AppName,
			ReadTimeout:           opts.ReadTimeout,
			WriteTimeout:          opts.WriteTimeout,
			BodyLimit:             opts.BodyLimit,
			DisableStartupMessage: true,
			ErrorHandler:          ErrorHandler(logger),
		})
		return s.app
	})
	return s
}

// App returns the wrapped fiber application.
func (s *HTTPServer) App() *fiber.App {
	return s.app
}

// Stop shuts the listener down, waiting at most timeout for in flight
// requests.
func (s *HTTPServer) Stop(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// ErrorHandler maps errors returned by handlers to JSON responses.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		var gerr *GrantError
		if errors.As(err, &gerr) {
			return c.Status(gerr.HTTPStatus()).JSON(gerr)
		}

		status := HTTPStatus(err)
		var richErr *goerrors.Error
		if status < fiber.StatusInternalServerError && errors.As(err, &richErr) {
			return c.Status(status).JSON(fiber.Map{
				"message":  richErr.Message,
				"category": richErr.Category.String(),
				"code":     richErr.TextCode,
			})
		}

		logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(ErrServerError.HTTPStatus()).JSON(ErrServerError)
	}
}
