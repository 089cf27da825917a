// Package httpapi exposes the auth core over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Brandon689/deskauth/auth"
	"github.com/Brandon689/deskauth/internal/config"
	"github.com/Brandon689/deskauth/internal/logging"
)

// Server wires routes, middleware and error handling around an auth.API.
type Server struct {
	e        *echo.Echo
	api      *auth.API
	settings *config.Settings
	log      logging.Logger
}

// New builds the router. Nothing listens until Start.
func New(api *auth.API, settings *config.Settings, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, api: api, settings: settings, log: log.With("component", "http")}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			s.log.Info(c.Request().Context(), "request", args...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     settings.CORSOrigins,
		AllowCredentials: true,
	}))

	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves on addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.log.Info(context.Background(), "listening", "addr", addr, "auth_required", s.settings.AuthRequired)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) routes() {
	withSession := echo.WrapMiddleware(s.api.SessionMiddleware)
	withUser := echo.WrapMiddleware(s.api.Middleware)
	current := []echo.MiddlewareFunc{withSession, withUser}
	superuser := []echo.MiddlewareFunc{withSession, withUser, echo.WrapMiddleware(s.api.RequireSuperuser)}

	s.e.GET("/", s.root)

	g := s.e.Group(s.settings.APIV1Str)
	g.GET("/health", s.health)

	g.POST("/login/access-token", s.loginAccessToken, withSession)
	g.POST("/login/test-token", s.testToken, current...)

	g.POST("/users/signup", s.signup, withSession)
	g.GET("/users/me", s.readMe, current...)
	g.PATCH("/users/me", s.updateMe, current...)
	g.PATCH("/users/me/password", s.updatePasswordMe, current...)
	g.GET("/users/:id", s.readUser, current...)

	g.GET("/users", s.listUsers, superuser...)
	g.POST("/users", s.createUser, superuser...)
	g.PATCH("/users/:id", s.updateUser, superuser...)
}

// handleError renders every error as {"detail": ...}. Errors from the auth
// package are mapped by auth.StatusFor; echo's own errors keep their code.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var (
		status int
		detail string
	)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		detail = http.StatusText(status)
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
	} else {
		status, detail = auth.StatusFor(err)
	}
	if status >= http.StatusInternalServerError {
		s.log.Error(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
	}
	if status == http.StatusUnauthorized {
		c.Response().Header().Set("WWW-Authenticate", "Bearer")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, map[string]string{"detail": detail})
	}
	if err != nil {
		s.log.Error(c.Request().Context(), "write error response", "error", err)
	}
}
