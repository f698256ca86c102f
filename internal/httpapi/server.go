// Package httpapi exposes the snapshot server over HTTP: /get_hash,
// /get_image, /get_sleep, /post_log, and /api/config, plus an
// unauthenticated /healthz liveness route. Handlers hold no per-request
// state beyond their parsed parameters; apart from /healthz, they
// delegate to the Registry, Snapshot Cache, and Telemetry Store passed
// in at construction.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfeldman/webInk/internal/ratelimit"
	"github.com/dfeldman/webInk/internal/registry"
	"github.com/dfeldman/webInk/internal/snapshot"
	"github.com/dfeldman/webInk/internal/telemetry"
)

// requestIDHeader carries a per-request correlation id through to logs,
// generated fresh for every request rather than trusted from the client.
const requestIDHeader = "X-Request-Id"

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// apiResponse is the envelope used for error bodies; success bodies
// use their own literal shapes instead of sharing this envelope, since
// clients depend on those exact field names.
type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func errorResponse(message string) apiResponse {
	return apiResponse{Success: false, Error: message}
}

// Deps are the shared collaborators every handler needs.
type Deps struct {
	Registry  *registry.Registry
	Cache     *snapshot.Cache
	Telemetry *telemetry.Store
	Limiter   ratelimit.Limiter
	Logger    *zap.Logger
}

// Server wraps a gin router bound to Deps and an *http.Server for
// lifecycle control.
type Server struct {
	deps   Deps
	router *gin.Engine
	srv    *http.Server
}

// New builds a Server with all routes registered.
func New(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())

	s := &Server{deps: deps, router: router}
	router.GET("/get_hash", s.handleGetHash)
	router.GET("/get_image", s.handleGetImage)
	router.GET("/get_sleep", s.handleGetSleep)
	router.POST("/post_log", s.handlePostLog)
	router.GET("/api/config", s.handleAPIConfig)
	router.GET("/healthz", handleHealthz)
	return s
}

// Start listens on addr until Shutdown is called or the listener
// fails. It blocks the calling goroutine.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.router}
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// authenticate resolves device by id and validates apiKey against it.
// An unknown device never reaches the authentication step at all, and
// an authentication failure is reported through the rate limiter
// before the client sees a response, so that repeated bad keys for the
// same device are throttled in the log rather than the response.
func (s *Server) authenticate(c *gin.Context, apiKey, deviceID string) (registry.Device, bool) {
	device, err := s.deps.Registry.Lookup(deviceID)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse("unknown device"))
		return registry.Device{}, false
	}

	if !s.deps.Registry.Authenticate(deviceID, apiKey) {
		if s.deps.Limiter.Allow(c.Request.Context(), deviceID) {
			s.deps.Logger.Warn("authentication failed",
				zap.String("device", deviceID),
				zap.String("request_id", c.GetString("request_id")))
		}
		c.JSON(http.StatusUnauthorized, errorResponse("unauthorized"))
		return registry.Device{}, false
	}

	return device, true
}
