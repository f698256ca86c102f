package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dfeldman/webInk/internal/codec"
	"github.com/dfeldman/webInk/internal/render"
	"github.com/dfeldman/webInk/internal/snapshot"
)

// maxLogBodyBytes bounds how much of a /post_log body is read, so a
// misbehaving client cannot exhaust memory through this endpoint.
const maxLogBodyBytes = 8 << 10

func (s *Server) handleGetHash(c *gin.Context) {
	deviceID := c.Query("device")
	device, ok := s.authenticate(c, c.Query("api_key"), deviceID)
	if !ok {
		return
	}

	if _, err := codec.ParseMode(c.Query("mode")); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid mode"))
		return
	}
	if c.Query("mode") != device.ModeString() {
		c.JSON(http.StatusConflict, errorResponse("mode does not match device configuration"))
		return
	}

	hash, err := s.deps.Cache.GetHash(c.Request.Context(), device)
	if err != nil {
		s.writeRenderError(c, err)
		return
	}

	s.recordCall(device.ID)
	c.JSON(http.StatusOK, gin.H{"hash": hash})
}

func (s *Server) handleGetImage(c *gin.Context) {
	deviceID := c.Query("device")
	device, ok := s.authenticate(c, c.Query("api_key"), deviceID)
	if !ok {
		return
	}

	modeStr := c.Query("mode")
	mode, err := codec.ParseMode(modeStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid mode"))
		return
	}

	if !formatMatchesMode(c.Query("format"), mode) {
		c.JSON(http.StatusBadRequest, errorResponse("format does not match mode"))
		return
	}

	rect, err := parseRect(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	tile, err := s.deps.Cache.GetTile(c.Request.Context(), device, modeStr, rect)
	if err != nil {
		s.writeRenderError(c, err)
		return
	}

	s.recordCall(device.ID)
	c.Data(http.StatusOK, mode.ContentType(), tile)
}

func (s *Server) handleGetSleep(c *gin.Context) {
	deviceID := c.Query("device")
	device, ok := s.authenticate(c, c.Query("api_key"), deviceID)
	if !ok {
		return
	}

	s.recordCall(device.ID)
	c.JSON(http.StatusOK, gin.H{"sleep": device.SleepDurationS})
}

func (s *Server) handlePostLog(c *gin.Context) {
	deviceID := c.Query("device")
	device, ok := s.authenticate(c, c.Query("api_key"), deviceID)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLogBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("could not read body"))
		return
	}

	s.deps.Telemetry.AppendLog(device.ID, string(body))
	s.recordCall(device.ID)
	c.Status(http.StatusNoContent)
}

// handleHealthz is a liveness probe: it reports nothing about device
// state and never touches the Registry, Snapshot Cache, or Telemetry
// Store, so it keeps responding even while a device's render pipeline
// is unhealthy.
func handleHealthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) handleAPIConfig(c *gin.Context) {
	devices := s.deps.Registry.Devices()
	out := make([]gin.H, 0, len(devices))
	for _, d := range devices {
		out = append(out, gin.H{
			"id":                 d.ID,
			"mode":               d.ModeString(),
			"refresh_interval_s": d.RefreshIntervalS,
			"sleep_duration_s":   d.SleepDurationS,
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

// recordCall is best-effort: a telemetry write failure should never
// turn a successful render into a failed response.
func (s *Server) recordCall(deviceID string) {
	if err := s.deps.Telemetry.RecordCall(deviceID); err != nil {
		s.deps.Logger.Warn("telemetry: failed to record call", zap.Error(err))
	}
}

func formatMatchesMode(format string, mode codec.Mode) bool {
	switch mode.Char {
	case 'B':
		return format == "pbm"
	case 'G', 'R':
		return format == "pgm"
	case 'C':
		return format == "ppm"
	default:
		return false
	}
}

func parseRect(c *gin.Context) (codec.Rect, error) {
	x, errX := strconv.Atoi(c.Query("x"))
	y, errY := strconv.Atoi(c.Query("y"))
	w, errW := strconv.Atoi(c.Query("w"))
	h, errH := strconv.Atoi(c.Query("h"))
	if errX != nil || errY != nil || errW != nil || errH != nil {
		return codec.Rect{}, fmt.Errorf("x, y, w, h must be integers")
	}
	return codec.Rect{X: x, Y: y, W: w, H: h}, nil
}

// writeRenderError maps a Snapshot Cache error to the status code the
// error taxonomy assigns it: mode conflicts are 409, an invalid rect or
// an invalid mode surfaced late is a 400, and render failures and any
// other error are 503 with a Retry-After hint.
func (s *Server) writeRenderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, snapshot.ErrModeConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, codec.ErrInvalidRect), errors.Is(err, codec.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, render.ErrNavigationTimeout), errors.Is(err, render.ErrRenderFailure), errors.Is(err, render.ErrPoolExhausted):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	}
}
