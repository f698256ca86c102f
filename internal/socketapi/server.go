// Package socketapi implements the webInkV1 framed TCP protocol: a
// client opens a connection, sends one request line, receives the
// same header-framed tile bytes /get_image would produce, and the
// connection closes. There is no error framing — any failure closes
// the connection with nothing written.
package socketapi

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfeldman/webInk/internal/codec"
	"github.com/dfeldman/webInk/internal/ratelimit"
	"github.com/dfeldman/webInk/internal/registry"
	"github.com/dfeldman/webInk/internal/snapshot"
)

const (
	protocolVersion   = "webInkV1"
	requestFields     = 9
	readLineTimeout   = 5 * time.Second
	maxRequestLineLen = 512
)

// Deps are the collaborators the socket server needs, shared with the
// HTTP server.
type Deps struct {
	Registry *registry.Registry
	Cache    *snapshot.Cache
	Limiter  ratelimit.Limiter
	Logger   *zap.Logger

	// MaxConns caps how many connections are served concurrently.
	// When every slot is taken, the accept loop holds the connection it
	// has just accepted until a slot frees up and accepts no further
	// connections meanwhile; those wait in the OS backlog.
	MaxConns int
}

// Server accepts webInkV1 connections on a TCP listener.
type Server struct {
	deps Deps
	sem  chan struct{}

	listener net.Listener
}

// New builds a Server. MaxConns defaults to 64 if unset.
func New(deps Deps) *Server {
	if deps.MaxConns <= 0 {
		deps.MaxConns = 64
	}
	return &Server{deps: deps, sem: make(chan struct{}, deps.MaxConns)}
}

// ListenAndServe binds addr and serves connections until ctx is
// canceled or an unrecoverable accept error occurs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Listen binds addr without yet accepting connections. Addr returns the
// bound address afterward, which is useful when addr's port is 0.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the listener's bound address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts and handles connections on a listener already bound by
// Listen, until ctx is canceled or an unrecoverable accept error occurs.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.listener

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}

		go func() {
			defer func() { <-s.sem }()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()

	conn.SetReadDeadline(time.Now().Add(readLineTimeout))
	reader := bufio.NewReaderSize(conn, maxRequestLineLen)

	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	req, ok := parseRequestLine(line)
	if !ok {
		return
	}

	device, ok := s.authenticate(ctx, connID, req.apiKey, req.deviceID)
	if !ok {
		return
	}

	mode, err := codec.ParseMode(req.mode)
	if err != nil || !formatMatchesMode(req.format, mode) {
		return
	}

	rect := codec.Rect{X: req.x, Y: req.y, W: req.w, H: req.h}
	tile, err := s.deps.Cache.GetTile(ctx, device, req.mode, rect)
	if err != nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(readLineTimeout))
	conn.Write(tile)
}

func (s *Server) authenticate(ctx context.Context, connID, apiKey, deviceID string) (registry.Device, bool) {
	device, err := s.deps.Registry.Lookup(deviceID)
	if err != nil {
		return registry.Device{}, false
	}
	if !s.deps.Registry.Authenticate(deviceID, apiKey) {
		if s.deps.Limiter.Allow(ctx, deviceID) {
			s.deps.Logger.Warn("socket authentication failed",
				zap.String("device", deviceID),
				zap.String("connection_id", connID))
		}
		return registry.Device{}, false
	}
	return device, true
}

type request struct {
	apiKey     string
	deviceID   string
	mode       string
	x, y, w, h int
	format     string
}

// parseRequestLine validates the webInkV1 line shape and numeric
// fields. It does not validate the device, mode, or format against
// the registry/codec; that happens once the caller has the device.
func parseRequestLine(line string) (request, bool) {
	fields := strings.Fields(line)
	if len(fields) != requestFields {
		return request{}, false
	}
	if fields[0] != protocolVersion {
		return request{}, false
	}

	x, errX := strconv.Atoi(fields[4])
	y, errY := strconv.Atoi(fields[5])
	w, errW := strconv.Atoi(fields[6])
	h, errH := strconv.Atoi(fields[7])
	if errX != nil || errY != nil || errW != nil || errH != nil {
		return request{}, false
	}

	return request{
		apiKey:   fields[1],
		deviceID: fields[2],
		mode:     fields[3],
		x:        x,
		y:        y,
		w:        w,
		h:        h,
		format:   fields[8],
	}, true
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
