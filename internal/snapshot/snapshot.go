// Package snapshot holds the per-device cache of the most recently
// rendered page, coalescing concurrent requests for a stale device into
// a single render (the single-flight pattern), and serving tiles cut
// from the cached Plane once it has one.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dfeldman/webInk/internal/codec"
	"github.com/dfeldman/webInk/internal/fingerprint"
	"github.com/dfeldman/webInk/internal/registry"
	"github.com/dfeldman/webInk/internal/render"
)

// ErrModeConflict is returned when a request's mode string does not
// match the device's configured color mode and viewport.
var ErrModeConflict = errors.New("snapshot: requested mode does not match device configuration")

// Renderer is the subset of render.Engine that the cache depends on.
type Renderer interface {
	Submit(ctx context.Context, device registry.Device) (render.Result, error)
}

// Snapshot is one fully-encoded capture of a device's source page.
type Snapshot struct {
	CapturedAt time.Time
	Plane      *codec.Plane
}

// entry is the single-flight guard and most-recent Snapshot for one
// device. A nil snapshot means the device has never been rendered.
// gen counts completed render attempts (success or failure); a woken
// waiter compares gen against the value it observed before waiting to
// tell "a render attempt finished" apart from a spurious wake-up.
type entry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	snapshot *Snapshot
	inFlight bool
	lastErr  error
	gen      int
}

func newEntry() *entry {
	e := &entry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Cache is the process-wide snapshot store, one entry per device id.
type Cache struct {
	renderer Renderer

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache builds an empty Cache backed by renderer.
func NewCache(renderer Renderer) *Cache {
	return &Cache{renderer: renderer, entries: make(map[string]*entry)}
}

func (c *Cache) entryFor(deviceID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[deviceID]
	if !ok {
		e = newEntry()
		c.entries[deviceID] = e
	}
	return e
}

func isFresh(snap *Snapshot, device registry.Device) bool {
	maxAge := time.Duration(device.RefreshIntervalS) * time.Second
	return time.Since(snap.CapturedAt) < maxAge
}

// ensureFresh returns a fresh Snapshot for device, rendering a new one
// if the cached entry is missing or stale. Concurrent callers for the
// same device id that arrive while a render is already in flight block
// on the same render rather than each starting their own; this mirrors
// the wait/recheck loop a condition-variable consumer uses against a
// single-slot inbox. A waiter woken by the render it was blocked on
// receives that render's error directly instead of looping back and
// starting a render of its own — only a request that arrives after the
// failed attempt has already finished re-arms the render.
func (c *Cache) ensureFresh(ctx context.Context, device registry.Device) (*Snapshot, error) {
	e := c.entryFor(device.ID)

	e.mu.Lock()
	for {
		if e.snapshot != nil && isFresh(e.snapshot, device) {
			snap := e.snapshot
			e.mu.Unlock()
			return snap, nil
		}
		if !e.inFlight {
			e.inFlight = true
			e.lastErr = nil
			break
		}
		waitedGen := e.gen
		e.cond.Wait()
		if e.gen != waitedGen && e.lastErr != nil {
			err := e.lastErr
			e.mu.Unlock()
			return nil, err
		}
	}
	e.mu.Unlock()

	snap, err := c.renderSnapshot(ctx, device)

	e.mu.Lock()
	e.inFlight = false
	e.gen++
	if err == nil {
		e.snapshot = snap
		e.lastErr = nil
	} else {
		e.lastErr = err
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Cache) renderSnapshot(ctx context.Context, device registry.Device) (*Snapshot, error) {
	res, err := c.renderer.Submit(ctx, device)
	if err != nil {
		return nil, err
	}

	mode, err := codec.ParseMode(device.ModeString())
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	plane, err := codec.EncodePlane(res.RGB, device.Viewport.Width, device.Viewport.Height, mode)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &Snapshot{CapturedAt: time.Now(), Plane: plane}, nil
}

// GetTile returns the encoded tile bytes for rect in requestedMode,
// triggering a render if the device's cached snapshot is missing or
// stale.
func (c *Cache) GetTile(ctx context.Context, device registry.Device, requestedMode string, rect codec.Rect) ([]byte, error) {
	if requestedMode != device.ModeString() {
		return nil, ErrModeConflict
	}

	snap, err := c.ensureFresh(ctx, device)
	if err != nil {
		return nil, err
	}

	return codec.ExtractTile(snap.Plane, rect)
}

// GetHash returns the fingerprint of the device's full current frame
// without transferring any pixel data, triggering a render if the
// cached snapshot is missing or stale.
func (c *Cache) GetHash(ctx context.Context, device registry.Device) (string, error) {
	snap, err := c.ensureFresh(ctx, device)
	if err != nil {
		return "", err
	}

	full, err := codec.ExtractTile(snap.Plane, codec.Rect{X: 0, Y: 0, W: snap.Plane.W, H: snap.Plane.H})
	if err != nil {
		return "", err
	}
	return fingerprint.Digest(full, device.ModeString(), device.ID), nil
}
