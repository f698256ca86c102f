// Package registry holds the process-wide, read-mostly mapping from
// device id to its configuration. It is loaded once at startup and
// never mutated afterward, so lookups need no locking.
package registry

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Lookup when the device id is unknown.
var ErrNotFound = errors.New("registry: device not found")

// ColorMode is one of the four supported display color modes, matching
// the mode_char of codec.Mode.
type ColorMode byte

const (
	ColorMono ColorMode = 'B'
	ColorGray ColorMode = 'G'
	ColorQuad ColorMode = 'R'
	ColorRGB  ColorMode = 'C'
)

// Viewport is a device's capture resolution.
type Viewport struct {
	Width  int
	Height int
}

// Device is one statically configured e-ink display endpoint.
type Device struct {
	ID               string
	APIKey           string
	SourceURL        string
	Viewport         Viewport
	ColorMode        ColorMode
	RefreshIntervalS int
	SleepDurationS   int
}

// ModeString returns the canonical WxHxBxC string for this device's
// configured viewport and color mode.
func (d Device) ModeString() string {
	bits := map[ColorMode]int{
		ColorMono: 1,
		ColorQuad: 2,
		ColorGray: 8,
		ColorRGB:  24,
	}[d.ColorMode]
	return fmt.Sprintf("%dx%dx%dx%c", d.Viewport.Width, d.Viewport.Height, bits, byte(d.ColorMode))
}

// fileDevice mirrors the on-disk YAML shape; it is translated into the
// immutable Device value above once at load time.
type fileDevice struct {
	ID               string `yaml:"id"`
	APIKey           string `yaml:"api_key"`
	URL              string `yaml:"url"`
	Width            int    `yaml:"width"`
	Height           int    `yaml:"height"`
	Mode             string `yaml:"mode"` // single-char B/G/R/C
	RefreshIntervalS int    `yaml:"refresh_interval_s"`
	SleepDurationS   int    `yaml:"sleep_duration_s"`
}

type fileConfig struct {
	Devices []fileDevice `yaml:"devices"`
}

// Registry is the immutable id -> Device map.
type Registry struct {
	devices map[string]Device
}

// Load reads the device configuration YAML at path and builds a Registry.
// This is the one mutation point in the Registry's lifecycle; every
// subsequent Lookup/Authenticate call is read-only.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("registry: parsing config %s: %w", path, err)
	}

	devices := make(map[string]Device, len(fc.Devices))
	for _, fd := range fc.Devices {
		if fd.ID == "" {
			return nil, fmt.Errorf("registry: device entry missing id in %s", path)
		}
		if fd.Width <= 0 || fd.Height <= 0 {
			return nil, fmt.Errorf("registry: device %s has non-positive viewport", fd.ID)
		}
		if len(fd.Mode) == 0 {
			return nil, fmt.Errorf("registry: device %s has empty mode", fd.ID)
		}
		cm := ColorMode(fd.Mode[0])
		switch cm {
		case ColorMono, ColorGray, ColorQuad, ColorRGB:
		default:
			return nil, fmt.Errorf("registry: device %s has unknown color_mode %q", fd.ID, fd.Mode)
		}

		refresh := fd.RefreshIntervalS
		if refresh <= 0 {
			refresh = 600
		}
		sleep := fd.SleepDurationS
		if sleep <= 0 {
			sleep = refresh
		}

		devices[fd.ID] = Device{
			ID:               fd.ID,
			APIKey:           fd.APIKey,
			SourceURL:        fd.URL,
			Viewport:         Viewport{Width: fd.Width, Height: fd.Height},
			ColorMode:        cm,
			RefreshIntervalS: refresh,
			SleepDurationS:   sleep,
		}
	}

	return &Registry{devices: devices}, nil
}

// Lookup returns the Device for id, or ErrNotFound.
func (r *Registry) Lookup(id string) (Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return d, nil
}

// Authenticate reports whether apiKey matches the configured key for
// device id, using a constant-time comparison so that timing cannot
// leak key material. An unknown device always fails authentication
// without allocating a Snapshot or touching the Render Engine.
func (r *Registry) Authenticate(id, apiKey string) bool {
	d, ok := r.devices[id]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(d.APIKey), []byte(apiKey)) == 1
}

// Devices returns a snapshot slice of all registered devices, for
// building the redacted /api/config listing.
func (r *Registry) Devices() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}
