package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
devices:
  - id: dev1
    api_key: K
    url: https://example.com
    width: 800
    height: 480
    mode: B
    refresh_interval_s: 60
    sleep_duration_s: 60
`

func TestLoadAndLookup(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	d, err := reg.Lookup("dev1")
	if err != nil {
		t.Fatal(err)
	}
	if d.ModeString() != "800x480x1xB" {
		t.Errorf("ModeString() = %q", d.ModeString())
	}

	if _, err := reg.Lookup("missing"); err != ErrNotFound {
		t.Errorf("Lookup(missing) err = %v, want ErrNotFound", err)
	}
}

func TestAuthenticate(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if !reg.Authenticate("dev1", "K") {
		t.Error("expected valid key to authenticate")
	}
	if reg.Authenticate("dev1", "wrong") {
		t.Error("expected invalid key to fail")
	}
	if reg.Authenticate("missing", "K") {
		t.Error("expected unknown device to fail")
	}
}

func TestLoadRejectsUnknownColorMode(t *testing.T) {
	path := writeConfig(t, `
devices:
  - id: dev1
    api_key: K
    url: https://example.com
    width: 800
    height: 480
    mode: Z
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown color mode")
	}
}

func TestLoadRejectsEmptyMode(t *testing.T) {
	path := writeConfig(t, `
devices:
  - id: dev1
    api_key: K
    url: https://example.com
    width: 800
    height: 480
    mode: ""
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty mode")
	}
}

func TestLoadRejectsNonPositiveViewport(t *testing.T) {
	path := writeConfig(t, `
devices:
  - id: dev1
    api_key: K
    url: https://example.com
    width: 0
    height: 480
    mode: B
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for non-positive viewport")
	}
}
