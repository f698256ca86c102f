package config

import "testing"

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("WEBINK_TEST_KEY", "")
	if got := getEnv("WEBINK_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("getEnv() = %q, want fallback", got)
	}

	t.Setenv("WEBINK_TEST_KEY", "set")
	if got := getEnv("WEBINK_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("getEnv() = %q, want set", got)
	}
}

func TestGetEnvAsIntInvalidFallsBack(t *testing.T) {
	t.Setenv("WEBINK_TEST_INT", "not-a-number")
	if got := getEnvAsInt("WEBINK_TEST_INT", 42); got != 42 {
		t.Errorf("getEnvAsInt() = %d, want 42", got)
	}

	t.Setenv("WEBINK_TEST_INT", "7")
	if got := getEnvAsInt("WEBINK_TEST_INT", 42); got != 7 {
		t.Errorf("getEnvAsInt() = %d, want 7", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPPort != 8000 {
		t.Errorf("HTTPPort = %d, want 8000", cfg.HTTPPort)
	}
	if cfg.SocketPort != 8091 {
		t.Errorf("SocketPort = %d, want 8091", cfg.SocketPort)
	}
	if cfg.RenderWorkers != 2 {
		t.Errorf("RenderWorkers = %d, want 2", cfg.RenderWorkers)
	}
}
