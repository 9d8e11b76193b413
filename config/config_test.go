package config

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestGetExtractWorkers(t *testing.T) {
	fallback := 2 * runtime.GOMAXPROCS(0)
	if fallback > 32 {
		fallback = 32
	}
	tests := []struct {
		name string
		env  string
		want int
	}{
		{"empty", "", fallback},
		{"invalid", "abc", fallback},
		{"zero", "0", fallback},
		{"negative", "-1", fallback},
		{"min", "1", 1},
		{"mid", "16", 16},
		{"max", "64", 64},
		{"over", "65", 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EXTRACT_WORKERS", tt.env)
			if got := getExtractWorkers(); got != tt.want {
				t.Errorf("getExtractWorkers() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestGetLoadPolicy(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want string
	}{
		{"empty", "", "skip"},
		{"skip", "skip", "skip"},
		{"abort", "abort", "abort"},
		{"upper", "ABORT", "abort"},
		{"unknown", "explode", "skip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOAD_POLICY", tt.env)
			if got := getLoadPolicy(); got != tt.want {
				t.Errorf("getLoadPolicy() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNewConfigDefaults(t *testing.T) {
	for _, key := range []string{"ITEMS_DIR", "SUBSETS_DIR", "DB_PATH", "PORT", "LOG_LEVEL", "FLATTEN_CACHE", "SENTRY_DSN"} {
		t.Setenv(key, "")
	}
	t.Setenv("LIBRARY_DIR", "/srv/music")

	NewConfig()

	lib := Config.Library
	if lib.ItemsDir != filepath.Join("/srv/music", "U") {
		t.Errorf("ItemsDir = %q", lib.ItemsDir)
	}
	if lib.SubsetsDir != filepath.Join("/srv/music", "subsets") {
		t.Errorf("SubsetsDir = %q", lib.SubsetsDir)
	}
	if lib.DBPath != filepath.Join("/srv/music", ".playset.db") {
		t.Errorf("DBPath = %q", lib.DBPath)
	}
	if lib.FlattenCache {
		t.Error("FlattenCache should default to false")
	}
	if Config.Options.Port != "8080" || Config.Options.LogLevel != "info" {
		t.Errorf("Options = %+v", Config.Options)
	}
	if Config.Sentry.IsEnabled() {
		t.Error("Sentry enabled without DSN")
	}
}

func TestNewConfigOverrides(t *testing.T) {
	t.Setenv("LIBRARY_DIR", "/srv/music")
	t.Setenv("SUBSETS_DIR", "/etc/playsets")
	t.Setenv("FLATTEN_CACHE", "true")
	t.Setenv("PORT", "9000")

	NewConfig()

	if Config.Library.SubsetsDir != "/etc/playsets" {
		t.Errorf("SubsetsDir = %q", Config.Library.SubsetsDir)
	}
	if !Config.Library.FlattenCache {
		t.Error("FlattenCache not enabled")
	}
	if Config.Options.Port != "9000" {
		t.Errorf("Port = %q", Config.Options.Port)
	}
}
