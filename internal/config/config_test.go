package config

import (
	"path/filepath"
	"testing"
)

func TestLoadAbsentReturnsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "" || cfg.Password != "" {
		t.Fatalf("cfg = %+v, want zero value", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	want := &Settings{
		ServerURL: "http://10.0.0.5:9475",
		Password:  "hunter2",
		AuthToken: "tok",
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *want {
		t.Fatalf("loaded = %+v, want %+v", got, want)
	}
}

func TestDefaultDBPathUnderConfigDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if got, want := DefaultDBPath(), filepath.Join(Dir(), "pulseboard.db"); got != want {
		t.Fatalf("DefaultDBPath = %q, want %q", got, want)
	}
}
