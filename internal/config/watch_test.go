package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWatchReloadsOnSave(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) { changes <- c })
	}()

	next := Defaults()
	next.LogLevel = "debug"

	// The watcher registers asynchronously, so keep saving until a change lands.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got *Config
	for got == nil {
		select {
		case c := <-changes:
			if c.LogLevel == "debug" {
				got = c
			}
		case <-tick.C:
			writeTestConfig(t, path, next)
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
	if got.Level() != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", got.Level())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchSkipsInvalidFile(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := reload(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/config.json", nil, func(*Config) {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
