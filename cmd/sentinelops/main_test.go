package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/sentinelops/internal/config"
)

func TestOpenAppTelegramUnavailable(t *testing.T) {
	botAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer botAPI.Close()

	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Database.Path = filepath.Join(cfg.DataDir, "sentinelops.db")
	cfg.Slack.WebhookURL = "http://127.0.0.1:1/hook"
	cfg.Telegram.Token = "bad-token"
	cfg.Telegram.ChatID = 5
	cfg.Telegram.APIEndpoint = botAPI.URL + "/bot%s/%s"
	cfg.Telegram.TimeoutSec = 2

	a, err := openApp(cfg)
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()

	if a.telegram != nil {
		t.Error("telegram adapter should be disabled")
	}
	if !a.registry.Has("slack") {
		t.Error("slack should stay registered")
	}
	if a.registry.Has("telegram:5") {
		t.Error("telegram target should be unregistered")
	}
	if err := a.evaluator().EvaluateAll(context.Background(), time.Now().UTC()); err != nil {
		t.Errorf("EvaluateAll: %v", err)
	}
}
