// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"testing"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotTarget, gotMsg string
	reg.Register("test:", func(_ context.Context, target, message string) (string, error) {
		gotTarget = target
		gotMsg = message
		return "ok", nil
	})

	resp, err := reg.Deliver(context.Background(), "test:123", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("expected response %q, got %q", "ok", resp)
	}
	if gotTarget != "test:123" {
		t.Errorf("expected target %q, got %q", "test:123", gotTarget)
	}
	if gotMsg != "hello" {
		t.Errorf("expected message %q, got %q", "hello", gotMsg)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Deliver(context.Background(), "unknown:123", "hello"); err == nil {
		t.Fatal("expected error for unregistered prefix, got nil")
	}
	if reg.Has("unknown:123") {
		t.Error("Has reported a handler for an unregistered prefix")
	}
}

func TestRegistryMultiplePrefixes(t *testing.T) {
	reg := NewRegistry()

	var telegramCalls, slackCalls int
	reg.Register("telegram:", func(context.Context, string, string) (string, error) {
		telegramCalls++
		return "", nil
	})
	reg.Register("slack", func(context.Context, string, string) (string, error) {
		slackCalls++
		return "", nil
	})

	if _, err := reg.Deliver(context.Background(), "telegram:42", "msg1"); err != nil {
		t.Fatalf("telegram deliver error: %v", err)
	}
	if _, err := reg.Deliver(context.Background(), "slack", "msg2"); err != nil {
		t.Fatalf("slack deliver error: %v", err)
	}

	if telegramCalls != 1 {
		t.Errorf("expected 1 telegram call, got %d", telegramCalls)
	}
	if slackCalls != 1 {
		t.Errorf("expected 1 slack call, got %d", slackCalls)
	}
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slack", func(context.Context, string, string) (string, error) { return "generic", nil })
	reg.Register("slack:ops", func(context.Context, string, string) (string, error) { return "ops", nil })

	for i := 0; i < 20; i++ {
		resp, err := reg.Deliver(context.Background(), "slack:ops", "m")
		if err != nil {
			t.Fatal(err)
		}
		if resp != "ops" {
			t.Fatalf("expected longest prefix handler, got %q", resp)
		}
	}
}

func TestRegistryNotifier(t *testing.T) {
	reg := NewRegistry()
	var got string
	reg.Register("telegram:", func(_ context.Context, target, _ string) (string, error) {
		got = target
		return "sent", nil
	})

	n := reg.Notifier("telegram:77")
	resp, err := n.Notify(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "sent" || got != "telegram:77" {
		t.Errorf("resp=%q target=%q", resp, got)
	}
}
