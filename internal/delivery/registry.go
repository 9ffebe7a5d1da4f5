// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/sentinelops/internal/types"
)

// Handler delivers a message to target and returns the channel's response.
type Handler func(ctx context.Context, target, message string) (string, error)

// Registry routes messages to the appropriate delivery handler based on
// target prefix (e.g. "slack", "telegram:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Has reports whether some handler accepts target.
func (r *Registry) Has(target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.match(target)
	return ok
}

// Deliver finds the handler with the longest prefix matching target and
// calls it. Returns an error if no handler is registered for the target.
func (r *Registry) Deliver(ctx context.Context, target, message string) (string, error) {
	r.mu.RLock()
	handler, ok := r.match(target)
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no delivery handler for target: %s", target)
	}
	return handler(ctx, target, message)
}

func (r *Registry) match(target string) (Handler, bool) {
	var (
		best    Handler
		bestLen = -1
	)
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(target, prefix) && len(prefix) > bestLen {
			best, bestLen = handler, len(prefix)
		}
	}
	return best, bestLen >= 0
}

// Notifier binds the registry to a fixed target.
func (r *Registry) Notifier(target string) types.Notifier {
	return &routed{registry: r, target: target}
}

type routed struct {
	registry *Registry
	target   string
}

func (n *routed) Notify(ctx context.Context, text string) (string, error) {
	return n.registry.Deliver(ctx, n.target, text)
}
