package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TypeEcho is the tool type served in-process by EchoInvoker.
const TypeEcho = "echo"

// Router dispatches each invocation to the invoker registered for the
// tool's type, falling back to a default invoker for unregistered types.
type Router struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
	fallback Invoker
}

// NewRouter creates a router. fallback may be nil, in which case tools of
// unregistered types fail to invoke.
func NewRouter(fallback Invoker) *Router {
	return &Router{
		invokers: make(map[string]Invoker),
		fallback: fallback,
	}
}

// Register routes tools of the given type to inv. Types are matched
// case-insensitively.
func (r *Router) Register(toolType string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[strings.ToLower(toolType)] = inv
}

// Resolve returns the invoker for a tool type.
func (r *Router) Resolve(toolType string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inv, ok := r.invokers[strings.ToLower(toolType)]; ok {
		return inv, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no invoker registered for tool type %q", toolType)
}

// Types returns the registered tool types, sorted.
func (r *Router) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.invokers))
	for t := range r.invokers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Invoke implements Invoker.
func (r *Router) Invoke(ctx context.Context, d Descriptor, params map[string]any) (map[string]any, error) {
	inv, err := r.Resolve(d.Type)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", d.Name, err)
	}
	return inv.Invoke(ctx, d, params)
}

// EchoInvoker answers in-process with the tool name and its parameters.
// It backs tools of type echo, which need no endpoint.
var EchoInvoker = InvokerFunc(func(_ context.Context, d Descriptor, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{"tool": d.Name, "params": params}, nil
})
