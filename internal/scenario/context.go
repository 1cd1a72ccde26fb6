package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Context is the data bag threaded through the steps of one scenario run.
// Steps of a scenario run sequentially; the mutex only protects against
// hooks (reporting, metrics) reading while a step writes.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *Context) Value(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) Has(key string) bool {
	_, ok := c.Value(key)
	return ok
}

// Keys returns the populated keys in lexical order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup reads key as T. A key that was never set, or that holds another
// type, fails the step as an assertion naming the key.
func Lookup[T any](c *Context, key string) (T, error) {
	var zero T
	raw, ok := c.Value(key)
	if !ok {
		return zero, Assertionf("context key %q was not set by an earlier step", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, Assertionf("context key %q holds %T, expected %T", key, raw, zero)
	}
	return v, nil
}

// LookupOptional is Lookup for keys a step may legitimately leave unset.
func LookupOptional[T any](c *Context, key string) (T, bool, error) {
	var zero T
	raw, ok := c.Value(key)
	if !ok || raw == nil {
		return zero, false, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false, fmt.Errorf("context key %q holds %T, expected %T", key, raw, zero)
	}
	return v, true, nil
}

type contextKey struct{}

// WithContext stores sc in ctx so hooks driven by godog can find it.
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext returns the scenario Context stored by WithContext.
func FromContext(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(contextKey{}).(*Context)
	return sc, ok
}
