package chain

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is the request-scoped store that threads results between
// commands. Entries are added, never removed.
type Context struct {
	// Go context for cancellation and deadlines of datastore calls
	ctx context.Context

	RequestID string
	StartTime time.Time

	mu       sync.RWMutex
	keys     []string
	values   map[string]any
	auditLog []AuditEntry
}

// NewContext creates an empty request context.
func NewContext(ctx context.Context) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		ctx:       ctx,
		RequestID: uuid.New().String(),
		StartTime: time.Now(),
		values:    make(map[string]any),
	}
}

// NewContextWith creates a context pre-populated with initial values.
func NewContextWith(ctx context.Context, initial map[string]any) *Context {
	c := NewContext(ctx)
	c.AddAll(initial)
	return c
}

// Context returns the Go context
func (c *Context) Context() context.Context {
	return c.ctx
}

// Add sets a value. Re-adding a key replaces the value but keeps its
// position.
func (c *Context) Add(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// AddAll adds every entry of values in sorted key order.
func (c *Context) AddAll(values map[string]any) {
	for _, k := range sortedKeys(values) {
		c.Add(k, values[k])
	}
}

// Get returns a value or nil.
func (c *Context) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// Lookup returns a value and whether the key exists.
func (c *Context) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key exists.
func (c *Context) Has(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Path resolves a dotted key. The first segment is a context key, the
// rest walk into nested maps or property bags.
func (c *Context) Path(path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := c.Lookup(head)
	if !ok || !nested {
		return v, ok
	}
	return walk(v, rest)
}

type getter interface {
	Get(name string) any
}

func walk(v any, path string) (any, bool) {
	for _, part := range strings.Split(path, ".") {
		switch cur := v.(type) {
		case map[string]any:
			next, ok := cur[part]
			if !ok {
				return nil, false
			}
			v = next
		case map[string]string:
			next, ok := cur[part]
			if !ok {
				return nil, false
			}
			v = next
		case getter:
			v = cur.Get(part)
			if v == nil {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return v, true
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

// Len returns the number of entries.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// ToMap returns a copy of all entries.
func (c *Context) ToMap() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// AddAuditEntry appends to the audit log
func (c *Context) AddAuditEntry(entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditLog = append(c.auditLog, entry)
}

// AuditLog returns a copy of the audit log
func (c *Context) AuditLog() []AuditEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]AuditEntry(nil), c.auditLog...)
}

// Duration returns the time since the request started
func (c *Context) Duration() time.Duration {
	return time.Since(c.StartTime)
}
