package datastore

import (
	"context"
	"sync"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Memory is a process-local Datastore used for tests and single-node
// development setups.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
	closed      bool
}

// NewMemory creates an empty in-memory datastore.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

// Collection returns the named collection, creating it on first use.
func (m *Memory) Collection(name string) Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = &memoryCollection{name: name, docs: make(map[string]Document)}
		m.collections[name] = c
	}
	return c
}

// Ping always succeeds until Close is called.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return verrors.New("datastore is closed").WithCode(verrors.CodeStorageOperation)
	}
	return ctx.Err()
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type memoryCollection struct {
	mu    sync.RWMutex
	name  string
	order []string
	docs  map[string]Document
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) FindOne(ctx context.Context, q Query) (Document, error) {
	docs, err := c.Find(ctx, q, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *memoryCollection) Find(ctx context.Context, q Query, opts FindOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nq, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	var matched []Document
	for _, id := range c.order {
		doc := c.docs[id]
		if Matches(doc, nq) {
			cp, err := normalize(doc)
			if err != nil {
				c.mu.RUnlock()
				return nil, err
			}
			matched = append(matched, cp)
		}
	}
	c.mu.RUnlock()

	return applyOptions(matched, opts), nil
}

func (c *memoryCollection) Save(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, err := prepareSave(doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	id := stored.ID()
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = stored
	c.mu.Unlock()

	return normalize(stored)
}

func (c *memoryCollection) Remove(ctx context.Context, q Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nq, err := normalizeQuery(q)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, id := range c.order {
		if Matches(c.docs[id], nq) {
			delete(c.docs, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return nil
}
