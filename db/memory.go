package db

import (
	"context"
	"errors"
	"sync"
)

var errClosed = errors.New("store closed")

// In-memory storage engine. Contents are lost on exit.
type memory struct {
	mu          sync.RWMutex
	closed      bool
	collections map[string][]Document
}

// NewMemory creates a store, that keeps all documents in memory
func NewMemory() Store {
	return newStore(&memory{
		collections: make(map[string][]Document),
	})
}

func (m *memory) insert(_ context.Context, collection string, doc Document,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	m.collections[collection] = append(m.collections[collection], doc)
	return nil
}

func (m *memory) query(_ context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}
	src := m.collections[q.Collection]
	docs := make([]Document, 0, len(src))
	for _, d := range src {
		if !matchesBoard(q, d) {
			continue
		}
		c := make(Document, len(d))
		for k, v := range d {
			c[k] = v
		}
		docs = append(docs, c)
	}
	sortDocs(docs, q.Descending)
	return docs, nil
}

func (m *memory) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
