package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Documents are kept as encoded JSON so
// callers never share memory with stored records.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Document
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]*Document)}
}

func (m *MemoryStore) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateCollection(collection); err != nil {
		return "", err
	}
	raw, err := EncodeObject(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]*Document)
		m.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return "", fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	docs[id] = &Document{ID: id, Version: 1, Data: raw}
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc.clone(), nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	docs := make([]*Document, 0, len(m.collections[collection]))
	for _, doc := range m.collections[collection] {
		docs = append(docs, doc.clone())
	}
	m.mu.RUnlock()

	return Apply(docs, q)
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}, ifVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if ifVersion != 0 && doc.Version != ifVersion {
		return 0, fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, doc.Version, ifVersion, ErrVersionConflict)
	}
	merged, err := MergeJSON(doc.Data, patch)
	if err != nil {
		return 0, err
	}
	doc.Data = merged
	doc.Version++
	return doc.Version, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.collections[collection], id)
	return nil
}

func (d *Document) clone() *Document {
	return &Document{ID: d.ID, Version: d.Version, Data: append(json.RawMessage(nil), d.Data...)}
}
