package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memoryDoc struct {
	seq  uint64
	data []byte
}

// MemoryStore is an in-memory DocumentStore, used for local runs and tests
type MemoryStore struct {
	mu   sync.RWMutex
	seq  uint64
	data map[string]map[string]memoryDoc // collection -> id -> document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]memoryDoc),
	}
}

// Insert stores a new document
func (ms *MemoryStore) Insert(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data[collection] == nil {
		ms.data[collection] = make(map[string]memoryDoc)
	}
	if _, exists := ms.data[collection][id]; exists {
		return ErrDuplicate
	}
	ms.seq++
	ms.data[collection][id] = memoryDoc{seq: ms.seq, data: data}
	return nil
}

// Get retrieves a document by id
func (ms *MemoryStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	doc, ok := ms.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(doc.data), nil
}

// Replace overwrites an existing document, keeping its position in List
func (ms *MemoryStore) Replace(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, ok := ms.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	ms.data[collection][id] = memoryDoc{seq: current.seq, data: data}
	return nil
}

// ReplaceIf overwrites a document if its version still equals expected
func (ms *MemoryStore) ReplaceIf(ctx context.Context, collection, id string, doc any, expected int) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, ok := ms.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	fields, err := decodeFields(current.data)
	if err != nil {
		return err
	}
	version, err := intField(fields, VersionField)
	if err != nil {
		return err
	}
	if version != expected {
		return ErrConditionFailed
	}
	ms.data[collection][id] = memoryDoc{seq: current.seq, data: data}
	return nil
}

// Delete removes a document
func (ms *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(ms.data[collection], id)
	return nil
}

// List returns all documents in a collection in insertion order
func (ms *MemoryStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return ms.filter(collection, func([]byte) bool { return true })
}

// FindByField returns documents whose top-level string field equals value
func (ms *MemoryStore) FindByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	return ms.filter(collection, func(data []byte) bool {
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return false
		}
		s, ok := fields[field].(string)
		return ok && s == value
	})
}

// IncrementField adds delta to an integer field under the write lock
func (ms *MemoryStore) IncrementField(ctx context.Context, collection, id, field string, delta, min int) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	doc, ok := ms.data[collection][id]
	if !ok {
		return 0, ErrNotFound
	}

	fields, err := decodeFields(doc.data)
	if err != nil {
		return 0, err
	}
	current, err := intField(fields, field)
	if err != nil {
		return 0, err
	}
	version, err := intField(fields, VersionField)
	if err != nil {
		return 0, err
	}

	next := current + delta
	if next < min {
		return current, ErrConditionFailed
	}

	fields[field], _ = json.Marshal(next)
	fields[VersionField], _ = json.Marshal(version + 1)
	data, err := json.Marshal(fields)
	if err != nil {
		return 0, err
	}
	ms.data[collection][id] = memoryDoc{seq: doc.seq, data: data}
	return next, nil
}

func (ms *MemoryStore) filter(collection string, keep func([]byte) bool) ([]json.RawMessage, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	docs := make([]memoryDoc, 0, len(ms.data[collection]))
	for _, doc := range ms.data[collection] {
		if keep(doc.data) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	out := make([]json.RawMessage, 0, len(docs))
	for _, doc := range docs {
		out = append(out, cloneBytes(doc.data))
	}
	return out, nil
}

func decodeFields(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// intField reads an integer field; a missing field is 0
func intField(fields map[string]json.RawMessage, name string) (int, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("field %s is not an integer: %w", name, err)
	}
	return n, nil
}

func cloneBytes(b []byte) json.RawMessage {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
