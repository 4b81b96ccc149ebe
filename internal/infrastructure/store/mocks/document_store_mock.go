package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// Operation names recorded in Calls
const (
	OpInsert    = "insert"
	OpGet       = "get"
	OpReplace   = "replace"
	OpReplaceIf = "replace_if"
	OpDelete    = "delete"
	OpList      = "list"
	OpFind      = "find"
	OpIncrement = "increment"
)

// Call records one operation against the store
type Call struct {
	Op         string
	Collection string
	ID         string
	Delta      int
}

// MockDocumentStore wraps an in-memory store, records every call and lets
// tests inject failures through FailOn.
type MockDocumentStore struct {
	inner *store.MemoryStore

	mu    sync.Mutex
	Calls []Call

	// FailOn, when set, is consulted before each operation; a non-nil
	// return aborts the operation with that error.
	FailOn func(call Call) error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		inner: store.NewMemoryStore(),
		Calls: make([]Call, 0),
	}
}

func (m *MockDocumentStore) record(call Call) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	failOn := m.FailOn
	m.mu.Unlock()

	if failOn != nil {
		return failOn(call)
	}
	return nil
}

func (m *MockDocumentStore) Insert(ctx context.Context, collection, id string, doc any) error {
	if err := m.record(Call{Op: OpInsert, Collection: collection, ID: id}); err != nil {
		return err
	}
	return m.inner.Insert(ctx, collection, id, doc)
}

func (m *MockDocumentStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	if err := m.record(Call{Op: OpGet, Collection: collection, ID: id}); err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, collection, id)
}

func (m *MockDocumentStore) Replace(ctx context.Context, collection, id string, doc any) error {
	if err := m.record(Call{Op: OpReplace, Collection: collection, ID: id}); err != nil {
		return err
	}
	return m.inner.Replace(ctx, collection, id, doc)
}

func (m *MockDocumentStore) ReplaceIf(ctx context.Context, collection, id string, doc any, expected int) error {
	if err := m.record(Call{Op: OpReplaceIf, Collection: collection, ID: id}); err != nil {
		return err
	}
	return m.inner.ReplaceIf(ctx, collection, id, doc, expected)
}

func (m *MockDocumentStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.record(Call{Op: OpDelete, Collection: collection, ID: id}); err != nil {
		return err
	}
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockDocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if err := m.record(Call{Op: OpList, Collection: collection}); err != nil {
		return nil, err
	}
	return m.inner.List(ctx, collection)
}

func (m *MockDocumentStore) FindByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	if err := m.record(Call{Op: OpFind, Collection: collection}); err != nil {
		return nil, err
	}
	return m.inner.FindByField(ctx, collection, field, value)
}

func (m *MockDocumentStore) IncrementField(ctx context.Context, collection, id, field string, delta, min int) (int, error) {
	if err := m.record(Call{Op: OpIncrement, Collection: collection, ID: id, Delta: delta}); err != nil {
		return 0, err
	}
	return m.inner.IncrementField(ctx, collection, id, field, delta, min)
}

// SetData stores a document directly, without recording the call
func (m *MockDocumentStore) SetData(collection, id string, doc any) {
	ctx := context.Background()
	if err := m.inner.Replace(ctx, collection, id, doc); err == store.ErrNotFound {
		_ = m.inner.Insert(ctx, collection, id, doc)
	}
}

// CallsFor returns recorded calls of one operation type
func (m *MockDocumentStore) CallsFor(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls and the failure hook
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]Call, 0)
	m.FailOn = nil
}
