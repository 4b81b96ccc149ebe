package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names
const (
	Users         = "users"
	Products      = "products"
	Carts         = "carts"
	Orders        = "orders"
	Conversations = "conversations"
	Sessions      = "sessions"

	// UserEmails maps a lower-cased email to its user id; inserting into it
	// is what makes emails unique
	UserEmails = "user_emails"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicate       = errors.New("document already exists")
	ErrConditionFailed = errors.New("update condition failed")
)

// DocumentStore is a collection-oriented document store. Documents are
// JSON-encoded on write, so callers always get value copies back.
type DocumentStore interface {
	// Insert stores a new document; ErrDuplicate if the id is taken
	Insert(ctx context.Context, collection, id string, doc any) error

	// Get returns the raw document; ErrNotFound if absent
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)

	// Replace overwrites an existing document; ErrNotFound if absent
	Replace(ctx context.Context, collection, id string, doc any) error

	// ReplaceIf overwrites a document only while its stored version field
	// still equals expected (a missing field counts as 0). ErrConditionFailed
	// if it has moved on, ErrNotFound if absent. The caller sets the new
	// version on doc.
	ReplaceIf(ctx context.Context, collection, id string, doc any, expected int) error

	// Delete removes a document; ErrNotFound if absent
	Delete(ctx context.Context, collection, id string) error

	// List returns every document in a collection, oldest first
	List(ctx context.Context, collection string) ([]json.RawMessage, error)

	// FindByField returns documents whose top-level string field equals value
	FindByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error)

	// IncrementField atomically adds delta to an integer field of one document
	// and bumps its version. The update is rejected with ErrConditionFailed if
	// the result would be below min. Returns the new value.
	IncrementField(ctx context.Context, collection, id, field string, delta, min int) (int, error)
}

// GetAs loads a document and decodes it into T
func GetAs[T any](ctx context.Context, s DocumentStore, collection, id string) (*T, error) {
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &v, nil
}

// ListAs loads a whole collection and decodes each document into T
func ListAs[T any](ctx context.Context, s DocumentStore, collection string) ([]*T, error) {
	raws, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, raws)
}

// FindAs is FindByField with decoding
func FindAs[T any](ctx context.Context, s DocumentStore, collection, field, value string) ([]*T, error) {
	raws, err := s.FindByField(ctx, collection, field, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, raws)
}

func decodeAll[T any](collection string, raws []json.RawMessage) ([]*T, error) {
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
