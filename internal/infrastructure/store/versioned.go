package store

import (
	"context"
	"errors"
	"fmt"
)

// VersionField is the top-level document field ReplaceIf compares
const VersionField = "version"

const maxUpdateAttempts = 5

// Versioned is a pointer to a document type carrying a version counter
type Versioned[T any] interface {
	*T
	VersionRef() *int
}

// Update loads a document, applies mutate and writes it back with ReplaceIf.
// If another writer got in first, the whole read-modify-write runs again on
// the fresh copy. An error from mutate aborts without writing.
func Update[T any, P Versioned[T]](ctx context.Context, s DocumentStore, collection, id string, mutate func(P) error) (P, error) {
	for attempt := 1; ; attempt++ {
		doc, err := GetAs[T](ctx, s, collection, id)
		if err != nil {
			return nil, err
		}
		p := P(doc)
		if err := mutate(p); err != nil {
			return nil, err
		}

		version := p.VersionRef()
		expected := *version
		*version = expected + 1

		err = s.ReplaceIf(ctx, collection, id, p, expected)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrConditionFailed) {
			return nil, err
		}
		if attempt == maxUpdateAttempts {
			return nil, fmt.Errorf("%s/%s kept changing after %d attempts: %w", collection, id, attempt, err)
		}
	}
}
