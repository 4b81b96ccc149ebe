package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops);
`

// PostgresStore implements DocumentStore on a single JSONB table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed document store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the documents table if needed
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
	`, collection, id, data)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM documents WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (s *PostgresStore) Replace(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = $3, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ReplaceIf(ctx context.Context, collection, id string, doc any, expected int) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = $3, updated_at = NOW()
		WHERE collection = $1 AND id = $2
			AND COALESCE((data->>'version')::int, 0) = $4::int
	`, collection, id, data, expected)
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", collection, id, err)
	}
	if err := requireAffected(res); err != ErrNotFound {
		return err
	}
	return s.conditionFailed(ctx, collection, id)
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM documents WHERE collection = $1 ORDER BY created_at, id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return scanDocuments(rows)
}

func (s *PostgresStore) FindByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM documents
		WHERE collection = $1 AND data->>$2::text = $3
		ORDER BY created_at, id
	`, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", collection, field, err)
	}
	return scanDocuments(rows)
}

// IncrementField runs a single guarded UPDATE, so concurrent callers can
// never push the field below min.
func (s *PostgresStore) IncrementField(ctx context.Context, collection, id, field string, delta, min int) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET data = jsonb_set(
				jsonb_set(data, $3::text[], to_jsonb(COALESCE((data->>$4::text)::int, 0) + $5::int)),
				'{version}', to_jsonb(COALESCE((data->>'version')::int, 0) + 1)),
			updated_at = NOW()
		WHERE collection = $1 AND id = $2
			AND COALESCE((data->>$4::text)::int, 0) + $5::int >= $6::int
		RETURNING (data->>$4::text)::int
	`, collection, id, pq.Array([]string{field}), field, delta, min).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment %s/%s.%s: %w", collection, id, field, err)
	}

	return 0, s.conditionFailed(ctx, collection, id)
}

// conditionFailed tells apart a guarded write that matched no row because
// the document is gone from one whose condition did not hold.
func (s *PostgresStore) conditionFailed(ctx context.Context, collection, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)
	`, collection, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s/%s: %w", collection, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func scanDocuments(rows *sql.Rows) ([]json.RawMessage, error) {
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		docs = append(docs, data)
	}
	return docs, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
