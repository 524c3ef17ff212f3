// Package pgstore implements store.Store on a PostgreSQL documents table
// with JSONB payloads and a version column for compare-and-set updates.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/store"
)

const (
	insertDocument = `INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, 1, $3) ON CONFLICT (collection, id) DO NOTHING`
	selectDocument = `SELECT id, version, data FROM documents WHERE collection = $1 AND id = $2`
	selectVersion  = `SELECT version FROM documents WHERE collection = $1 AND id = $2`
	updateDocument = `UPDATE documents SET data = data || $3::jsonb, version = version + 1, updated_at = NOW() WHERE collection = $1 AND id = $2 RETURNING version`
	updateIfMatch  = `UPDATE documents SET data = data || $3::jsonb, version = version + 1, updated_at = NOW() WHERE collection = $1 AND id = $2 AND version = $4 RETURNING version`
	deleteDocument = `DELETE FROM documents WHERE collection = $1 AND id = $2`
)

// Config holds connection pool settings
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a PostgreSQL-backed document store
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type row struct {
	ID      string `db:"id"`
	Version int64  `db:"version"`
	Data    []byte `db:"data"`
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info("Connected to document database",
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return New(db, logger), nil
}

// New wraps an existing connection
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying connection for migrations
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the connection pool
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return "", err
	}
	raw, err := store.EncodeObject(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}

	res, err := s.db.ExecContext(ctx, insertDocument, collection, id, string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%s/%s: %w", collection, id, store.ErrAlreadyExists)
	}

	s.logger.Debug("Document created", zap.String("collection", collection), zap.String("id", id))
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, selectDocument, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return &store.Document{ID: r.ID, Version: r.Version, Data: json.RawMessage(r.Data)}, nil
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]*store.Document, error) {
	query, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	docs := make([]*store.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, &store.Document{ID: r.ID, Version: r.Version, Data: json.RawMessage(r.Data)})
	}
	return docs, nil
}

// buildQuery translates predicates into JSONB comparisons. Field names are
// validated as identifiers before they are placed in the SQL text.
func buildQuery(collection string, q store.Query) (string, []interface{}, error) {
	if err := store.ValidateQuery(q); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := []interface{}{collection}
	sb.WriteString("SELECT id, version, data FROM documents WHERE collection = $1")

	for _, p := range q.Where {
		value, err := json.Marshal(p.Value)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode value for %s: %w", p.Field, err)
		}
		args = append(args, string(value))
		switch p.Op {
		case store.OpEqual:
			fmt.Fprintf(&sb, " AND data->'%s' = $%d::jsonb", p.Field, len(args))
		case store.OpNotEqual:
			fmt.Fprintf(&sb, " AND data->'%s' IS DISTINCT FROM $%d::jsonb", p.Field, len(args))
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY data->'%s' %s, id ASC", q.OrderBy, dir)
	} else {
		sb.WriteString(" ORDER BY id ASC")
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]interface{}, ifVersion int64) (int64, error) {
	raw, err := store.EncodeObject(patch)
	if err != nil {
		return 0, err
	}

	var version int64
	if ifVersion != 0 {
		err = s.db.QueryRowxContext(ctx, updateIfMatch, collection, id, string(raw), ifVersion).Scan(&version)
	} else {
		err = s.db.QueryRowxContext(ctx, updateDocument, collection, id, string(raw)).Scan(&version)
	}
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}

	// No row was updated: either the document is gone or its version moved.
	var current int64
	if err := s.db.GetContext(ctx, &current, selectVersion, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to read version of %s/%s: %w", collection, id, err)
	}
	return 0, fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, current, ifVersion, store.ErrVersionConflict)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, deleteDocument, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}
