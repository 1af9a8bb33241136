package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// SQLiteConfig holds configuration for the SQLite store
type SQLiteConfig struct {
	// Path to the database file; ":memory:" for a private in-memory database
	Path string
}

// SQLite stores documents as JSON rows in a single table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) a SQLite document store.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, verrors.StorageOperation("open", err).WithDetail("path", cfg.Path)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, verrors.StorageOperation("open", err).WithDetail("path", cfg.Path)
	}
	if cfg.Path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, verrors.StorageOperation("init schema", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		seq INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(collection, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Collection returns the named collection.
func (s *SQLite) Collection(name string) Collection {
	return &sqliteCollection{db: s.db, name: name}
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return verrors.StorageOperation("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteCollection struct {
	db   *sql.DB
	name string
}

func (c *sqliteCollection) Name() string { return c.name }

func (c *sqliteCollection) FindOne(ctx context.Context, q Query) (Document, error) {
	docs, err := c.Find(ctx, q, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *sqliteCollection) Find(ctx context.Context, q Query, opts FindOptions) ([]Document, error) {
	nq, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if id, ok := nq[IDField].(string); ok {
		rows, err = c.db.QueryContext(ctx,
			`SELECT body FROM documents WHERE collection = ? AND id = ?`, c.name, id)
	} else {
		rows, err = c.db.QueryContext(ctx,
			`SELECT body FROM documents WHERE collection = ? ORDER BY seq`, c.name)
	}
	if err != nil {
		return nil, verrors.StorageOperation("find", err).WithDetail("collection", c.name)
	}
	defer rows.Close()

	var matched []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, verrors.StorageOperation("find", err).WithDetail("collection", c.name)
		}
		var doc Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, verrors.StorageOperation("decode", err).WithDetail("collection", c.name)
		}
		if Matches(doc, nq) {
			matched = append(matched, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.StorageOperation("find", err).WithDetail("collection", c.name)
	}
	return applyOptions(matched, opts), nil
}

func (c *sqliteCollection) Save(ctx context.Context, doc Document) (Document, error) {
	stored, err := prepareSave(doc)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, verrors.StorageOperation("save", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents WHERE collection = ?))
		ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		c.name, stored.ID(), string(body), c.name)
	if err != nil {
		return nil, verrors.StorageOperation("save", err).
			WithDetail("collection", c.name).
			WithDetail("id", stored.ID())
	}
	return stored, nil
}

func (c *sqliteCollection) Remove(ctx context.Context, q Query) error {
	docs, err := c.Find(ctx, q, FindOptions{})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.StorageOperation("remove", err).WithDetail("collection", c.name)
	}
	defer tx.Rollback()

	for _, d := range docs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, d.ID()); err != nil {
			return verrors.StorageOperation("remove", err).WithDetail("collection", c.name)
		}
	}
	if err := tx.Commit(); err != nil {
		return verrors.StorageOperation("remove", err).WithDetail("collection", c.name)
	}
	return nil
}
