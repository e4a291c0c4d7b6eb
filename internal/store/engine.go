package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Engine owns the sqlite handle shared by every service in the core.
// Unique indexes on identities(org_id, type, value) and
// persons(org_id, external_id) are the concurrency safety net for the
// resolver; everything else is plain reads and appends.
type Engine struct {
	db *sql.DB
	mu sync.Mutex
}

func NewEngine(dbPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	e := &Engine{db: db}
	if err := e.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := e.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *Engine) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS persons (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			external_id TEXT,
			display_name TEXT,
			primary_email TEXT,
			primary_phone TEXT,
			primary_handle TEXT,
			attributes TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_persons_org_external
			ON persons(org_id, external_id) WHERE external_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			person_id TEXT NOT NULL REFERENCES persons(id),
			type TEXT NOT NULL,
			value TEXT NOT NULL,
			channel TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_org_type_value
			ON identities(org_id, type, value)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_person ON identities(person_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			person_id TEXT NOT NULL REFERENCES persons(id),
			channel TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT,
			topic TEXT,
			intent TEXT,
			sentiment TEXT,
			payload TEXT,
			metadata TEXT,
			occurred_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_person ON events(person_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS topics (
			person_id TEXT NOT NULL REFERENCES persons(id),
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			weight REAL NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (person_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			person_id TEXT NOT NULL REFERENCES persons(id),
			label TEXT,
			summary TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB,
			source_event_id TEXT,
			expires_at TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_person ON memories(person_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS brand_voices (
			id TEXT PRIMARY KEY,
			brand_id TEXT NOT NULL,
			prompt_template TEXT NOT NULL,
			style_rules TEXT,
			metrics TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_brand_voices_brand ON brand_voices(brand_id)`,
		`CREATE TABLE IF NOT EXISTS snippets (
			id TEXT PRIMARY KEY,
			brand_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			win_rate REAL NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snippets_brand_channel ON snippets(brand_id, channel)`,
		`CREATE TABLE IF NOT EXISTS consents (
			id TEXT PRIMARY KEY,
			person_id TEXT NOT NULL REFERENCES persons(id),
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_consents_person ON consents(person_id, channel)`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, serialized against other writers
// on this engine. sqlite allows a single writer; the mutex keeps
// concurrent resolves from fighting over the write lock and the
// transaction keeps read-then-create atomic.
func (e *Engine) WithTx(fn func(tx *sql.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (e *Engine) DB() *sql.DB {
	return e.db
}
