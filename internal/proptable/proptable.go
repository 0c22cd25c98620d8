// Package proptable implements the process-wide property/description
// table (spec.md §4.9, §6): arbitrary key/value metadata attached to a
// UUID (a client, port, or the special global subject 0), with an
// optional SQLite-backed persistence layer so metadata survives a
// process restart the way jack_set_property with persist=true requires.
//
// Grounded on server/store/store.go's migration-list + schema_migrations
// pattern for the persisted half, and server/internal/core/channel_state.go's
// RWMutex-guarded map for the in-memory half.
package proptable

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// Property is one (key, value, type) triple attached to a subject uuid
// (spec.md §6: jack_set_property's type is a free-form MIME-ish string,
// e.g. "" for plain text).
type Property struct {
	Key   string
	Value string
	Type  string
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		subject TEXT NOT NULL,
		key     TEXT NOT NULL,
		value   TEXT NOT NULL,
		type    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (subject, key)
	)`,
}

// Table is the in-memory metadata store, optionally mirrored to a SQLite
// database for persisted properties.
type Table struct {
	mu   sync.RWMutex
	subj map[uint64]map[string]Property

	db *sql.DB
}

// New returns an empty in-memory Table with no persistence.
func New() *Table {
	return &Table{subj: make(map[uint64]map[string]Property)}
}

// Open returns a Table backed by a SQLite database at path, loading any
// previously persisted properties immediately. Use ":memory:" for tests.
func Open(path string) (*Table, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open proptable db: %w", err)
	}
	db.SetMaxOpenConns(4)

	t := &Table{subj: make(map[uint64]map[string]Property), db: db}
	if err := t.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := t.load(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) migrate() error {
	if _, err := t.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := t.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := t.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := t.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[proptable] applied migration v%d", v)
	}
	return nil
}

func (t *Table) load() error {
	rows, err := t.db.Query(`SELECT subject, key, value, type FROM properties`)
	if err != nil {
		return fmt.Errorf("load properties: %w", err)
	}
	defer rows.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	for rows.Next() {
		var subject uint64
		var p Property
		if err := rows.Scan(&subject, &p.Key, &p.Value, &p.Type); err != nil {
			return fmt.Errorf("scan property row: %w", err)
		}
		if t.subj[subject] == nil {
			t.subj[subject] = make(map[string]Property)
		}
		t.subj[subject][p.Key] = p
	}
	return rows.Err()
}

// Close releases the backing database, if any.
func (t *Table) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Set attaches or overwrites one property on subject. When persist is
// true and the table was opened with a backing database, the write is
// mirrored to SQLite immediately.
func (t *Table) Set(subject uint64, p Property, persist bool) error {
	t.mu.Lock()
	if t.subj[subject] == nil {
		t.subj[subject] = make(map[string]Property)
	}
	t.subj[subject][p.Key] = p
	t.mu.Unlock()

	if persist && t.db != nil {
		_, err := t.db.Exec(
			`INSERT INTO properties(subject, key, value, type) VALUES(?, ?, ?, ?)
			 ON CONFLICT(subject, key) DO UPDATE SET value = excluded.value, type = excluded.type`,
			subject, p.Key, p.Value, p.Type)
		if err != nil {
			return fmt.Errorf("persist property: %w", err)
		}
	}
	return nil
}

// Get returns one property, or ok=false if subject has no such key.
func (t *Table) Get(subject uint64, key string) (Property, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.subj[subject][key]
	return p, ok
}

// All returns every property attached to subject, sorted by key.
func (t *Table) All(subject uint64) []Property {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Property, 0, len(t.subj[subject]))
	for _, p := range t.subj[subject] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Remove deletes one property from subject (jack_remove_property).
func (t *Table) Remove(subject uint64, key string) error {
	t.mu.Lock()
	delete(t.subj[subject], key)
	t.mu.Unlock()

	if t.db != nil {
		if _, err := t.db.Exec(`DELETE FROM properties WHERE subject = ? AND key = ?`, subject, key); err != nil {
			return fmt.Errorf("remove persisted property: %w", err)
		}
	}
	return nil
}

// RemoveAll deletes every property for subject (jack_remove_properties).
func (t *Table) RemoveAll(subject uint64) error {
	t.mu.Lock()
	delete(t.subj, subject)
	t.mu.Unlock()

	if t.db != nil {
		if _, err := t.db.Exec(`DELETE FROM properties WHERE subject = ?`, subject); err != nil {
			return fmt.Errorf("remove persisted properties: %w", err)
		}
	}
	return nil
}
