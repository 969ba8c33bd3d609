// Package store implements the wallet's durable, transactional relational
// state: accounts, subaddresses, TXOs, and transaction logs (spec.md §4.1).
// Every public operation executes inside a serializable transaction with
// read-your-writes semantics.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the relational Store backing the wallet's account, subaddress,
// TXO, and transaction-log state.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Config configures where the Store persists its database file.
type Config struct {
	Path string
}

// New opens (creating if necessary) the Store database at cfg.Path and
// ensures its schema is up to date.
func New(cfg Config) (*Store, error) {
	path := expandPath(cfg.Path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite3 supports a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}

	return s, nil
}

// Atomic runs fn inside a single serializable transaction. It exposes
// withTx to callers (principally internal/txbuilder and internal/scanner)
// that must combine several Store operations — e.g. inserting minted TXOs
// and writing their owning TransactionLog — into one all-or-nothing commit.
func (s *Store) Atomic(fn func(tx *sql.Tx) error) error {
	return s.withTx(fn)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB, for callers (tests, migrations) that
// need direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a serializable transaction, committing on success
// and rolling back if fn returns an error or panics.
func (s *Store) withTx(fn func(tx *sql.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return IOError("store", "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return IOError("store", "commit transaction", err)
	}
	return nil
}

func expandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
