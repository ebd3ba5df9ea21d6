package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"numa/internal/logging"
)

// Categorizer assigns a taxonomy label to (concept, merchant). The ledger
// calls it on transitions to a terminal state; it must be stateless.
type Categorizer interface {
	ClassifyCategory(ctx context.Context, concept, merchant string) (label string, confidence float64, err error)
}

// DefaultCategory is the lowest-risk bucket. It is assigned whenever a
// terminal transaction would otherwise be left uncategorized.
const DefaultCategory = "Compras"

// Store is the SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writes; sqlite has a single writer anyway
	log *zap.Logger

	categorizer         Categorizer
	confidenceThreshold float64
}

// Option configures a Store.
type Option func(*Store)

// WithCategorizer wires the auto-categorization capability.
func WithCategorizer(c Categorizer, confidenceThreshold float64) Option {
	return func(s *Store) {
		s.categorizer = c
		s.confidenceThreshold = confidenceThreshold
	}
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logging.For(l, logging.CategoryLedger) }
}

// Open initializes the SQLite database at path and runs the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:                  db,
		log:                 zap.NewNop(),
		confidenceThreshold: 0.7,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug("ledger store initialized", zap.String("path", path))
	return s, nil
}

func (s *Store) initialize() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`

	transactionsTable := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
		concept TEXT NOT NULL CHECK (concept <> ''),
		category TEXT,
		merchant TEXT,
		status TEXT NOT NULL,
		transaction_date TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		verified_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_tx_owner_created ON transactions(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_tx_owner_status ON transactions(owner_id, status);
	`

	for _, table := range []string{usersTable, transactionsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// resolveCategory runs the categorizer for a row entering a terminal state.
// Best effort: any failure or low-confidence answer falls back to the
// default bucket so the verification itself never fails on categorization.
func (s *Store) resolveCategory(ctx context.Context, concept, merchant string) string {
	if s.categorizer == nil {
		return DefaultCategory
	}
	label, confidence, err := s.categorizer.ClassifyCategory(ctx, concept, merchant)
	if err != nil {
		s.log.Warn("auto-categorization failed, using default",
			zap.String("concept", concept), zap.Error(err))
		return DefaultCategory
	}
	if confidence < s.confidenceThreshold || label == "" {
		return DefaultCategory
	}
	return label
}
