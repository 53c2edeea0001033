// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the bridge daemon.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "bridge.db")

	// Open database
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	// Initialize schema
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Swap settlement records, one per source-chain transaction.
	-- source_tx_hash is the primary key: a source transaction settles
	-- at most once, and the INSERT itself is the dedup gate.
	CREATE TABLE IF NOT EXISTS swap_records (
		source_tx_hash TEXT PRIMARY KEY,
		sender_address TEXT NOT NULL,
		recipient_address TEXT NOT NULL,

		-- Raw amounts in each token's smallest unit, stored as text
		-- so they survive values beyond int64
		source_amount TEXT NOT NULL,
		payout_amount TEXT NOT NULL,

		-- pending, completed, failed
		status TEXT NOT NULL DEFAULT 'pending',

		-- Destination-chain payout transaction hash (set on completion)
		payout_tx_hash TEXT,

		-- Failure reason (set on failure)
		failure_reason TEXT,

		-- Timing
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_swap_records_status ON swap_records(status);
	CREATE INDEX IF NOT EXISTS idx_swap_records_sender ON swap_records(sender_address);
	CREATE INDEX IF NOT EXISTS idx_swap_records_created ON swap_records(created_at);

	-- Derived custodial wallets, one per source-chain address.
	-- Private keys are stored encrypted (AES-256-GCM).
	CREATE TABLE IF NOT EXISTS derived_keys (
		source_address TEXT PRIMARY KEY,
		evm_address TEXT NOT NULL,

		-- Encrypted private key components, hex encoded
		enc_iv TEXT NOT NULL,
		enc_auth_tag TEXT NOT NULL,
		enc_data TEXT NOT NULL,

		-- Whether the wallet has been seeded with gas
		gas_seeded INTEGER NOT NULL DEFAULT 0,
		gas_seed_tx_hash TEXT,

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_derived_keys_evm ON derived_keys(evm_address);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
