// Package storage - Derived custodial key persistence.
package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Derived key persistence errors
var (
	ErrKeyNotFound = errors.New("derived key not found")
)

// DerivedKeyRecord represents an encrypted custodial wallet derived for a
// source-chain address. The private key never leaves the record in
// plaintext; enc_* fields hold the AES-256-GCM ciphertext components.
type DerivedKeyRecord struct {
	// SourceAddress is the source-chain wallet the key was derived for.
	// Stored lowercased for case-insensitive lookup.
	SourceAddress string `json:"source_address"`

	// EVMAddress is the derived destination-chain address.
	EVMAddress string `json:"evm_address"`

	// Encrypted private key components, hex encoded.
	EncIV      string `json:"-"`
	EncAuthTag string `json:"-"`
	EncData    string `json:"-"`

	// GasSeeded records whether the wallet received its initial gas.
	GasSeeded     bool   `json:"gas_seeded"`
	GasSeedTxHash string `json:"gas_seed_tx_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveDerivedKey upserts a derived key record keyed by source address.
func (s *Storage) SaveDerivedKey(rec *DerivedKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO derived_keys (
			source_address, evm_address,
			enc_iv, enc_auth_tag, enc_data,
			gas_seeded, gas_seed_tx_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_address) DO UPDATE SET
			evm_address = excluded.evm_address,
			enc_iv = excluded.enc_iv,
			enc_auth_tag = excluded.enc_auth_tag,
			enc_data = excluded.enc_data,
			gas_seeded = excluded.gas_seeded,
			gas_seed_tx_hash = excluded.gas_seed_tx_hash,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		strings.ToLower(rec.SourceAddress),
		rec.EVMAddress,
		rec.EncIV,
		rec.EncAuthTag,
		rec.EncData,
		boolToInt(rec.GasSeeded),
		rec.GasSeedTxHash,
		rec.CreatedAt.Unix(),
		rec.UpdatedAt.Unix(),
	)
	return err
}

// GetDerivedKey retrieves a derived key record by source address.
func (s *Storage) GetDerivedKey(sourceAddress string) (*DerivedKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT source_address, evm_address,
			enc_iv, enc_auth_tag, enc_data,
			gas_seeded, gas_seed_tx_hash,
			created_at, updated_at
		FROM derived_keys WHERE source_address = ?
	`

	var rec DerivedKeyRecord
	var gasSeeded int
	var gasSeedTxHash sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRow(query, strings.ToLower(sourceAddress)).Scan(
		&rec.SourceAddress,
		&rec.EVMAddress,
		&rec.EncIV,
		&rec.EncAuthTag,
		&rec.EncData,
		&gasSeeded,
		&gasSeedTxHash,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.GasSeeded = gasSeeded != 0
	rec.GasSeedTxHash = gasSeedTxHash.String
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	return &rec, nil
}

// MarkGasSeeded records the gas seeding transaction for a derived key.
func (s *Storage) MarkGasSeeded(sourceAddress, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE derived_keys
		SET gas_seeded = 1, gas_seed_tx_hash = ?, updated_at = ?
		WHERE source_address = ?
	`

	result, err := s.db.Exec(query, txHash, time.Now().Unix(), strings.ToLower(sourceAddress))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
