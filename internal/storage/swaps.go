// Package storage - Swap settlement record persistence.
// This file provides CRUD operations for swap records. A record is the
// dedup gate for the whole pipeline: inserting the pending row is what
// claims a source transaction, so the insert must be atomic.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Swap persistence errors
var (
	ErrSwapNotFound  = errors.New("swap not found")
	ErrSwapExists    = errors.New("swap already exists")
	ErrSwapFinalized = errors.New("swap already finalized")
)

// SwapStatus represents the lifecycle state of a swap record.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusCompleted SwapStatus = "completed"
	SwapStatusFailed    SwapStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s SwapStatus) Terminal() bool {
	return s == SwapStatusCompleted || s == SwapStatusFailed
}

// SwapRecord represents a persisted swap settlement.
type SwapRecord struct {
	// SourceTxHash is the source-chain transaction signature. It is the
	// record's identity; one source transaction settles at most once.
	SourceTxHash string `json:"source_tx_hash"`

	// SenderAddress is the source-chain wallet that paid the treasury.
	SenderAddress string `json:"sender_address"`

	// RecipientAddress is the destination-chain address paid out to.
	RecipientAddress string `json:"recipient_address"`

	// SourceAmount is the verified inbound amount in the source token's
	// smallest unit.
	SourceAmount string `json:"source_amount"`

	// PayoutAmount is the outbound amount in the destination token's
	// smallest unit.
	PayoutAmount string `json:"payout_amount"`

	// State
	Status SwapStatus `json:"status"`

	// PayoutTxHash is the destination-chain transaction hash, set once
	// the payout confirms.
	PayoutTxHash string `json:"payout_tx_hash,omitempty"`

	// FailureReason explains a failed settlement.
	FailureReason string `json:"failure_reason,omitempty"`

	// Timing
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// CreatePending inserts a new pending swap record. The insert is the
// dedup check: if a record for the source transaction already exists,
// in any state, ErrSwapExists is returned and nothing is written.
func (s *Storage) CreatePending(swap *SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	swap.Status = SwapStatusPending
	swap.CreatedAt = now
	swap.UpdatedAt = now

	query := `
		INSERT INTO swap_records (
			source_tx_hash, sender_address, recipient_address,
			source_amount, payout_amount, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		swap.SourceTxHash,
		swap.SenderAddress,
		swap.RecipientAddress,
		swap.SourceAmount,
		swap.PayoutAmount,
		string(swap.Status),
		swap.CreatedAt.Unix(),
		swap.UpdatedAt.Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrSwapExists
		}
		return err
	}

	return nil
}

// GetSwap retrieves a swap by source transaction hash.
func (s *Storage) GetSwap(sourceTxHash string) (*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT source_tx_hash, sender_address, recipient_address,
			source_amount, payout_amount, status,
			payout_tx_hash, failure_reason,
			created_at, updated_at, completed_at
		FROM swap_records WHERE source_tx_hash = ?
	`

	row := s.db.QueryRow(query, sourceTxHash)
	return scanSwapRecord(row)
}

// MarkCompleted transitions a pending swap to completed, recording the
// payout transaction hash. Returns ErrSwapFinalized if the record is
// already terminal, ErrSwapNotFound if it does not exist.
func (s *Storage) MarkCompleted(sourceTxHash, payoutTxHash string) error {
	return s.finalize(sourceTxHash, SwapStatusCompleted, payoutTxHash, "")
}

// MarkFailed transitions a pending swap to failed, recording the reason.
func (s *Storage) MarkFailed(sourceTxHash, reason string) error {
	return s.finalize(sourceTxHash, SwapStatusFailed, "", reason)
}

// finalize moves a pending record to a terminal state. The WHERE clause
// guards against double finalization: only a pending row can transition.
func (s *Storage) finalize(sourceTxHash string, status SwapStatus, payoutTxHash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()

	query := `
		UPDATE swap_records
		SET status = ?, payout_tx_hash = ?, failure_reason = ?,
			updated_at = ?, completed_at = ?
		WHERE source_tx_hash = ? AND status = 'pending'
	`

	result, err := s.db.Exec(query,
		string(status),
		payoutTxHash,
		reason,
		now,
		now,
		sourceTxHash,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the record doesn't exist or it is already terminal.
		var existing string
		err := s.db.QueryRow(`SELECT status FROM swap_records WHERE source_tx_hash = ?`, sourceTxHash).Scan(&existing)
		if err == sql.ErrNoRows {
			return ErrSwapNotFound
		}
		if err != nil {
			return err
		}
		return ErrSwapFinalized
	}

	return nil
}

// ListSwaps returns swap records, most recent first. If status is empty,
// all records are returned. Limit of 0 means no limit.
func (s *Storage) ListSwaps(status SwapStatus, limit int) ([]*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT source_tx_hash, sender_address, recipient_address,
			source_amount, payout_amount, status,
			payout_tx_hash, failure_reason,
			created_at, updated_at, completed_at
		FROM swap_records
	`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []*SwapRecord
	for rows.Next() {
		swap, err := scanSwapRecordRows(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}

	return swaps, rows.Err()
}

// CountByStatus returns the number of swap records per status.
func (s *Storage) CountByStatus() (map[SwapStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM swap_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[SwapStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[SwapStatus(status)] = count
	}

	return counts, rows.Err()
}

// scanSwapRecord scans a single row into a SwapRecord.
func scanSwapRecord(row *sql.Row) (*SwapRecord, error) {
	var swap SwapRecord
	var status string
	var payoutTxHash, failureReason sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&swap.SourceTxHash,
		&swap.SenderAddress,
		&swap.RecipientAddress,
		&swap.SourceAmount,
		&swap.PayoutAmount,
		&status,
		&payoutTxHash,
		&failureReason,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		return nil, err
	}

	swap.Status = SwapStatus(status)
	swap.PayoutTxHash = payoutTxHash.String
	swap.FailureReason = failureReason.String
	swap.CreatedAt = time.Unix(createdAt, 0)
	swap.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid && completedAt.Int64 > 0 {
		swap.CompletedAt = time.Unix(completedAt.Int64, 0)
	}

	return &swap, nil
}

// scanSwapRecordRows scans a row from a multi-row result set.
func scanSwapRecordRows(rows *sql.Rows) (*SwapRecord, error) {
	var swap SwapRecord
	var status string
	var payoutTxHash, failureReason sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := rows.Scan(
		&swap.SourceTxHash,
		&swap.SenderAddress,
		&swap.RecipientAddress,
		&swap.SourceAmount,
		&swap.PayoutAmount,
		&status,
		&payoutTxHash,
		&failureReason,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	swap.Status = SwapStatus(status)
	swap.PayoutTxHash = payoutTxHash.String
	swap.FailureReason = failureReason.String
	swap.CreatedAt = time.Unix(createdAt, 0)
	swap.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid && completedAt.Int64 > 0 {
		swap.CompletedAt = time.Unix(completedAt.Int64, 0)
	}

	return &swap, nil
}
