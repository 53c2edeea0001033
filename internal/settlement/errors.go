// Package settlement - Error taxonomy for swap settlement.
// Every rejection has a distinct error so the API layer can map it to a
// precise status code and callers can tell a retryable condition (proof
// not yet finalized) from a permanent one (wrong asset, replay).
package settlement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/senku-elixir/bridge/internal/solana"
)

// Settlement errors
var (
	// ErrInvalidRequest covers malformed input: bad addresses, bad
	// signature encoding, non-numeric or non-positive amounts.
	ErrInvalidRequest = errors.New("invalid swap request")

	// ErrTxNotFound means the source transaction is unknown at the
	// required commitment level. The caller may retry once it finalizes.
	ErrTxNotFound = errors.New("source transaction not found")

	// ErrTxFailed means the source transaction errored on chain.
	ErrTxFailed = errors.New("source transaction failed on chain")

	// ErrTxExpired means the source transaction is older than the
	// freshness window.
	ErrTxExpired = errors.New("source transaction too old")

	// ErrWrongAsset means the transaction does not touch the expected
	// token mint.
	ErrWrongAsset = errors.New("transaction does not involve the expected token")

	// ErrNoTransferFound means the transaction carries no token
	// transfer instructions at all.
	ErrNoTransferFound = errors.New("no token transfer found in transaction")

	// ErrTransferMismatch means transfers exist but none matches the
	// claimed sender, treasury destination, and amount together.
	ErrTransferMismatch = errors.New("no transfer matches the claimed payment")

	// ErrAlreadyProcessed means a settlement record already exists for
	// the source transaction.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrPayoutFailed means verification passed but the destination
	// payout could not be completed. The record is marked failed.
	ErrPayoutFailed = errors.New("payout failed")
)

// MismatchError wraps ErrTransferMismatch with the transfers that were
// actually found, so rejections are diagnosable from logs.
type MismatchError struct {
	Candidates []solana.TokenTransfer
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d candidate transfers", ErrTransferMismatch, len(e.Candidates))
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "; authority=%s destination=%s amount=%s", c.Authority, c.Destination, c.Amount)
	}
	b.WriteString(")")
	return b.String()
}

func (e *MismatchError) Unwrap() error {
	return ErrTransferMismatch
}

// invalidf wraps ErrInvalidRequest with detail.
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidRequest}, args...)...)
}
