// Package settlement - Inbound payment proof validation.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/senku-elixir/bridge/internal/solana"
)

// TxFetcher retrieves finalized source-chain transactions.
type TxFetcher interface {
	GetParsedTransaction(ctx context.Context, signature, commitment string) (*solana.ParsedTransaction, error)
}

// Validator verifies that a source-chain transaction is a genuine payment
// to the treasury for the expected token and amount.
type Validator struct {
	fetcher         TxFetcher
	mint            string
	treasury        string
	commitment      string
	freshnessWindow time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewValidator creates a payment validator.
func NewValidator(fetcher TxFetcher, mint, treasury, commitment string, freshnessWindow time.Duration) *Validator {
	return &Validator{
		fetcher:         fetcher,
		mint:            mint,
		treasury:        treasury,
		commitment:      commitment,
		freshnessWindow: freshnessWindow,
		now:             time.Now,
	}
}

// Proof is the claimed payment a caller submits for verification.
type Proof struct {
	// TxHash is the source-chain transaction signature.
	TxHash string

	// Sender is the source-chain wallet that signed the transfer.
	Sender string

	// Amount is the raw transfer amount in the token's smallest unit.
	Amount string
}

// Verify checks a claimed payment against the chain. It succeeds only if
// the transaction is finalized, recent, successful, and contains a token
// transfer whose authority, destination, and amount all match the claim.
//
// Every transfer instruction in the transaction is considered, including
// inner instructions. A transaction bundling several transfers is fine as
// long as one of them is the claimed payment; matching on the full triple
// means an attacker cannot point at someone else's transfer or at a
// smaller transfer in the same transaction.
func (v *Validator) Verify(ctx context.Context, proof *Proof) error {
	tx, err := v.fetcher.GetParsedTransaction(ctx, proof.TxHash, v.commitment)
	if err != nil {
		return fmt.Errorf("fetch transaction: %w", err)
	}
	if tx == nil {
		return ErrTxNotFound
	}

	if tx.Meta.Failed() {
		return ErrTxFailed
	}

	if tx.BlockTime == nil {
		// Finalized transactions carry a block time; treat its absence
		// as unverifiable age.
		return ErrTxExpired
	}
	age := v.now().Sub(time.Unix(*tx.BlockTime, 0))
	if age > v.freshnessWindow {
		return fmt.Errorf("%w: %s old, window is %s", ErrTxExpired, age.Round(time.Second), v.freshnessWindow)
	}

	if !tx.TouchesMint(v.mint) {
		return ErrWrongAsset
	}

	transfers := tx.TokenTransfers()
	if len(transfers) == 0 {
		return ErrNoTransferFound
	}

	for _, t := range transfers {
		// Addresses compare case-insensitively; the raw amount is exact.
		if strings.EqualFold(t.Authority, proof.Sender) &&
			strings.EqualFold(t.Destination, v.treasury) &&
			t.Amount == proof.Amount {
			return nil
		}
	}

	return &MismatchError{Candidates: transfers}
}
