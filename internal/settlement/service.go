// Package settlement orchestrates the swap pipeline: verify the inbound
// payment, claim the source transaction in storage, execute the payout,
// and record the outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/senku-elixir/bridge/internal/evm"
	"github.com/senku-elixir/bridge/internal/solana"
	"github.com/senku-elixir/bridge/internal/storage"
	"github.com/senku-elixir/bridge/pkg/logging"
	"github.com/senku-elixir/bridge/pkg/units"
)

// SwapStore persists settlement records.
type SwapStore interface {
	CreatePending(swap *storage.SwapRecord) error
	GetSwap(sourceTxHash string) (*storage.SwapRecord, error)
	MarkCompleted(sourceTxHash, payoutTxHash string) error
	MarkFailed(sourceTxHash, reason string) error
	ListSwaps(status storage.SwapStatus, limit int) ([]*storage.SwapRecord, error)
	CountByStatus() (map[storage.SwapStatus]int, error)
}

// Payer executes destination-chain token payouts.
type Payer interface {
	TransferToken(ctx context.Context, to common.Address, amount *big.Int) (string, error)
}

// Notifier receives swap lifecycle updates. Used by the API layer to
// broadcast events; a nil notifier is fine.
type Notifier interface {
	PublishSwap(swap *storage.SwapRecord)
}

// Service is the settlement pipeline.
type Service struct {
	validator *Validator
	store     SwapStore
	payer     Payer
	notifier  Notifier
	log       *logging.Logger

	// Token decimals, queried from both chains at startup.
	sourceDecimals uint8
	payoutDecimals uint8
}

// NewService creates the settlement service. sourceDecimals and
// payoutDecimals come from the live chains, never from configuration.
func NewService(validator *Validator, store SwapStore, payer Payer, sourceDecimals, payoutDecimals uint8, log *logging.Logger) *Service {
	return &Service{
		validator:      validator,
		store:          store,
		payer:          payer,
		log:            log,
		sourceDecimals: sourceDecimals,
		payoutDecimals: payoutDecimals,
	}
}

// SetNotifier attaches a lifecycle event sink.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Request is a swap settlement request.
type Request struct {
	// TxHash is the source-chain transaction signature being claimed.
	TxHash string `json:"txHash"`

	// Sender is the source-chain wallet that made the payment.
	Sender string `json:"sender"`

	// Recipient is the destination-chain address to pay out to.
	Recipient string `json:"recipient"`

	// Amount is the raw inbound amount in the source token's smallest unit.
	Amount string `json:"amount"`
}

// validateRequest checks request shape before anything touches the network.
func (s *Service) validateRequest(req *Request) (*big.Int, error) {
	if err := solana.ValidateSignature(req.TxHash); err != nil {
		return nil, invalidf("txHash: %v", err)
	}
	if err := solana.ValidateAddress(req.Sender); err != nil {
		return nil, invalidf("sender: %v", err)
	}
	if err := evm.ValidateAddress(req.Recipient); err != nil {
		return nil, invalidf("recipient: %v", err)
	}
	amount, err := units.ParseRaw(req.Amount)
	if err != nil {
		return nil, invalidf("amount: %v", err)
	}
	if amount.Sign() <= 0 {
		return nil, invalidf("amount must be positive")
	}
	return amount, nil
}

// Submit runs the full settlement pipeline for one claimed payment.
//
// The pending record insert is the point of no return for deduplication:
// it happens after verification but before the payout, so two concurrent
// submissions of the same transaction race on the insert and exactly one
// proceeds to pay. If the payout then fails, the record stays as a failed
// tombstone rather than being deleted; an operator decides what to do
// with it, the system never pays the same transaction twice on its own.
func (s *Service) Submit(ctx context.Context, req *Request) (*storage.SwapRecord, error) {
	sourceAmount, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	// An existing record of any status short-circuits the whole flow.
	// Replays must resolve to already-processed without touching the
	// chain: a settled transaction stays settled even after its proof
	// ages out of the freshness window or the RPC node prunes it.
	if _, err := s.store.GetSwap(req.TxHash); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, req.TxHash)
	} else if !errors.Is(err, storage.ErrSwapNotFound) {
		return nil, fmt.Errorf("lookup swap: %w", err)
	}

	proof := &Proof{TxHash: req.TxHash, Sender: req.Sender, Amount: req.Amount}
	if err := s.validator.Verify(ctx, proof); err != nil {
		s.log.Debug("proof rejected", "txHash", req.TxHash, "err", err)
		return nil, err
	}

	payoutAmount := units.Rescale(sourceAmount, s.sourceDecimals, s.payoutDecimals)

	record := &storage.SwapRecord{
		SourceTxHash:     req.TxHash,
		SenderAddress:    req.Sender,
		RecipientAddress: req.Recipient,
		SourceAmount:     sourceAmount.String(),
		PayoutAmount:     payoutAmount.String(),
	}

	if err := s.store.CreatePending(record); err != nil {
		if errors.Is(err, storage.ErrSwapExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, req.TxHash)
		}
		return nil, fmt.Errorf("persist swap: %w", err)
	}
	s.publish(record)

	s.log.Info("swap verified, executing payout",
		"txHash", req.TxHash,
		"sender", req.Sender,
		"recipient", req.Recipient,
		"sourceAmount", record.SourceAmount,
		"payoutAmount", record.PayoutAmount)

	payoutTxHash, err := s.payer.TransferToken(ctx, common.HexToAddress(req.Recipient), payoutAmount)
	if err != nil {
		s.log.Error("payout failed", "txHash", req.TxHash, "err", err)
		reason := err.Error()
		if markErr := s.store.MarkFailed(req.TxHash, reason); markErr != nil {
			s.log.Error("failed to record payout failure", "txHash", req.TxHash, "err", markErr)
		}
		record.Status = storage.SwapStatusFailed
		record.FailureReason = reason
		s.publish(record)
		return record, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	if err := s.store.MarkCompleted(req.TxHash, payoutTxHash); err != nil {
		// The payout is already on chain. Losing the completion update
		// must not turn a paid swap into an error for the caller.
		s.log.Error("payout succeeded but completion not recorded",
			"txHash", req.TxHash, "payoutTxHash", payoutTxHash, "err", err)
	}

	record.Status = storage.SwapStatusCompleted
	record.PayoutTxHash = payoutTxHash
	s.publish(record)

	s.log.Info("swap completed", "txHash", req.TxHash, "payoutTxHash", payoutTxHash)
	return record, nil
}

// Status returns the settlement record for a source transaction.
func (s *Service) Status(sourceTxHash string) (*storage.SwapRecord, error) {
	if err := solana.ValidateSignature(sourceTxHash); err != nil {
		return nil, invalidf("txHash: %v", err)
	}
	return s.store.GetSwap(sourceTxHash)
}

// List returns recent settlement records, optionally filtered by status.
func (s *Service) List(status storage.SwapStatus, limit int) ([]*storage.SwapRecord, error) {
	return s.store.ListSwaps(status, limit)
}

// Counts returns record counts per status.
func (s *Service) Counts() (map[storage.SwapStatus]int, error) {
	return s.store.CountByStatus()
}

func (s *Service) publish(record *storage.SwapRecord) {
	if s.notifier != nil {
		snapshot := *record
		s.notifier.PublishSwap(&snapshot)
	}
}
