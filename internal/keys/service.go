// Package keys - Wallet provisioning and reward claims.
package keys

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/senku-elixir/bridge/internal/storage"
	"github.com/senku-elixir/bridge/pkg/logging"
)

// ErrWalletNotFound means no wallet has been provisioned for the address.
var ErrWalletNotFound = errors.New("no wallet provisioned for address")

// KeyStore persists encrypted derived keys.
type KeyStore interface {
	SaveDerivedKey(rec *storage.DerivedKeyRecord) error
	GetDerivedKey(sourceAddress string) (*storage.DerivedKeyRecord, error)
	MarkGasSeeded(sourceAddress, txHash string) error
}

// Chain is the destination-chain surface the key service needs: seeding
// fresh wallets with gas and relaying reward claims.
type Chain interface {
	SendNative(ctx context.Context, to common.Address, amountWei *big.Int) (string, error)
	ClaimReward(ctx context.Context, playerKey *ecdsa.PrivateKey, controller common.Address) (string, error)
}

// Service provisions custodial wallets for players and relays their
// reward claims.
type Service struct {
	manager    *Manager
	store      KeyStore
	chain      Chain
	controller common.Address
	gasSeedWei *big.Int
	log        *logging.Logger
}

// NewService creates the key service. A zero or nil gasSeedWei disables
// gas seeding.
func NewService(manager *Manager, store KeyStore, chain Chain, controller common.Address, gasSeedWei *big.Int, log *logging.Logger) *Service {
	return &Service{
		manager:    manager,
		store:      store,
		chain:      chain,
		controller: controller,
		gasSeedWei: gasSeedWei,
		log:        log,
	}
}

// Wallet is the caller-visible view of a provisioned wallet.
type Wallet struct {
	SourceAddress string `json:"sourceAddress"`
	EVMAddress    string `json:"evmAddress"`
	Created       bool   `json:"created"`
}

// Provision returns the custodial wallet for a source-chain address,
// deriving, persisting, and gas-seeding it on first use. Derivation is
// deterministic, so a lost record is rebuilt identically.
func (s *Service) Provision(ctx context.Context, sourceAddress string) (*Wallet, error) {
	existing, err := s.store.GetDerivedKey(sourceAddress)
	if err == nil {
		if !existing.GasSeeded {
			s.seedGas(ctx, sourceAddress, existing.EVMAddress)
		}
		return &Wallet{
			SourceAddress: sourceAddress,
			EVMAddress:    existing.EVMAddress,
			Created:       false,
		}, nil
	}
	if !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("lookup wallet: %w", err)
	}

	key, err := s.manager.Derive(sourceAddress)
	if err != nil {
		return nil, fmt.Errorf("derive wallet: %w", err)
	}
	enc, err := s.manager.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt wallet: %w", err)
	}

	evmAddress, err := s.manager.Address(sourceAddress)
	if err != nil {
		return nil, err
	}

	rec := &storage.DerivedKeyRecord{
		SourceAddress: sourceAddress,
		EVMAddress:    evmAddress,
		EncIV:         enc.IV,
		EncAuthTag:    enc.AuthTag,
		EncData:       enc.Data,
	}
	if err := s.store.SaveDerivedKey(rec); err != nil {
		return nil, fmt.Errorf("persist wallet: %w", err)
	}

	s.log.Info("wallet provisioned", "sourceAddress", sourceAddress, "evmAddress", evmAddress)

	s.seedGas(ctx, sourceAddress, evmAddress)

	return &Wallet{
		SourceAddress: sourceAddress,
		EVMAddress:    evmAddress,
		Created:       true,
	}, nil
}

// seedGas sends the configured gas amount to a derived wallet. Failures
// are logged only; the wallet exists either way and seeding retries on
// the next provision call for the address.
func (s *Service) seedGas(ctx context.Context, sourceAddress, evmAddress string) {
	if s.gasSeedWei == nil || s.gasSeedWei.Sign() <= 0 {
		return
	}
	txHash, err := s.chain.SendNative(ctx, common.HexToAddress(evmAddress), s.gasSeedWei)
	if err != nil {
		s.log.Warn("gas seeding failed", "evmAddress", evmAddress, "err", err)
		return
	}
	if err := s.store.MarkGasSeeded(sourceAddress, txHash); err != nil {
		s.log.Error("gas seed not recorded", "sourceAddress", sourceAddress, "err", err)
	}
}

// ClaimReward calls the game controller's claimReward from the player's
// custodial wallet and returns the claim transaction hash.
func (s *Service) ClaimReward(ctx context.Context, sourceAddress string) (string, error) {
	rec, err := s.store.GetDerivedKey(sourceAddress)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", ErrWalletNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup wallet: %w", err)
	}

	key, err := s.manager.Decrypt(&EncryptedKey{
		IV:      rec.EncIV,
		AuthTag: rec.EncAuthTag,
		Data:    rec.EncData,
	})
	if err != nil {
		return "", fmt.Errorf("decrypt wallet: %w", err)
	}

	txHash, err := s.chain.ClaimReward(ctx, key, s.controller)
	if err != nil {
		return "", fmt.Errorf("claim reward: %w", err)
	}

	s.log.Info("reward claimed", "sourceAddress", sourceAddress, "txHash", txHash)
	return txHash, nil
}
