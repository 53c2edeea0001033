// Package evm provides the destination-chain client. It holds the custodial
// payout wallet and executes ERC-20 transfers, reward claims, and gas
// seeding transactions, waiting for each to be mined before reporting
// success.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an EVM JSON-RPC connection together with the custodial
// signer used for payouts.
type Client struct {
	client     *ethclient.Client
	chainID    *big.Int
	signer     *ecdsa.PrivateKey
	signerAddr common.Address
	token      common.Address

	requestTimeout time.Duration
	confirmTimeout time.Duration
}

// Default call bounds, overridable via SetTimeouts.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultConfirmTimeout = 2 * time.Minute
)

// NewClient connects to the EVM RPC endpoint and verifies the chain ID
// matches what the configuration expects. A chain ID mismatch means the
// operator pointed the daemon at the wrong network; paying out there
// would be unrecoverable, so this is fatal.
func NewClient(rpcURL, signerKeyHex string, tokenAddress common.Address, expectedChainID uint64) (*Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if expectedChainID != 0 && chainID.Uint64() != expectedChainID {
		client.Close()
		return nil, fmt.Errorf("chain ID mismatch: node reports %d, config expects %d", chainID.Uint64(), expectedChainID)
	}

	signer, err := crypto.HexToECDSA(signerKeyHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}

	return &Client{
		client:         client,
		chainID:        chainID,
		signer:         signer,
		signerAddr:     crypto.PubkeyToAddress(signer.PublicKey),
		token:          tokenAddress,
		requestTimeout: DefaultRequestTimeout,
		confirmTimeout: DefaultConfirmTimeout,
	}, nil
}

// SetTimeouts overrides the per-call and confirmation wait bounds.
// Zero values keep the current setting.
func (c *Client) SetTimeouts(request, confirm time.Duration) {
	if request > 0 {
		c.requestTimeout = request
	}
	if confirm > 0 {
		c.confirmTimeout = confirm
	}
}

// callCtx bounds a single RPC call.
func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.requestTimeout)
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.client.Close()
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// SignerAddress returns the custodial payout wallet address.
func (c *Client) SignerAddress() common.Address {
	return c.signerAddr
}

// TokenDecimals queries the payout token's decimals. Called once at
// startup so amount conversion never relies on a hardcoded multiplier.
func (c *Client) TokenDecimals(ctx context.Context) (uint8, error) {
	data, err := packDecimals()
	if err != nil {
		return 0, err
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals call failed: %w", err)
	}

	results, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	return results[0].(uint8), nil
}

// TokenBalance returns the ERC-20 balance of an address.
func (c *Client) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := packBalanceOf(account)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return results[0].(*big.Int), nil
}

// TransferToken sends amount of the payout token from the custodial
// wallet to the recipient and waits for the transaction to be mined.
// Returns the transaction hash on success. Once SendTransaction
// succeeds the payout is in flight and must be treated as spent even
// if the wait fails.
func (c *Client) TransferToken(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	data, err := packTransfer(to, amount)
	if err != nil {
		return "", err
	}

	tx, err := c.sendTx(ctx, c.signer, c.token, big.NewInt(0), data)
	if err != nil {
		return "", err
	}

	return c.waitMined(ctx, tx)
}

// SendNative sends native currency from the custodial wallet, used to
// seed freshly derived wallets with gas.
func (c *Client) SendNative(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	tx, err := c.sendTx(ctx, c.signer, to, amountWei, nil)
	if err != nil {
		return "", err
	}

	return c.waitMined(ctx, tx)
}

// ClaimReward calls claimReward() on the game controller contract,
// signing with the player's derived key rather than the custodial wallet.
func (c *Client) ClaimReward(ctx context.Context, playerKey *ecdsa.PrivateKey, controller common.Address) (string, error) {
	data, err := packClaimReward()
	if err != nil {
		return "", err
	}

	tx, err := c.sendTx(ctx, playerKey, controller, big.NewInt(0), data)
	if err != nil {
		return "", err
	}

	return c.waitMined(ctx, tx)
}

// sendTx builds, signs, and broadcasts a transaction from the given key.
// The whole build-and-broadcast sequence shares one request bound.
func (c *Client) sendTx(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	return signedTx, nil
}

// waitMined blocks until the transaction is mined and checks the receipt
// status. The wait is bounded so a congested chain cannot hang a request
// handler indefinitely; the transaction itself stays in flight either way.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return "", fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

// ValidateAddress checks that s is a well-formed EVM address.
func ValidateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("invalid EVM address: %s", s)
	}
	return nil
}
