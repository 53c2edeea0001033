// Package config provides centralized configuration for the bridge daemon.
// All chain endpoints, contract addresses and timing parameters are defined
// here; secrets (signing key, derivation secret, encryption key) come from
// the environment only and are never written to the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType represents the network (mainnet or testnet).
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

// Environment variable names for secrets.
const (
	EnvSignerKey        = "BRIDGE_SIGNER_KEY"
	EnvDerivationSecret = "BRIDGE_DERIVATION_SECRET"
	EnvEncryptionKey    = "BRIDGE_ENCRYPTION_KEY"
)

// Config holds all configuration for the bridge daemon.
type Config struct {
	// NetworkType selects mainnet or testnet chain parameters.
	NetworkType NetworkType `yaml:"network_type"`

	// Solana is the source-chain configuration.
	Solana SolanaConfig `yaml:"solana"`

	// EVM is the destination-chain configuration.
	EVM EVMConfig `yaml:"evm"`

	// Settlement holds settlement timing parameters.
	Settlement SettlementConfig `yaml:"settlement"`

	// API holds HTTP server settings.
	API APIConfig `yaml:"api"`

	// Storage holds storage settings.
	Storage StorageConfig `yaml:"storage"`

	// Logging holds logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// SolanaConfig holds source-chain parameters.
type SolanaConfig struct {
	// RPCURL is the Solana JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// Commitment is the commitment level used for transaction lookups.
	// Settlement requires "finalized"; anything weaker risks paying
	// against a transaction that can still be dropped.
	Commitment string `yaml:"commitment"`

	// MintAddress is the SPL token mint an inbound payment must use.
	MintAddress string `yaml:"mint_address"`

	// TreasuryAddress is the token account that must receive the
	// inbound transfer for it to count as payment.
	TreasuryAddress string `yaml:"treasury_address"`

	// RequestTimeout bounds each RPC call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// EVMConfig holds destination-chain parameters.
type EVMConfig struct {
	// RPCURL is the EVM JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// ChainID is the expected chain ID; validated against the node at startup.
	ChainID uint64 `yaml:"chain_id"`

	// TokenAddress is the ERC-20 contract paid out to players.
	TokenAddress string `yaml:"token_address"`

	// GameControllerAddress is the game controller contract used for
	// reward claims.
	GameControllerAddress string `yaml:"game_controller_address"`

	// RequestTimeout bounds each RPC call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ConfirmTimeout bounds the wait for payout transaction confirmation.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`

	// GasSeedWei is the amount of native token sent to freshly derived
	// player wallets so they can pay for their own transactions.
	GasSeedWei string `yaml:"gas_seed_wei"`
}

// SettlementConfig holds settlement timing parameters.
type SettlementConfig struct {
	// FreshnessWindow is the maximum age of an inbound payment proof.
	// Older transactions are rejected to bound the replay window.
	FreshnessWindow time.Duration `yaml:"freshness_window"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	// ListenAddr is the host:port the HTTP API binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the SQLite database.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// Secrets holds credentials loaded from the environment.
type Secrets struct {
	// SignerKey is the hex-encoded private key of the custodial payout wallet.
	SignerKey string

	// DerivationSecret seeds per-player key derivation.
	DerivationSecret string

	// EncryptionKey protects derived keys at rest.
	EncryptionKey string
}

// LoadSecrets reads secrets from the environment. SignerKey is mandatory;
// the derivation and encryption keys are only required when the key
// derivation feature is enabled, which callers check separately.
func LoadSecrets() (*Secrets, error) {
	s := &Secrets{
		SignerKey:        os.Getenv(EnvSignerKey),
		DerivationSecret: os.Getenv(EnvDerivationSecret),
		EncryptionKey:    os.Getenv(EnvEncryptionKey),
	}
	if s.SignerKey == "" {
		return nil, fmt.Errorf("%s not set", EnvSignerKey)
	}
	return s, nil
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == NetworkTestnet
}

// Validate checks that all mandatory fields are present.
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if c.Solana.MintAddress == "" {
		return fmt.Errorf("solana.mint_address is required")
	}
	if c.Solana.TreasuryAddress == "" {
		return fmt.Errorf("solana.treasury_address is required")
	}
	if c.EVM.RPCURL == "" {
		return fmt.Errorf("evm.rpc_url is required")
	}
	if c.EVM.TokenAddress == "" {
		return fmt.Errorf("evm.token_address is required")
	}
	if c.Settlement.FreshnessWindow <= 0 {
		return fmt.Errorf("settlement.freshness_window must be positive")
	}
	return nil
}

// DefaultConfig returns a Config with testnet defaults: Solana devnet as the
// source chain and Base Sepolia as the destination chain.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkTestnet,
		Solana: SolanaConfig{
			RPCURL:          "https://api.devnet.solana.com",
			Commitment:      "finalized",
			MintAddress:     "C5hkCo3nE6F9K6z67tzridUnbNGXfs8HBxxanFzCm58K",
			TreasuryAddress: "7ziZFc6zh2U1jxpYxzrA2HL77UZo8TLt9X65pNtW6EPp",
			RequestTimeout:  10 * time.Second,
		},
		EVM: EVMConfig{
			RPCURL:                "https://sepolia.base.org",
			ChainID:               84532,
			TokenAddress:          "0xCe95F6042F0859c046Ab0CdF9aEf69237b096300",
			GameControllerAddress: "0x3A2CBB7F0A7Cfa7C16F8b15bCfFa5c7C0864375E",
			RequestTimeout:        10 * time.Second,
			ConfirmTimeout:        2 * time.Minute,
			GasSeedWei:            "100000000000000", // 0.0001 ETH
		},
		Settlement: SettlementConfig{
			FreshnessWindow: time.Hour,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			DataDir: "~/.bridged",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// MainnetConfig returns mainnet chain parameters layered over the defaults.
// Contract and treasury addresses must still be set by the operator.
func MainnetConfig() *Config {
	cfg := DefaultConfig()
	cfg.NetworkType = NetworkMainnet
	cfg.Solana.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.EVM.RPCURL = "https://mainnet.base.org"
	cfg.EVM.ChainID = 8453
	return cfg
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Bridge daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
