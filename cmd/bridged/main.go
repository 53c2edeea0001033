// Package main provides the bridged daemon - a cross-chain swap settlement
// service paying out ERC-20 tokens for verified SPL token payments.
package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/senku-elixir/bridge/internal/api"
	"github.com/senku-elixir/bridge/internal/config"
	"github.com/senku-elixir/bridge/internal/evm"
	"github.com/senku-elixir/bridge/internal/keys"
	"github.com/senku-elixir/bridge/internal/settlement"
	"github.com/senku-elixir/bridge/internal/solana"
	"github.com/senku-elixir/bridge/internal/storage"
	"github.com/senku-elixir/bridge/pkg/logging"
	"github.com/senku-elixir/bridge/pkg/units"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.bridged", "Data directory")
		apiAddr     = flag.String("api", "", "HTTP API address, overrides config")
		mainnet     = flag.Bool("mainnet", false, "Run against mainnet chains")
		solanaRPC   = flag.String("solana-rpc", "", "Solana RPC endpoint, overrides config")
		evmRPC      = flag.String("evm-rpc", "", "EVM RPC endpoint, overrides config")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("bridged %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Load or create config file
	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	if *mainnet {
		mainnetCfg := config.MainnetConfig()
		cfg.NetworkType = config.NetworkMainnet
		cfg.Solana.RPCURL = mainnetCfg.Solana.RPCURL
		cfg.EVM.RPCURL = mainnetCfg.EVM.RPCURL
		cfg.EVM.ChainID = mainnetCfg.EVM.ChainID
	}
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	if *solanaRPC != "" {
		cfg.Solana.RPCURL = *solanaRPC
	}
	if *evmRPC != "" {
		cfg.EVM.RPCURL = *evmRPC
	}
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = *dataDir

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "error", err)
	}

	// Update logging with config level
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir), "network", cfg.NetworkType)

	// Secrets come from the environment only
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatal("Failed to load secrets", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "dir", cfg.Storage.DataDir)

	// Connect to the source chain
	solanaClient := solana.NewClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.RequestTimeout))

	// Connect to the destination chain; verifies chain ID
	evmClient, err := evm.NewClient(cfg.EVM.RPCURL, secrets.SignerKey,
		common.HexToAddress(cfg.EVM.TokenAddress), cfg.EVM.ChainID)
	if err != nil {
		log.Fatal("Failed to connect to destination chain", "error", err)
	}
	defer evmClient.Close()
	evmClient.SetTimeouts(cfg.EVM.RequestTimeout, cfg.EVM.ConfirmTimeout)
	log.Info("Destination chain connected",
		"chainID", evmClient.ChainID(),
		"payoutWallet", evmClient.SignerAddress().Hex())

	// Query token decimals from both chains; amount conversion is never
	// hardcoded
	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startupCancel()

	sourceDecimals, err := solanaClient.GetTokenDecimals(startupCtx, cfg.Solana.MintAddress)
	if err != nil {
		log.Fatal("Failed to query source token decimals", "mint", cfg.Solana.MintAddress, "error", err)
	}
	payoutDecimals, err := evmClient.TokenDecimals(startupCtx)
	if err != nil {
		log.Fatal("Failed to query payout token decimals", "token", cfg.EVM.TokenAddress, "error", err)
	}
	log.Info("Token decimals resolved", "source", sourceDecimals, "payout", payoutDecimals)

	// A dry payout wallet is not fatal at startup, but worth shouting about
	balance, err := evmClient.TokenBalance(startupCtx, evmClient.SignerAddress())
	if err != nil {
		log.Warn("Failed to query payout wallet balance", "error", err)
	} else {
		log.Info("Payout wallet balance", "balance", units.Format(balance, payoutDecimals))
	}

	// Build the settlement pipeline
	validator := settlement.NewValidator(solanaClient,
		cfg.Solana.MintAddress,
		cfg.Solana.TreasuryAddress,
		cfg.Solana.Commitment,
		cfg.Settlement.FreshnessWindow)
	settlementSvc := settlement.NewService(validator, store, evmClient,
		sourceDecimals, payoutDecimals, log.Component("settlement"))

	// Wallet provisioning is optional; it needs both extra secrets
	var keySvc *keys.Service
	if secrets.DerivationSecret != "" && secrets.EncryptionKey != "" {
		manager, err := keys.NewManager(secrets.DerivationSecret, secrets.EncryptionKey)
		if err != nil {
			log.Fatal("Failed to initialize key manager", "error", err)
		}
		gasSeed, ok := new(big.Int).SetString(cfg.EVM.GasSeedWei, 10)
		if !ok {
			log.Fatal("Invalid gas_seed_wei", "value", cfg.EVM.GasSeedWei)
		}
		keySvc = keys.NewService(manager, store, evmClient,
			common.HexToAddress(cfg.EVM.GameControllerAddress),
			gasSeed, log.Component("keys"))
		log.Info("Wallet service enabled", "controller", cfg.EVM.GameControllerAddress)
	} else {
		log.Warn("Wallet service disabled: derivation or encryption secret not set")
	}

	// Start API server
	apiServer := api.NewServer(settlementSvc, keySvc, log)
	if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
		log.Fatal("Failed to start API server", "error", err)
	}

	printBanner(log, cfg, evmClient.SignerAddress().Hex())

	// Start status ticker
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counts, err := settlementSvc.Counts()
				if err != nil {
					log.Warn("Status query failed", "error", err)
					continue
				}
				log.Info("Status",
					"pending", counts[storage.SwapStatusPending],
					"completed", counts[storage.SwapStatusCompleted],
					"failed", counts[storage.SwapStatusFailed],
					"wsClients", apiServer.WSHub().ClientCount())
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	if err := apiServer.Stop(); err != nil {
		log.Error("Error stopping API server", "error", err)
	}
	cancel()

	log.Info("Shutdown complete")
}

// printBanner prints startup information.
func printBanner(log *logging.Logger, cfg *config.Config, payoutWallet string) {
	log.Info("=======================================")
	log.Infof("  bridged %s", version)
	log.Info("=======================================")
	log.Info("Network", "type", cfg.NetworkType)
	log.Info("Source chain", "rpc", cfg.Solana.RPCURL, "mint", cfg.Solana.MintAddress)
	log.Info("Treasury", "address", cfg.Solana.TreasuryAddress)
	log.Info("Destination chain", "rpc", cfg.EVM.RPCURL, "chainID", cfg.EVM.ChainID)
	log.Info("Payout token", "address", cfg.EVM.TokenAddress)
	log.Info("Payout wallet", "address", payoutWallet)
	log.Info("API", "addr", cfg.API.ListenAddr)
	log.Info("=======================================")
}
