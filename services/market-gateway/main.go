package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"rentchain/chain"
	"rentchain/config"
	"rentchain/dispatch"
	"rentchain/market"
	"rentchain/metadata"
	"rentchain/observability/logging"
	"rentchain/wallet"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	gwCfg, err := LoadConfigFromEnv()
	if err != nil {
		logging.Setup("market-gateway", "dev").Error("load env config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("market-gateway", gwCfg.Environment)

	cfg, err := config.Load(gwCfg.ConfigPath)
	if err != nil {
		logger.Error("load config", "path", gwCfg.ConfigPath, "error", err)
		os.Exit(1)
	}

	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		logger.Error("dial rpc endpoint", "endpoint", cfg.RPCEndpoint, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	chainID := big.NewInt(cfg.ChainID)
	rpcChain, err := client.ChainID(context.Background())
	if err != nil {
		logger.Error("read rpc chain id", "endpoint", cfg.RPCEndpoint, "error", err)
		os.Exit(1)
	}
	if rpcChain.Cmp(chainID) != 0 {
		logger.Error("rpc endpoint on wrong chain", "have", rpcChain, "want", chainID)
		os.Exit(1)
	}

	provider := wallet.NewKeystoreProvider(cfg.KeystorePath, chainID, gwCfg.KeystorePassphrase)
	defer provider.Close()
	session := wallet.NewSession(provider, chainID)
	if err := session.Connect(context.Background()); err != nil {
		// The gateway still serves reads; actions report the missing
		// wallet until an account is added.
		logger.Warn("wallet not connected", "error", err)
	}

	store, err := NewActionStore(gwCfg.DatabasePath)
	if err != nil {
		logger.Error("open action store", "path", gwCfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	fetcher := metadata.NewFetcher(cfg.IPFSGateway, logger)
	pinner := metadata.NewPinner(cfg.PinningEndpoint, cfg.IPFSGateway, cfg.PinningAPIKey, cfg.PinningSecret)
	reader := chain.NewReader(client, cfg.Contracts)
	writer := chain.NewWriter(client, chainID, cfg.Contracts)
	assembler := market.NewAssembler(reader, fetcher, logger)
	dispatcher := dispatch.NewDispatcher(session, writer, reader, pinner, assembler, cfg.Confirm(), logger)

	unsubscribe := dispatcher.Subscribe(func(action dispatch.PendingAction) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SaveAction(ctx, action); err != nil {
			logger.Warn("persist action", "action_id", action.ID, "error", err)
		}
	})
	defer unsubscribe()

	server := NewServer(gwCfg, assembler, dispatcher, store, logger)
	srv := &http.Server{
		Addr:    gwCfg.ListenAddress,
		Handler: server,
	}

	go func() {
		logger.Info("market gateway listening", "address", gwCfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down market gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	dispatcher.Flush()
}
