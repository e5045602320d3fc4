package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nftmarket/config"
	"nftmarket/core"
	"nftmarket/core/types"
	"nftmarket/native/custody"
	"nftmarket/native/market"
	"nftmarket/native/token"
	"nftmarket/observability"
	"nftmarket/observability/logging"
	"nftmarket/observability/metrics"
	"nftmarket/rpc"
	"nftmarket/storage"
	nftstate "nftmarket/state"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("marketd", cfg.Environment, cfg.LogLevel)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := buildNode(cfg, db)
	if err != nil {
		logger.Error("Failed to build node", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, logger, metrics.Market())
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
	logger.Info("marketd stopped")
}

// buildNode assembles the engines over the persistent store and applies the
// configured whitelists and royalty structure.
func buildNode(cfg *config.Config, db storage.Database) (*core.Node, error) {
	marketAddr, err := cfg.Market()
	if err != nil {
		return nil, err
	}
	custodyAddr, err := cfg.Custody()
	if err != nil {
		return nil, err
	}
	managerAddr, err := cfg.Manager()
	if err != nil {
		return nil, err
	}
	royaltyAcct, err := cfg.Royalty()
	if err != nil {
		return nil, err
	}
	structure, err := cfg.Structure()
	if err != nil {
		return nil, err
	}
	marketplaces, err := cfg.Marketplaces()
	if err != nil {
		return nil, err
	}
	paymentTokens, err := cfg.PaymentTokens()
	if err != nil {
		return nil, err
	}

	st := nftstate.NewManager(db)
	custodyEngine := custody.NewEngine(custodyAddr, managerAddr, royaltyAcct, structure)
	custodyEngine.SetPauses(cfg.Pauses)
	marketEngine := market.NewEngine(marketAddr)
	marketEngine.SetPauses(cfg.Pauses)

	node := core.NewNode(st, marketEngine, custodyEngine)
	node.SetEmitter(observability.Emitter(slog.Default(), metrics.Market()))
	for _, ref := range cfg.Ledgers {
		addr, err := types.ParseAddress(ref.Address)
		if err != nil {
			return nil, err
		}
		node.AddLedger(token.NewLedger(addr))
	}
	for _, ref := range cfg.Collections {
		addr, err := types.ParseAddress(ref.Address)
		if err != nil {
			return nil, err
		}
		node.AddCollection(token.NewCollection(addr), ref.Enforced)
	}
	if err := node.InstallCustody(marketplaces, paymentTokens); err != nil {
		return nil, err
	}
	return node, nil
}
