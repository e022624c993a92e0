package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	_ "github.com/joho/godotenv/autoload"

	"github.com/mithraiclabs/poseidon/internal/chain"
	"github.com/mithraiclabs/poseidon/internal/config"
	"github.com/mithraiclabs/poseidon/internal/dexes"
	"github.com/mithraiclabs/poseidon/internal/executor"
	"github.com/mithraiclabs/poseidon/internal/logging"
	"github.com/mithraiclabs/poseidon/internal/router"
	"github.com/mithraiclabs/poseidon/internal/store"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadExecutorConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("executor", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	payer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		logger.Error("failed to load keypair", "path", cfg.KeypairPath, "err", err)
		os.Exit(1)
	}

	client := chain.NewClient(cfg.RPCURL, chain.Options{
		Commitment:    cfg.Commitment,
		SkipPreflight: cfg.SkipPreflight,
		MaxRetries:    cfg.MaxRetries,
		RetryAttempts: 4,
	})

	openBook := dexes.NewOpenBook(client, cfg.OpenBookProgramID)
	raydium := dexes.NewRaydium(client, cfg.RaydiumProgramID, cfg.OpenBookProgramID)
	registry := dexes.NewRegistry(openBook, raydium)

	quoter := router.NewJupiterQuoter(cfg.QuoteBaseURL, cfg.QuoteTimeout)
	selector := router.NewSelector(quoter, registry, openBook, payer.PublicKey(), router.SelectorOptions{
		SlippageBps:         cfg.SlippageBps,
		OnlyDirectRoutes:    cfg.OnlyDirectRoutes,
		ExtraExcludedVenues: cfg.ExcludedVenues,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var records *store.Store
	if cfg.DBDSN != "" {
		records, err = store.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("failed to open execution store", "err", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := records.Close(); closeErr != nil {
				logger.Error("failed to close execution store", "err", closeErr)
			}
		}()
	}

	svc, err := newService(cfg, client, selector, records, logger)
	if err != nil {
		logger.Error("failed to initialize executor service", "err", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		logger.Error("executor exited with error", "err", err)
		os.Exit(1)
	}
}

// newService keeps the nil-store case out of the Service constructor: a nil
// *store.Store inside a non-nil interface would defeat the nil check.
func newService(
	cfg config.ExecutorConfig,
	client chain.Client,
	selector *router.Selector,
	records *store.Store,
	logger *slog.Logger,
) (*executor.Service, error) {
	if records == nil {
		return executor.New(cfg, client, selector, nil, logger)
	}
	return executor.New(cfg, client, selector, records, logger)
}
