package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/clickregen/portal-workers/pkg/chainclient"
	"github.com/clickregen/portal-workers/pkg/config"
	"github.com/clickregen/portal-workers/pkg/health"
	"github.com/clickregen/portal-workers/pkg/indexer"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/relayer"
	"github.com/clickregen/portal-workers/pkg/store"
)

// indexerCommand tails IntentSubmitted events into the leaderboard.
//
//	clickregen indexer
func indexerCommand() *cli.Command {
	return &cli.Command{
		Name:        "indexer",
		Description: "Scan IntentSubmitted events and maintain the per-sender leaderboard.",
		Usage:       "Runs the leaderboard indexer. Settings come from the environment.",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := config.LoadConfig(config.RoleIndexer)
			if err != nil {
				return err
			}
			return runIndexer(ctx, cfg)
		},
	}
}

func runIndexer(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg, logger.Indexer)
	if err != nil {
		return err
	}

	client, err := chainclient.Dial(ctx, chainOptions(cfg, false), log)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := store.New(ctx, storeConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("open %s state: %w", cfg.StateBackend, err)
	}
	defer st.Close()

	scanner, err := indexer.NewScanner(ctx, client, st, indexer.Options{
		FromBlock:    cfg.FromBlock,
		PollInterval: cfg.PollInterval,
		Logger:       log,
		Breaker:      newBreaker(cfg, log),
	})
	if err != nil {
		return err
	}

	if cfg.MetricsPort != "" {
		srv := health.NewServer(cfg.MetricsPort, scanner, scanner, cfg.MetricsAPIKey, log)
		go func() { _ = srv.Start(ctx) }()
	}

	log.Info("Indexing portal %s on chain %d (state: %s)", cfg.Portal.Hex(), cfg.ChainID, cfg.StateBackend)
	return ignoreCanceled(scanner.Run(ctx))
}

// relayerCommand executes and finalizes newly submitted intents.
//
//	clickregen relayer
func relayerCommand() *cli.Command {
	return &cli.Command{
		Name:        "relayer",
		Description: "Execute new intents and post finalizeReceipt to the portal.",
		Usage:       "Runs the receipt relayer. Settings come from the environment.",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := config.LoadConfig(config.RoleRelayer)
			if err != nil {
				return err
			}
			return runRelayer(ctx, cfg)
		},
	}
}

func runRelayer(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg, logger.Relayer)
	if err != nil {
		return err
	}

	client, err := chainclient.Dial(ctx, chainOptions(cfg, true), log)
	if err != nil {
		return err
	}
	defer client.Close()

	r := relayer.New(client, client, relayer.Options{
		Policy:          relayer.NewPolicy(cfg.FinalizeAlways, cfg.FinalizeProbability, nil),
		Executor:        relayer.MockExecutor{},
		PollInterval:    cfg.PollInterval,
		StartupAttempts: cfg.StartupRetryAttempts,
		Logger:          log,
		Breaker:         newBreaker(cfg, log),
	})

	log.Info("Relayer %s finalizing on portal %s (chain %d)", client.From().Hex(), cfg.Portal.Hex(), cfg.ChainID)
	if err := r.Start(ctx); err != nil {
		return ignoreCanceled(err)
	}

	if cfg.MetricsPort != "" {
		srv := health.NewServer(cfg.MetricsPort, r, nil, cfg.MetricsAPIKey, log)
		go func() { _ = srv.Start(ctx) }()
	}

	return ignoreCanceled(r.Run(ctx))
}

// shutdown by signal is a clean exit
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
