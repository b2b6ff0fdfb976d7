// Package cli wires configuration, chain access, storage and the workers into commands.
package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/clickregen/portal-workers/pkg/chainclient"
	"github.com/clickregen/portal-workers/pkg/circuitbreaker"
	"github.com/clickregen/portal-workers/pkg/config"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/store"
)

// Run executes the command line with args (normally os.Args)
func Run(ctx context.Context, args []string) error {
	return newApp().Run(ctx, args)
}

func newApp() *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "clickregen",
		Description:           "Off-chain workers for the ClickRegen portal: leaderboard indexer and receipt relayer.",
		Usage:                 "clickregen [command] [flags]",
		Commands: []*cli.Command{
			indexerCommand(),
			relayerCommand(),
			intentIDCommand(),
			leaderboardCommand(),
		},
	}
}

func newLogger(cfg *config.Config, component logger.Component) (logger.Logger, error) {
	return logger.New(cfg.Log.Format, cfg.Log.Level, cfg.Log.Coloring, component)
}

func newBreaker(cfg *config.Config, log logger.Logger) *circuitbreaker.CircuitBreaker {
	cb := cfg.CircuitBreaker
	return circuitbreaker.NewCircuitBreaker(cb.Enabled, cb.Threshold, cb.WindowDuration, cb.ResetTimeout, log)
}

func chainOptions(cfg *config.Config, withKey bool) chainclient.Options {
	opts := chainclient.Options{
		RPCURL:          cfg.RPCURL,
		ChainID:         cfg.ChainID,
		PortalAddress:   cfg.Portal,
		RPCTimeout:      cfg.RPCTimeout,
		RPCRetryMax:     cfg.RPCRetryMax,
		StartupAttempts: cfg.StartupRetryAttempts,
		MaxBlockRange:   cfg.MaxBlockRange,
		GasMultiplier:   cfg.GasMultiplier,
		MaxGasPrice:     cfg.MaxGasPrice,
		WaitForReceipt:  cfg.WaitForReceipt,
		ReceiptTimeout:  cfg.ReceiptTimeout,
	}
	if withKey {
		opts.PrivateKey = cfg.PrivateKey
	}
	return opts
}

func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		Backend:        cfg.StateBackend,
		OutDir:         cfg.OutDir,
		RedisAddr:      cfg.RedisAddr,
		RedisUsername:  cfg.RedisUsername,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		RedisKeyPrefix: cfg.RedisKeyPrefix,
		DatabaseURL:    cfg.DatabaseURL,
	}
}
