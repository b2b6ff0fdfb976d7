package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v3"

	"github.com/clickregen/portal-workers/pkg/chainclient"
	"github.com/clickregen/portal-workers/pkg/contracts"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/models"
	"github.com/clickregen/portal-workers/pkg/store"
)

// intentIDCommand prints the id the portal assigns to an intent.
//
//	clickregen intent-id --sender 0xabc... --nonce 1 --action CLICK --payload 0x --expiry 0
func intentIDCommand() *cli.Command {
	return &cli.Command{
		Name:        "intent-id",
		Description: "Compute the portal intent id for the given submission parameters.",
		Usage:       "Prints keccak256(abi.encode(sender, nonce, action, payload, expiry)). With --rpc-url and --portal the deployed contract is asked instead.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sender", Usage: "Submitting address", Required: true},
			&cli.StringFlag{Name: "nonce", Usage: "Sender nonce (decimal)", Required: true},
			&cli.StringFlag{Name: "action", Usage: "CLICK, INFER, RETIRE, TASK or a number", Value: models.ActionClick.String()},
			&cli.StringFlag{Name: "payload", Usage: "Payload bytes as 0x hex", Value: "0x"},
			&cli.StringFlag{Name: "expiry", Usage: "Expiry timestamp", Value: "0"},
			&cli.StringFlag{Name: "rpc-url", Usage: "Optional RPC endpoint for an on-chain check"},
			&cli.StringFlag{Name: "portal", Usage: "Portal address used with --rpc-url"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if !common.IsHexAddress(c.String("sender")) {
				return fmt.Errorf("invalid --sender %q", c.String("sender"))
			}
			sender := common.HexToAddress(c.String("sender"))

			nonce, ok := new(big.Int).SetString(c.String("nonce"), 10)
			if !ok || nonce.Sign() < 0 {
				return fmt.Errorf("invalid --nonce %q", c.String("nonce"))
			}
			action, err := models.ParseAction(c.String("action"))
			if err != nil {
				return err
			}
			payload, err := hexutil.Decode(c.String("payload"))
			if err != nil {
				return fmt.Errorf("invalid --payload: %w", err)
			}
			expiry, err := strconv.ParseUint(c.String("expiry"), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid --expiry %q", c.String("expiry"))
			}

			id, err := contracts.ComputeIntentID(sender, nonce, uint32(action), payload, expiry)
			if err != nil {
				return err
			}

			if rpcURL := c.String("rpc-url"); rpcURL != "" {
				onchain, err := remoteIntentID(ctx, rpcURL, c.String("portal"), sender, nonce, uint32(action), payload, expiry)
				if err != nil {
					return err
				}
				if onchain != id {
					return fmt.Errorf("portal returned %s, local encoding gives %s", hexutil.Encode(onchain[:]), hexutil.Encode(id[:]))
				}
			}

			_, err = fmt.Fprintln(c.Root().Writer, hexutil.Encode(id[:]))
			return err
		},
	}
}

func remoteIntentID(ctx context.Context, rpcURL, portal string, sender common.Address, nonce *big.Int, action uint32, payload []byte, expiry uint64) ([32]byte, error) {
	if !common.IsHexAddress(portal) {
		return [32]byte{}, fmt.Errorf("--portal is required with --rpc-url")
	}
	client, err := chainclient.Dial(ctx, chainclient.Options{
		RPCURL:        rpcURL,
		PortalAddress: common.HexToAddress(portal),
		RPCTimeout:    10 * time.Second,
	}, &logger.EmptyLogger{})
	if err != nil {
		return [32]byte{}, err
	}
	defer client.Close()
	return client.ComputeIntentID(ctx, sender, nonce, action, payload, expiry)
}

// leaderboardCommand prints the persisted leaderboard without contacting the chain.
//
//	clickregen leaderboard --top 10
func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:        "leaderboard",
		Description: "Print the leaderboard saved by the indexer.",
		Usage:       "Reads the configured state backend and prints ranked senders.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state-backend", Value: store.BackendFile, Sources: cli.EnvVars("STATE_BACKEND")},
			&cli.StringFlag{Name: "out-dir", Value: "./data", Sources: cli.EnvVars("OUT_DIR")},
			&cli.StringFlag{Name: "redis-addr", Value: "127.0.0.1:6379", Sources: cli.EnvVars("REDIS_ADDR")},
			&cli.StringFlag{Name: "redis-key-prefix", Value: store.DefaultRedisKeyPrefix, Sources: cli.EnvVars("REDIS_KEY_PREFIX")},
			&cli.StringFlag{Name: "database-url", Sources: cli.EnvVars("DATABASE_URL")},
			&cli.IntFlag{Name: "top", Usage: "Number of rows, 0 for all", Value: 0},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			st, err := store.New(ctx, store.Config{
				Backend:        c.String("state-backend"),
				OutDir:         c.String("out-dir"),
				RedisAddr:      c.String("redis-addr"),
				RedisKeyPrefix: c.String("redis-key-prefix"),
				DatabaseURL:    c.String("database-url"),
			}, &logger.EmptyLogger{})
			if err != nil {
				return err
			}
			defer st.Close()

			lb, err := st.LoadLeaderboard(ctx)
			if err != nil {
				return err
			}
			cursor, ok, err := st.LoadCursor(ctx)
			if err != nil {
				return err
			}

			entries := lb.Top(int(c.Int("top")))
			out := c.Root().Writer
			if c.Bool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if ok {
				fmt.Fprintf(out, "cursor: %d\n", cursor)
			} else {
				fmt.Fprintln(out, "cursor: none")
			}
			for i, e := range entries {
				fmt.Fprintf(out, "%3d  %s  %d\n", i+1, e.Address, e.Count)
			}
			return nil
		},
	}
}
