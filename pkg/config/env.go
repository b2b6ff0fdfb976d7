package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultIndexerPollInterval is the indexer cycle interval in milliseconds
	DefaultIndexerPollInterval = 3000

	// DefaultRelayerPollInterval is the relayer cycle interval in milliseconds
	DefaultRelayerPollInterval = 2000

	// PlaceholderPrivateKey is the value shipped in the example env file
	PlaceholderPrivateKey = "0xYOUR_RELAYER_PRIVATE_KEY"
)

func pollInterval(role Role, ms int64) time.Duration {
	if ms <= 0 {
		ms = DefaultIndexerPollInterval
		if role == RoleRelayer {
			ms = DefaultRelayerPollInterval
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// parseFinalizeAlways is true for "true" in any case
func parseFinalizeAlways(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// parseProbability returns 1 for values that are not numbers; range clamping happens in the policy
func parseProbability(raw string) float64 {
	p, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 1
	}
	return p
}

func parsePortalAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: PORTAL_ADDRESS %q is not an address", ErrInvalidSetting, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: PORTAL_ADDRESS", ErrMissingSetting)
	}
	return addr, nil
}

func validatePrivateKey(raw string) error {
	if raw == "" || raw == PlaceholderPrivateKey {
		return fmt.Errorf("%w: PRIVATE_KEY", ErrMissingSetting)
	}
	hex := strings.TrimPrefix(raw, "0x")
	if len(hex) != 64 {
		return fmt.Errorf("%w: PRIVATE_KEY must be 32 bytes of hex", ErrInvalidSetting)
	}
	if _, ok := new(big.Int).SetString(hex, 16); !ok {
		return fmt.Errorf("%w: PRIVATE_KEY is not hex", ErrInvalidSetting)
	}
	return nil
}

// parseWei parses a decimal wei amount; 0 means no limit and yields nil
func parseWei(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%q is not a non-negative integer", raw)
	}
	if v.Sign() == 0 {
		return nil, nil
	}
	return v, nil
}
