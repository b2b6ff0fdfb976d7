package config

import (
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/clickregen/portal-workers/pkg/logger"
)

var (
	// ErrMissingSetting is returned when a required setting is absent or left at its placeholder
	ErrMissingSetting = errors.New("missing setting")
	// ErrInvalidSetting is returned when a setting cannot be used as given
	ErrInvalidSetting = errors.New("invalid setting")
)

// Role selects which worker the configuration is for
type Role string

const (
	RoleIndexer Role = "indexer"
	RoleRelayer Role = "relayer"
)

// Config holds the configuration for both workers
type Config struct {
	Role Role `ignored:"true"`

	RPCURL        string `envconfig:"RPC_URL" default:"http://127.0.0.1:8545" validate:"required,url"`
	ChainID       int64  `envconfig:"CHAIN_ID" default:"31337" validate:"gt=0"`
	PortalAddress string `envconfig:"PORTAL_ADDRESS" validate:"required"`

	FromBlock      uint64 `envconfig:"FROM_BLOCK" default:"0"`
	PollIntervalMS int64  `envconfig:"POLL_INTERVAL_MS" validate:"gte=0"`
	OutDir         string `envconfig:"OUT_DIR" default:"./data" validate:"required"`

	PrivateKey             string `envconfig:"PRIVATE_KEY"`
	FinalizeAlwaysRaw      string `envconfig:"FINALIZE_ALWAYS" default:"true"`
	FinalizeProbabilityRaw string `envconfig:"FINALIZE_PROBABILITY" default:"1.0"`

	StateBackend   string `envconfig:"STATE_BACKEND" default:"file" validate:"oneof=file redis postgres memory"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisUsername  string `envconfig:"REDIS_USERNAME"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"clickregen:indexer"`
	DatabaseURL    string `envconfig:"DATABASE_URL" validate:"required_if=StateBackend postgres"`

	RPCTimeout           time.Duration `envconfig:"RPC_TIMEOUT" default:"10s" validate:"gt=0"`
	RPCRetryMax          int           `envconfig:"RPC_RETRY_MAX" default:"2" validate:"gte=0"`
	StartupRetryAttempts uint          `envconfig:"STARTUP_RETRY_ATTEMPTS" default:"5" validate:"gt=0"`
	MaxBlockRange        uint64        `envconfig:"MAX_BLOCK_RANGE" default:"0"`

	GasMultiplier  float64       `envconfig:"GAS_MULTIPLIER" default:"1.1" validate:"gt=0"`
	MaxGasPriceRaw string        `envconfig:"MAX_GAS_PRICE" default:"0"`
	WaitForReceipt bool          `envconfig:"WAIT_FOR_RECEIPT" default:"false"`
	ReceiptTimeout time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"2m" validate:"gte=0"`

	MetricsPort   string `envconfig:"METRICS_PORT" default:"8080"`
	MetricsAPIKey string `envconfig:"METRICS_API_KEY"`

	CircuitBreaker CircuitBreakerConfig `envconfig:"CIRCUIT_BREAKER"`
	Log            LoggerConfig         `envconfig:"LOG"`

	// Derived by LoadConfig
	PollInterval        time.Duration  `ignored:"true"`
	FinalizeAlways      bool           `ignored:"true"`
	FinalizeProbability float64        `ignored:"true"`
	MaxGasPrice         *big.Int       `ignored:"true"`
	Portal              common.Address `ignored:"true"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool          `envconfig:"ENABLED" default:"true"`
	Threshold      int           `envconfig:"THRESHOLD" default:"5" validate:"gt=0"`
	WindowDuration time.Duration `envconfig:"WINDOW" default:"1m" validate:"gt=0"`
	ResetTimeout   time.Duration `envconfig:"RESET" default:"2m" validate:"gt=0"`
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	LevelRaw string `envconfig:"LEVEL" default:"info" validate:"oneof=debug info notice warn error"`
	Format   string `envconfig:"FORMAT" default:"console" validate:"oneof=console text json"`
	Coloring bool   `envconfig:"COLORING" default:"true"`

	Level logger.Level `ignored:"true"`
}

// LoadConfig loads the configuration for role from the environment and an optional .env file
func LoadConfig(role Role) (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return FromEnv(role)
}

// FromEnv builds the configuration from the process environment only
func FromEnv(role Role) (*Config, error) {
	cfg := &Config{Role: role}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig runs the tag rules and then the rules tags cannot express
func validateConfig(cfg *Config) error {
	if cfg.Role != RoleIndexer && cfg.Role != RoleRelayer {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidSetting, cfg.Role)
	}

	if err := validateStruct(cfg); err != nil {
		return err
	}

	portal, err := parsePortalAddress(cfg.PortalAddress)
	if err != nil {
		return err
	}
	cfg.Portal = portal

	if cfg.Role == RoleRelayer {
		if err := validatePrivateKey(cfg.PrivateKey); err != nil {
			return err
		}
	}

	cfg.MaxGasPrice, err = parseWei(cfg.MaxGasPriceRaw)
	if err != nil {
		return fmt.Errorf("%w: MAX_GAS_PRICE: %v", ErrInvalidSetting, err)
	}

	cfg.PollInterval = pollInterval(cfg.Role, cfg.PollIntervalMS)
	cfg.FinalizeAlways = parseFinalizeAlways(cfg.FinalizeAlwaysRaw)
	cfg.FinalizeProbability = parseProbability(cfg.FinalizeProbabilityRaw)
	cfg.Log.Level = logger.ParseLevel(cfg.Log.LevelRaw)
	cfg.OutDir = strings.TrimSpace(cfg.OutDir)

	return nil
}
