// Package config defines the top-level configuration for the arbitrage agent
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBAGENT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Inference InferenceConfig `toml:"inference"`
	Storage   StorageConfig   `toml:"storage"`
	Feeds     FeedsConfig     `toml:"feeds"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the signing key used for chain submissions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the RPC endpoint and trading contract parameters.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	ChainID         int64    `toml:"chain_id"`
	TradingContract string   `toml:"trading_contract"`
	// ArbAssetAddress is passed as the asset argument of executeTrade on the
	// arbitrage path. Defaults to the zero address.
	ArbAssetAddress string   `toml:"arb_asset_address"`
	GasLimit        uint64   `toml:"gas_limit"`
	ConfirmTimeout  duration `toml:"confirm_timeout"`
	PollInterval    duration `toml:"poll_interval"`
}

// InferenceConfig points at an OpenAI-compatible compute provider.
type InferenceConfig struct {
	BaseURL       string   `toml:"base_url"`
	APIKey        string   `toml:"api_key"`
	DefaultModel  string   `toml:"default_model"`
	Provider      string   `toml:"provider"`
	MaxTokens     int      `toml:"max_tokens"`
	Temperature   float64  `toml:"temperature"`
	GenerateProof bool     `toml:"generate_proof"`
	Timeout       duration `toml:"timeout"`
}

// StorageConfig holds S3-compatible object storage parameters for plans.
type StorageConfig struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// FeedsConfig holds market-data endpoints.
type FeedsConfig struct {
	BinanceURL   string   `toml:"binance_url"`
	CoinbaseURL  string   `toml:"coinbase_url"`
	CoingeckoURL string   `toml:"coingecko_url"`
	Timeout      duration `toml:"timeout"`
}

// ScannerConfig controls the background scan/execute loop.
type ScannerConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Assets    []string `toml:"assets"`
	Agent     string   `toml:"agent"`
	Model     string   `toml:"model"`
	Provider  string   `toml:"provider"`
	MinSpread float64  `toml:"min_spread"`
	Amount    float64  `toml:"amount"`
	Slippage  float64  `toml:"slippage"`
	FeesBps   float64  `toml:"fees_bps"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// quote cache, the distributed scanner lock, rate limiting and the signal bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the execution log. An empty
// DSN and Host disables it.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a database was configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || strings.TrimSpace(p.Host) != ""
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:          "https://evmrpc-testnet.0g.ai",
			ChainID:         16600,
			ArbAssetAddress: common.Address{}.Hex(),
			GasLimit:        500_000,
			ConfirmTimeout:  duration{2 * time.Minute},
			PollInterval:    duration{2 * time.Second},
		},
		Inference: InferenceConfig{
			DefaultModel:  "llama-3.3-70b-instruct",
			MaxTokens:     512,
			Temperature:   0.2,
			GenerateProof: true,
			Timeout:       duration{60 * time.Second},
		},
		Storage: StorageConfig{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbagent-plans",
			UseSSL:         false,
			ForcePathStyle: true,
			Prefix:         "plans/",
		},
		Feeds: FeedsConfig{
			BinanceURL:   "https://api.binance.com",
			CoinbaseURL:  "https://api.exchange.coinbase.com",
			CoingeckoURL: "https://api.coingecko.com",
			Timeout:      duration{10 * time.Second},
		},
		Scanner: ScannerConfig{
			Enabled:   false,
			Interval:  duration{15 * time.Second},
			Assets:    []string{"ETH/USDC"},
			MinSpread: 0.003,
			Amount:    0.1,
			Slippage:  0.01,
			FeesBps:   20,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_executed", "trade_executed", "scanner_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"scanner": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, scanner, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: one credential source is needed to sign commitments.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.TradingContract) {
		errs = append(errs, fmt.Sprintf("chain: trading_contract %q is not a hex address", c.Chain.TradingContract))
	}
	if !common.IsHexAddress(c.Chain.ArbAssetAddress) {
		errs = append(errs, fmt.Sprintf("chain: arb_asset_address %q is not a hex address", c.Chain.ArbAssetAddress))
	}
	if c.Chain.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "chain: confirm_timeout must be > 0")
	}

	// Inference
	if c.Inference.BaseURL == "" {
		errs = append(errs, "inference: base_url must not be empty")
	}

	// Storage
	if c.Storage.Bucket == "" {
		errs = append(errs, "storage: bucket must not be empty")
	}
	if c.Storage.Region == "" {
		errs = append(errs, "storage: region must not be empty")
	}

	// Scanner
	if c.Scanner.Enabled || mode == "scanner" {
		if c.Scanner.Interval.Duration <= 0 {
			errs = append(errs, "scanner: interval must be > 0")
		}
		if len(c.Scanner.Assets) == 0 {
			errs = append(errs, "scanner: assets must not be empty")
		}
		if c.Scanner.Amount <= 0 {
			errs = append(errs, "scanner: amount must be > 0")
		}
		if c.Scanner.Agent != "" && !common.IsHexAddress(c.Scanner.Agent) {
			errs = append(errs, fmt.Sprintf("scanner: agent %q is not a hex address", c.Scanner.Agent))
		}
	}
	if c.Scanner.MinSpread < 0 {
		errs = append(errs, "scanner: min_spread must be >= 0")
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled() {
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
