package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBAGENT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing file is not an error when path is empty; the defaults plus
// environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBAGENT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ARBAGENT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBAGENT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBAGENT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ARBAGENT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.RPCURL, "OG_RPC_URL") // compatibility alias
	setInt64(&cfg.Chain.ChainID, "ARBAGENT_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.TradingContract, "ARBAGENT_CHAIN_TRADING_CONTRACT")
	setStr(&cfg.Chain.TradingContract, "TRADING_CONTRACT_ADDRESS") // compatibility alias
	setStr(&cfg.Chain.ArbAssetAddress, "ARBAGENT_CHAIN_ARB_ASSET_ADDRESS")
	setUint64(&cfg.Chain.GasLimit, "ARBAGENT_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.ConfirmTimeout, "ARBAGENT_CHAIN_CONFIRM_TIMEOUT")
	setDuration(&cfg.Chain.PollInterval, "ARBAGENT_CHAIN_POLL_INTERVAL")

	// ── Inference ──
	setStr(&cfg.Inference.BaseURL, "ARBAGENT_INFERENCE_BASE_URL")
	setStr(&cfg.Inference.APIKey, "ARBAGENT_INFERENCE_API_KEY")
	setStr(&cfg.Inference.DefaultModel, "ARBAGENT_INFERENCE_DEFAULT_MODEL")
	setStr(&cfg.Inference.Provider, "ARBAGENT_INFERENCE_PROVIDER")
	setInt(&cfg.Inference.MaxTokens, "ARBAGENT_INFERENCE_MAX_TOKENS")
	setFloat64(&cfg.Inference.Temperature, "ARBAGENT_INFERENCE_TEMPERATURE")
	setBool(&cfg.Inference.GenerateProof, "ARBAGENT_INFERENCE_GENERATE_PROOF")
	setDuration(&cfg.Inference.Timeout, "ARBAGENT_INFERENCE_TIMEOUT")

	// ── Storage ──
	setStr(&cfg.Storage.Endpoint, "ARBAGENT_STORAGE_ENDPOINT")
	setStr(&cfg.Storage.Region, "ARBAGENT_STORAGE_REGION")
	setStr(&cfg.Storage.Bucket, "ARBAGENT_STORAGE_BUCKET")
	setStr(&cfg.Storage.AccessKey, "ARBAGENT_STORAGE_ACCESS_KEY")
	setStr(&cfg.Storage.SecretKey, "ARBAGENT_STORAGE_SECRET_KEY")
	setBool(&cfg.Storage.UseSSL, "ARBAGENT_STORAGE_USE_SSL")
	setBool(&cfg.Storage.ForcePathStyle, "ARBAGENT_STORAGE_FORCE_PATH_STYLE")
	setStr(&cfg.Storage.Prefix, "ARBAGENT_STORAGE_PREFIX")

	// ── Feeds ──
	setStr(&cfg.Feeds.BinanceURL, "ARBAGENT_FEEDS_BINANCE_URL")
	setStr(&cfg.Feeds.CoinbaseURL, "ARBAGENT_FEEDS_COINBASE_URL")
	setStr(&cfg.Feeds.CoingeckoURL, "ARBAGENT_FEEDS_COINGECKO_URL")
	setDuration(&cfg.Feeds.Timeout, "ARBAGENT_FEEDS_TIMEOUT")

	// ── Scanner ──
	setBool(&cfg.Scanner.Enabled, "ARBAGENT_SCANNER_ENABLED")
	setDuration(&cfg.Scanner.Interval, "ARBAGENT_SCANNER_INTERVAL")
	setStringSlice(&cfg.Scanner.Assets, "ARBAGENT_SCANNER_ASSETS")
	setStr(&cfg.Scanner.Agent, "ARBAGENT_SCANNER_AGENT")
	setStr(&cfg.Scanner.Model, "ARBAGENT_SCANNER_MODEL")
	setStr(&cfg.Scanner.Provider, "ARBAGENT_SCANNER_PROVIDER")
	setFloat64(&cfg.Scanner.MinSpread, "ARBAGENT_SCANNER_MIN_SPREAD")
	setFloat64(&cfg.Scanner.Amount, "ARBAGENT_SCANNER_AMOUNT")
	setFloat64(&cfg.Scanner.Slippage, "ARBAGENT_SCANNER_SLIPPAGE")
	setFloat64(&cfg.Scanner.FeesBps, "ARBAGENT_SCANNER_FEES_BPS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBAGENT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBAGENT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBAGENT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBAGENT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBAGENT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBAGENT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBAGENT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBAGENT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBAGENT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBAGENT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBAGENT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBAGENT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBAGENT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBAGENT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBAGENT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBAGENT_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBAGENT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBAGENT_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "ARBAGENT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBAGENT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBAGENT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "ARBAGENT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBAGENT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBAGENT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBAGENT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBAGENT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBAGENT_MODE")
	setStr(&cfg.LogLevel, "ARBAGENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
