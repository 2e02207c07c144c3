package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
mode = "server"
log_level = "debug"

[wallet]
private_key = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

[chain]
rpc_url = "http://localhost:8545"
chain_id = 31337
trading_contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
confirm_timeout = "30s"

[inference]
base_url = "http://localhost:8080/v1"
default_model = "test-model"

[scanner]
interval = "5s"
assets = ["ETH/USDC", "BTC/USDC"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbagent.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, int64(31337), cfg.Chain.ChainID)
	assert.Equal(t, 30*time.Second, cfg.Chain.ConfirmTimeout.Duration)
	assert.Equal(t, 2*time.Second, cfg.Chain.PollInterval.Duration)
	assert.Equal(t, "test-model", cfg.Inference.DefaultModel)
	assert.Equal(t, []string{"ETH/USDC", "BTC/USDC"}, cfg.Scanner.Assets)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval.Duration)
	assert.Equal(t, 0.003, cfg.Scanner.MinSpread)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ARBAGENT_MODE", "scanner")
	t.Setenv("ARBAGENT_SCANNER_ASSETS", "SOL/USDC, ETH/USDC")
	t.Setenv("ARBAGENT_SCANNER_INTERVAL", "1m")
	t.Setenv("ARBAGENT_SCANNER_MIN_SPREAD", "0.01")
	t.Setenv("ARBAGENT_REDIS_ADDR", "localhost:6379")
	t.Setenv("PORT", "9090")

	cfg, err := Load(writeConfig(t, validTOML))
	require.NoError(t, err)

	assert.Equal(t, "scanner", cfg.Mode)
	assert.Equal(t, []string{"SOL/USDC", "ETH/USDC"}, cfg.Scanner.Assets)
	assert.Equal(t, time.Minute, cfg.Scanner.Interval.Duration)
	assert.Equal(t, 0.01, cfg.Scanner.MinSpread)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Chain.TradingContract = "not-an-address"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "turbo"`)
	assert.Contains(t, msg, "wallet: either private_key or encrypted_key_path must be set")
	assert.Contains(t, msg, "trading_contract")
	assert.Contains(t, msg, "inference: base_url must not be empty")
}

func TestValidate_ScannerChecksOnlyWhenUsed(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	require.NoError(t, err)

	cfg.Scanner.Amount = 0
	require.NoError(t, cfg.Validate())

	cfg.Scanner.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "scanner: amount must be > 0")

	cfg.Scanner.Amount = 0.1
	cfg.Scanner.Agent = "bob"
	require.ErrorContains(t, cfg.Validate(), "scanner: agent")
}

func TestValidate_EncryptedKeyNeedsPassword(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	require.NoError(t, err)
	cfg.Wallet.EncryptedKeyPath = "/keys/wallet.enc"
	require.ErrorContains(t, cfg.Validate(), "key_password")
}

func TestPostgresEnabled(t *testing.T) {
	assert.False(t, PostgresConfig{}.Enabled())
	assert.True(t, PostgresConfig{DSN: "postgres://x"}.Enabled())
	assert.True(t, PostgresConfig{Host: "db"}.Enabled())
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	require.NoError(t, err)
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.DiscordWebhookURL = "https://discord.test/hook"

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	assert.Empty(t, red.Redis.Password)
	assert.Equal(t, "http://localhost:8545", red.Chain.RPCURL)

	red.Scanner.Assets[0] = "mutated"
	assert.Equal(t, "ETH/USDC", cfg.Scanner.Assets[0])
	assert.NotEqual(t, "***", cfg.Wallet.PrivateKey)
}
