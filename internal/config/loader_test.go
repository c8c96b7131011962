package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, int64(500), cfg.Chain.ChunkSize)
	assert.Len(t, cfg.Chain.ExchangeAddresses, 2)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Gamma.BaseURL)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "backfill"
log_level = "debug"

[chain]
rpc_url = "https://rpc.example"
start_block = 100
end_block = 200
chunk_size = 50

[database]
dsn = "postgres://user:pw@localhost:5432/polyrep"

[pipeline]
stop_after = 10
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backfill", cfg.Mode)
	assert.Equal(t, "https://rpc.example", cfg.Chain.RPCURL)
	assert.Equal(t, int64(50), cfg.Chain.ChunkSize)
	assert.Equal(t, int64(10), cfg.Pipeline.StopAfter)
	// Defaults survive where the file is silent.
	assert.Equal(t, 8000, cfg.Server.Port)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("POLYREP_CHAIN_RPC_URL", "https://env.example")
	t.Setenv("POLYREP_CHAIN_END_BLOCK", "999")
	t.Setenv("POLYREP_CHAIN_EXCHANGE_ADDRESSES", "0x01, 0x02, 0x03")
	t.Setenv("POLYREP_REDIS_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.Chain.RPCURL)
	assert.Equal(t, int64(999), cfg.Chain.EndBlock)
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, cfg.Chain.ExchangeAddresses)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Database.DSN = "postgres://x"
	assert.Error(t, cfg.Validate())
}

func TestValidateBackfillNeedsRange(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backfill"
	cfg.Database.DSN = "postgres://x"
	assert.Error(t, cfg.Validate())

	cfg.Chain.StartBlock = 200
	cfg.Chain.EndBlock = 100
	assert.Error(t, cfg.Validate())

	cfg.Chain.EndBlock = 300
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresDatabase(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())

	cfg.Database.Host = "localhost"
	cfg.Database.Database = "polyrep"
	cfg.Database.User = "polyrep"
	assert.NoError(t, cfg.Validate())
}
