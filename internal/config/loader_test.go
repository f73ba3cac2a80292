package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
chains:
  - chain_id: 9001
    name: push-chain
    native: true
    rpc_url: ws://localhost:8545
    contract_address: "0x1111111111111111111111111111111111111111"
  - chain_id: 1
    name: ethereum
    rpc_url: ws://localhost:8546
    contract_address: "0x2222222222222222222222222222222222222222"
    backfill_window: 250
    poll_interval: 15s
    batch_size: 50
  - chain_id: 137
    name: polygon
db:
  path: gateway.db
logging:
  default_level: info
  component_levels:
    watcher: debug
`

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", validYAML)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Chains, 3)

	native := cfg.Chains[0]
	assert.Equal(t, uint64(9001), native.ChainID)
	assert.True(t, native.Native)
	assert.True(t, native.Configured())
	// Defaults fill in omitted fields.
	assert.Equal(t, uint64(100), native.BackfillWindow)
	assert.Equal(t, 5*time.Second, native.PollInterval.Duration)
	assert.Equal(t, uint64(10), native.BatchSize)

	eth := cfg.Chains[1]
	assert.Equal(t, uint64(250), eth.BackfillWindow)
	assert.Equal(t, 15*time.Second, eth.PollInterval.Duration)
	assert.Equal(t, uint64(50), eth.BatchSize)

	// No contract address: excluded from indexing but still valid config.
	assert.False(t, cfg.Chains[2].Configured())

	assert.Equal(t, "WAL", cfg.DB.JournalMode)
	assert.Equal(t, "debug", cfg.Logging.GetComponentLevel("watcher"))
	assert.Equal(t, "info", cfg.Logging.GetComponentLevel("store"))
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
  "chains": [
    {
      "chain_id": 9001,
      "name": "push-chain",
      "native": true,
      "rpc_url": "ws://localhost:8545",
      "contract_address": "0x1111111111111111111111111111111111111111",
      "poll_interval": "7s"
    }
  ],
  "db": {"path": "gateway.db"}
}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, 7*time.Second, cfg.Chains[0].PollInterval.Duration)
}

func TestLoadFromFile_TOML(t *testing.T) {
	path := writeConfigFile(t, "config.toml", `
[[chains]]
chain_id = 9001
name = "push-chain"
native = true
rpc_url = "ws://localhost:8545"
contract_address = "0x1111111111111111111111111111111111111111"

[db]
path = "gateway.db"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, "push-chain", cfg.Chains[0].Name)
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := writeConfigFile(t, "config.ini", "whatever")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadFromFile_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "chains: [unclosed")

	_, err := LoadFromFile(path)
	require.Error(t, err)
}
