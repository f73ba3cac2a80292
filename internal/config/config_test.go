package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Chains: []ChainConfig{
			{
				ChainID:         9001,
				Name:            "push-chain",
				Native:          true,
				RPCURL:          "ws://localhost:8545",
				ContractAddress: "0x1111111111111111111111111111111111111111",
			},
			{
				ChainID:         1,
				Name:            "ethereum",
				RPCURL:          "ws://localhost:8546",
				ContractAddress: "0x2222222222222222222222222222222222222222",
			},
		},
		DB: DatabaseConfig{Path: "gateway.db"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "no chains",
			mutate:  func(c *Config) { c.Chains = nil },
			wantErr: "at least one chain",
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DB.Path = "" },
			wantErr: "db.path is required",
		},
		{
			name:    "zero chain id",
			mutate:  func(c *Config) { c.Chains[1].ChainID = 0 },
			wantErr: "chain_id is required",
		},
		{
			name:    "missing name",
			mutate:  func(c *Config) { c.Chains[1].Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "duplicate chain id",
			mutate:  func(c *Config) { c.Chains[1].ChainID = 9001 },
			wantErr: "duplicate chain_id 9001",
		},
		{
			name:    "no native chain",
			mutate:  func(c *Config) { c.Chains[0].Native = false },
			wantErr: "exactly one chain must be marked native, found 0",
		},
		{
			name:    "two native chains",
			mutate:  func(c *Config) { c.Chains[1].Native = true },
			wantErr: "exactly one chain must be marked native, found 2",
		},
		{
			name:    "native chain without contract",
			mutate:  func(c *Config) { c.Chains[0].ContractAddress = "" },
			wantErr: "native chain requires contract_address",
		},
		{
			name:    "contract without rpc url",
			mutate:  func(c *Config) { c.Chains[1].RPCURL = "" },
			wantErr: "rpc_url is required",
		},
		{
			name: "external chain without contract is valid",
			mutate: func(c *Config) {
				c.Chains[1].ContractAddress = ""
				c.Chains[1].RPCURL = ""
			},
		},
		{
			name: "invalid logging level",
			mutate: func(c *Config) {
				c.Logging = &LoggingConfig{DefaultLevel: "verbose"}
			},
			wantErr: "logging.default_level",
		},
		{
			name: "unknown logging component",
			mutate: func(c *Config) {
				c.Logging = &LoggingConfig{
					DefaultLevel:    "info",
					ComponentLevels: map[string]string{"scheduler": "debug"},
				}
			},
			wantErr: "unknown component 'scheduler'",
		},
		{
			name: "invalid maintenance checkpoint mode",
			mutate: func(c *Config) {
				c.DB.Maintenance = &MaintenanceConfig{Enabled: true, WALCheckpointMode: "AGGRESSIVE"}
			},
			wantErr: "wal_checkpoint_mode",
		},
		{
			name: "invalid metrics path",
			mutate: func(c *Config) {
				c.Metrics = &MetricsConfig{Enabled: true, ListenAddress: ":9090", Path: "metrics"}
			},
			wantErr: "path must start with '/'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestChainConfigApplyDefaults(t *testing.T) {
	c := ChainConfig{ChainID: 1, Name: "ethereum", Retry: &RetryConfig{}}
	c.ApplyDefaults()

	assert.Equal(t, uint64(100), c.BackfillWindow)
	assert.Equal(t, uint64(10), c.BatchSize)
	assert.Equal(t, 5, c.Retry.MaxAttempts)
	assert.Equal(t, 2.0, c.Retry.BackoffMultiplier)
}

func TestProcessorConfigDecimalsFor(t *testing.T) {
	p := ProcessorConfig{CurrencyDecimals: map[string]int{"USDC": 6}}

	assert.Equal(t, 6, p.DecimalsFor("USDC"))
	assert.Equal(t, DefaultTokenDecimals, p.DecimalsFor("ETH"))
	assert.Equal(t, DefaultTokenDecimals, (&ProcessorConfig{}).DecimalsFor("anything"))
}

func TestChainConfigContract(t *testing.T) {
	c := ChainConfig{ContractAddress: "0x1111111111111111111111111111111111111111"}
	assert.Equal(t, "0x1111111111111111111111111111111111111111",
		fmt.Sprintf("0x%x", c.Contract().Bytes()))
}
