package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/candymint/internal/candymachine"
)

const sampleYAML = `
rpc_list:
  - https://api.devnet.solana.com
keypair_path: ./id.json
tiers:
  - name: standard
    candy_machine_id: So11111111111111111111111111111111111111112
  - name: premium
    candy_machine_id: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
    program_id: cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ
tx_timeout_ms: 60000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://api.devnet.solana.com"}, cfg.RPCList)
	require.Len(t, cfg.Tiers, 2)
	assert.Equal(t, "premium", cfg.Tiers[1].Name)
	assert.Equal(t, candymachine.ProgramID, cfg.Tiers[0].Program())

	assert.Equal(t, 20*time.Second, cfg.RefreshInterval())
	assert.Equal(t, time.Minute, cfg.TxTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmPoll())
	assert.Equal(t, "confirmed", cfg.RefreshCommitment)
	assert.Equal(t, "processed", cfg.PostMintCommitment)
	assert.Equal(t, uint32(1230), cfg.TxSizeLimit)
	assert.Equal(t, 3, cfg.RPCRetries)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CANDYMINT_RPC_LIST", "https://a.example.com, https://b.example.com")
	t.Setenv("CANDYMINT_DEBUG_LOGGING", "true")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.RPCList)
	assert.True(t, cfg.DebugLogging)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RPCList:            []string{"https://rpc.example.com"},
			Tiers:              []Tier{{Name: "standard", CandyMachineID: "So11111111111111111111111111111111111111112"}},
			RefreshIntervalMs:  DefaultRefreshIntervalMs,
			RefreshCommitment:  DefaultRefreshCommitment,
			PostMintCommitment: DefaultPostMintCommitment,
			TxTimeoutMs:        DefaultTxTimeoutMs,
			ConfirmPollMs:      DefaultConfirmPollMs,
			TxSizeLimit:        1230,
		}
	}
	require.NoError(t, Validate(valid()))

	withWS := valid()
	withWS.WSURL = "wss://rpc.example.com"
	require.NoError(t, Validate(withWS))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no rpc", func(c *Config) { c.RPCList = nil }},
		{"ws rpc", func(c *Config) { c.RPCList = []string{"wss://rpc.example.com"} }},
		{"http ws_url", func(c *Config) { c.WSURL = "https://rpc.example.com" }},
		{"telegram without chat", func(c *Config) { c.TelegramToken = "123:abc" }},
		{"no tiers", func(c *Config) { c.Tiers = nil }},
		{"bad candy machine", func(c *Config) { c.Tiers[0].CandyMachineID = "not-a-key" }},
		{"duplicate tier", func(c *Config) { c.Tiers = append(c.Tiers, c.Tiers[0]) }},
		{"bad program", func(c *Config) { c.Tiers[0].ProgramID = "0OIl" }},
		{"zero interval", func(c *Config) { c.RefreshIntervalMs = 0 }},
		{"poll above timeout", func(c *Config) { c.ConfirmPollMs = c.TxTimeoutMs + 1 }},
		{"bad commitment", func(c *Config) { c.PostMintCommitment = "fast" }},
		{"zero size limit", func(c *Config) { c.TxSizeLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
