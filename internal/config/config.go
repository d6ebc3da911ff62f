// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/candymint/internal/budget"
	"github.com/rovshanmuradov/candymint/internal/candymachine"
)

// EnvPrefix prefixes every environment override, e.g. CANDYMINT_RPC_LIST.
const EnvPrefix = "CANDYMINT"

const (
	DefaultRefreshIntervalMs  = 20000
	DefaultRefreshCommitment  = "confirmed"
	DefaultPostMintCommitment = "processed"
	DefaultTxTimeoutMs        = 30000
	DefaultConfirmPollMs      = 500
	DefaultRetries            = 3
)

// Tier is one sale tier backed by its own candy machine.
type Tier struct {
	Name           string `mapstructure:"name"`
	CandyMachineID string `mapstructure:"candy_machine_id"`
	// ProgramID defaults to the Candy Machine v2 program.
	ProgramID string `mapstructure:"program_id"`
}

type Config struct {
	RPCList            []string `mapstructure:"rpc_list"`
	// WSURL enables push refreshes from account subscriptions; empty means polling only.
	WSURL              string   `mapstructure:"ws_url"`
	KeypairPath        string   `mapstructure:"keypair_path"`
	PrivateKey         string   `mapstructure:"private_key"`
	Tiers              []Tier   `mapstructure:"tiers"`
	RefreshIntervalMs  int      `mapstructure:"refresh_interval_ms"`
	RefreshCommitment  string   `mapstructure:"refresh_commitment"`
	PostMintCommitment string   `mapstructure:"post_mint_commitment"`
	TxTimeoutMs        int      `mapstructure:"tx_timeout_ms"`
	ConfirmPollMs      int      `mapstructure:"confirm_poll_ms"`
	TxSizeLimit        uint32   `mapstructure:"tx_size_limit"`
	RPCRetries         int      `mapstructure:"rpc_retries"`
	MetricsAddr        string   `mapstructure:"metrics_addr"`
	TelegramToken      string   `mapstructure:"telegram_token"`
	TelegramChatID     string   `mapstructure:"telegram_chat_id"`
	LogFile            string   `mapstructure:"log_file"`
	DebugLogging       bool     `mapstructure:"debug_logging"`
}

// LoadConfig reads path (JSON, YAML or TOML by extension), applies defaults
// and CANDYMINT_ environment overrides, then validates.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// LoadFromEnv builds the configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return decode(v)
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"refresh_interval_ms":  DefaultRefreshIntervalMs,
		"refresh_commitment":   DefaultRefreshCommitment,
		"post_mint_commitment": DefaultPostMintCommitment,
		"tx_timeout_ms":        DefaultTxTimeoutMs,
		"confirm_poll_ms":      DefaultConfirmPollMs,
		"tx_size_limit":        budget.DefaultLimit,
		"rpc_retries":          DefaultRetries,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about
	for _, key := range []string{"rpc_list", "ws_url", "keypair_path", "private_key", "metrics_addr", "telegram_token", "telegram_chat_id", "log_file", "debug_logging"} {
		_ = v.BindEnv(key)
	}
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// CANDYMINT_RPC_LIST=https://a, https://b
	cfg.RPCList = splitList(strings.Join(cfg.RPCList, ","))

	return &cfg, Validate(&cfg)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(item); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// Validate checks the configuration for startup errors.
func Validate(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return fmt.Errorf("rpc_list entry %q: %w", rpcURL, err)
		}
	}
	if cfg.WSURL != "" {
		if err := validateURL(cfg.WSURL, "ws"); err != nil {
			return fmt.Errorf("ws_url %q: %w", cfg.WSURL, err)
		}
	}
	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == "") {
		return errors.New("telegram_token and telegram_chat_id must be set together")
	}
	if len(cfg.Tiers) == 0 {
		return errors.New("no tiers configured")
	}

	seen := make(map[string]bool, len(cfg.Tiers))
	for i, t := range cfg.Tiers {
		if t.Name == "" {
			return fmt.Errorf("tiers[%d]: missing name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tiers[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true
		if _, err := solana.PublicKeyFromBase58(t.CandyMachineID); err != nil {
			return fmt.Errorf("tier %q: invalid candy_machine_id: %w", t.Name, err)
		}
		if t.ProgramID != "" {
			if _, err := solana.PublicKeyFromBase58(t.ProgramID); err != nil {
				return fmt.Errorf("tier %q: invalid program_id: %w", t.Name, err)
			}
		}
	}

	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	for key, c := range map[string]string{
		"refresh_commitment":   cfg.RefreshCommitment,
		"post_mint_commitment": cfg.PostMintCommitment,
	} {
		if !validCommitment(c) {
			return fmt.Errorf("invalid %s %q", key, c)
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.RefreshIntervalMs <= 0 {
		return errors.New("invalid refresh_interval_ms")
	}
	if cfg.TxTimeoutMs <= 0 {
		return errors.New("invalid tx_timeout_ms")
	}
	if cfg.ConfirmPollMs <= 0 || cfg.ConfirmPollMs > cfg.TxTimeoutMs {
		return errors.New("invalid confirm_poll_ms")
	}
	if cfg.TxSizeLimit == 0 {
		return errors.New("invalid tx_size_limit")
	}
	if cfg.RPCRetries < 0 {
		return errors.New("invalid rpc_retries")
	}
	return nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func validCommitment(c string) bool {
	switch rpc.CommitmentType(c) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return true
	}
	return false
}

// RefreshInterval returns the periodic refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// TxTimeout returns the confirmation timeout.
func (c *Config) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutMs) * time.Millisecond
}

// ConfirmPoll returns the status polling interval.
func (c *Config) ConfirmPoll() time.Duration {
	return time.Duration(c.ConfirmPollMs) * time.Millisecond
}

// CandyMachine returns the tier's candy machine address.
func (t Tier) CandyMachine() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(t.CandyMachineID)
}

// Program returns the tier's program id.
func (t Tier) Program() solana.PublicKey {
	if t.ProgramID == "" {
		return candymachine.ProgramID
	}
	return solana.MustPublicKeyFromBase58(t.ProgramID)
}
