package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"lockyard/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress    string `toml:"RPCAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	ExplorerDB    string `toml:"ExplorerDB"`

	Program ProgramConfig `toml:"program"`
	Tokens  []TokenConfig `toml:"tokens"`
}

// ProgramConfig carries the immutable incentive program parameters. They are
// read once at startup and handed to the lockup engine; the daemon never
// mutates them afterwards.
type ProgramConfig struct {
	DurationSeconds uint64 `toml:"DurationSeconds"`
	RewardPoolSize  string `toml:"RewardPoolSize"`
	AnnualYieldRate uint64 `toml:"AnnualYieldRate"`
	VestingSeconds  uint64 `toml:"VestingSeconds"`
	Admin           string `toml:"Admin"`
	RewardToken     string `toml:"RewardToken"`
}

// TokenConfig registers a fungible asset ledger served by the daemon.
type TokenConfig struct {
	Symbol string `toml:"Symbol"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8661"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lockyard-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "lockyard-local"
	}
	if cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups == 0 {
		cfg.LogMaxBackups = 3
	}
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Program.DurationSeconds == 0 {
		return fmt.Errorf("program duration must be positive")
	}
	if c.Program.VestingSeconds == 0 {
		return fmt.Errorf("vesting duration must be positive")
	}
	if c.Program.AnnualYieldRate == 0 {
		return fmt.Errorf("annual yield rate must be positive")
	}
	pool, ok := new(big.Int).SetString(strings.TrimSpace(c.Program.RewardPoolSize), 10)
	if !ok || pool.Sign() <= 0 {
		return fmt.Errorf("reward pool size must be a positive integer, got %q", c.Program.RewardPoolSize)
	}
	if _, err := crypto.DecodeAddress(strings.TrimSpace(c.Program.Admin)); err != nil {
		return fmt.Errorf("invalid administrator address: %w", err)
	}
	reward := strings.ToUpper(strings.TrimSpace(c.Program.RewardToken))
	if reward == "" {
		return fmt.Errorf("reward token symbol must be set")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one token must be configured")
	}
	seen := make(map[string]bool, len(c.Tokens))
	rewardRegistered := false
	for _, tok := range c.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(tok.Symbol))
		if symbol == "" {
			return fmt.Errorf("token symbol must not be empty")
		}
		if seen[symbol] {
			return fmt.Errorf("duplicate token symbol %q", symbol)
		}
		seen[symbol] = true
		if symbol == reward {
			rewardRegistered = true
		}
	}
	if !rewardRegistered {
		return fmt.Errorf("reward token %q is not among the configured tokens", reward)
	}
	return nil
}

// RewardPool returns the parsed reward pool size. Validate must have passed.
func (c *Config) RewardPool() *big.Int {
	pool, _ := new(big.Int).SetString(strings.TrimSpace(c.Program.RewardPoolSize), 10)
	return pool
}

// AdminAddress returns the decoded administrator address. Validate must have
// passed.
func (c *Config) AdminAddress() crypto.Address {
	return crypto.MustDecodeAddress(strings.TrimSpace(c.Program.Admin))
}

func createDefault(path string) (*Config, error) {
	adminKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate administrator key: %w", err)
	}

	cfg := &Config{
		Program: ProgramConfig{
			DurationSeconds: 180 * 24 * 60 * 60,
			RewardPoolSize:  "1000000",
			AnnualYieldRate: 10,
			VestingSeconds:  90 * 24 * 60 * 60,
			Admin:           adminKey.PubKey().Address().String(),
			RewardToken:     "RWD",
		},
		Tokens: []TokenConfig{{Symbol: "DEP"}, {Symbol: "RWD"}},
	}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
