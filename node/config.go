package node

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the node-local (non-consensus) configuration.
type Config struct {
	Network  string `yaml:"network"`
	ChainID  uint32 `yaml:"chain_id"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	// PoIESPolicyFile and AlgPolicyFile name canonical-CBOR policy
	// bundle files. They are parsed from YAML only; nothing loads them,
	// and the harness always runs the built-in dev bundles.
	PoIESPolicyFile string `yaml:"poies_policy_file"`
	AlgPolicyFile   string `yaml:"alg_policy_file"`

	// UseLocalClock is parsed from YAML only; the local-clock skew guard
	// runs when a caller passes a local time in AdmitOptions.
	UseLocalClock bool `yaml:"use_local_clock"`
	// VerifyWorkers bounds the proof verification pool; zero means one
	// worker per CPU.
	VerifyWorkers int `yaml:"verify_workers"`
}

var allowedLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir returns ~/.animica, falling back to a relative
// directory when the home cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".animica"
	}
	return filepath.Join(home, ".animica")
}

// DefaultConfig returns the devnet defaults.
func DefaultConfig() Config {
	return Config{
		Network:       "devnet",
		ChainID:       77,
		DataDir:       DefaultDataDir(),
		LogLevel:      "info",
		UseLocalClock: true,
	}
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := readFileByPath(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configs the node cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir required")
	}
	if _, ok := allowedLogLevels[c.LogLevel]; !ok {
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.VerifyWorkers < 0 {
		return fmt.Errorf("config: verify_workers must be non-negative")
	}
	return nil
}
