// Package config provides layered configuration for agentboard: compiled-in
// defaults, then an optional YAML file, then AGENTBOARD_* environment
// variables, each overriding the last. CLI flags are not merged here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// BoardMode selects the Board Store backend.
type BoardMode string

const (
	BoardModeRemote BoardMode = "remote"
	BoardModeLocal  BoardMode = "local"
	BoardModeMemory BoardMode = "memory"
)

// Config is agentboard's full runtime configuration.
type Config struct {
	// Board Store
	BoardMode  BoardMode     `mapstructure:"board_mode"`
	BoardURL   string        `mapstructure:"board_url"`
	BoardToken string        `mapstructure:"board_token"`
	BoardPath  string        `mapstructure:"board_path"`
	BoardTimeout time.Duration `mapstructure:"board_timeout"`

	// LLM Fallback Chain
	PrimaryBaseURL  string        `mapstructure:"primary_base_url"`
	PrimaryModel    string        `mapstructure:"primary_model"`
	PrimaryAPIKey   string        `mapstructure:"primary_api_key"`
	PrimaryTimeout  time.Duration `mapstructure:"primary_timeout"`
	FallbackBaseURL string        `mapstructure:"fallback_base_url"`
	FallbackModel   string        `mapstructure:"fallback_model"`
	FallbackAPIKey  string        `mapstructure:"fallback_api_key"`
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout"`

	// Ticket-link document adapters
	JiraToken   string `mapstructure:"jira_token"`
	GitLabToken string `mapstructure:"gitlab_token"`

	// Task Runner Loop
	ConcurrencyCap   int           `mapstructure:"concurrency_cap"`
	GlobalRAMFloorMB int           `mapstructure:"global_ram_floor_mb"`
	RunnerInterval   time.Duration `mapstructure:"runner_interval"`
	AgentTimeout     time.Duration `mapstructure:"agent_timeout"`

	// Spec Generator Loop
	SpecGenInterval time.Duration `mapstructure:"specgen_interval"`
	SpecGenStaleAfter time.Duration `mapstructure:"specgen_stale_after"`

	// Agent Registry
	RegistryPath string `mapstructure:"registry_path"`

	// Storage roots
	WorkspacesDir string `mapstructure:"workspaces_dir"`
	ResultsDir    string `mapstructure:"results_dir"`
	ExportsDir    string `mapstructure:"exports_dir"`

	// Health & Control Surfaces
	ListenAddr string `mapstructure:"listen_addr"`

	// CLI / logging
	Verbose bool `mapstructure:"verbose"`
	Quiet   bool `mapstructure:"quiet"`
	JSON    bool `mapstructure:"json"`
}

// EnvPrefix is the prefix for environment-variable overrides.
const EnvPrefix = "AGENTBOARD"

// Default returns a fully populated configuration that runs with no file
// or environment variables present: an in-memory board store, no LLM
// provider keys (spec generation will fail closed, not panic), and a
// single `noop` agent supplied by the registry's own defaults.
func Default() *Config {
	return &Config{
		BoardMode:         BoardModeMemory,
		BoardTimeout:      30 * time.Second,
		PrimaryTimeout:    120 * time.Second,
		FallbackTimeout:   180 * time.Second,
		ConcurrencyCap:    1,
		GlobalRAMFloorMB:  400,
		RunnerInterval:    15 * time.Second,
		AgentTimeout:      10 * time.Minute,
		SpecGenInterval:   10 * time.Second,
		SpecGenStaleAfter: 5 * time.Minute,
		RegistryPath:      "agents.json",
		WorkspacesDir:     "workspaces",
		ResultsDir:        "results",
		ExportsDir:        "exports",
		ListenAddr:        "127.0.0.1:8085",
	}
}

// Load builds a Config from defaults, an optional YAML config file, and
// AGENTBOARD_* environment variables. configPath, if non-empty, is tried
// first; otherwise .agentboard/agentboard.yaml and
// $HOME/.agentboard/agentboard.yaml are searched in order. A missing file
// is not an error — Default() alone is returned with env overrides
// applied.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("agentboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".agentboard")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agentboard"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("board_mode", d.BoardMode)
	v.SetDefault("board_timeout", d.BoardTimeout)
	v.SetDefault("primary_timeout", d.PrimaryTimeout)
	v.SetDefault("fallback_timeout", d.FallbackTimeout)
	v.SetDefault("concurrency_cap", d.ConcurrencyCap)
	v.SetDefault("global_ram_floor_mb", d.GlobalRAMFloorMB)
	v.SetDefault("runner_interval", d.RunnerInterval)
	v.SetDefault("agent_timeout", d.AgentTimeout)
	v.SetDefault("specgen_interval", d.SpecGenInterval)
	v.SetDefault("specgen_stale_after", d.SpecGenStaleAfter)
	v.SetDefault("registry_path", d.RegistryPath)
	v.SetDefault("workspaces_dir", d.WorkspacesDir)
	v.SetDefault("results_dir", d.ResultsDir)
	v.SetDefault("exports_dir", d.ExportsDir)
	v.SetDefault("listen_addr", d.ListenAddr)
}

// Validate checks internal consistency that the type system cannot
// enforce, e.g. a remote board mode requires a URL.
func (c *Config) Validate() error {
	if c.BoardMode == BoardModeRemote && c.BoardURL == "" {
		return fmt.Errorf("board_mode=remote requires board_url")
	}
	if c.ConcurrencyCap < 1 {
		return fmt.Errorf("concurrency_cap must be >= 1")
	}
	return nil
}
