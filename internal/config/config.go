// Package config loads the TOML configuration for the chatstore CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Backend names a persistence-medium implementation.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendSQLite  Backend = "sqlite"
	BackendLevelDB Backend = "leveldb"
)

type Config struct {
	DataDir  string   `toml:"DataDir"`
	Backend  Backend  `toml:"Backend"`
	LogLevel string   `toml:"LogLevel"`
	Relays   []string `toml:"Relays"`
	MintURL  string   `toml:"MintURL"`
}

// defaultRelays are the relays the demo front ends publish to.
var defaultRelays = []string{
	"ws://localhost:8080",
	"wss://nostr.chaima.info",
	"wss://orangesync.tech",
}

const defaultMintURL = "https://nofees.testnut.cashu.space"

// Load reads the configuration at path, creating a default file if none
// exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyDefaults(cfg)

	switch cfg.Backend {
	case BackendMemory, BackendSQLite, BackendLevelDB:
	default:
		return nil, fmt.Errorf("config %s: unknown backend %q", path, cfg.Backend)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Relays == nil {
		cfg.Relays = append([]string{}, defaultRelays...)
	}
	if cfg.MintURL == "" {
		cfg.MintURL = defaultMintURL
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write config %s: %w", path, err)
	}
	return cfg, nil
}
