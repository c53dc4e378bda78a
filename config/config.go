// Package config carries the relayer service configuration, loaded from
// defaults, an optional TOML file, and RAINCLOUD_* environment overrides, in
// that order.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	ListenHost string
	ListenPort int

	// ChainID and ContractAddress identify the protocol instance signatures
	// are bound to. OwnerAddress is the account whose signatures authorize
	// mints and admin operations.
	ChainID         uint64
	ContractAddress common.Address
	OwnerAddress    common.Address

	CORSAllowedOrigins []string
	DatabasePath       string
	LogLevel           string
}

func Default() Config {
	return Config{
		ListenHost: "0.0.0.0",
		ListenPort: 8380,
		LogLevel:   "info",
	}
}

type fileConfig struct {
	ListenHost         string   `toml:"listen_host"`
	ListenPort         int      `toml:"listen_port"`
	ChainID            uint64   `toml:"chain_id"`
	ContractAddress    string   `toml:"contract_address"`
	OwnerAddress       string   `toml:"owner_address"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	DatabasePath       string   `toml:"database_path"`
	LogLevel           string   `toml:"log_level"`
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. Key material never lives here; see
// package signer for the signing key sources.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, decodeErr := toml.DecodeFile(path, &raw)
	if decodeErr != nil {
		return fmt.Errorf("loading config file: %w", decodeErr)
	}

	if meta.IsDefined("listen_host") {
		cfg.ListenHost = strings.TrimSpace(raw.ListenHost)
	}
	if meta.IsDefined("listen_port") {
		cfg.ListenPort = raw.ListenPort
	}
	if meta.IsDefined("chain_id") {
		cfg.ChainID = raw.ChainID
	}
	if meta.IsDefined("contract_address") {
		address, err := parseAddress(raw.ContractAddress)
		if err != nil {
			return fmt.Errorf("contract_address: %w", err)
		}
		cfg.ContractAddress = address
	}
	if meta.IsDefined("owner_address") {
		address, err := parseAddress(raw.OwnerAddress)
		if err != nil {
			return fmt.Errorf("owner_address: %w", err)
		}
		cfg.OwnerAddress = address
	}
	if meta.IsDefined("cors_allowed_origins") {
		cfg.CORSAllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}
	if meta.IsDefined("database_path") {
		cfg.DatabasePath = strings.TrimSpace(raw.DatabasePath)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host, ok := os.LookupEnv("RAINCLOUD_LISTEN_HOST"); ok {
		cfg.ListenHost = strings.TrimSpace(host)
	}
	if port, ok := os.LookupEnv("RAINCLOUD_LISTEN_PORT"); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil {
			return fmt.Errorf("RAINCLOUD_LISTEN_PORT: %w", err)
		}
		cfg.ListenPort = parsed
	}
	if chainID, ok := os.LookupEnv("RAINCLOUD_CHAIN_ID"); ok {
		parsed, err := strconv.ParseUint(strings.TrimSpace(chainID), 10, 64)
		if err != nil {
			return fmt.Errorf("RAINCLOUD_CHAIN_ID: %w", err)
		}
		cfg.ChainID = parsed
	}
	if contract, ok := os.LookupEnv("RAINCLOUD_CONTRACT_ADDRESS"); ok {
		address, err := parseAddress(contract)
		if err != nil {
			return fmt.Errorf("RAINCLOUD_CONTRACT_ADDRESS: %w", err)
		}
		cfg.ContractAddress = address
	}
	if owner, ok := os.LookupEnv("RAINCLOUD_OWNER_ADDRESS"); ok {
		address, err := parseAddress(owner)
		if err != nil {
			return fmt.Errorf("RAINCLOUD_OWNER_ADDRESS: %w", err)
		}
		cfg.OwnerAddress = address
	}
	if origins, ok := os.LookupEnv("RAINCLOUD_CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSAllowedOrigins = normalizeOrigins(strings.Split(origins, ","))
	}
	if path, ok := os.LookupEnv("RAINCLOUD_DATABASE_PATH"); ok {
		cfg.DatabasePath = strings.TrimSpace(path)
	}
	if level, ok := os.LookupEnv("RAINCLOUD_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.TrimSpace(level)
	}
	return nil
}

// Validate checks the fields the service cannot run without.
func (cfg Config) Validate() error {
	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", cfg.ListenPort)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain_id must be set and nonzero")
	}
	if cfg.OwnerAddress == (common.Address{}) {
		return fmt.Errorf("owner_address must be set")
	}
	return nil
}

func (cfg Config) ListenAddr() string {
	return net.JoinHostPort(cfg.ListenHost, strconv.Itoa(cfg.ListenPort))
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", trimmed)
	}
	return common.HexToAddress(trimmed), nil
}

func normalizeOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
