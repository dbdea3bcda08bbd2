package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"airfarm/internal/types"
)

var (
	// ErrMissingRequired indicates that one or more required options are absent.
	ErrMissingRequired = errors.New("missing required configuration")
	// ErrInvalidOption indicates that an option is present but unusable.
	ErrInvalidOption = errors.New("invalid configuration option")
)

// Database holds the state store settings.
type Database struct {
	Type         types.DBType
	Path         string // sqlite file path
	URL          string // postgres connection string
	PoolMaxConns string
}

// Chain holds the test blockchain settings.
type Chain struct {
	RPCURLs []string
	ChainID int64
}

// API holds endpoint and credential for one HTTP platform.
type API struct {
	URL string
	Key string
}

// Config holds every option the process recognizes. All values come from the
// environment; the optional pacing file is layered on top by LoadPacing.
type Config struct {
	MasterPassword string
	DataDir        string

	Database  Database
	Chain     Chain
	Dex       API
	Market    API
	Dashboard API

	NumWallets       int
	RunIntervalHours int
	CallTimeout      time.Duration
	LogLevel         string

	Pacing Pacing
}

// WalletFile returns the path of the encrypted wallet collection file.
func (c *Config) WalletFile() string {
	return filepath.Join(c.DataDir, "wallets.enc")
}

// Load reads configuration from environment variables and validates it.
// Every missing or invalid option is reported in a single error.
func Load() (*Config, error) {
	cfg := &Config{
		MasterPassword: os.Getenv("MASTER_PASSWORD"),
		DataDir:        getEnv("DATA_DIR", "data"),
		Database: Database{
			Type:         types.DBType(getEnv("DB_TYPE", string(types.SQLite))),
			Path:         os.Getenv("DATABASE_PATH"),
			URL:          os.Getenv("DATABASE_URL"),
			PoolMaxConns: os.Getenv("DB_POOL_MAX_CONNS"),
		},
		Dex: API{
			URL: getEnv("DEX_API_URL", "https://api.dex.example"),
			Key: os.Getenv("DEX_API_KEY"),
		},
		Market: API{
			URL: getEnv("MARKET_API_URL", "https://api.market.example"),
			Key: os.Getenv("MARKET_API_KEY"),
		},
		Dashboard: API{
			URL: os.Getenv("DASHBOARD_URL"),
			Key: os.Getenv("DASHBOARD_API_KEY"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pacing:   DefaultPacing(),
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "airfarm.db")
	}

	var problems []string

	if cfg.MasterPassword == "" {
		problems = append(problems, "MASTER_PASSWORD is required")
	}

	rpcs := getEnv("CHAIN_RPC_URLS", "https://rpc.testnet.example")
	for _, u := range strings.Split(rpcs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.Chain.RPCURLs = append(cfg.Chain.RPCURLs, u)
		}
	}
	if len(cfg.Chain.RPCURLs) == 0 {
		problems = append(problems, "CHAIN_RPC_URLS must list at least one RPC endpoint")
	}

	var err error
	if cfg.Chain.ChainID, err = parseInt64Env("CHAIN_ID", 1234); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.NumWallets, err = parseIntEnv("NUM_WALLETS", 5); err != nil {
		problems = append(problems, err.Error())
	} else if cfg.NumWallets < 1 {
		problems = append(problems, "NUM_WALLETS must be at least 1")
	}
	if cfg.RunIntervalHours, err = parseIntEnv("RUN_INTERVAL_HOURS", 24); err != nil {
		problems = append(problems, err.Error())
	} else if cfg.RunIntervalHours < 1 {
		problems = append(problems, "RUN_INTERVAL_HOURS must be at least 1")
	}

	timeoutSecs, err := parseIntEnv("CALL_TIMEOUT_SECONDS", 60)
	switch {
	case err != nil:
		problems = append(problems, err.Error())
	case timeoutSecs < 1:
		problems = append(problems, "CALL_TIMEOUT_SECONDS must be at least 1")
	default:
		cfg.CallTimeout = time.Duration(timeoutSecs) * time.Second
	}

	switch cfg.Database.Type {
	case types.SQLite, types.None:
	case types.Postgres:
		if cfg.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required when DB_TYPE=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("DB_TYPE %q is not one of sqlite, postgres, none", cfg.Database.Type))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(problems, "; "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidOption, key, v)
	}
	return n, nil
}

func parseInt64Env(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidOption, key, v)
	}
	return n, nil
}
