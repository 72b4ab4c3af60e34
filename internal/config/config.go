// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Venue describes connectivity parameters for one exchange.
type Venue struct {
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	BaseURL      string `yaml:"base_url"`
	RecvWindowMs int    `yaml:"recv_window_ms"`
}

// Trade groups the per-run trade parameters.
type Trade struct {
	Symbol          string  `yaml:"symbol"`
	USDTAmount      float64 `yaml:"usdt_amount"`
	BybitLeverage   int     `yaml:"bybit_leverage"`
	BinanceLeverage int     `yaml:"binance_leverage"`
	BookDepth       int     `yaml:"book_depth"`
	DryRun          bool    `yaml:"dry_run"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App   `yaml:"app"`
	Bybit   Venue `yaml:"bybit"`
	Binance Venue `yaml:"binance"`
	Trade   Trade `yaml:"trade"`
}

// Default returns the baseline configuration a fresh checkout runs with.
func Default() *Config {
	return &Config{
		App: App{
			Name:        "fundarb",
			Env:         "dev",
			MetricsAddr: ":9110",
			LogLevel:    "info",
		},
		Trade: Trade{
			Symbol:          "ALPACA/USDT:USDT",
			USDTAmount:      50,
			BybitLeverage:   5,
			BinanceLeverage: 5,
			BookDepth:       20,
			DryRun:          true,
		},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config. Credentials are
// only ever sourced from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SYMBOL"); v != "" {
		c.Trade.Symbol = v
	}
	if v := os.Getenv("USDT_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trade.USDTAmount = f
		}
	}
	if v := os.Getenv("BYBIT_LEVERAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trade.BybitLeverage = n
		}
	}
	if v := os.Getenv("BINANCE_LEVERAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trade.BinanceLeverage = n
		}
	}
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		c.Bybit.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		c.Bybit.APISecret = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
}
