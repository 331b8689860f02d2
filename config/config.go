package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv is consulted when broker.token is not set in the file.
const TokenEnv = "TINVEST_TOKEN"

// DefaultDiscountPercent is applied to allocation entries that set neither
// a discount nor a fixed price.
const DefaultDiscountPercent = 3.0

// Config is the complete run configuration.
type Config struct {
	Broker      BrokerConfig  `json:"broker" yaml:"broker"`
	Allocations []Allocation  `json:"allocations" yaml:"allocations"`
	Confirm     ConfirmConfig `json:"confirm" yaml:"confirm"`
}

// BrokerConfig selects the trading environment and account.
type BrokerConfig struct {
	// Token may be left empty in the file and supplied via TINVEST_TOKEN.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	Env   string `json:"env" yaml:"env"` // "production" or "sandbox"
	// AccountID pins the run to one account; empty means the first
	// account the token can see.
	AccountID string `json:"account_id,omitempty" yaml:"account_id,omitempty"`
}

// Allocation is one row of the portfolio table: spend Amount on Ticker.
type Allocation struct {
	Ticker string  `json:"ticker" yaml:"ticker"`
	Amount float64 `json:"amount" yaml:"amount"`

	// DiscountPercent shifts the limit price below the market quote.
	// Nil means the default discount; an explicit 0 means "limit at the
	// current quote".
	DiscountPercent *float64 `json:"discount_percent,omitempty" yaml:"discount_percent,omitempty"`

	// FixedPrice, when set, is used as the limit price verbatim and the
	// discount is ignored.
	FixedPrice float64 `json:"fixed_price,omitempty" yaml:"fixed_price,omitempty"`
}

// Discount returns the effective discount percent for the entry.
func (a Allocation) Discount() float64 {
	if a.DiscountPercent != nil {
		return *a.DiscountPercent
	}
	return DefaultDiscountPercent
}

// ConfirmConfig bounds the post-market-order execution-price poll.
type ConfirmConfig struct {
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
	Delay       string `json:"delay" yaml:"delay"` // e.g. "1s", "500ms"
}

// ParseDelay converts the delay string to a time.Duration.
func (c ConfirmConfig) ParseDelay() (time.Duration, error) {
	if c.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Delay)
}

// LoadFromFile loads configuration from a YAML or JSON file, fills
// defaults, and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON.
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.Broker.Token == "" {
		c.Broker.Token = os.Getenv(TokenEnv)
	}
	if c.Broker.Env == "" {
		c.Broker.Env = "production"
	}
	if c.Confirm.MaxAttempts == 0 {
		c.Confirm.MaxAttempts = 5
	}
	if c.Confirm.Delay == "" {
		c.Confirm.Delay = "1s"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker.Token == "" {
		return fmt.Errorf("broker.token is required (or set %s)", TokenEnv)
	}
	if c.Broker.Env != "production" && c.Broker.Env != "sandbox" {
		return fmt.Errorf("broker.env must be 'production' or 'sandbox'")
	}
	for i, a := range c.Allocations {
		if a.Ticker == "" {
			return fmt.Errorf("allocations[%d].ticker is required", i)
		}
		if a.Amount <= 0 {
			return fmt.Errorf("allocations[%d].amount must be positive (%s)", i, a.Ticker)
		}
		if a.DiscountPercent != nil && *a.DiscountPercent < 0 {
			return fmt.Errorf("allocations[%d].discount_percent must not be negative (%s)", i, a.Ticker)
		}
		if a.FixedPrice < 0 {
			return fmt.Errorf("allocations[%d].fixed_price must not be negative (%s)", i, a.Ticker)
		}
	}
	if c.Confirm.MaxAttempts < 1 {
		return fmt.Errorf("confirm.max_attempts must be at least 1")
	}
	if _, err := c.Confirm.ParseDelay(); err != nil {
		return fmt.Errorf("confirm.delay: %w", err)
	}
	return nil
}

// Default returns the built-in configuration: the standing portfolio
// table, 3000 RUB per ticker per run.
func Default() *Config {
	cfg := &Config{
		Allocations: []Allocation{
			{Ticker: "TRUR", Amount: 3000}, // ETF
			{Ticker: "TMOS", Amount: 3000}, // ETF
			{Ticker: "TDIV", Amount: 3000}, // ETF
			{Ticker: "TGLD", Amount: 3000}, // ETF
			{Ticker: "SBER", Amount: 3000}, // share
			{Ticker: "MOEX", Amount: 3000}, // share
			{Ticker: "SU26248RMFS3", Amount: 3000}, // OFZ bond
		},
	}
	cfg.fillDefaults()
	return cfg
}
