// Package config loads server configuration from the environment and the
// vault's economic parameters from a YAML file.
//
// Environment variables cover deployment wiring (port, database, cache,
// admin token); the YAML file covers the vault economics (ratios, fees,
// caps, time windows) so parameter changes don't require rebuilding the
// binary. Every parameter has a sane default and is validated before the
// engine starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = errors.New("config: invalid vault parameters")

// Config is the environment-driven server configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// OwnerToken authenticates the admin API surface. Empty disables the
	// admin routes entirely.
	OwnerToken string `env:"OWNER_TOKEN"`

	// ParamsFile points to the vault parameter YAML. Empty means defaults.
	ParamsFile string `env:"VAULT_PARAMS_FILE"`
}

// Load reads the environment configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// rawParams is the YAML shape. Decimal-valued fields are strings; yaml.v3
// does not honor encoding.TextUnmarshaler, so conversion happens in
// Resolve with proper validation instead of inside the decoder.
type rawParams struct {
	MinDeposit        string `yaml:"min_deposit"`
	GenesisShares     string `yaml:"genesis_shares"`
	TargetYieldBps    int64  `yaml:"target_yield_bps"`
	Leverage          string `yaml:"leverage"`
	PerformanceFeeBps int64  `yaml:"performance_fee_bps"`
	RedemptionFeeBps  int64  `yaml:"redemption_fee_bps"`

	OpeningCost string `yaml:"opening_cost"`
	CloseCost   string `yaml:"close_cost"`

	TVLCap            string `yaml:"tvl_cap"`
	TVLBufferBps      int64  `yaml:"tvl_buffer_bps"`
	MaxPriceChangeBps int64  `yaml:"max_price_change_bps"`

	AccountCooldown  string `yaml:"account_cooldown"`
	MinHoldTime      string `yaml:"min_hold_time"`
	Timelock         string `yaml:"timelock"`
	ProposalCooldown string `yaml:"proposal_cooldown"`

	ReserveMinBalance string `yaml:"reserve_min_balance"`

	WhitelistedStrategies []string `yaml:"whitelisted_strategies"`
}

// Params is the resolved vault parameter set.
type Params struct {
	MinDeposit        decimal.Decimal
	GenesisShares     decimal.Decimal
	TargetYieldBps    int64
	Leverage          decimal.Decimal
	PerformanceFeeBps int64
	RedemptionFeeBps  int64

	OpeningCost decimal.Decimal
	CloseCost   decimal.Decimal

	TVLCap            decimal.Decimal
	TVLBufferBps      int64
	MaxPriceChangeBps int64

	AccountCooldown  time.Duration
	MinHoldTime      time.Duration
	Timelock         time.Duration
	ProposalCooldown time.Duration

	ReserveMinBalance decimal.Decimal

	WhitelistedStrategies []string
}

// DefaultParams returns the built-in parameter set used when no YAML file
// is configured.
func DefaultParams() *Params {
	return &Params{
		MinDeposit:            decimal.NewFromInt(10),
		GenesisShares:         decimal.NewFromInt(1000),
		TargetYieldBps:        9000,
		Leverage:              decimal.NewFromInt(5),
		PerformanceFeeBps:     2000,
		RedemptionFeeBps:      50,
		OpeningCost:           decimal.NewFromFloat(0.5),
		CloseCost:             decimal.NewFromFloat(0.5),
		TVLCap:                decimal.NewFromInt(1_000_000),
		TVLBufferBps:          100,
		MaxPriceChangeBps:     500,
		AccountCooldown:       time.Minute,
		MinHoldTime:           24 * time.Hour,
		Timelock:              48 * time.Hour,
		ProposalCooldown:      24 * time.Hour,
		ReserveMinBalance:     decimal.NewFromInt(100),
		WhitelistedStrategies: []string{"yield:sim:usdt"},
	}
}

// LoadParams reads and validates the parameter YAML at path. Fields left
// out of the file keep their defaults.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read params file: %w", err)
	}

	var raw rawParams
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse params file: %w", err)
	}

	return resolve(&raw)
}

func resolve(raw *rawParams) (*Params, error) {
	p := DefaultParams()

	var err error
	if err = overrideDecimal(&p.MinDeposit, raw.MinDeposit, "min_deposit"); err != nil {
		return nil, err
	}
	if err = overrideDecimal(&p.GenesisShares, raw.GenesisShares, "genesis_shares"); err != nil {
		return nil, err
	}
	if err = overrideDecimal(&p.Leverage, raw.Leverage, "leverage"); err != nil {
		return nil, err
	}
	if err = overrideDecimal(&p.OpeningCost, raw.OpeningCost, "opening_cost"); err != nil {
		return nil, err
	}
	if err = overrideDecimal(&p.CloseCost, raw.CloseCost, "close_cost"); err != nil {
		return nil, err
	}
	if err = overrideDecimal(&p.TVLCap, raw.TVLCap, "tvl_cap"); err != nil {
		return nil, err
	}
	if err = overrideDecimal(&p.ReserveMinBalance, raw.ReserveMinBalance, "reserve_min_balance"); err != nil {
		return nil, err
	}

	if err = overrideDuration(&p.AccountCooldown, raw.AccountCooldown, "account_cooldown"); err != nil {
		return nil, err
	}
	if err = overrideDuration(&p.MinHoldTime, raw.MinHoldTime, "min_hold_time"); err != nil {
		return nil, err
	}
	if err = overrideDuration(&p.Timelock, raw.Timelock, "timelock"); err != nil {
		return nil, err
	}
	if err = overrideDuration(&p.ProposalCooldown, raw.ProposalCooldown, "proposal_cooldown"); err != nil {
		return nil, err
	}

	if raw.TargetYieldBps != 0 {
		p.TargetYieldBps = raw.TargetYieldBps
	}
	if raw.PerformanceFeeBps != 0 {
		p.PerformanceFeeBps = raw.PerformanceFeeBps
	}
	if raw.RedemptionFeeBps != 0 {
		p.RedemptionFeeBps = raw.RedemptionFeeBps
	}
	if raw.TVLBufferBps != 0 {
		p.TVLBufferBps = raw.TVLBufferBps
	}
	if raw.MaxPriceChangeBps != 0 {
		p.MaxPriceChangeBps = raw.MaxPriceChangeBps
	}
	if len(raw.WhitelistedStrategies) > 0 {
		p.WhitelistedStrategies = raw.WhitelistedStrategies
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the parameter set for internally inconsistent values.
func (p *Params) Validate() error {
	switch {
	case p.MinDeposit.LessThanOrEqual(decimal.Zero):
		return fmt.Errorf("%w: min_deposit must be positive", ErrInvalidParams)
	case p.GenesisShares.LessThanOrEqual(decimal.Zero):
		return fmt.Errorf("%w: genesis_shares must be positive", ErrInvalidParams)
	case p.TargetYieldBps <= 0 || p.TargetYieldBps >= 10000:
		return fmt.Errorf("%w: target_yield_bps must be strictly between 0 and 10000", ErrInvalidParams)
	case p.Leverage.LessThanOrEqual(decimal.Zero):
		return fmt.Errorf("%w: leverage must be positive", ErrInvalidParams)
	case p.PerformanceFeeBps < 0 || p.PerformanceFeeBps > 3000:
		return fmt.Errorf("%w: performance_fee_bps must be within [0, 3000]", ErrInvalidParams)
	case p.RedemptionFeeBps < 0 || p.RedemptionFeeBps >= 10000:
		return fmt.Errorf("%w: redemption_fee_bps must be within [0, 10000)", ErrInvalidParams)
	case p.OpeningCost.IsNegative() || p.CloseCost.IsNegative():
		return fmt.Errorf("%w: venue costs must not be negative", ErrInvalidParams)
	case p.TVLCap.LessThanOrEqual(decimal.Zero):
		return fmt.Errorf("%w: tvl_cap must be positive", ErrInvalidParams)
	case p.TVLBufferBps < 0 || p.TVLBufferBps >= 10000:
		return fmt.Errorf("%w: tvl_buffer_bps must be within [0, 10000)", ErrInvalidParams)
	case p.MaxPriceChangeBps <= 0:
		return fmt.Errorf("%w: max_price_change_bps must be positive", ErrInvalidParams)
	case p.AccountCooldown < 0 || p.MinHoldTime < 0 || p.Timelock < 0 || p.ProposalCooldown < 0:
		return fmt.Errorf("%w: time windows must not be negative", ErrInvalidParams)
	case p.ReserveMinBalance.IsNegative():
		return fmt.Errorf("%w: reserve_min_balance must not be negative", ErrInvalidParams)
	case len(p.WhitelistedStrategies) == 0:
		return fmt.Errorf("%w: at least one whitelisted strategy is required", ErrInvalidParams)
	}
	return nil
}

func overrideDecimal(dst *decimal.Decimal, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, field, err)
	}
	*dst = d
	return nil
}

func overrideDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, field, err)
	}
	*dst = d
	return nil
}
