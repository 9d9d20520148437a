package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultParamsValid(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
}

func TestLoadParamsOverrides(t *testing.T) {
	path := writeParams(t, `
min_deposit: "25"
target_yield_bps: 8500
leverage: "3"
performance_fee_bps: 1500
redemption_fee_bps: 30
tvl_cap: "500000"
account_cooldown: 5m
timelock: 72h
whitelisted_strategies:
  - yield:lendle:usdt
  - yield:aave:usdc
`)

	p, err := LoadParams(path)
	if err != nil {
		t.Fatal(err)
	}

	if p.MinDeposit.String() != "25" {
		t.Errorf("min_deposit = %s, want 25", p.MinDeposit)
	}
	if p.TargetYieldBps != 8500 {
		t.Errorf("target_yield_bps = %d, want 8500", p.TargetYieldBps)
	}
	if p.Leverage.String() != "3" {
		t.Errorf("leverage = %s, want 3", p.Leverage)
	}
	if p.AccountCooldown != 5*time.Minute {
		t.Errorf("account_cooldown = %v, want 5m", p.AccountCooldown)
	}
	if p.Timelock != 72*time.Hour {
		t.Errorf("timelock = %v, want 72h", p.Timelock)
	}
	if len(p.WhitelistedStrategies) != 2 {
		t.Fatalf("whitelisted_strategies = %v", p.WhitelistedStrategies)
	}

	// Unset fields keep defaults.
	if p.GenesisShares.String() != "1000" {
		t.Errorf("genesis_shares = %s, want default 1000", p.GenesisShares)
	}
	if p.MinHoldTime != 24*time.Hour {
		t.Errorf("min_hold_time = %v, want default 24h", p.MinHoldTime)
	}
}

func TestLoadParamsRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad decimal":     `min_deposit: "not-a-number"`,
		"bad duration":    `timelock: "soon"`,
		"ratio too high":  `target_yield_bps: 10000`,
		"fee over cap":    `performance_fee_bps: 3500`,
		"negative buffer": `tvl_buffer_bps: -1`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeParams(t, body)
			if _, err := LoadParams(path); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("err = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestLoadParamsMissingFile(t *testing.T) {
	if _, err := LoadParams("/nonexistent/params.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OWNER_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %s, want 9090", cfg.Port)
	}
	if cfg.OwnerToken != "secret" {
		t.Errorf("owner token = %s, want secret", cfg.OwnerToken)
	}
}
