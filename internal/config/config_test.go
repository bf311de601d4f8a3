package config

import (
	"testing"
	"time"

	"darkbet-backend/internal/market"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "0x00000000000000000000000000000000000000aa")
	cfg := Load()

	if cfg.ServerPort != "8080" || cfg.RevealTimeout != time.Hour || cfg.FeeBps != 1000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	def := market.DefaultParams()
	if p.MinBet.Cmp(def.MinBet) != 0 || p.PriceConstant.Cmp(def.PriceConstant) != 0 || p.MinWindow != def.MinWindow {
		t.Errorf("params = %+v, want %+v", p, def)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv("REVEAL_TIMEOUT", "90m")
	t.Setenv("FEE_BPS", "250")
	t.Setenv("MIN_BET", "0.5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RESOLUTION_INTERVAL", "not-a-duration")

	cfg := Load()
	if cfg.RevealTimeout != 90*time.Minute || cfg.FeeBps != 250 {
		t.Errorf("overrides ignored: %+v", cfg)
	}
	if cfg.ResolutionInterval != time.Minute {
		t.Errorf("bad duration should fall back to default, got %s", cfg.ResolutionInterval)
	}
	if b := cfg.Brokers(); len(b) != 2 || b[1] != "kafka-2:9092" {
		t.Errorf("brokers = %v", b)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if market.FormatEther(p.MinBet) != "0.5" || p.FeeBps != 250 {
		t.Errorf("params = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]map[string]string{
		"no identity":   {},
		"bad owner":     {"OWNER_ADDRESS": "0x123"},
		"fee too large": {"OWNER_ADDRESS": "0x00000000000000000000000000000000000000aa", "FEE_BPS": "20000"},
		"bad min bet":   {"OWNER_ADDRESS": "0x00000000000000000000000000000000000000aa", "MIN_BET": "lots"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("OWNER_ADDRESS", "")
			t.Setenv("PRIVATE_KEY", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if err := Load().Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
