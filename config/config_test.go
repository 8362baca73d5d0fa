package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
env: test
market:
  conditionId: "0xcond"
  tokenIdYes: "tok-yes"
  tokenIdNo: "tok-no"
strategy:
  gamma: 0.01
  baseSize: 10
  sizeEta: 0.05
  tickSize: 0.01
  refreshIntervalSec: 3
gateway:
  httpURL: "https://clob.example.com"
store:
  dsn: ":memory:"
log:
  level: info
  format: console
  outputs: [stdout]
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Market.TokenIDYes != "tok-yes" {
		t.Errorf("TokenIDYes = %q", cfg.Market.TokenIDYes)
	}
	if cfg.RefreshInterval() != 3*time.Second {
		t.Errorf("RefreshInterval() = %v, want 3s", cfg.RefreshInterval())
	}
	if cfg.Gateway.RestRate != 5 {
		t.Errorf("default RestRate = %v, want 5", cfg.Gateway.RestRate)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative gamma", `
market: {tokenIdYes: a, tokenIdNo: b}
strategy: {gamma: -0.5, baseSize: 10}
`},
		{"size below venue minimum", `
market: {tokenIdYes: a, tokenIdNo: b}
strategy: {gamma: 0.01, baseSize: 2}
`},
		{"negative eta", `
market: {tokenIdYes: a, tokenIdNo: b}
strategy: {gamma: 0.01, baseSize: 10, sizeEta: -1}
`},
		{"missing tokens", `
strategy: {gamma: 0.01, baseSize: 10}
`},
		{"same token both sides", `
market: {tokenIdYes: a, tokenIdNo: a}
strategy: {gamma: 0.01, baseSize: 10}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTempConfig(t, tt.yaml)); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestRefreshIntervalFloor(t *testing.T) {
	cfg := &Config{}
	cfg.Strategy.RefreshIntervalSec = 0.5
	if got := cfg.RefreshInterval(); got != 2*time.Second {
		t.Errorf("RefreshInterval() = %v, want 2s floor", got)
	}
}

func TestSkewSymmetry(t *testing.T) {
	cfg := &Config{}
	cfg.Strategy.Gamma = 0.01
	if got := cfg.Skew(10); got != 0.1 {
		t.Errorf("Skew(10) = %v, want 0.1", got)
	}
	if got := cfg.Skew(-10); got != -0.1 {
		t.Errorf("Skew(-10) = %v, want -0.1", got)
	}
	cfg.Strategy.Gamma = 0
	if got := cfg.Skew(100); got != 0 {
		t.Errorf("Skew with zero gamma = %v, want 0", got)
	}
}

func TestOrderSizeDecay(t *testing.T) {
	cfg := &Config{}
	cfg.Strategy.BaseSize = 20
	cfg.Strategy.SizeEta = 0.05

	if got := cfg.OrderSize(0); got != 20 {
		t.Errorf("OrderSize(0) = %v, want 20", got)
	}
	want := 20 * math.Exp(-0.05*10)
	if got := cfg.OrderSize(10); math.Abs(got-want) > 1e-9 {
		t.Errorf("OrderSize(10) = %v, want %v", got, want)
	}
	// decay is symmetric in |deltaQ|
	if cfg.OrderSize(10) != cfg.OrderSize(-10) {
		t.Error("OrderSize not symmetric in imbalance sign")
	}
	// floored at the venue minimum for huge imbalance
	if got := cfg.OrderSize(1000); got != MinOrderSize {
		t.Errorf("OrderSize(1000) = %v, want venue minimum %v", got, MinOrderSize)
	}
	// zero eta disables decay
	cfg.Strategy.SizeEta = 0
	if got := cfg.OrderSize(500); got != 20 {
		t.Errorf("OrderSize with eta=0 = %v, want 20", got)
	}
}

func TestApplyTunables(t *testing.T) {
	cfg := &Config{}
	cfg.Strategy.Gamma = 0.01
	cfg.Strategy.BaseSize = 10

	cfg.ApplyTunables(0.02, 15, 0.1)
	gamma, baseSize, sizeEta := cfg.Tunables()
	if gamma != 0.02 || baseSize != 15 || sizeEta != 0.1 {
		t.Errorf("Tunables() = %v, %v, %v", gamma, baseSize, sizeEta)
	}
	if got := cfg.Skew(10); got != 0.2 {
		t.Errorf("Skew after reload = %v, want 0.2", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PM_API_KEY", "env-key")
	t.Setenv("PM_GAMMA", "0.03")

	cfg, err := Load(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env override", cfg.Gateway.APIKey)
	}
	if cfg.Strategy.Gamma != 0.03 {
		t.Errorf("Gamma = %v, want 0.03 from env", cfg.Strategy.Gamma)
	}
}
