package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"polymarket-maker-go/infrastructure/logger"
)

// Venue constants for Polymarket's CLOB.
const (
	// MinOrderSize is the venue minimum order size in tokens.
	MinOrderSize = 5.0
	// DefaultTickSize is the minimum price increment.
	DefaultTickSize = 0.01
	// minRefreshInterval is the enforced floor for the quote loop.
	minRefreshInterval = 2 * time.Second
)

// Config holds the quoter's runtime configuration. The strategy tunables
// (gamma, base size, eta) may be replaced live by the config watcher; all
// other fields are fixed for the session.
type Config struct {
	Env      string         `yaml:"env"`
	Market   MarketConfig   `yaml:"market"`
	Strategy StrategyConfig `yaml:"strategy"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Store    StoreConfig    `yaml:"store"`
	Log      logger.Config  `yaml:"log"`

	mu sync.RWMutex
}

// MarketConfig pins the session to one binary market.
type MarketConfig struct {
	ConditionID string    `yaml:"conditionId"`
	TokenIDYes  string    `yaml:"tokenIdYes"`
	TokenIDNo   string    `yaml:"tokenIdNo"`
	Expiry      time.Time `yaml:"expiry"`
}

// StrategyConfig holds the quoting hyperparameters.
type StrategyConfig struct {
	Gamma              float64 `yaml:"gamma"`              // 库存偏移强度：每单位净库存的价格调整
	BaseSize           float64 `yaml:"baseSize"`           // 基础下单数量（token）
	SizeEta            float64 `yaml:"sizeEta"`            // 下单数量随库存的衰减速率
	TickSize           float64 `yaml:"tickSize"`           // 最小价格增量
	RefreshIntervalSec float64 `yaml:"refreshIntervalSec"` // 报价刷新周期（秒）
	StatusIntervalSec  float64 `yaml:"statusIntervalSec"`  // 状态输出周期（秒）
}

// GatewayConfig points at the CLOB endpoints and credentials.
type GatewayConfig struct {
	HTTPURL        string  `yaml:"httpURL"`
	WSURL          string  `yaml:"wsURL"`
	APIKey         string  `yaml:"apiKey"`
	APISecret      string  `yaml:"apiSecret"`
	APIPassphrase  string  `yaml:"apiPassphrase"`
	RestRate       float64 `yaml:"restRate"`  // REST 限流：每秒令牌数
	RestBurst      int     `yaml:"restBurst"` // REST 限流：最大突发令牌数
	WSReconnectSec int     `yaml:"wsReconnectSec"`
}

// StoreConfig controls session persistence.
type StoreConfig struct {
	DSN string `yaml:"dsn"` // sqlite file path, or ":memory:"
}

// Load reads YAML config from path, overlays .env secrets, applies defaults
// and validates. Invalid configuration is fatal at startup, never at runtime.
func Load(path string) (*Config, error) {
	// .env overlay for secrets; silently absent in production deployments.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PM_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("PM_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	if v := os.Getenv("PM_API_PASSPHRASE"); v != "" {
		cfg.Gateway.APIPassphrase = v
	}
	if v := os.Getenv("PM_TOKEN_ID_YES"); v != "" {
		cfg.Market.TokenIDYes = v
	}
	if v := os.Getenv("PM_TOKEN_ID_NO"); v != "" {
		cfg.Market.TokenIDNo = v
	}
	if v := os.Getenv("PM_CONDITION_ID"); v != "" {
		cfg.Market.ConditionID = v
	}
	if v := os.Getenv("PM_GAMMA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Strategy.Gamma = f
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Gateway.HTTPURL == "" {
		cfg.Gateway.HTTPURL = "https://clob.polymarket.com"
	}
	if cfg.Gateway.WSURL == "" {
		cfg.Gateway.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws"
	}
	if cfg.Gateway.RestRate <= 0 {
		cfg.Gateway.RestRate = 5
	}
	if cfg.Gateway.RestBurst <= 0 {
		cfg.Gateway.RestBurst = 10
	}
	if cfg.Gateway.WSReconnectSec <= 0 {
		cfg.Gateway.WSReconnectSec = 10
	}
	if cfg.Strategy.BaseSize == 0 {
		cfg.Strategy.BaseSize = MinOrderSize
	}
	if cfg.Strategy.TickSize <= 0 {
		cfg.Strategy.TickSize = DefaultTickSize
	}
	if cfg.Strategy.RefreshIntervalSec <= 0 {
		cfg.Strategy.RefreshIntervalSec = 3
	}
	if cfg.Strategy.StatusIntervalSec <= 0 {
		cfg.Strategy.StatusIntervalSec = 10
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "quoter.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}

// Validate ensures the configuration is usable. Called at startup and on
// every hot reload; a reload that fails validation is rejected wholesale.
func Validate(cfg *Config) error {
	if cfg.Market.TokenIDYes == "" || cfg.Market.TokenIDNo == "" {
		return errors.New("market.tokenIdYes/tokenIdNo is required (or PM_TOKEN_ID_* env)")
	}
	if cfg.Market.TokenIDYes == cfg.Market.TokenIDNo {
		return errors.New("market.tokenIdYes and tokenIdNo must differ")
	}
	if cfg.Strategy.Gamma < 0 {
		return fmt.Errorf("strategy.gamma must be >= 0, got %v", cfg.Strategy.Gamma)
	}
	if cfg.Strategy.BaseSize < MinOrderSize {
		return fmt.Errorf("strategy.baseSize must be >= venue minimum %v, got %v", MinOrderSize, cfg.Strategy.BaseSize)
	}
	if cfg.Strategy.SizeEta < 0 {
		return fmt.Errorf("strategy.sizeEta must be >= 0, got %v", cfg.Strategy.SizeEta)
	}
	if cfg.Strategy.TickSize <= 0 || cfg.Strategy.TickSize >= 0.5 {
		return fmt.Errorf("strategy.tickSize out of range: %v", cfg.Strategy.TickSize)
	}
	return nil
}

// RefreshInterval returns the quote loop period with the 2s floor enforced.
func (c *Config) RefreshInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := time.Duration(c.Strategy.RefreshIntervalSec * float64(time.Second))
	if d < minRefreshInterval {
		return minRefreshInterval
	}
	return d
}

// StatusInterval returns the periodic status cadence (≥10s).
func (c *Config) StatusInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := time.Duration(c.Strategy.StatusIntervalSec * float64(time.Second))
	if d < 10*time.Second {
		return 10 * time.Second
	}
	return d
}

// Skew computes the price adjustment for the YES side given the net
// imbalance deltaQ; the NO side uses the negation. Long YES lowers the YES
// bid and raises the NO bid, discouraging further accumulation.
func (c *Config) Skew(deltaQ float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deltaQ * c.Strategy.Gamma
}

// OrderSize decays the base size exponentially with inventory imbalance,
// floored at the venue minimum.
func (c *Config) OrderSize(deltaQ float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Strategy.SizeEta <= 0 {
		return c.Strategy.BaseSize
	}
	size := c.Strategy.BaseSize * math.Exp(-c.Strategy.SizeEta*math.Abs(deltaQ))
	if size < MinOrderSize {
		return MinOrderSize
	}
	return size
}

// Tick returns the configured price increment.
func (c *Config) Tick() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Strategy.TickSize
}

// HasExpiry reports whether the market carries a known expiry time.
func (c *Config) HasExpiry() bool {
	return !c.Market.Expiry.IsZero()
}

// TimeUntilExpiry returns the remaining session time; negative once expired.
func (c *Config) TimeUntilExpiry() time.Duration {
	return time.Until(c.Market.Expiry)
}

// ApplyTunables swaps the live strategy tunables; called by the watcher
// after a successful reload.
func (c *Config) ApplyTunables(gamma, baseSize, sizeEta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Strategy.Gamma = gamma
	c.Strategy.BaseSize = baseSize
	c.Strategy.SizeEta = sizeEta
}

// Tunables returns the current live strategy tunables.
func (c *Config) Tunables() (gamma, baseSize, sizeEta float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Strategy.Gamma, c.Strategy.BaseSize, c.Strategy.SizeEta
}
