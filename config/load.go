package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string          `yaml:"env"`
	Gateway     GatewayConfig   `yaml:"gateway"`
	Instruments []string        `yaml:"instruments"`
	Caps        CapsConfig      `yaml:"caps"`
	Strategy    StrategyConfig  `yaml:"strategy"`
	Session     SessionConfig   `yaml:"session"`
	Loop        LoopConfig      `yaml:"loop"`
	Dashboard   DashboardConfig `yaml:"dashboard"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Log         LogConfig       `yaml:"log"`
}

type GatewayConfig struct {
	BaseURL   string  `yaml:"baseURL"`
	APIKey    string  `yaml:"apiKey"`
	TimeoutMs int     `yaml:"timeoutMs"` // 单次 REST 调用超时
	RestRate  float64 `yaml:"restRate"`  // 限流：每秒令牌数
	RestBurst int     `yaml:"restBurst"` // 限流：最大突发
}

// CapsConfig 仓位与下单上限，进程内不可变。
type CapsConfig struct {
	MaxOrderSize    int     `yaml:"maxOrderSize"`    // 单侧基础报单量
	SafetyNetCap    int     `yaml:"safetyNetCap"`    // 组合净仓上限
	SafetyGrossCap  int     `yaml:"safetyGrossCap"`  // 组合总仓上限
	MaxSingleOrder  int     `yaml:"maxSingleOrder"`  // 交易所单笔上限（超出需拆单）
	DangerThreshold int     `yaml:"dangerThreshold"` // 单品种强平阈值
	TargetRatio     float64 `yaml:"targetRatio"`     // trim 退出目标（占 cap 比例）
}

// StrategyConfig 报价系数；可经 Watcher 热更新。
type StrategyConfig struct {
	BaseHalfSpread     float64 `yaml:"baseHalfSpread"`
	PushCoeff          float64 `yaml:"pushCoeff"`
	PullCoeff          float64 `yaml:"pullCoeff"`
	DefensivePull      float64 `yaml:"defensivePull"`
	MinMarketSpread    float64 `yaml:"minMarketSpread"`
	VolCap             float64 `yaml:"volCap"`             // 波动加宽上限
	HistoryLen         int     `yaml:"historyLen"`         // 中间价滚动窗口长度
	ConcentrationRatio float64 `yaml:"concentrationRatio"` // |仓位| 超过 netCap 的该比例后报单量降为 1/3
	CrushOffset        float64 `yaml:"crushOffset"`        // 强平穿价偏移
	TrimOffset         float64 `yaml:"trimOffset"`         // trim 穿价偏移
}

// SessionConfig 开收盘边界窗口（以 tick mod Modulo 计）。
type SessionConfig struct {
	Modulo      int `yaml:"modulo"`
	CrushClose  int `yaml:"crushClose"`  // sec >= CrushClose 触发强平窗口
	CrushOpen   int `yaml:"crushOpen"`   // sec < CrushOpen 触发强平窗口
	ReduceClose int `yaml:"reduceClose"` // sec >= ReduceClose 触发减仓窗口
	ReduceOpen  int `yaml:"reduceOpen"`  // sec < ReduceOpen 触发减仓窗口
}

type LoopConfig struct {
	TickIntervalMs    int `yaml:"tickIntervalMs"`
	InstrumentDelayMs int `yaml:"instrumentDelayMs"`
	TrimPollMs        int `yaml:"trimPollMs"`
	ChunkDelayMs      int `yaml:"chunkDelayMs"`
	IdleRetryMs       int `yaml:"idleRetryMs"` // 场次未激活时的重试间隔
}

type DashboardConfig struct {
	Addr           string `yaml:"addr"`
	PushIntervalMs int    `yaml:"pushIntervalMs"`
	LogBuffer      int    `yaml:"logBuffer"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig 与 infrastructure/logger 的配置对应。
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	ErrorFile string `yaml:"errorFile"`
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("RIT_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("RIT_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Caps.TargetRatio <= 0 {
		cfg.Caps.TargetRatio = 0.30
	}
	if cfg.Strategy.VolCap <= 0 {
		cfg.Strategy.VolCap = 0.06
	}
	if cfg.Strategy.HistoryLen <= 0 {
		cfg.Strategy.HistoryLen = 10
	}
	if cfg.Strategy.ConcentrationRatio <= 0 {
		cfg.Strategy.ConcentrationRatio = 0.65
	}
	if cfg.Session.Modulo <= 0 {
		cfg.Session.Modulo = 60
	}
	if cfg.Loop.TickIntervalMs <= 0 {
		cfg.Loop.TickIntervalMs = 130
	}
	if cfg.Loop.InstrumentDelayMs <= 0 {
		cfg.Loop.InstrumentDelayMs = 100
	}
	if cfg.Loop.TrimPollMs <= 0 {
		cfg.Loop.TrimPollMs = 500
	}
	if cfg.Loop.ChunkDelayMs <= 0 {
		cfg.Loop.ChunkDelayMs = 50
	}
	if cfg.Loop.IdleRetryMs <= 0 {
		cfg.Loop.IdleRetryMs = 1000
	}
	if cfg.Gateway.TimeoutMs <= 0 {
		cfg.Gateway.TimeoutMs = 500
	}
	if cfg.Gateway.RestRate <= 0 {
		cfg.Gateway.RestRate = 20
	}
	if cfg.Gateway.RestBurst <= 0 {
		cfg.Gateway.RestBurst = 40
	}
	if cfg.Dashboard.PushIntervalMs <= 0 {
		cfg.Dashboard.PushIntervalMs = 200
	}
	if cfg.Dashboard.LogBuffer <= 0 {
		cfg.Dashboard.LogBuffer = 512
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate ensures required fields are present and limits are coherent.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if cfg.Gateway.APIKey == "" {
		return errors.New("gateway.apiKey is required (or RIT_API_KEY)")
	}
	if len(cfg.Instruments) == 0 {
		return errors.New("instruments list is required")
	}
	if cfg.Caps.MaxOrderSize <= 0 {
		return errors.New("caps.maxOrderSize must be > 0")
	}
	if cfg.Caps.SafetyNetCap <= 0 {
		return errors.New("caps.safetyNetCap must be > 0")
	}
	if cfg.Caps.SafetyGrossCap <= 0 {
		return errors.New("caps.safetyGrossCap must be > 0")
	}
	if cfg.Caps.MaxSingleOrder <= 0 {
		return errors.New("caps.maxSingleOrder must be > 0")
	}
	if cfg.Caps.DangerThreshold <= 0 {
		return errors.New("caps.dangerThreshold must be > 0")
	}
	if cfg.Caps.TargetRatio <= 0 || cfg.Caps.TargetRatio >= 1 {
		return fmt.Errorf("caps.targetRatio must be in (0,1), got %v", cfg.Caps.TargetRatio)
	}
	if err := ValidateStrategy(cfg.Strategy); err != nil {
		return err
	}
	s := cfg.Session
	if s.CrushClose <= 0 || s.CrushClose >= s.Modulo {
		return fmt.Errorf("session.crushClose must be in (0,%d)", s.Modulo)
	}
	if s.ReduceClose <= 0 || s.ReduceClose > s.CrushClose {
		return errors.New("session.reduceClose must be > 0 and <= crushClose")
	}
	if s.CrushOpen < 0 || s.ReduceOpen < s.CrushOpen {
		return errors.New("session.reduceOpen must be >= crushOpen >= 0")
	}
	return nil
}

// ValidateStrategy 校验可热更新的策略系数。
func ValidateStrategy(s StrategyConfig) error {
	if s.BaseHalfSpread <= 0 {
		return errors.New("strategy.baseHalfSpread must be > 0")
	}
	if s.PushCoeff < 0 || s.PullCoeff < 0 || s.DefensivePull < 0 {
		return errors.New("strategy coefficients must be >= 0")
	}
	if s.MinMarketSpread <= 0 {
		return errors.New("strategy.minMarketSpread must be > 0")
	}
	if s.CrushOffset <= 0 || s.TrimOffset <= 0 {
		return errors.New("strategy.crushOffset/trimOffset must be > 0")
	}
	if s.ConcentrationRatio <= 0 || s.ConcentrationRatio >= 1 {
		return fmt.Errorf("strategy.concentrationRatio must be in (0,1), got %v", s.ConcentrationRatio)
	}
	return nil
}
