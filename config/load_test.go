package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
env: sim
gateway:
  baseURL: http://localhost:9999/v1
  apiKey: test-key
instruments: [WNTR, SMMR]
caps:
  maxOrderSize: 7200
  safetyNetCap: 22600
  safetyGrossCap: 41800
  maxSingleOrder: 10000
  dangerThreshold: 20000
strategy:
  baseHalfSpread: 0.01
  pushCoeff: 0.04
  pullCoeff: 0.02
  defensivePull: 0.5
  minMarketSpread: 0.02
  crushOffset: 0.05
  trimOffset: 0.05
session:
  crushClose: 58
  crushOpen: 2
  reduceClose: 52
  reduceOpen: 3
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"WNTR", "SMMR"}, cfg.Instruments)
	assert.Equal(t, 7200, cfg.Caps.MaxOrderSize)

	// 未给出的字段取默认值
	assert.Equal(t, 0.30, cfg.Caps.TargetRatio)
	assert.Equal(t, 0.06, cfg.Strategy.VolCap)
	assert.Equal(t, 10, cfg.Strategy.HistoryLen)
	assert.Equal(t, 0.65, cfg.Strategy.ConcentrationRatio)
	assert.Equal(t, 60, cfg.Session.Modulo)
	assert.Equal(t, 130, cfg.Loop.TickIntervalMs)
	assert.Equal(t, 500, cfg.Loop.TrimPollMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing env", "gateway: {baseURL: x, apiKey: y}", "env is required"},
		{"missing baseURL", "env: sim", "gateway.baseURL is required"},
		{
			"missing api key",
			"env: sim\ngateway: {baseURL: http://x}\n",
			"gateway.apiKey is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "env: [unclosed"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RIT_API_KEY", "env-key")
	t.Setenv("RIT_BASE_URL", "http://env-host:9999/v1")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "http://env-host:9999/v1", cfg.Gateway.BaseURL)
}

func TestValidateSessionWindows(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Session.CrushClose = 60
	assert.Error(t, Validate(cfg), "crushClose must stay inside the modulo")

	cfg, _ = Load(writeConfig(t, minimalYAML))
	cfg.Session.ReduceClose = 59 // 减仓窗口必须包住强平窗口
	assert.Error(t, Validate(cfg))
}

func TestValidateStrategy(t *testing.T) {
	s := StrategyConfig{
		BaseHalfSpread:     0.01,
		PushCoeff:          0.04,
		PullCoeff:          0.02,
		DefensivePull:      0.5,
		MinMarketSpread:    0.02,
		VolCap:             0.06,
		HistoryLen:         10,
		ConcentrationRatio: 0.65,
		CrushOffset:        0.05,
		TrimOffset:         0.05,
	}
	assert.NoError(t, ValidateStrategy(s))

	bad := s
	bad.BaseHalfSpread = 0
	assert.Error(t, ValidateStrategy(bad))

	bad = s
	bad.ConcentrationRatio = 1.2
	assert.Error(t, ValidateStrategy(bad))

	bad = s
	bad.CrushOffset = 0
	assert.Error(t, ValidateStrategy(bad))
}
