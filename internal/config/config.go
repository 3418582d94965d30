package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration for the API server, loaded from flags, env,
// or config file.
type Config struct {
	Addr       string
	DefaultFee float64
	LogLevel   string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"addr":        ":8080",
		"default-fee": 0.003,
		"log-level":   "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:       v.GetString("addr"),
		DefaultFee: v.GetFloat64("default-fee"),
		LogLevel:   v.GetString("log-level"),
	}

	return cfg, nil
}

// SimulateConfig holds configuration for a simulation run.
type SimulateConfig struct {
	Scenario    string
	Steps       int
	Seed        int64
	TokenA      string
	TokenB      string
	InitialA    float64
	InitialB    float64
	StopLossPct float64
	Out         string
	PGDSN       string
	LogLevel    string
}

// LoadSimulate merges config file, environment variables, and flags into
// SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"scenario":      "stable",
		"steps":         0,
		"seed":          int64(1),
		"token-a":       "ETH",
		"token-b":       "USDC",
		"initial-a":     1000.0,
		"initial-b":     2000000.0,
		"stop-loss-pct": 0.2,
		"out":           "./data/sim_steps.jsonl",
		"log-level":     "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Scenario:    v.GetString("scenario"),
		Steps:       v.GetInt("steps"),
		Seed:        v.GetInt64("seed"),
		TokenA:      v.GetString("token-a"),
		TokenB:      v.GetString("token-b"),
		InitialA:    v.GetFloat64("initial-a"),
		InitialB:    v.GetFloat64("initial-b"),
		StopLossPct: v.GetFloat64("stop-loss-pct"),
		Out:         v.GetString("out"),
		PGDSN:       v.GetString("pg-dsn"),
		LogLevel:    v.GetString("log-level"),
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("AMMSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}
