// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/datawire/jab/pkg/pipfile"
)

// Config is everything that can be set by flag, by $JAB_* environment variable, or in a config
// file (.jab.yaml in the current directory, or wherever --config says).
type Config struct {
	Pipfile     string        `mapstructure:"pipfile"`
	MaxDepth    int           `mapstructure:"max-depth"`
	LogLevel    string        `mapstructure:"log-level"`
	Python      string        `mapstructure:"python"`
	StopTimeout time.Duration `mapstructure:"stop-timeout"`

	Index IndexConfig `mapstructure:"index"`
}

type IndexConfig struct {
	// Concurrency is how many index requests may be in flight at once.
	Concurrency int `mapstructure:"concurrency"`
	// RateLimit is the maximum number of index requests per second.
	RateLimit float64       `mapstructure:"rate-limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user-agent"`
}

//nolint:gochecknoglobals // Would be 'const'.
var configDefaults = map[string]interface{}{
	"pipfile":           "",
	"max-depth":         pipfile.DefaultMaxDepth,
	"log-level":         "info",
	"python":            "python3",
	"stop-timeout":      10 * time.Second,
	"index.concurrency": 4,
	"index.rate-limit":  10.0,
	"index.timeout":     30 * time.Second,
	"index.user-agent":  "jab",
}

// addConfigFlags registers the flags that every subcommand shares.
func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Read configuration from `FILE` rather than ./.jab.yaml")
	flags.String("pipfile", "", "Use `PATH` as the Pipfile rather than searching for one in "+
		"the current directory and its parents")
	flags.String("log-level", "", "Log at `LEVEL` (error, warn, info, debug, or trace)")
	flags.String("python", "", "Use `INTERPRETER` for \"call\" scripts and for check --interpreter")
}

// loadConfig merges, in increasing order of precedence: the defaults, the config file, the
// environment, and the flags.
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, val := range configDefaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("JAB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"pipfile", "log-level", "python"} {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(name, flag); err != nil {
				return nil, err
			}
		}
	}

	configFile, _ := flags.GetString("config")
	if configFile == "" {
		configFile = os.Getenv("JAB_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".jab")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return &cfg, nil
}

// PipfilePath returns the Pipfile to operate on: the configured one, or else the nearest one
// found by searching upward from the current directory.
func (cfg *Config) PipfilePath() (string, error) {
	if cfg.Pipfile != "" {
		return cfg.Pipfile, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return pipfile.Find(wd, cfg.MaxDepth)
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) *Config {
	cfg, _ := ctx.Value(configKey{}).(*Config)
	if cfg == nil {
		cfg = &Config{MaxDepth: pipfile.DefaultMaxDepth, LogLevel: "info", Python: "python3"}
	}
	return cfg
}
