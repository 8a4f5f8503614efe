// Package config loads flindoc settings from a config file, FLINDOC_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. FLINDOC_LOG_LEVEL.
const EnvPrefix = "FLINDOC"

// Config holds every setting.
type Config struct {
	Data        string   `mapstructure:"data"`         // JSON or NDJSON file loaded at start
	Store       string   `mapstructure:"store"`        // BadgerDB directory
	Collection  string   `mapstructure:"collection"`   // collection name
	Schema      string   `mapstructure:"schema"`       // JSON Schema applied on load
	Indexes     []string `mapstructure:"indexes"`      // comma separated field lists
	MetricsAddr string   `mapstructure:"metrics_addr"` // serve /metrics when set
	Log         Log      `mapstructure:"log"`
}

// Log configures logging.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	SeqURL string `mapstructure:"seq_url"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"data":         "data",
	"store":        "store",
	"collection":   "collection",
	"schema":       "schema",
	"index":        "indexes",
	"metrics-addr": "metrics_addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"seq-url":      "log.seq_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data", "")
	v.SetDefault("store", "")
	v.SetDefault("collection", "books")
	v.SetDefault("schema", "")
	v.SetDefault("indexes", []string{})
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.seq_url", "")
}

// Load reads the configuration. file may be empty, in which case
// flindoc.{yaml,json,toml} is looked up in the working directory and used if
// present. flags may be nil; only flags that were set override other
// sources.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("flindoc")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that do not depend on the environment.
func (c Config) Validate() error {
	if c.Collection == "" {
		return errors.New("config: collection must not be empty")
	}
	for _, ix := range c.Indexes {
		if len(IndexFields(ix)) == 0 {
			return fmt.Errorf("config: empty index definition %q", ix)
		}
	}
	return nil
}

// IndexFields splits an index definition such as "author,published_year".
func IndexFields(def string) []string {
	var fields []string
	for _, f := range strings.Split(def, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
