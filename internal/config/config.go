// Package config loads settings from flags, environment and an optional
// config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"netgazer/internal/capture"
)

const envPrefix = "NETGAZER"

// Config is the full application configuration.
type Config struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Decoder DecoderConfig `mapstructure:"decoder"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// CaptureConfig selects the adapter and how it is opened.
type CaptureConfig struct {
	Interface   string        `mapstructure:"interface"`
	Index       int           `mapstructure:"index"`
	Promiscuous bool          `mapstructure:"promiscuous"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SnapLen     int           `mapstructure:"snaplen"`
	Filter      string        `mapstructure:"filter"`
	Files       []string      `mapstructure:"files"`
}

// DecoderConfig tunes frame decoding.
type DecoderConfig struct {
	AcceptSwappedEtherType bool `mapstructure:"accept_swapped_ethertype"`
}

// ServerConfig enables the streaming server when Addr is set.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"interface":                "capture.interface",
	"index":                    "capture.index",
	"promiscuous":              "capture.promiscuous",
	"timeout":                  "capture.timeout",
	"snaplen":                  "capture.snaplen",
	"filter":                   "capture.filter",
	"file":                     "capture.files",
	"accept-swapped-ethertype": "decoder.accept_swapped_ethertype",
	"serve":                    "server.addr",
	"log-level":                "log.level",
	"log-format":               "log.format",
	"log-file":                 "log.file",
}

// NewFlagSet returns the command-line flags Load understands.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.StringP("interface", "i", "", "adapter name to capture on")
	fs.Int("index", -1, "adapter index to capture on")
	fs.Bool("promiscuous", true, "open the adapter in promiscuous mode")
	fs.Duration("timeout", capture.DefaultTimeout, "read timeout per frame")
	fs.Int("snaplen", capture.DefaultSnapLen, "maximum bytes captured per frame")
	fs.String("filter", "", "BPF filter for live captures")
	fs.StringSliceP("file", "r", nil, "saved capture files to replay instead of live adapters")
	fs.Bool("accept-swapped-ethertype", false, "also classify byte-swapped Ethernet type values")
	fs.String("serve", "", "listen address for the streaming server")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console, json)")
	fs.String("log-file", "", "also write logs to this file, rotated")
	return fs
}

// Load parses args and merges flags, NETGAZER_* environment variables and
// the config file, in that order of precedence.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("netgazer")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a capture.
func (c *Config) Validate() error {
	var errs []error
	if c.Capture.SnapLen <= 0 {
		errs = append(errs, fmt.Errorf("capture.snaplen must be positive, got %d", c.Capture.SnapLen))
	}
	if c.Capture.Timeout < 0 {
		errs = append(errs, fmt.Errorf("capture.timeout must not be negative, got %s", c.Capture.Timeout))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
