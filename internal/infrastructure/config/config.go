package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Addr            string        `mapstructure:"addr"`
	LogLevel        string        `mapstructure:"log_level"`
	CORSAllowOrigin string        `mapstructure:"cors_allow_origin"`
	Proxy           ProxyConfig   `mapstructure:"proxy"`
	Capture         CaptureConfig `mapstructure:"capture"`
}

type ProxyConfig struct {
	// DefaultTarget is used by /proxy when the request has no target param.
	DefaultTarget string `mapstructure:"default_target"`
	InsecureTLS   bool   `mapstructure:"insecure_tls"`
}

type CaptureConfig struct {
	// File is the JSONL output path. Empty leaves capture unconfigured.
	File string `mapstructure:"file"`
	// Fsync: "always" (durable per append) or "interval" (batched).
	Fsync           string `mapstructure:"fsync"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	// QueueSize 0 appends synchronously from the engine hook.
	QueueSize int `mapstructure:"queue_size"`
	// QueuePolicy: "block" or "drop" (drop-oldest) when the queue is full.
	QueuePolicy   string `mapstructure:"queue_policy"`
	BodyMaxBytes  int    `mapstructure:"body_max_bytes"`
	RedactHeaders bool   `mapstructure:"redact_headers"`
}

// Load reads configuration from an optional yaml file plus SNIAFF_* env
// overrides. An empty path searches the usual locations; a missing file is
// not an error, env and defaults still apply.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("sniaff")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":9091")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_allow_origin", "*")
	v.SetDefault("proxy.default_target", "")
	v.SetDefault("proxy.insecure_tls", false)
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.fsync", "always")
	v.SetDefault("capture.flush_interval_ms", 1000)
	v.SetDefault("capture.queue_size", 1024)
	v.SetDefault("capture.queue_policy", "block")
	v.SetDefault("capture.body_max_bytes", 1<<20) // 1MB per body
	v.SetDefault("capture.redact_headers", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
