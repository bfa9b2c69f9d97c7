package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// serviceConfig is the daemon's own surface: listen address, backends,
// and the engine parameters. Everything can come from a yaml file or
// AUTHVAULT_-prefixed environment variables.
type serviceConfig struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Token struct {
		AccessKey  string `mapstructure:"access_key"`
		RefreshKey string `mapstructure:"refresh_key"`
		Issuer     string `mapstructure:"issuer"`
	} `mapstructure:"token"`

	Session struct {
		AccessTTL  time.Duration `mapstructure:"access_ttl"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	} `mapstructure:"session"`

	RateLimit struct {
		Window    time.Duration `mapstructure:"window"`
		General   int           `mapstructure:"general"`
		AuthFlows int           `mapstructure:"auth_flows"`
	} `mapstructure:"rate_limit"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	AllowDegradedVerify bool `mapstructure:"allow_degraded_verify"`
}

func loadConfig() (*serviceConfig, error) {
	setDefaults()

	if path := os.Getenv("AUTHVAULT_CONFIG"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("authvaultd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/authvault")
	}

	viper.SetEnvPrefix("AUTHVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Environment-only operation is fine; a broken file is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg serviceConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Postgres.DSN == "" {
		return nil, errors.New("postgres.dsn is required")
	}
	if cfg.Token.AccessKey == "" || cfg.Token.RefreshKey == "" {
		return nil, errors.New("token.access_key and token.refresh_key are required")
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)
	viper.SetDefault("server.shutdown_timeout", 15*time.Second)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("rate_limit.window", 15*time.Minute)
	viper.SetDefault("rate_limit.general", 100)
	viper.SetDefault("rate_limit.auth_flows", 5)
	viper.SetDefault("log.level", "info")
}
