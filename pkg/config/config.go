package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Terms   TermsConfig   `mapstructure:"terms"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// APIConfig stores upstream library-statistics API settings.
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

// TermsConfig locates the local term-dictionary snapshot.
type TermsConfig struct {
	File string `mapstructure:"file"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Expiry  time.Duration `mapstructure:"expiry"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

func LoadConfig(path string) (config Config, err error) {
	// Set default values
	viper.SetDefault("server.name", "bibliostat-mcp")
	viper.SetDefault("server.version", "1.0.0")
	viper.SetDefault("api.base_url", "https://bibstat.kb.se")
	viper.SetDefault("api.timeout", "30s")
	viper.SetDefault("api.default_limit", 200)
	viper.SetDefault("terms.file", "terms.json")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.expiry", "1h")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.path", "logs/bibliostat-mcp.log")

	// Set config file
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.bibliostat-mcp")
		viper.AddConfigPath("/etc/bibliostat-mcp/")
	}

	// Read config file
	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal config
	err = viper.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}
