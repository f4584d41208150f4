package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PublicURL      string   `mapstructure:"public_url"` // base for invite links
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Redis backs the points leaderboard. Leave host empty to fall back to
// SQL-only rankings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	SessionSecret string `mapstructure:"session_secret"`
	SessionMaxAge int    `mapstructure:"session_max_age"` // seconds
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.BindEnv("database.path", "CONSISTENCY_DATABASE_PATH")
	viper.BindEnv("redis.host", "CONSISTENCY_REDIS_HOST")
	viper.BindEnv("redis.password", "CONSISTENCY_REDIS_PASSWORD")
	viper.BindEnv("auth.session_secret", "CONSISTENCY_SESSION_SECRET")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	viper.SetDefault("server.public_url", "http://localhost:8080")

	viper.SetDefault("database.path", "consistency.db")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("auth.session_secret", "dev-only-change-me")
	viper.SetDefault("auth.session_max_age", 86400*30)

	// Allow environment variables
	viper.SetEnvPrefix("CONSISTENCY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
