package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	Port                string
	Env                 string
	Storage             string
	MongoURI            string
	MongoDB             string
	JWTSecret           string
	JWTIssuer           string
	RedisAddr           string
	RedisPassword       string
	LockTTL             time.Duration
	Timezone            string
	Location            *time.Location
	Locale              string
	LogLevel            slog.Level
	MattermostURL       string
	MattermostToken     string
	MattermostChannelID string
	SubscriberBuffer    int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("env", "development")
	v.SetDefault("storage", StorageMongo)
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "workforce")
	v.SetDefault("jwt_secret", "dev-secret")
	v.SetDefault("jwt_issuer", "workforce-auth")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("lock_ttl", "5s")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("locale", "en")
	v.SetDefault("log_level", "info")
	v.SetDefault("mattermost_url", "")
	v.SetDefault("mattermost_token", "")
	v.SetDefault("mattermost_channel_id", "")
	v.SetDefault("subscriber_buffer", 64)
}

// Load reads configuration from the environment, an optional .env file, and an
// optional config file. Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                v.GetString("port"),
		Env:                 v.GetString("env"),
		Storage:             strings.ToLower(v.GetString("storage")),
		MongoURI:            v.GetString("mongodb_uri"),
		MongoDB:             v.GetString("mongodb_database"),
		JWTSecret:           v.GetString("jwt_secret"),
		JWTIssuer:           v.GetString("jwt_issuer"),
		RedisAddr:           v.GetString("redis_addr"),
		RedisPassword:       v.GetString("redis_password"),
		LockTTL:             v.GetDuration("lock_ttl"),
		Timezone:            v.GetString("timezone"),
		Locale:              v.GetString("locale"),
		MattermostURL:       strings.TrimRight(v.GetString("mattermost_url"), "/"),
		MattermostToken:     v.GetString("mattermost_token"),
		MattermostChannelID: v.GetString("mattermost_channel_id"),
		SubscriberBuffer:    v.GetInt("subscriber_buffer"),
	}

	switch cfg.Storage {
	case StorageMongo, StorageMemory:
	default:
		return nil, fmt.Errorf("storage must be %q or %q, got %q", StorageMongo, StorageMemory, cfg.Storage)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("lock_ttl must be positive")
	}
	if cfg.SubscriberBuffer < 1 {
		return nil, fmt.Errorf("subscriber_buffer must be at least 1")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	return cfg, nil
}

// NotifierEnabled reports whether manager-channel notifications are configured.
func (c *Config) NotifierEnabled() bool {
	return c.MattermostURL != "" && c.MattermostToken != "" && c.MattermostChannelID != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
