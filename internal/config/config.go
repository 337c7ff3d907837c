// Package config loads the client and dev store settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	authconfig "feedback-sync/internal/auth/config"
	"feedback-sync/internal/feedback/domain/model"

	"github.com/caarlos0/env/v6"
)

// Backend selects the RemoteStore implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendMongo  Backend = "mongo"
	BackendRemote Backend = "remote"
)

// Config is the top level configuration.
type Config struct {
	Backend    Backend `env:"FEEDBACK_BACKEND" envDefault:"memory"`
	Collection string  `env:"FEEDBACK_COLLECTION" envDefault:"feedbacks"`

	Log    LogConfig
	Redis  RedisConfig
	Mongo  MongoConfig
	Remote RemoteConfig
	Auth   authconfig.Config

	MetricsAddr  string `env:"METRICS_ADDR"`
	DevStoreAddr string `env:"DEVSTORE_ADDR" envDefault:":8080"`
	ClientScript bool   `env:"CLIENT_SCRIPT" envDefault:"false"`
}

type LogConfig struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Format  string `env:"LOG_FORMAT" envDefault:"text"`
	Backend string `env:"LOG_BACKEND" envDefault:"logrus"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type MongoConfig struct {
	URI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGODB_DATABASE" envDefault:"feedback_sync"`
}

// RemoteConfig points the remote backend at a running dev store.
type RemoteConfig struct {
	URL     string        `env:"REMOTE_URL"`
	Timeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and settings the selected backend needs
// but does not have.
func (c *Config) Validate() error {
	c.Backend = Backend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Collection == "" {
		return errors.New("feedback_collection is required")
	}
	if c.Collection == model.CollectionUsers {
		return fmt.Errorf("feedback_collection must not be %q", model.CollectionUsers)
	}

	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis_addr is required for the redis backend")
		}
		if c.Redis.DB < 0 {
			return errors.New("redis_db must not be negative")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongodb_uri is required for the mongo backend")
		}
		if c.Mongo.Database == "" {
			return errors.New("mongodb_database is required for the mongo backend")
		}
	case BackendRemote:
		if c.Remote.URL == "" {
			return errors.New("remote_url is required for the remote backend")
		}
		u, err := url.Parse(c.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("remote_url %q must be an http(s) URL", c.Remote.URL)
		}
		if c.Remote.Timeout <= 0 {
			return errors.New("remote_timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown feedback_backend %q", c.Backend)
	}

	if c.Backend != BackendRemote {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	return nil
}
