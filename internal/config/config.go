// Package config loads adminhub settings from built-in defaults, an
// optional YAML file and ADMINHUB_* environment variables, in that order.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ADMINHUB_"

//go:embed defaults.yaml
var defaults []byte

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Mongo    MongoConfig    `koanf:"mongo"`
	Postgres PostgresConfig `koanf:"postgres"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	Storage  StorageConfig  `koanf:"storage"`
	Worker   WorkerConfig   `koanf:"worker"`
	Bot      BotConfig      `koanf:"bot"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	Timezone        string        `koanf:"timezone"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// Location resolves the dashboard timezone.
func (s ServerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type MongoConfig struct {
	URL      string        `koanf:"url"`
	Database string        `koanf:"database"`
	Timeout  time.Duration `koanf:"timeout"`
}

type PostgresConfig struct {
	URL string `koanf:"url"`
}

type RedisConfig struct {
	URL string `koanf:"url"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
	LockAfter int           `koanf:"lock_after"`
}

// Storage drivers.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type StorageConfig struct {
	Driver     string        `koanf:"driver"`
	LocalDir   string        `koanf:"local_dir"`
	PublicURL  string        `koanf:"public_url"`
	Bucket     string        `koanf:"bucket"`
	Region     string        `koanf:"region"`
	Endpoint   string        `koanf:"endpoint"`
	AccessKey  string        `koanf:"access_key"`
	SecretKey  string        `koanf:"secret_key"`
	MaxFileMB  float64       `koanf:"max_file_mb"`
	PresignTTL time.Duration `koanf:"presign_ttl"`
}

type WorkerConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// BotConfig names the bot this portal administers.
type BotConfig struct {
	Abbreviation string `koanf:"abbreviation"`
	Language     string `koanf:"language"`
}

// envKey maps ADMINHUB_MONGO_URL to mongo.url and
// ADMINHUB_AUTH_JWT_SECRET to auth.jwt_secret: the first segment names the
// section and the rest is the field.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.Mongo.URL == "" {
		return errors.NotValidf("empty mongo.url")
	}
	if c.Auth.LockAfter < 1 {
		return errors.NotValidf("auth.lock_after %d", c.Auth.LockAfter)
	}
	if _, err := c.Server.Location(); err != nil {
		return errors.NewNotValid(err, "server.timezone")
	}
	switch c.Storage.Driver {
	case StorageLocal:
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.NotValidf("empty storage.bucket for the s3 driver")
		}
	default:
		return errors.NotValidf("storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// ValidateServer adds the checks only the API server needs.
func (c *Config) ValidateServer() error {
	if len(c.Auth.JWTSecret) < 16 {
		return errors.NotValidf("auth.jwt_secret shorter than 16 bytes")
	}
	return nil
}
