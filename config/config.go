// Package config loads the worklistd configuration from a YAML file, .env
// files and WORKLIST_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes all environment overrides.
const EnvPrefix = "WORKLIST_"

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("config: invalid")

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog level. Unknown values yield info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SnapshotsConfig selects where snapshot files are read from.
type SnapshotsConfig struct {
	// Backend is one of local, memory, minio, s3.
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`

	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// CacheBytes bounds the in-memory cache in front of the minio and s3
	// backends. 0 disables it.
	CacheBytes int64 `yaml:"cache_bytes"`
}

// RedisConfig configures the redis state backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DynamoDBConfig configures the DynamoDB state backend.
type DynamoDBConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// StateConfig selects the item state repository.
type StateConfig struct {
	// Backend is one of none, file, redis, dynamodb.
	Backend  string         `yaml:"backend"`
	Dir      string         `yaml:"dir"`
	Redis    RedisConfig    `yaml:"redis"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// StoreConfig configures the authoritative store.
type StoreConfig struct {
	// Driver is sqlite or postgres. Empty disables refresh.
	Driver         string  `yaml:"driver"`
	DSN            string  `yaml:"dsn"`
	BufferDistance float64 `yaml:"buffer_distance"`
}

// RefreshConfig configures background refresh.
type RefreshConfig struct {
	Workers       int     `yaml:"workers"`
	LockOSThread  bool    `yaml:"lock_os_thread"`
	RateLimit     float64 `yaml:"rate_limit"`
	MaxBackground int64   `yaml:"max_background"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete daemon configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	State     StateConfig     `yaml:"state"`
	Store     StoreConfig     `yaml:"store"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Server    ServerConfig    `yaml:"server"`
	Worklists []string        `yaml:"worklists"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Snapshots: SnapshotsConfig{Backend: "local", Dir: "worklists", Codec: "go-json", Compression: "zstd"},
		State:     StateConfig{Backend: "none", Redis: RedisConfig{Addr: "127.0.0.1:6379"}},
		Refresh:   RefreshConfig{Workers: 3, MaxBackground: 1},
		Server:    ServerConfig{Addr: ":8080"},
	}
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
// LOG_LEVEL and LOG_FORMAT are honored without prefix as well.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
			}
		}
	}

	var errs []error
	num := func(key string, parse func(string) error) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if err := parse(v); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, key, v))
			}
		}
	}

	str(&c.Log.Level, "LOG_LEVEL", EnvPrefix+"LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT", EnvPrefix+"LOG_FORMAT")

	str(&c.Snapshots.Backend, EnvPrefix+"SNAPSHOTS_BACKEND")
	str(&c.Snapshots.Dir, EnvPrefix+"SNAPSHOTS_DIR")
	str(&c.Snapshots.Codec, EnvPrefix+"SNAPSHOTS_CODEC")
	str(&c.Snapshots.Compression, EnvPrefix+"SNAPSHOTS_COMPRESSION")
	str(&c.Snapshots.Bucket, EnvPrefix+"SNAPSHOTS_BUCKET")
	str(&c.Snapshots.Prefix, EnvPrefix+"SNAPSHOTS_PREFIX")
	str(&c.Snapshots.Endpoint, EnvPrefix+"SNAPSHOTS_ENDPOINT")
	str(&c.Snapshots.Region, EnvPrefix+"SNAPSHOTS_REGION")
	str(&c.Snapshots.AccessKey, EnvPrefix+"SNAPSHOTS_ACCESS_KEY")
	str(&c.Snapshots.SecretKey, EnvPrefix+"SNAPSHOTS_SECRET_KEY")

	str(&c.State.Backend, EnvPrefix+"STATE_BACKEND")
	str(&c.State.Dir, EnvPrefix+"STATE_DIR")
	str(&c.State.Redis.Addr, EnvPrefix+"REDIS_ADDR")
	str(&c.State.Redis.Password, EnvPrefix+"REDIS_PASSWORD")
	str(&c.State.Redis.Prefix, EnvPrefix+"REDIS_PREFIX")
	str(&c.State.DynamoDB.Table, EnvPrefix+"DYNAMODB_TABLE")
	str(&c.State.DynamoDB.Region, EnvPrefix+"DYNAMODB_REGION")

	str(&c.Store.Driver, EnvPrefix+"STORE_DRIVER")
	str(&c.Store.DSN, EnvPrefix+"STORE_DSN")

	str(&c.Server.Addr, EnvPrefix+"SERVER_ADDR")

	num("REDIS_DB", func(v string) (err error) {
		c.State.Redis.DB, err = strconv.Atoi(v)
		return err
	})
	num("STORE_BUFFER_DISTANCE", func(v string) (err error) {
		c.Store.BufferDistance, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("REFRESH_WORKERS", func(v string) (err error) {
		c.Refresh.Workers, err = strconv.Atoi(v)
		return err
	})
	num("REFRESH_LOCK_OS_THREAD", func(v string) (err error) {
		c.Refresh.LockOSThread, err = strconv.ParseBool(v)
		return err
	})
	num("REFRESH_RATE_LIMIT", func(v string) (err error) {
		c.Refresh.RateLimit, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("REFRESH_MAX_BACKGROUND", func(v string) (err error) {
		c.Refresh.MaxBackground, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	num("SNAPSHOTS_USE_SSL", func(v string) (err error) {
		c.Snapshots.UseSSL, err = strconv.ParseBool(v)
		return err
	})
	num("SNAPSHOTS_CACHE_BYTES", func(v string) (err error) {
		c.Snapshots.CacheBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})

	if v, ok := lookup(EnvPrefix + "WORKLISTS"); ok && v != "" {
		c.Worklists = c.Worklists[:0]
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Worklists = append(c.Worklists, name)
			}
		}
	}

	return errors.Join(errs...)
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%w: %s %q (allowed: %s)", ErrInvalid, field, v, strings.Join(allowed, ", ")))
	}

	oneOf("log.format", strings.ToLower(c.Log.Format), "text", "json")
	oneOf("snapshots.backend", c.Snapshots.Backend, "local", "memory", "minio", "s3")
	oneOf("snapshots.compression", c.Snapshots.Compression, "", "none", "zstd", "lz4")
	oneOf("state.backend", c.State.Backend, "none", "file", "redis", "dynamodb")
	oneOf("store.driver", c.Store.Driver, "", "sqlite", "postgres")

	if c.Refresh.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: refresh.workers must be at least 1", ErrInvalid))
	}
	if c.Snapshots.CacheBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: snapshots.cache_bytes must not be negative", ErrInvalid))
	}
	if c.Refresh.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: refresh.rate_limit must not be negative", ErrInvalid))
	}
	if c.Store.Driver != "" && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: store.dsn required for driver %s", ErrInvalid, c.Store.Driver))
	}
	if (c.Snapshots.Backend == "minio" || c.Snapshots.Backend == "s3") && c.Snapshots.Bucket == "" {
		errs = append(errs, fmt.Errorf("%w: snapshots.bucket required for backend %s", ErrInvalid, c.Snapshots.Backend))
	}
	if c.State.Backend == "dynamodb" && c.State.DynamoDB.Table == "" {
		errs = append(errs, fmt.Errorf("%w: state.dynamodb.table required", ErrInvalid))
	}

	return errors.Join(errs...)
}
