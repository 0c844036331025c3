// Package config loads runtime settings from an optional YAML file overlaid
// with SPACENET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Blob drivers.
const (
	BlobFS     = "fs"
	BlobS3     = "s3"
	BlobMemory = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Storage Storage `mapstructure:"storage"`
	Blob    Blob    `mapstructure:"blob"`
	Log     Log     `mapstructure:"log"`
	Metrics Metrics `mapstructure:"metrics"`
}

// Storage selects and configures the record store.
type Storage struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Redis       Redis  `mapstructure:"redis"`
}

// Redis configures the redis store.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Blob selects the dataset export target.
type Blob struct {
	Driver string `mapstructure:"driver"`
	FSRoot string `mapstructure:"fs_root"`
	S3     S3     `mapstructure:"s3"`
}

// S3 configures the S3 blob store.
type S3 struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	// Static credentials; empty uses the AWS default chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Log configures logging.
type Log struct {
	Level string `mapstructure:"level"`
}

// Metrics configures the prometheus recorder.
type Metrics struct {
	Namespace string `mapstructure:"namespace"`
}

// envKeys maps environment variables onto dotted config paths.
var envKeys = map[string]string{
	"SPACENET_STORAGE_DRIVER":            "storage.driver",
	"SPACENET_SQLITE_PATH":               "storage.sqlite_path",
	"SPACENET_POSTGRES_DSN":              "storage.postgres_dsn",
	"SPACENET_REDIS_ADDR":                "storage.redis.addr",
	"SPACENET_REDIS_PASSWORD":            "storage.redis.password",
	"SPACENET_REDIS_DB":                  "storage.redis.db",
	"SPACENET_REDIS_PREFIX":              "storage.redis.prefix",
	"SPACENET_BLOB_DRIVER":               "blob.driver",
	"SPACENET_BLOB_FS_ROOT":              "blob.fs_root",
	"SPACENET_BLOB_S3_BUCKET":            "blob.s3.bucket",
	"SPACENET_BLOB_S3_REGION":            "blob.s3.region",
	"SPACENET_BLOB_S3_ENDPOINT":          "blob.s3.endpoint",
	"SPACENET_BLOB_S3_PATH_STYLE":        "blob.s3.path_style",
	"SPACENET_BLOB_S3_ACCESS_KEY_ID":     "blob.s3.access_key_id",
	"SPACENET_BLOB_S3_SECRET_ACCESS_KEY": "blob.s3.secret_access_key",
	"SPACENET_LOG_LEVEL":                 "log.level",
	"SPACENET_METRICS_NAMESPACE":         "metrics.namespace",
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:     DriverSQLite,
			SQLitePath: "spacenet.db",
			Redis:      Redis{Addr: "localhost:6379", Prefix: "spacenet:"},
		},
		Blob:    Blob{Driver: BlobFS, FSRoot: "./blobdata"},
		Log:     Log{Level: "info"},
		Metrics: Metrics{Namespace: "spacenet"},
	}
}

// Load reads path (skipped when empty), overlays the environment and
// validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	for env, key := range envKeys {
		if v, ok := lookup(env); ok && v != "" {
			setPath(raw, strings.Split(key, "."), v)
		}
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setPath(m map[string]any, path []string, value string) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[path[0]] = child
	}
	setPath(child, path[1:], value)
}

// Validate checks the driver selections.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobFS, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	return errors.Join(errs...)
}
