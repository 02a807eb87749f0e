// Package config loads ledger settings from an optional YAML file, an
// optional .env file and LOTLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: storage.driver is read from
// LOTLEDGER_STORAGE_DRIVER.
const EnvPrefix = "LOTLEDGER"

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Storage struct {
		Driver         string
		SQLitePath     string        `mapstructure:"sqlite_path"`
		PostgresDSN    string        `mapstructure:"postgres_dsn"`
		LockTimeout    time.Duration `mapstructure:"lock_timeout"`
		SkipMigrations bool          `mapstructure:"skip_migrations"`
	} `mapstructure:"storage"`

	Blob struct {
		Driver string
		FSRoot string `mapstructure:"fs_root"`
		S3     struct {
			Bucket         string
			Region         string
			Endpoint       string
			Prefix         string
			AccessKey      string `mapstructure:"access_key"`
			SecretKey      string `mapstructure:"secret_key"`
			ForcePathStyle bool   `mapstructure:"force_path_style"`
		} `mapstructure:"s3"`
	} `mapstructure:"blob"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

// Location resolves App.Timezone. An empty zone is UTC.
func (c Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "lotledger.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.lock_timeout", 2*time.Second)
	v.SetDefault("storage.skip_migrations", false)
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "lotledger-reports")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.access_key", "")
	v.SetDefault("blob.s3.secret_key", "")
	v.SetDefault("blob.s3.force_path_style", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.enabled", true)
}

// Load reads path (skipped when empty) over the defaults. Variables from a
// .env file in the working directory are exported first without replacing
// ones already set, then LOTLEDGER_* variables override file values.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

// Validate rejects unknown drivers and settings the chosen drivers need.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob.s3.bucket: required for the s3 driver")
		}
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	if c.Storage.LockTimeout < 0 {
		return errors.New("storage.lock_timeout: must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
