// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/sigil/lib/archive"
	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/residual"
	"github.com/bureau-foundation/sigil/lib/store"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "SIGIL_CONFIG"

// Config is the complete configuration for the sigil command.
type Config struct {
	// Root is the base directory for local state. Other paths may
	// refer to it as ${SIGIL_ROOT}.
	Root string `yaml:"root" toml:"root" json:"root"`

	Archive ArchiveConfig `yaml:"archive" toml:"archive" json:"archive"`
	Store   StoreConfig   `yaml:"store" toml:"store" json:"store"`
	Index   IndexConfig   `yaml:"index" toml:"index" json:"index"`
	Keys    KeysConfig    `yaml:"keys" toml:"keys" json:"keys"`
	Log     LogConfig     `yaml:"log" toml:"log" json:"log"`
}

// ArchiveConfig holds the defaults for new containers.
type ArchiveConfig struct {
	ChunkSize int           `yaml:"chunk_size" toml:"chunk_size" json:"chunk_size"`
	Coder     entropy.Tag   `yaml:"coder" toml:"coder" json:"coder"`
	Tier      residual.Tier `yaml:"tier" toml:"tier" json:"tier"`

	// StripeWidth is the number of chunks per parity stripe.
	StripeWidth int `yaml:"stripe_width" toml:"stripe_width" json:"stripe_width"`

	// Workers bounds hashing and regeneration concurrency. Zero means
	// GOMAXPROCS.
	Workers int `yaml:"workers" toml:"workers" json:"workers"`

	// Recipients are age public keys every new container's seed
	// envelope is encrypted to.
	Recipients []string `yaml:"recipients" toml:"recipients" json:"recipients"`
}

// StoreConfig locates the container store.
type StoreConfig struct {
	// URL is a directory, file://, minio:// or s3:// location.
	URL string `yaml:"url" toml:"url" json:"url"`

	// IOLimit throttles store reads and writes, in bytes per second.
	// Zero disables throttling.
	IOLimit int `yaml:"io_limit_bytes_per_sec" toml:"io_limit_bytes_per_sec" json:"io_limit_bytes_per_sec"`

	// AccessKeyEnv and SecretKeyEnv name the environment variables
	// holding MinIO credentials. Credentials never live in the file.
	AccessKeyEnv string `yaml:"access_key_env" toml:"access_key_env" json:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env" toml:"secret_key_env" json:"secret_key_env"`
}

// IndexConfig configures the chunk index database.
type IndexConfig struct {
	Path     string `yaml:"path" toml:"path" json:"path"`
	PoolSize int    `yaml:"pool_size" toml:"pool_size" json:"pool_size"`
}

// KeysConfig locates key material.
type KeysConfig struct {
	// Dir holds the attestation signing keypair.
	Dir string `yaml:"dir" toml:"dir" json:"dir"`

	// AccessKeyFile, if set, is read as the access key for keyed seed
	// derivation and envelopes.
	AccessKeyFile string `yaml:"access_key_file" toml:"access_key_file" json:"access_key_file"`

	// IdentityFiles are age identity files used to open envelopes.
	IdentityFiles []string `yaml:"identity_files" toml:"identity_files" json:"identity_files"`
}

// LogConfig configures the command logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level" json:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text or
	// json.
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Default returns the configuration used as the base before the config
// file is applied.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".cache", "sigil")

	return &Config{
		Root: root,
		Archive: ArchiveConfig{
			ChunkSize:   chunk.DefaultSize,
			Coder:       entropy.Default,
			Tier:        residual.TierNone,
			StripeWidth: residual.DefaultStripeWidth,
		},
		Store: StoreConfig{
			URL:          "${SIGIL_ROOT}/containers",
			AccessKeyEnv: "SIGIL_STORE_ACCESS_KEY",
			SecretKeyEnv: "SIGIL_STORE_SECRET_KEY",
		},
		Index: IndexConfig{
			Path: "${SIGIL_ROOT}/index.db",
		},
		Keys: KeysConfig{
			Dir: "${SIGIL_ROOT}/keys",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by SIGIL_CONFIG. If the variable is unset
// the defaults are returned unchanged apart from variable expansion.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. The format follows the
// extension: .toml, .json or .jsonc, and YAML for anything else.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// loadFile decodes path over the current values, so keys absent from
// the file keep their defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Root = expandVars(c.Root, vars)
	vars["SIGIL_ROOT"] = c.Root

	c.Store.URL = expandVars(c.Store.URL, vars)
	c.Index.Path = expandVars(c.Index.Path, vars)
	c.Keys.Dir = expandVars(c.Keys.Dir, vars)
	c.Keys.AccessKeyFile = expandVars(c.Keys.AccessKeyFile, vars)
	for i, path := range c.Keys.IdentityFiles {
		c.Keys.IdentityFiles[i] = expandVars(path, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := chunk.ValidateSize(c.Archive.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("archive.chunk_size: %w", err))
	}
	if c.Archive.StripeWidth < 1 || c.Archive.StripeWidth > residual.MaxStripeWidth {
		errs = append(errs, fmt.Errorf("archive.stripe_width must be in [1, %d], got %d", residual.MaxStripeWidth, c.Archive.StripeWidth))
	}
	if c.Archive.Workers < 0 {
		errs = append(errs, fmt.Errorf("archive.workers must not be negative"))
	}

	if c.Store.URL == "" {
		errs = append(errs, fmt.Errorf("store.url is required"))
	} else if _, err := store.ParseLocation(c.Store.URL); err != nil {
		errs = append(errs, fmt.Errorf("store.url: %w", err))
	}
	if c.Store.IOLimit < 0 {
		errs = append(errs, fmt.Errorf("store.io_limit_bytes_per_sec must not be negative"))
	}

	if c.Index.Path == "" {
		errs = append(errs, fmt.Errorf("index.path is required"))
	}
	if c.Index.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("index.pool_size must not be negative"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json; got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// ArchiveOptions returns container creation options carrying the
// configured defaults. Key material is left to the caller.
func (c *Config) ArchiveOptions() archive.Options {
	options := archive.DefaultOptions()
	options.ChunkSize = c.Archive.ChunkSize
	options.Coder = c.Archive.Coder
	options.Tier = c.Archive.Tier
	options.StripeWidth = c.Archive.StripeWidth
	options.Workers = c.Archive.Workers
	options.Recipients = c.Archive.Recipients
	return options
}

// StoreOptions returns the options for store.Open, reading credentials
// from the configured environment variables.
func (c *Config) StoreOptions() store.Options {
	options := store.Options{IOLimit: c.Store.IOLimit}
	if c.Store.AccessKeyEnv != "" {
		options.AccessKey = os.Getenv(c.Store.AccessKeyEnv)
	}
	if c.Store.SecretKeyEnv != "" {
		options.SecretKey = os.Getenv(c.Store.SecretKeyEnv)
	}
	return options
}
