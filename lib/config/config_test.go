// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/residual"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	cfg.expandVariables()

	if cfg.Archive.ChunkSize != chunk.DefaultSize {
		t.Errorf("chunk_size = %d, want %d", cfg.Archive.ChunkSize, chunk.DefaultSize)
	}
	if cfg.Archive.Coder != entropy.Default {
		t.Errorf("coder = %s, want %s", cfg.Archive.Coder, entropy.Default)
	}
	if want := filepath.Join(cfg.Root, "index.db"); cfg.Index.Path != want {
		t.Errorf("index.path = %q, want %q", cfg.Index.Path, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"sigil.yaml", `
root: /srv/sigil
archive:
  chunk_size: 4096
  coder: lz4
  tier: seal
  stripe_width: 8
store:
  url: minio://localhost:9000/archive
  io_limit_bytes_per_sec: 1048576
index:
  pool_size: 2
log:
  level: debug
`},
		{"sigil.toml", `
root = "/srv/sigil"

[archive]
chunk_size = 4096
coder = "lz4"
tier = "seal"
stripe_width = 8

[store]
url = "minio://localhost:9000/archive"
io_limit_bytes_per_sec = 1048576

[index]
pool_size = 2

[log]
level = "debug"
`},
		{"sigil.jsonc", `{
  // Comments and trailing commas are accepted.
  "root": "/srv/sigil",
  "archive": {"chunk_size": 4096, "coder": "lz4", "tier": "seal", "stripe_width": 8},
  "store": {"url": "minio://localhost:9000/archive", "io_limit_bytes_per_sec": 1048576},
  "index": {"pool_size": 2},
  "log": {"level": "debug",},
}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, test.name, test.content))
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if cfg.Archive.ChunkSize != 4096 {
				t.Errorf("chunk_size = %d, want 4096", cfg.Archive.ChunkSize)
			}
			if cfg.Archive.Coder != entropy.LZ4 {
				t.Errorf("coder = %s, want lz4", cfg.Archive.Coder)
			}
			if cfg.Archive.Tier != residual.TierSeal {
				t.Errorf("tier = %s, want seal", cfg.Archive.Tier)
			}
			if cfg.Archive.StripeWidth != 8 {
				t.Errorf("stripe_width = %d, want 8", cfg.Archive.StripeWidth)
			}
			if cfg.Store.URL != "minio://localhost:9000/archive" {
				t.Errorf("store.url = %q", cfg.Store.URL)
			}
			if cfg.Store.IOLimit != 1<<20 {
				t.Errorf("io_limit_bytes_per_sec = %d, want %d", cfg.Store.IOLimit, 1<<20)
			}
			if cfg.Index.PoolSize != 2 {
				t.Errorf("index.pool_size = %d, want 2", cfg.Index.PoolSize)
			}
			// Unset keys keep their defaults, expanded against the
			// configured root.
			if cfg.Index.Path != "/srv/sigil/index.db" {
				t.Errorf("index.path = %q, want /srv/sigil/index.db", cfg.Index.Path)
			}
			if cfg.Log.Format != "auto" {
				t.Errorf("log.format = %q, want auto", cfg.Log.Format)
			}
			level, err := cfg.LogLevel()
			if err != nil || level != slog.LevelDebug {
				t.Errorf("LogLevel = %v, %v; want debug", level, err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestLoadFileRejectsUnknownCoder(t *testing.T) {
	path := writeConfig(t, "sigil.yaml", "archive:\n  coder: brotli\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted an unknown coder")
	}
}

func TestLoadUsesEnvironment(t *testing.T) {
	path := writeConfig(t, "sigil.yaml", "root: /from/env\n")
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "/from/env" {
		t.Errorf("root = %q, want /from/env", cfg.Root)
	}

	t.Setenv(EnvironmentVariable, "")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load without %s: %v", EnvironmentVariable, err)
	}
	if strings.Contains(cfg.Store.URL, "${") {
		t.Errorf("store.url %q was not expanded", cfg.Store.URL)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{"${HOME}/sigil", map[string]string{"HOME": "/home/user"}, "/home/user/sigil"},
		{"${SIGIL_TEST_MISSING:-default}", map[string]string{}, "default"},
		{"${PRESENT:-default}", map[string]string{"PRESENT": "value"}, "value"},
		{"${A}/${B}", map[string]string{"A": "first", "B": "second"}, "first/second"},
		{"no variables here", map[string]string{}, "no variables here"},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"chunk size too small", func(c *Config) { c.Archive.ChunkSize = 1 }, true},
		{"stripe width zero", func(c *Config) { c.Archive.StripeWidth = 0 }, true},
		{"stripe width too wide", func(c *Config) { c.Archive.StripeWidth = residual.MaxStripeWidth + 1 }, true},
		{"empty store url", func(c *Config) { c.Store.URL = "" }, true},
		{"unsupported store scheme", func(c *Config) { c.Store.URL = "ftp://host/x" }, true},
		{"negative io limit", func(c *Config) { c.Store.IOLimit = -1 }, true},
		{"empty index path", func(c *Config) { c.Index.Path = "" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.expandVariables()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.expandVariables()
	cfg.Archive.ChunkSize = 1
	cfg.Index.Path = ""
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded")
	}
	for _, field := range []string{"archive.chunk_size", "index.path", "log.format"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Validate error %q does not mention %s", err, field)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Archive.Tier = residual.TierReflection
	cfg.Archive.Recipients = []string{"age1example"}
	cfg.Store.IOLimit = 4096
	t.Setenv("SIGIL_STORE_ACCESS_KEY", "minio-user")
	t.Setenv("SIGIL_STORE_SECRET_KEY", "minio-secret")

	options := cfg.ArchiveOptions()
	if options.Tier != residual.TierReflection {
		t.Errorf("Tier = %s, want reflection", options.Tier)
	}
	if !slices.Equal(options.Recipients, []string{"age1example"}) {
		t.Errorf("Recipients = %v", options.Recipients)
	}

	storeOptions := cfg.StoreOptions()
	if storeOptions.AccessKey != "minio-user" || storeOptions.SecretKey != "minio-secret" {
		t.Errorf("store credentials = %q/%q", storeOptions.AccessKey, storeOptions.SecretKey)
	}
	if storeOptions.IOLimit != 4096 {
		t.Errorf("IOLimit = %d, want 4096", storeOptions.IOLimit)
	}
}
