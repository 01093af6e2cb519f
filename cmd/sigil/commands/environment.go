// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sigil/cmd/sigil/cli"
	"github.com/bureau-foundation/sigil/lib/archive"
	"github.com/bureau-foundation/sigil/lib/chunkindex"
	"github.com/bureau-foundation/sigil/lib/config"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/sealed"
	"github.com/bureau-foundation/sigil/lib/secret"
	"github.com/bureau-foundation/sigil/lib/seed"
	"github.com/bureau-foundation/sigil/lib/store"
)

// Environment holds the flags every command shares. It implements
// [cli.FlagBinder] so the --config default can come from SIGIL_CONFIG
// at flag-construction time.
//
// Exported so that embedded struct fields are visible to reflection in
// [cli.FlagsFromParams].
type Environment struct {
	ConfigPath    string
	LogLevel      string
	StoreURL      string
	AccessKeyFile string
	IdentityFiles []string
}

// AddFlags registers the shared flags.
func (e *Environment) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&e.ConfigPath, "config", os.Getenv(config.EnvironmentVariable), "config file (default $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&e.LogLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	flagSet.StringVar(&e.StoreURL, "store", "", "container store: a directory, file://, minio:// or s3:// URL (overrides store.url)")
	flagSet.StringVar(&e.AccessKeyFile, "key-file", "", "access key file for keyed seeds and envelopes (overrides keys.access_key_file)")
	flagSet.StringArrayVar(&e.IdentityFiles, "identity", nil, "age identity file for opening envelopes (repeatable)")
}

// session is an opened Environment: configuration, logger, store and
// key material for one command invocation.
type session struct {
	config  *config.Config
	logger  *slog.Logger
	out     io.Writer
	store   store.Store
	keyring sealed.Keyring
	secrets []*secret.Buffer
}

// open loads configuration, applies flag overrides, and connects to
// the store. The caller must Close the session.
func (e *Environment) open(ctx context.Context, command string, out io.Writer) (*session, error) {
	var cfg *config.Config
	var err error
	if e.ConfigPath != "" {
		cfg, err = config.LoadFile(e.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if e.LogLevel != "" {
		cfg.Log.Level = e.LogLevel
	}
	if e.StoreURL != "" {
		cfg.Store.URL = e.StoreURL
	}
	if e.AccessKeyFile != "" {
		cfg.Keys.AccessKeyFile = e.AccessKeyFile
	}
	cfg.Keys.IdentityFiles = append(cfg.Keys.IdentityFiles, e.IdentityFiles...)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.LogLevel()
	s := &session{
		config: cfg,
		logger: cli.NewCommandLogger(level, cfg.Log.Format).With("command", command),
		out:    out,
	}

	if cfg.Keys.AccessKeyFile != "" {
		accessKey, err := secret.ReadFromPath(cfg.Keys.AccessKeyFile)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("loading access key: %w", err)
		}
		s.secrets = append(s.secrets, accessKey)
		s.keyring.AccessKey = accessKey
	}
	for _, path := range cfg.Keys.IdentityFiles {
		identity, err := secret.ReadFromPath(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("loading age identity: %w", err)
		}
		s.secrets = append(s.secrets, identity)
		s.keyring.Identities = append(s.keyring.Identities, identity)
	}

	s.store, err = store.Open(ctx, cfg.Store.URL, cfg.StoreOptions())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Debug("session opened", "store", cfg.Store.URL, "config", e.ConfigPath)
	return s, nil
}

// Close releases key material.
func (s *session) Close() {
	for _, buffer := range s.secrets {
		buffer.Close()
	}
	s.secrets = nil
}

// archiveOptions returns creation options from the configuration with
// the session's key material attached.
func (s *session) archiveOptions() archive.Options {
	options := s.config.ArchiveOptions()
	options.AccessKey = s.keyring.AccessKey
	options.Logger = s.logger
	return options
}

// openIndex opens the chunk index database, creating its directory.
func (s *session) openIndex() (*chunkindex.Index, error) {
	if err := os.MkdirAll(filepath.Dir(s.config.Index.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return chunkindex.Open(chunkindex.Config{
		Path:     s.config.Index.Path,
		PoolSize: s.config.Index.PoolSize,
		Logger:   s.logger,
	})
}

// load returns the bytes of a container argument. An argument naming
// an existing local file is read from disk; anything else is a store
// name.
func (s *session) load(ctx context.Context, name string) ([]byte, error) {
	if isLocalFile(name) {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return data, nil
	}
	data, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// save writes container bytes back to where load found them: a local
// file if name is an existing regular file, the store otherwise.
func (s *session) save(ctx context.Context, name string, data []byte) error {
	if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
		if err := os.WriteFile(name, data, info.Mode().Perm()); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}
	if err := store.ValidateName(name); err != nil {
		return err
	}
	if err := s.store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}
	return nil
}

func isLocalFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// loadContainer loads and strictly decodes a container argument.
func (s *session) loadContainer(ctx context.Context, name string) (*container.Container, error) {
	data, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	c, err := container.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

// lookup resolves folder children by name in the store, relative to
// the folder's own name.
func (s *session) lookup(folderName string) archive.Lookup {
	dir := ""
	if index := strings.LastIndexByte(folderName, '/'); index >= 0 {
		dir = folderName[:index+1]
	}
	return func(ctx context.Context, entry archive.Entry) (*container.Container, error) {
		return s.loadContainer(ctx, dir+entry.Name+container.Extension)
	}
}

// writeOutput writes data to path, or to the session's output when path
// is "" or "-".
func (s *session) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := s.out.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// readInput reads a file argument, or stdin for "-". A named file's
// seed is derived as it is read and becomes the seed options uses,
// unless options already inherits one.
func readInput(path string, options *archive.Options) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	var key []byte
	if options.AccessKey != nil {
		key = options.AccessKey.Bytes()
	}
	derived, data, err := seed.DeriveFile(path, key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s does not exist", path)
	}
	if err != nil {
		return nil, err
	}
	if options.Lineage == nil {
		options.Lineage = &derived
	}
	return data, nil
}

// defaultName returns the store name for a container created from
// path.
func defaultName(path string) string {
	if path == "-" {
		return "stdin" + container.Extension
	}
	return filepath.Base(path) + container.Extension
}
