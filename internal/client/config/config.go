// Package config loads the client configuration: a YAML file with
// environment overrides. Command line flags are applied by the CLI on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	syncengine "github.com/iudanet/runsync/internal/client/sync"
	"github.com/iudanet/runsync/internal/models"
	"github.com/iudanet/runsync/internal/validation"
)

// Environment variables overriding the file
const (
	EnvServerURL = "RUNSYNC_SERVER"
	EnvDBPath    = "RUNSYNC_DB"
)

// CollectionConfig is the conflict policy of one collection
type CollectionConfig struct {
	Strategy        string `yaml:"strategy"`
	MergePrecedence string `yaml:"merge_precedence,omitempty"`
}

// Config is the client configuration
type Config struct {
	Collections     map[string]CollectionConfig `yaml:"collections"`
	ServerURL       string                      `yaml:"server_url"`
	DBPath          string                      `yaml:"db_path"`
	DefaultStrategy string                      `yaml:"default_strategy"`
	SyncInterval    time.Duration               `yaml:"sync_interval"`
	RemoteTimeout   time.Duration               `yaml:"remote_timeout"`
	MaxAttempts     int                         `yaml:"max_attempts"` // 0 - без ограничения
}

// Default returns the reference configuration of the registration app
func Default() *Config {
	return &Config{
		ServerURL:       "http://localhost:8080",
		DBPath:          "runsync.db",
		SyncInterval:    5 * time.Minute,
		RemoteTimeout:   syncengine.DefaultRemoteTimeout,
		MaxAttempts:     10,
		DefaultStrategy: string(models.StrategyClientWins),
		Collections: map[string]CollectionConfig{
			"registrations": {Strategy: string(models.StrategyClientWins)},
			"events":        {Strategy: string(models.StrategyServerWins)},
			"profiles":      {Strategy: string(models.StrategyMerge), MergePrecedence: string(models.PrecedenceLocal)},
		},
	}
}

// Load reads the file at path (if not empty) over the defaults, applies the
// environment and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode reads YAML on top of the current values. A collections section in
// the file replaces the configured collections as a whole.
func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	collections := c.Collections
	c.Collections = nil
	defer func() {
		if c.Collections == nil {
			c.Collections = collections
		}
	}()

	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			// Пустой файл: остаются значения по умолчанию
			return nil
		}
		return fmt.Errorf("failed to parse: %w", err)
	}
	return nil
}

// ApplyEnv overrides the server and database locations from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvServerURL); ok && v != "" {
		c.ServerURL = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.DBPath = v
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server_url %q", c.ServerURL)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote_timeout must be positive, got %s", c.RemoteTimeout)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	if _, err := c.Policies(); err != nil {
		return err
	}
	return nil
}

// Policies converts the collection settings into engine policies
func (c *Config) Policies() (syncengine.Policies, error) {
	def, err := models.ParseStrategy(c.DefaultStrategy)
	if err != nil {
		return syncengine.Policies{}, fmt.Errorf("default_strategy: %w", err)
	}

	p := syncengine.Policies{
		Default:     def,
		Collections: make(map[string]syncengine.Policy, len(c.Collections)),
	}
	for _, name := range slices.Sorted(maps.Keys(c.Collections)) {
		if err := validation.ValidateCollection(name); err != nil {
			return syncengine.Policies{}, err
		}
		cc := c.Collections[name]

		strategy := def
		if cc.Strategy != "" {
			if strategy, err = models.ParseStrategy(cc.Strategy); err != nil {
				return syncengine.Policies{}, fmt.Errorf("collection %s: %w", name, err)
			}
		}
		precedence, err := models.ParsePrecedence(cc.MergePrecedence)
		if err != nil {
			return syncengine.Policies{}, fmt.Errorf("collection %s: %w", name, err)
		}
		if strategy != models.StrategyMerge && cc.MergePrecedence != "" {
			return syncengine.Policies{}, fmt.Errorf("collection %s: merge_precedence requires the merge strategy", name)
		}

		p.Collections[name] = syncengine.Policy{Strategy: strategy, Precedence: precedence}
	}
	return p, nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
