// Package config manages the user's store registry.
//
// Stores are registered under nicknames in $FRAMETREE_HOME/stores.yaml (default
// ~/.frametree/stores.yaml). The adapter for a store is chosen from its
// registered type when it is opened.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store/local"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store/remote"
)

// EnvHome overrides the configuration directory.
const EnvHome = "FRAMETREE_HOME"

// StoresFile is the registry file name inside the configuration directory.
const StoresFile = "stores.yaml"

// Store types.
const (
	TypeLocal  = "local"
	TypeRemote = "remote"
)

// StoreConfig is one registered store.
type StoreConfig struct {
	Type     string `yaml:"type" json:"type"`
	Server   string `yaml:"server,omitempty" json:"server,omitempty"`
	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

// Validate checks the fields required by the store type.
func (c StoreConfig) Validate() error {
	switch c.Type {
	case TypeLocal:
		if c.Server != "" || c.User != "" || c.Password != "" {
			return fmt.Errorf("local stores take no server or credentials")
		}
	case TypeRemote:
		if c.Server == "" {
			return fmt.Errorf("remote store requires a server")
		}
		if c.User == "" {
			return fmt.Errorf("remote store requires a user")
		}
	default:
		return fmt.Errorf("unknown store type %q: must be %q or %q", c.Type, TypeLocal, TypeRemote)
	}
	return nil
}

// Backend constructs the adapter described by c.
func (c StoreConfig) Backend() (store.Backend, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Type == TypeRemote {
		return remote.New(remote.Config{
			Server:   c.Server,
			User:     c.User,
			Password: c.Password,
			CacheDir: c.CacheDir,
		}), nil
	}
	return local.New(), nil
}

// Config is the loaded store registry.
type Config struct {
	// Home is the configuration directory the registry was loaded from.
	Home   string                 `yaml:"-"`
	Stores map[string]StoreConfig `yaml:"stores"`
}

// Home returns the configuration directory: $FRAMETREE_HOME, or ~/.frametree.
func Home() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(dir, ".frametree"), nil
}

// Load reads the registry in home. A missing registry is empty.
func Load(home string) (*Config, error) {
	cfg := &Config{Home: home, Stores: map[string]StoreConfig{}}

	data, err := os.ReadFile(filepath.Join(home, StoresFile))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store registry: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", StoresFile, err)
	}
	if cfg.Stores == nil {
		cfg.Stores = map[string]StoreConfig{}
	}
	for name, sc := range cfg.Stores {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("store %q: %w", name, err)
		}
	}
	return cfg, nil
}

// LoadDefault loads the registry from Home().
func LoadDefault() (*Config, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	return Load(home)
}

// Save writes the registry back to its home directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Home, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode store registry: %w", err)
	}
	path := filepath.Join(c.Home, StoresFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write store registry: %w", err)
	}
	return nil
}

// Add registers a store under nickname. Nicknames are unique.
func (c *Config) Add(nickname string, sc StoreConfig) error {
	if nickname == "" || strings.Contains(nickname, "/") {
		return fmt.Errorf("invalid store nickname %q", nickname)
	}
	if _, ok := c.Stores[nickname]; ok {
		return fmt.Errorf("store %q is already registered", nickname)
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	c.Stores[nickname] = sc
	return nil
}

// Remove unregisters a store.
func (c *Config) Remove(nickname string) error {
	if _, ok := c.Stores[nickname]; !ok {
		return fmt.Errorf("store %q is not registered", nickname)
	}
	delete(c.Stores, nickname)
	return nil
}

// Names returns the registered nicknames in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Stores))
	for name := range c.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the store registered under nickname. No connection is made.
func (c *Config) Open(nickname string, logger *slog.Logger) (*store.Store, error) {
	sc, ok := c.Stores[nickname]
	if !ok {
		return nil, fmt.Errorf("store %q is not registered", nickname)
	}
	backend, err := sc.Backend()
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", nickname, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return store.New(nickname, backend, store.WithLogger(logger)), nil
}
