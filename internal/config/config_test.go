package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store/remote"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHomeFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	home, err := Home()
	require.NoError(t, err)
	assert.Equal(t, dir, home)
}

func TestHomeDefault(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv("HOME", "/home/tester")

	home, err := Home()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".frametree"), home)
}

func TestLoadMissingRegistry(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.Names())
}

func TestSaveAndLoad(t *testing.T) {
	home := filepath.Join(t.TempDir(), "config")
	cfg, err := Load(home)
	require.NoError(t, err)

	require.NoError(t, cfg.Add("work", StoreConfig{Type: TypeLocal}))
	require.NoError(t, cfg.Add("central", StoreConfig{
		Type:     TypeRemote,
		Server:   "/srv/catalogue.db",
		User:     "admin",
		Password: "secret",
		CacheDir: "/tmp/cache",
	}))
	require.NoError(t, cfg.Save())

	reloaded, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, []string{"central", "work"}, reloaded.Names())
	assert.Equal(t, cfg.Stores, reloaded.Stores)

	info, err := os.Stat(filepath.Join(home, StoresFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	home := t.TempDir()
	content := "stores:\n  work:\n    type: local\n    sever: typo\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, StoresFile), []byte(content), 0o600))

	_, err := Load(home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sever")
}

func TestLoadRejectsInvalidStore(t *testing.T) {
	home := t.TempDir()
	content := "stores:\n  central:\n    type: remote\n    user: admin\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, StoresFile), []byte(content), 0o600))

	_, err := Load(home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a server")
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name     string
		nickname string
		store    StoreConfig
		wantErr  string
	}{
		{"empty nickname", "", StoreConfig{Type: TypeLocal}, "invalid store nickname"},
		{"slash in nickname", "a/b", StoreConfig{Type: TypeLocal}, "invalid store nickname"},
		{"unknown type", "x", StoreConfig{Type: "xnat"}, "unknown store type"},
		{"local with server", "x", StoreConfig{Type: TypeLocal, Server: "s"}, "no server"},
		{"remote without user", "x", StoreConfig{Type: TypeRemote, Server: "s"}, "requires a user"},
		{"duplicate", "work", StoreConfig{Type: TypeLocal}, "already registered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Home: t.TempDir(), Stores: map[string]StoreConfig{"work": {Type: TypeLocal}}}
			err := cfg.Add(tt.nickname, tt.store)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRemove(t *testing.T) {
	cfg := &Config{Home: t.TempDir(), Stores: map[string]StoreConfig{"work": {Type: TypeLocal}}}
	require.NoError(t, cfg.Remove("work"))
	assert.Empty(t, cfg.Names())
	assert.Error(t, cfg.Remove("work"))
}

func TestOpenLocal(t *testing.T) {
	cfg := &Config{Home: t.TempDir(), Stores: map[string]StoreConfig{"work": {Type: TypeLocal}}}

	st, err := cfg.Open("work", discard)
	require.NoError(t, err)
	assert.Equal(t, "work", st.Name())
	assert.Equal(t, "local", st.Kind())
}

func TestOpenRemote(t *testing.T) {
	ctx := context.Background()
	server := filepath.Join(t.TempDir(), "service.db")
	require.NoError(t, remote.Provision(ctx, server, "admin", "secret"))

	cfg := &Config{Home: t.TempDir(), Stores: map[string]StoreConfig{
		"good": {Type: TypeRemote, Server: server, User: "admin", Password: "secret", CacheDir: t.TempDir()},
		"bad":  {Type: TypeRemote, Server: server, User: "admin", Password: "wrong"},
	}}

	st, err := cfg.Open("good", discard)
	require.NoError(t, err)
	assert.Equal(t, "remote", st.Kind())
	require.NoError(t, st.WithConnection(ctx, func(ctx context.Context) error { return nil }))

	bad, err := cfg.Open("bad", discard)
	require.NoError(t, err)
	err = bad.Connect(ctx)
	assert.True(t, errs.Is(err, errs.CodeStoreConnection), "got %v", err)
}

func TestOpenUnknown(t *testing.T) {
	cfg := &Config{Home: t.TempDir(), Stores: map[string]StoreConfig{}}
	_, err := cfg.Open("missing", discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
