package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store/local"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store/remote"
)

// Store kinds.
const (
	Local  = "local"
	Remote = "remote"
)

// StoreKinds lists every adapter a store fixture can be built on.
var StoreKinds = []string{Local, Remote}

// Credentials of the account provisioned in remote fixtures.
const (
	RemoteUser     = "admin"
	RemotePassword = "secret"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StoreOption configures a store fixture.
type StoreOption func(*storeConfig)

type storeConfig struct {
	tokens remote.TokenGenerator
}

// WithTokens makes remote fixtures draw session tokens and entry ids from g.
func WithTokens(g remote.TokenGenerator) StoreOption {
	return func(c *storeConfig) { c.tokens = g }
}

// NewStore returns a store of the given kind and a dataset id that is valid in
// it. Everything the store writes lives under t.TempDir().
func NewStore(t *testing.T, kind string, opts ...StoreOption) (*store.Store, string) {
	t.Helper()
	cfg := storeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch kind {
	case Local:
		return store.New(Local, local.New(), store.WithLogger(DiscardLogger())),
			filepath.Join(t.TempDir(), "dataset")
	case Remote:
		server := filepath.Join(t.TempDir(), "service.db")
		require.NoError(t, remote.Provision(context.Background(), server, RemoteUser, RemotePassword))
		var backendOpts []remote.Option
		if cfg.tokens != nil {
			backendOpts = append(backendOpts, remote.WithTokenGenerator(cfg.tokens))
		}
		b := remote.New(remote.Config{
			Server:   server,
			User:     RemoteUser,
			Password: RemotePassword,
			CacheDir: t.TempDir(),
		}, backendOpts...)
		return store.New(Remote, b, store.WithLogger(DiscardLogger())), "dataset"
	}
	t.Fatalf("unknown store kind %q", kind)
	return nil, ""
}

// WriteFile writes content to path, creating parent directories, and returns path.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
