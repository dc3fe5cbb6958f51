package remote

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial catalogue
// 1 - Added row lookup index on entries
const currentSchemaVersion = 1

// domainAccount separates password digests from other hashes.
const domainAccount = "frametree/account/v1"

// Config addresses a remote service.
type Config struct {
	// Server is the address of the service catalogue.
	Server   string
	User     string
	Password string

	// CacheDir receives downloaded fileset content. Defaults to a directory
	// under os.TempDir().
	CacheDir string
}

// Backend is the remote-service adapter.
type Backend struct {
	cfg    Config
	tokens TokenGenerator

	db      *sql.DB
	clock   *Clock
	session string
}

// Option configures a Backend.
type Option func(*Backend)

// WithTokenGenerator replaces the UUIDv7 token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(b *Backend) { b.tokens = g }
}

// New returns a remote backend for cfg. No connection is made until Connect.
func New(cfg Config, opts ...Option) *Backend {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "frametree-remote-cache")
	}
	b := &Backend{cfg: cfg, tokens: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ store.Backend = (*Backend)(nil)

// Kind returns "remote".
func (b *Backend) Kind() string { return "remote" }

// Session returns the token of the open session, or "" when disconnected.
func (b *Backend) Session() string { return b.session }

// Provision creates (or resets the password of) an account on the service at
// server, creating the catalogue if needed.
func Provision(ctx context.Context, server, user, password string) error {
	db, err := open(server)
	if err != nil {
		return fmt.Errorf("provision %s: %w", server, err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO accounts (user, password_hash)
		VALUES (?, ?)
		ON CONFLICT(user) DO UPDATE SET password_hash = excluded.password_hash
	`, user, passwordHash(user, password))
	if err != nil {
		return fmt.Errorf("provision %s: %w", server, err)
	}
	return nil
}

func passwordHash(user, password string) string {
	return record.HashWithDomain(domainAccount, []byte(user+"\x00"+password))
}

// Connect opens the catalogue, authenticates and starts a session.
func (b *Backend) Connect(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	if _, err := os.Stat(b.cfg.Server); err != nil {
		return errs.Wrap(errs.CodeStoreConnection, err, "no service at %q", b.cfg.Server)
	}
	db, err := open(b.cfg.Server)
	if err != nil {
		return errs.Wrap(errs.CodeStoreConnection, err, "cannot reach %q", b.cfg.Server)
	}

	var hash string
	err = db.QueryRowContext(ctx, `SELECT password_hash FROM accounts WHERE user = ?`, b.cfg.User).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && hash != passwordHash(b.cfg.User, b.cfg.Password)) {
		db.Close()
		return errs.New(errs.CodeStoreConnection, "authentication failed for user %q", b.cfg.User)
	}
	if err != nil {
		db.Close()
		return errs.Wrap(errs.CodeStoreConnection, err, "cannot authenticate")
	}

	start, err := lastSeq(ctx, db)
	if err != nil {
		db.Close()
		return errs.Wrap(errs.CodeStoreConnection, err, "cannot read catalogue clock")
	}
	clock := NewClockAt(start)

	token := b.tokens.Generate()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO sessions (token, user, opened_seq) VALUES (?, ?, ?)`,
		token, b.cfg.User, clock.Next(),
	); err != nil {
		db.Close()
		return errs.Wrap(errs.CodeStoreConnection, err, "cannot open session")
	}

	b.db, b.clock, b.session = db, clock, token
	return nil
}

// Disconnect closes the session and the catalogue. The catalogue is closed
// even if the session cannot be marked closed.
func (b *Backend) Disconnect(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	db, token := b.db, b.session
	b.db, b.session = nil, ""

	_, err := db.ExecContext(ctx,
		`UPDATE sessions SET closed_seq = ? WHERE token = ?`, b.clock.Next(), token)
	if err != nil {
		err = fmt.Errorf("close session: %w", err)
	}
	return errors.Join(err, db.Close())
}

func (b *Backend) guard() error {
	if b.db == nil {
		return errs.New(errs.CodeNotConnected, "remote store %q is not connected", b.cfg.Server)
	}
	return nil
}

// lastSeq returns the highest sequence number stamped in the catalogue.
func lastSeq(ctx context.Context, db *sql.DB) (int64, error) {
	var seq sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT MAX(opened_seq) AS seq FROM sessions
			UNION ALL SELECT MAX(closed_seq) FROM sessions
			UNION ALL SELECT MAX(created_seq) FROM datasets
			UNION ALL SELECT MAX(seq) FROM leaves
			UNION ALL SELECT MAX(seq) FROM entries
			UNION ALL SELECT MAX(seq) FROM provenance
			UNION ALL SELECT MAX(seq) FROM definitions
		)
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// open creates or opens the catalogue at path and applies pragmas and migrations.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalogue: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the row lookup index to catalogues created before it existed.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_row ON entries(dataset_id, frequency, row_key)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
