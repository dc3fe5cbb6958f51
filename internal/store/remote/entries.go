package remote

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

func (b *Backend) uri(id string) string {
	return "remote://" + filepath.ToSlash(b.cfg.Server) + "#" + id
}

// ScanRow lists the entries stored against a row.
func (b *Backend) ScanRow(ctx context.Context, row store.RowRef) ([]store.Entry, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, path, datatype FROM entries
		WHERE dataset_id = ? AND frequency = ? AND row_key = ?
		ORDER BY path
	`, row.DatasetID, row.FrequencyName, rowKey(row))
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan row %s", row)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var id, path, dtName string
		if err := rows.Scan(&id, &path, &dtName); err != nil {
			return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan row %s", row)
		}
		dt, err := item.Lookup(dtName)
		if err != nil {
			return nil, err
		}
		entries = append(entries, store.Entry{Path: path, Datatype: dt, Row: row, URI: b.uri(id)})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan row %s", row)
	}
	return entries, nil
}

// CreateEntry checks the path is free. The catalogue row is written by Put.
func (b *Backend) CreateEntry(ctx context.Context, path string, dt item.Datatype, row store.RowRef) (store.Entry, error) {
	if err := b.guard(); err != nil {
		return store.Entry{}, err
	}
	if path == "" {
		return store.Entry{}, errs.New(errs.CodeWriteFailure, "empty entry path")
	}
	var n int
	if err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE dataset_id = ? AND frequency = ? AND row_key = ? AND path = ?
	`, row.DatasetID, row.FrequencyName, rowKey(row), path).Scan(&n); err != nil {
		return store.Entry{}, errs.Wrap(errs.CodeWriteFailure, err, "create entry %s", path).
			At(path, row.ID, row.FrequencyName)
	}
	if n > 0 {
		return store.Entry{}, errs.New(errs.CodeEntryExists, "entry already exists").
			At(path, row.ID, row.FrequencyName)
	}
	return store.Entry{Path: path, Datatype: dt, Row: row}, nil
}

// Get downloads an entry. Fileset blobs are written under the cache directory.
func (b *Backend) Get(ctx context.Context, entry store.Entry) (item.Item, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	row := entry.Row

	var (
		id, dtName string
		value      sql.NullString
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT id, datatype, value FROM entries
		WHERE dataset_id = ? AND frequency = ? AND row_key = ? AND path = ?
	`, row.DatasetID, row.FrequencyName, rowKey(row), entry.Path).Scan(&id, &dtName, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeEntryNotFound, "no content stored").
			At(entry.Path, row.ID, row.FrequencyName)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "get %s", entry.Path).
			At(entry.Path, row.ID, row.FrequencyName)
	}
	dt, err := item.Lookup(dtName)
	if err != nil {
		return nil, err
	}
	if value.Valid {
		return item.DecodeField(dt, value.String)
	}
	return b.download(ctx, id, dt)
}

// download writes an entry's blobs to <cache>/<entry id>/ and returns the fileset.
func (b *Backend) download(ctx context.Context, id string, dt item.Datatype) (*item.FileSet, error) {
	dir := filepath.Join(b.cfg.CacheDir, id)
	if err := os.RemoveAll(dir); err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "download %s", id)
	}

	rows, err := b.db.QueryContext(ctx, `SELECT name, content FROM blobs WHERE entry_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "download %s", id)
	}
	defer rows.Close()

	var members []string
	seen := map[string]bool{}
	for rows.Next() {
		var (
			name    string
			content []byte
		)
		if err := rows.Scan(&name, &content); err != nil {
			return nil, errs.Wrap(errs.CodeEntryNotFound, err, "download %s", id)
		}
		target := filepath.Join(dir, filepath.FromSlash(strings.TrimSuffix(name, "/")))
		if strings.HasSuffix(name, "/") {
			err = os.MkdirAll(target, 0o755)
		} else {
			err = writeBlob(target, content)
		}
		if err != nil {
			return nil, errs.Wrap(errs.CodeEntryNotFound, err, "download %s", id)
		}
		top, _, _ := strings.Cut(name, "/")
		if !seen[top] {
			seen[top] = true
			members = append(members, filepath.Join(dir, top))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "download %s", id)
	}
	return item.NewFileSet(dt, members...)
}

func writeBlob(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// blob is one uploaded file, or a directory marker when its name ends in '/'.
type blob struct {
	name    string
	content []byte
}

// collectBlobs reads a fileset's members into blobs named under the entry.
func collectBlobs(set *item.FileSet, entry store.Entry) ([]blob, error) {
	var blobs []blob
	for _, src := range set.Paths() {
		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}
		name := store.MemberName(entry, filepath.Base(src), info.IsDir())
		if !info.IsDir() {
			content, err := os.ReadFile(src)
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, blob{name: name, content: content})
			continue
		}
		err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			key := name
			if rel != "." {
				key = name + "/" + filepath.ToSlash(rel)
			}
			if d.IsDir() {
				blobs = append(blobs, blob{name: key + "/", content: []byte{}})
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			blobs = append(blobs, blob{name: key, content: content})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].name < blobs[j].name })
	return blobs, nil
}

// Put replaces the entry's catalogue row and blobs in one transaction, then
// returns the stored item as read back from the service.
func (b *Backend) Put(ctx context.Context, it item.Item, entry store.Entry) (item.Item, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	converted, err := item.Convert(it, entry.Datatype)
	if err != nil {
		return nil, err
	}
	row := entry.Row
	fail := func(err error) error {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot upload entry").
			At(entry.Path, row.ID, row.FrequencyName)
	}

	var (
		value sql.NullString
		blobs []blob
	)
	switch v := converted.(type) {
	case *item.Field:
		value = sql.NullString{String: v.Encode(), Valid: true}
	case *item.FileSet:
		if blobs, err = collectBlobs(v, entry); err != nil {
			return nil, fail(err)
		}
	}

	id := b.tokens.Generate()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fail(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entries
		WHERE dataset_id = ? AND frequency = ? AND row_key = ? AND path = ?
	`, row.DatasetID, row.FrequencyName, rowKey(row), entry.Path); err != nil {
		return nil, fail(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries (id, dataset_id, frequency, row_key, path, datatype, value, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, row.DatasetID, row.FrequencyName, rowKey(row), entry.Path, entry.Datatype.Name, value, b.clock.Next()); err != nil {
		return nil, fail(err)
	}
	for _, bl := range blobs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blobs (entry_id, name, content) VALUES (?, ?, ?)`,
			id, bl.name, bl.content,
		); err != nil {
			return nil, fail(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fail(err)
	}

	if field, ok := converted.(*item.Field); ok {
		return field, nil
	}
	stored, err := b.download(ctx, id, entry.Datatype)
	if err != nil {
		return nil, fail(err)
	}
	return stored, nil
}
