package remote

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// labelSep joins hierarchy labels into a leaf key.
const labelSep = "/"

// rowKey identifies a row within a dataset and frequency.
func rowKey(row store.RowRef) string {
	if row.IsLeaf() {
		return strings.Join(row.Path, labelSep)
	}
	return row.ID
}

// CreateDataTree registers the dataset and its leaves in one transaction.
func (b *Backend) CreateDataTree(ctx context.Context, datasetID string, leaves [][]string) error {
	if err := b.guard(); err != nil {
		return err
	}
	depth := 0
	if len(leaves) > 0 {
		depth = len(leaves[0])
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "create tree %q: begin tx", datasetID)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO datasets (id, depth, created_seq) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, datasetID, depth, b.clock.Next()); err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "create tree %q", datasetID)
	}

	for _, leaf := range leaves {
		for _, label := range leaf {
			if label == "" || strings.Contains(label, labelSep) {
				return errs.New(errs.CodeWriteFailure, "create tree %q: invalid label %q", datasetID, label)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO leaves (dataset_id, labels, seq) VALUES (?, ?, ?)
			ON CONFLICT(dataset_id, labels) DO NOTHING
		`, datasetID, strings.Join(leaf, labelSep), b.clock.Next()); err != nil {
			return errs.Wrap(errs.CodeWriteFailure, err, "create tree %q", datasetID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "create tree %q: commit", datasetID)
	}
	return nil
}

// ScanTree returns every leaf whose label path has the requested depth.
func (b *Backend) ScanTree(ctx context.Context, datasetID string, depth int) ([][]string, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}

	var stored int
	err := b.db.QueryRowContext(ctx, `SELECT depth FROM datasets WHERE id = ?`, datasetID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeEntryNotFound, "no dataset %q on the service", datasetID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan tree %q", datasetID)
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT labels FROM leaves WHERE dataset_id = ? ORDER BY labels`, datasetID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan tree %q", datasetID)
	}
	defer rows.Close()

	var leaves [][]string
	for rows.Next() {
		var labels string
		if err := rows.Scan(&labels); err != nil {
			return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan tree %q", datasetID)
		}
		leaf := strings.Split(labels, labelSep)
		if len(leaf) != depth {
			continue
		}
		leaves = append(leaves, leaf)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "scan tree %q", datasetID)
	}
	return leaves, nil
}
