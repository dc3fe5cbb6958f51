package remote

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// PutProvenance stores the record as canonical JSON, replacing any earlier record.
func (b *Backend) PutProvenance(ctx context.Context, prov record.Map, entry store.Entry) error {
	if err := b.guard(); err != nil {
		return err
	}
	row := entry.Row
	data, err := record.MarshalCanonical(prov)
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot serialise provenance").
			At(entry.Path, row.ID, row.FrequencyName)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO provenance (dataset_id, frequency, row_key, path, record, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id, frequency, row_key, path)
		DO UPDATE SET record = excluded.record, seq = excluded.seq
	`, row.DatasetID, row.FrequencyName, rowKey(row), entry.Path, string(data), b.clock.Next())
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot upload provenance").
			At(entry.Path, row.ID, row.FrequencyName)
	}
	return nil
}

// GetProvenance returns the record stored by PutProvenance.
func (b *Backend) GetProvenance(ctx context.Context, entry store.Entry) (record.Map, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	row := entry.Row
	var data string
	err := b.db.QueryRowContext(ctx, `
		SELECT record FROM provenance
		WHERE dataset_id = ? AND frequency = ? AND row_key = ? AND path = ?
	`, row.DatasetID, row.FrequencyName, rowKey(row), entry.Path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeEntryNotFound, "no provenance stored").
			At(entry.Path, row.ID, row.FrequencyName)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "get provenance %s", entry.Path).
			At(entry.Path, row.ID, row.FrequencyName)
	}
	prov, err := record.Decode([]byte(data))
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "corrupt provenance for %s", entry.Path).
			At(entry.Path, row.ID, row.FrequencyName)
	}
	return prov, nil
}

// SaveDatasetDefinition stores the definition as canonical JSON.
func (b *Backend) SaveDatasetDefinition(ctx context.Context, datasetID string, def record.Map, name string) error {
	if err := b.guard(); err != nil {
		return err
	}
	data, err := record.MarshalCanonical(def)
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot serialise definition %q", name)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO definitions (dataset_id, name, definition, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(dataset_id, name)
		DO UPDATE SET definition = excluded.definition, seq = excluded.seq
	`, datasetID, name, string(data), b.clock.Next())
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot upload definition %q", name)
	}
	return nil
}

// LoadDatasetDefinition returns a definition saved by SaveDatasetDefinition.
func (b *Backend) LoadDatasetDefinition(ctx context.Context, datasetID, name string) (record.Map, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	var data string
	err := b.db.QueryRowContext(ctx,
		`SELECT definition FROM definitions WHERE dataset_id = ? AND name = ?`,
		datasetID, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeEntryNotFound, "no definition named %q", name)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "load definition %q", name)
	}
	def, err := record.Decode([]byte(data))
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "corrupt definition %q", name)
	}
	return def, nil
}
