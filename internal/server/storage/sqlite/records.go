package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/runsync/internal/models"
	"github.com/iudanet/runsync/internal/server/storage"
)

// ListRecords returns all records of a collection ordered by id
func (s *Storage) ListRecords(ctx context.Context, collection string) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*models.Record, 0)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record, err := decodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", collection, id, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// GetRecord retrieves a record
// Returns ErrRecordNotFound if it doesn't exist
func (s *Storage) GetRecord(ctx context.Context, collection, id string) (*models.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("record %s/%s: %w", collection, id, err)
	}
	return record, nil
}

// InsertRecord stores a new record
// Returns ErrRecordExists if the id is taken
func (s *Storage) InsertRecord(ctx context.Context, collection string, record *models.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, record.ID(), string(data), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrRecordExists
	}
	return nil
}

// UpdateRecord replaces an existing record
// Returns ErrRecordNotFound if it doesn't exist
func (s *Storage) UpdateRecord(ctx context.Context, collection string, record *models.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(data), s.now().Unix(), collection, record.ID())
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return requireAffected(res)
}

// DeleteRecord removes a record
// Returns ErrRecordNotFound if it doesn't exist
func (s *Storage) DeleteRecord(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

func decodeRecord(data string) (*models.Record, error) {
	record := models.NewRecord()
	if err := json.Unmarshal([]byte(data), record); err != nil {
		return nil, err
	}
	return record, nil
}
