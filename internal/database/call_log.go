package database

import (
	"context"
	"fmt"

	"github.com/astro5star/callshell/internal/database/models"
)

// callLogRepo implements CallLogRepository.
type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

// Create inserts a new ringing call record.
func (r *callLogRepo) Create(ctx context.Context, rec *models.CallRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_log (call_id, session_id, caller_name, call_type, state, received_at)
		 VALUES (?, ?, ?, ?, 'ringing', datetime('now'))`,
		rec.CallID, rec.SessionID, rec.CallerName, rec.CallType,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// Finish records the terminal state of the most recent record for a call.
func (r *callLogRepo) Finish(ctx context.Context, callID, state, delivery string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_log SET state = ?, delivery = ?, decided_at = datetime('now')
		 WHERE id = (SELECT id FROM call_log WHERE call_id = ? ORDER BY id DESC LIMIT 1)`,
		state, delivery, callID,
	)
	if err != nil {
		return fmt.Errorf("finishing call record: %w", err)
	}
	return nil
}

// ListRecent returns the most recent call records, newest first.
func (r *callLogRepo) ListRecent(ctx context.Context, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, session_id, caller_name, call_type, state, delivery, received_at, decided_at
		 FROM call_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying call log: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.SessionID, &rec.CallerName,
			&rec.CallType, &rec.State, &rec.Delivery, &rec.ReceivedAt, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("scanning call record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
