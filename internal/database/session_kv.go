package database

import (
	"context"
	"fmt"
)

// sessionKVRepo implements SessionKVRepository on the sqlite session_store table.
type sessionKVRepo struct {
	db *DB
}

// NewSessionKVRepository creates a new SessionKVRepository.
func NewSessionKVRepository(db *DB) SessionKVRepository {
	return &sessionKVRepo{db: db}
}

// GetAll returns every key/value pair in the session store.
func (r *sessionKVRepo) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM session_store`)
	if err != nil {
		return nil, fmt.Errorf("querying session store: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// SetAll replaces the entire session store with the given values in one
// transaction, so readers never observe a half-written session.
func (r *sessionKVRepo) SetAll(ctx context.Context, values map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_store`); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing session store: %w", err)
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_store (key, value, updated_at) VALUES (?, ?, datetime('now'))`,
			k, v,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing session key %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session store: %w", err)
	}
	return nil
}

// Clear removes every key from the session store atomically.
func (r *sessionKVRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_store`); err != nil {
		return fmt.Errorf("clearing session store: %w", err)
	}
	return nil
}
