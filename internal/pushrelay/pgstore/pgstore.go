// Package pgstore implements the push relay's device registry and delivery
// log on PostgreSQL.
package pgstore

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/astro5star/callshell/internal/pushrelay"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements pushrelay.DeviceStore and pushrelay.DeliveryLogger
// using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection and runs pending migrations.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("postgresql store opened")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (s *Store) migrate() error {
	// Ensure schema_migrations table exists.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

// RegisterDevice upserts a device row by token and returns it.
func (s *Store) RegisterDevice(userID, token, platform string) (*pushrelay.Device, error) {
	var d pushrelay.Device
	err := s.db.QueryRow(
		`INSERT INTO devices (user_id, token, platform)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token) DO UPDATE
		   SET user_id = EXCLUDED.user_id,
		       platform = EXCLUDED.platform,
		       last_seen_at = NOW()
		 RETURNING id, user_id, token, platform, registered_at, last_seen_at`,
		userID, token, platform,
	).Scan(&d.ID, &d.UserID, &d.Token, &d.Platform, &d.RegisteredAt, &d.LastSeenAt)

	if err != nil {
		return nil, fmt.Errorf("upserting device: %w", err)
	}
	return &d, nil
}

// DevicesForUser returns every device registered for a user.
func (s *Store) DevicesForUser(userID string) ([]pushrelay.Device, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, token, platform, registered_at, last_seen_at
		 FROM devices
		 WHERE user_id = $1
		 ORDER BY last_seen_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []pushrelay.Device
	for rows.Next() {
		var d pushrelay.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Token, &d.Platform, &d.RegisteredAt, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// RemoveDevice drops a device by token.
func (s *Store) RemoveDevice(token string) error {
	if _, err := s.db.Exec("DELETE FROM devices WHERE token = $1", token); err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// Log records the result of a push delivery attempt.
func (s *Store) Log(entry pushrelay.DeliveryLogEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO delivery_logs (user_id, platform, call_id, success, error)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.UserID, entry.Platform, entry.CallID, entry.Success, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}
	return nil
}
