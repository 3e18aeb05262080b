package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/overchat/relay-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS service_registry (
	service_id      TEXT PRIMARY KEY,
	credential_hash TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS verified_identities (
	hardware_id      TEXT PRIMARY KEY,
	external_user_id INTEGER NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RegistryStore implementation ====

// GetServiceCredential returns the stored credential hash for a service.
func (s *SQLiteStore) GetServiceCredential(ctx context.Context, serviceID string) (string, error) {
	query := `SELECT credential_hash FROM service_registry WHERE service_id = ?`

	var hash string
	err := s.db.QueryRowContext(ctx, query, serviceID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query service credential: %w", err)
	}
	return hash, nil
}

// ListServices lists registered services, newest first.
func (s *SQLiteStore) ListServices(ctx context.Context) ([]*store.ServiceEntry, error) {
	query := `
		SELECT service_id, credential_hash, created_at
		FROM service_registry
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var entries []*store.ServiceEntry
	for rows.Next() {
		var e store.ServiceEntry
		if err := rows.Scan(&e.ServiceID, &e.CredentialHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return entries, nil
}

// UpsertService stores or replaces the credential hash for a service.
func (s *SQLiteStore) UpsertService(ctx context.Context, serviceID, credentialHash string) error {
	query := `
		INSERT INTO service_registry (service_id, credential_hash)
		VALUES (?, ?)
		ON CONFLICT (service_id)
		DO UPDATE SET credential_hash = excluded.credential_hash
	`
	if _, err := s.db.ExecContext(ctx, query, serviceID, credentialHash); err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

// RemoveService deletes a service entry.
func (s *SQLiteStore) RemoveService(ctx context.Context, serviceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM service_registry WHERE service_id = ?`, serviceID); err != nil {
		return fmt.Errorf("remove service: %w", err)
	}
	return nil
}

// ==== IdentityStore implementation ====

// GetExternalUserID resolves a hardware id to its linked external user id.
func (s *SQLiteStore) GetExternalUserID(ctx context.Context, hardwareID string) (int64, error) {
	query := `SELECT external_user_id FROM verified_identities WHERE hardware_id = ?`

	var id int64
	err := s.db.QueryRowContext(ctx, query, hardwareID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query identity link: %w", err)
	}
	return id, nil
}

// UpsertIdentityLink stores or replaces the link for a hardware id.
func (s *SQLiteStore) UpsertIdentityLink(ctx context.Context, hardwareID string, externalUserID int64) error {
	query := `
		INSERT INTO verified_identities (hardware_id, external_user_id)
		VALUES (?, ?)
		ON CONFLICT (hardware_id)
		DO UPDATE SET external_user_id = excluded.external_user_id
	`
	if _, err := s.db.ExecContext(ctx, query, hardwareID, externalUserID); err != nil {
		return fmt.Errorf("upsert identity link: %w", err)
	}
	return nil
}

// DeleteIdentityLink removes the link for a hardware id.
func (s *SQLiteStore) DeleteIdentityLink(ctx context.Context, hardwareID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM verified_identities WHERE hardware_id = ?`, hardwareID); err != nil {
		return fmt.Errorf("delete identity link: %w", err)
	}
	return nil
}
