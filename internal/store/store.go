package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// ServiceEntry is one registered external game-server instance. Only the
// credential hash is ever persisted, never the raw credential.
type ServiceEntry struct {
	ServiceID      string
	CredentialHash string
	CreatedAt      time.Time
}

// IdentityLink maps an anonymous hardware identifier to a stable external
// user id. One link per hardware id.
type IdentityLink struct {
	HardwareID     string
	ExternalUserID int64
	CreatedAt      time.Time
}

// RegistryStore handles service credential persistence.
type RegistryStore interface {
	// GetServiceCredential returns the stored credential hash for a service.
	// Returns ErrNotFound for unknown service ids.
	GetServiceCredential(ctx context.Context, serviceID string) (string, error)

	// ListServices lists registered services, newest first. Credential
	// hashes are included; callers decide what to expose.
	ListServices(ctx context.Context) ([]*ServiceEntry, error)

	// UpsertService stores or replaces the credential hash for a service.
	UpsertService(ctx context.Context, serviceID, credentialHash string) error

	// RemoveService deletes a service entry. Removing an unknown id is a no-op.
	RemoveService(ctx context.Context, serviceID string) error
}

// IdentityStore handles verified identity link persistence.
type IdentityStore interface {
	// GetExternalUserID resolves a hardware id to its linked external user id.
	// Returns ErrNotFound when no link exists.
	GetExternalUserID(ctx context.Context, hardwareID string) (int64, error)

	// UpsertIdentityLink stores or replaces the link for a hardware id.
	UpsertIdentityLink(ctx context.Context, hardwareID string, externalUserID int64) error

	// DeleteIdentityLink removes the link. Unknown hardware ids are a no-op.
	DeleteIdentityLink(ctx context.Context, hardwareID string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	RegistryStore
	IdentityStore

	// Close closes the underlying database connection.
	Close() error
}
