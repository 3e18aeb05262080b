// Package registry authenticates external game-server instances against
// persisted service credentials.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/overchat/relay-server/internal/store"
)

// bcryptCost matches the cost used everywhere credentials are hashed.
// Cost of 10 balances security against verification latency.
const bcryptCost = 10

// placeholderHash is a bcrypt hash of a throwaway value at bcryptCost. When
// a service id is unknown we still compare against it so the response time
// does not reveal whether the id exists.
const placeholderHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Authenticator validates service credentials with constant-time comparison.
type Authenticator struct {
	store store.RegistryStore
	log   *zerolog.Logger
}

// NewAuthenticator creates an authenticator over the persisted registry.
func NewAuthenticator(st store.RegistryStore, logger *zerolog.Logger) *Authenticator {
	return &Authenticator{store: st, log: logger}
}

// Authenticate reports whether the presented credential matches the one
// registered for serviceID. Unknown ids and wrong credentials are
// indistinguishable by timing.
func (a *Authenticator) Authenticate(ctx context.Context, serviceID, presented string) (bool, error) {
	if serviceID == "" || presented == "" {
		// Burn the same comparison cost so empty inputs are not
		// timing-distinguishable from wrong ones.
		_ = bcrypt.CompareHashAndPassword([]byte(placeholderHash), []byte(presented))
		return false, nil
	}

	hash, err := a.store.GetServiceCredential(ctx, serviceID)
	if errors.Is(err, store.ErrNotFound) {
		// Burn the same comparison cost as the known-id path.
		_ = bcrypt.CompareHashAndPassword([]byte(placeholderHash), []byte(presented))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load service credential: %w", err)
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil, nil
}

// Upsert registers or replaces a service credential. Only the bcrypt hash is
// stored.
func (a *Authenticator) Upsert(ctx context.Context, serviceID, credential string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash credential: %w", err)
	}
	if err := a.store.UpsertService(ctx, serviceID, string(hash)); err != nil {
		return err
	}
	a.log.Info().Str("service_id", serviceID).Msg("service credential upserted")
	return nil
}

// Remove deletes a service entry.
func (a *Authenticator) Remove(ctx context.Context, serviceID string) error {
	if err := a.store.RemoveService(ctx, serviceID); err != nil {
		return err
	}
	a.log.Info().Str("service_id", serviceID).Msg("service removed from registry")
	return nil
}

// List returns the registered services.
func (a *Authenticator) List(ctx context.Context) ([]*store.ServiceEntry, error) {
	return a.store.ListServices(ctx)
}
