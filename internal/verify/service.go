// Package verify links anonymous hardware identifiers to external user
// identities. The flow: mint a one-time code for a claimed username, the
// user places the code in their public profile text, confirmation checks the
// profile and persists the link.
package verify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/store"
)

var (
	// ErrUserNotFound is returned when the claimed username does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoPendingCode is returned when confirmation arrives without a
	// previously generated code.
	ErrNoPendingCode = errors.New("no pending verification")
	// ErrCodeNotInProfile is returned when the profile text does not contain
	// the expected code.
	ErrCodeNotInProfile = errors.New("code not found in profile description")
)

const (
	codePrefix = "RC-"
	codeLength = 6
	codeChars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Service implements the verification flow and verified display name lookup.
type Service struct {
	resolver Resolver
	links    store.IdentityStore
	log      *zerolog.Logger

	mu      sync.Mutex
	pending map[int64]string // external user id -> expected code
	names   map[int64]string // resolved name cache, avoids API spam
}

// NewService creates a verification service.
func NewService(resolver Resolver, links store.IdentityStore, logger *zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		links:    links,
		log:      logger,
		pending:  make(map[int64]string),
		names:    make(map[int64]string),
	}
}

// GenerateCode resolves the claimed username and mints a one-time code the
// user must place in their profile description.
func (s *Service) GenerateCode(ctx context.Context, username string) (code string, userID int64, err error) {
	userID, err = s.resolver.LookupUser(ctx, username)
	if err != nil {
		return "", 0, err
	}

	code, err = newCode()
	if err != nil {
		return "", 0, fmt.Errorf("generate code: %w", err)
	}

	s.mu.Lock()
	s.pending[userID] = code
	s.mu.Unlock()

	s.log.Info().Int64("external_user_id", userID).Msg("verification code generated")
	return code, userID, nil
}

// Confirm checks the user's profile for the pending code and persists the
// hardware id link on success. The pending code is consumed on success and
// stays valid for retries otherwise.
func (s *Service) Confirm(ctx context.Context, userID int64, hardwareID string) error {
	s.mu.Lock()
	expected, ok := s.pending[userID]
	s.mu.Unlock()
	if !ok {
		return ErrNoPendingCode
	}

	profile, err := s.resolver.FetchProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	if !strings.Contains(profile.Description, expected) {
		return ErrCodeNotInProfile
	}

	if err := s.links.UpsertIdentityLink(ctx, hardwareID, userID); err != nil {
		return fmt.Errorf("persist identity link: %w", err)
	}

	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()

	s.log.Info().Int64("external_user_id", userID).Msg("identity verified")
	return nil
}

// Unverify removes the link for a hardware id.
func (s *Service) Unverify(ctx context.Context, hardwareID string) error {
	if err := s.links.DeleteIdentityLink(ctx, hardwareID); err != nil {
		return fmt.Errorf("delete identity link: %w", err)
	}
	s.log.Info().Msg("identity link removed")
	return nil
}

// ResolveDisplayName maps a hardware id to its verified display name. When
// no link exists the second return is false and the caller keeps the guest
// label. A resolver outage falls back to a synthetic "User:{id}" label; the
// link itself is still trusted.
func (s *Service) ResolveDisplayName(ctx context.Context, hardwareID string) (string, bool) {
	userID, err := s.links.GetExternalUserID(ctx, hardwareID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("identity link lookup failed")
		return "", false
	}

	return s.displayName(ctx, userID), true
}

func (s *Service) displayName(ctx context.Context, userID int64) string {
	s.mu.Lock()
	cached, ok := s.names[userID]
	s.mu.Unlock()
	if ok {
		return cached
	}

	profile, err := s.resolver.FetchProfile(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("external_user_id", userID).Msg("name resolution failed")
		return fmt.Sprintf("User:%d", userID)
	}

	s.mu.Lock()
	s.names[userID] = profile.Name
	s.mu.Unlock()
	return profile.Name
}

func newCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeChars[n.Int64()]
	}
	return codePrefix + string(buf), nil
}
