// Package mailbox buffers out-of-band command payloads for consumers that
// cannot hold a persistent connection and must poll instead. Entries expire
// after a short TTL so mailboxes never grow without bound when a consumer
// stops polling, and reads are destructive for at-most-once delivery per
// poll cycle.
package mailbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type entry struct {
	payload   json.RawMessage
	expiresAt time.Time
}

// Store is the per-recipient ephemeral outbox.
type Store struct {
	mu    sync.Mutex
	boxes map[string][]entry
	ttl   time.Duration
	sweep time.Duration
	log   *zerolog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewStore creates a mailbox store with the given entry TTL and sweep interval.
func NewStore(ttl, sweep time.Duration, logger *zerolog.Logger) *Store {
	return &Store{
		boxes: make(map[string][]entry),
		ttl:   ttl,
		sweep: sweep,
		log:   logger,
		now:   time.Now,
	}
}

// Push appends payloads to the recipient's mailbox, each stamped with now+TTL.
func (s *Store) Push(recipientKey string, payloads ...json.RawMessage) {
	if len(payloads) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	box := s.boxes[recipientKey]
	for _, p := range payloads {
		box = append(box, entry{payload: p, expiresAt: expiresAt})
	}
	s.boxes[recipientKey] = box
}

// Drain atomically takes all unexpired payloads for the recipient and deletes
// the mailbox. Entries that expired in the same instant are dropped from the
// result but removed regardless. A missing recipient yields an empty slice.
func (s *Store) Drain(recipientKey string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	box, ok := s.boxes[recipientKey]
	if !ok {
		return []json.RawMessage{}
	}
	delete(s.boxes, recipientKey)

	now := s.now()
	payloads := make([]json.RawMessage, 0, len(box))
	for _, e := range box {
		if e.expiresAt.After(now) {
			payloads = append(payloads, e.payload)
		}
	}
	return payloads
}

// Run sweeps expired entries on a fixed interval until ctx is cancelled.
// The sweep bounds memory for recipients that never poll.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.sweepExpired(); removed > 0 {
				s.log.Debug().Int("mailboxes", removed).Msg("swept expired mailboxes")
			}
		}
	}
}

func (s *Store) sweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, box := range s.boxes {
		fresh := box[:0]
		for _, e := range box {
			if e.expiresAt.After(now) {
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			delete(s.boxes, key)
			removed++
		} else {
			s.boxes[key] = fresh
		}
	}
	return removed
}
