package mailbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testStore() *Store {
	l := zerolog.Nop()
	return NewStore(5*time.Second, 5*time.Second, &l)
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

func TestDrainIsDestructive(t *testing.T) {
	s := testStore()

	s.Push("job1", raw(`{"a":1}`))

	got := s.Drain("job1")
	if len(got) != 1 || string(got[0]) != `{"a":1}` {
		t.Fatalf("unexpected first drain: %v", got)
	}

	if second := s.Drain("job1"); len(second) != 0 {
		t.Fatalf("second drain must be empty, got %v", second)
	}
}

func TestDrainUnknownRecipientReturnsEmpty(t *testing.T) {
	s := testStore()
	if got := s.Drain("nobody"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestPushMultiplePayloadsKeepsOrder(t *testing.T) {
	s := testStore()

	s.Push("job1", raw(`{"n":1}`), raw(`{"n":2}`))
	s.Push("job1", raw(`{"n":3}`))

	got := s.Drain("job1")
	if len(got) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(got))
	}
	for i, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if string(got[i]) != want {
			t.Fatalf("payload %d: got %s, want %s", i, got[i], want)
		}
	}
}

func TestExpiredEntriesAreNotReturned(t *testing.T) {
	s := testStore()

	current := time.Now()
	s.now = func() time.Time { return current }

	s.Push("job1", raw(`{"a":1}`))

	// 6s later with a 5s TTL: entry has expired but was never drained.
	current = current.Add(6 * time.Second)

	if got := s.Drain("job1"); len(got) != 0 {
		t.Fatalf("expired entries must be filtered out, got %v", got)
	}
}

func TestSweepRemovesFullyExpiredMailboxes(t *testing.T) {
	s := testStore()

	current := time.Now()
	s.now = func() time.Time { return current }

	s.Push("stale", raw(`{"a":1}`))
	s.Push("mixed", raw(`{"old":true}`))

	current = current.Add(6 * time.Second)
	s.Push("mixed", raw(`{"new":true}`))

	if removed := s.sweepExpired(); removed != 1 {
		t.Fatalf("expected 1 mailbox swept, got %d", removed)
	}

	got := s.Drain("mixed")
	if len(got) != 1 || string(got[0]) != `{"new":true}` {
		t.Fatalf("sweep should keep unexpired entries, got %v", got)
	}
	if got := s.Drain("stale"); len(got) != 0 {
		t.Fatalf("swept mailbox should be gone, got %v", got)
	}
}
