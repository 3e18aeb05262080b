package identity

import "testing"

func TestAnonymousKeyStablePerAddress(t *testing.T) {
	h := NewHasher("secret-salt")

	first := h.AnonymousKey("10.0.0.1:51234")
	second := h.AnonymousKey("10.0.0.1:51234")
	if first != second {
		t.Fatalf("same address produced different keys: %s vs %s", first, second)
	}

	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}

func TestAnonymousKeyChangesWithPortAndSalt(t *testing.T) {
	h := NewHasher("secret-salt")

	base := h.AnonymousKey("10.0.0.1:51234")
	if other := h.AnonymousKey("10.0.0.1:51235"); other == base {
		t.Fatal("different ports must produce different keys")
	}

	otherSalt := NewHasher("other-salt")
	if other := otherSalt.AnonymousKey("10.0.0.1:51234"); other == base {
		t.Fatal("different salts must produce different keys")
	}
}
