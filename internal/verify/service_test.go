package verify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/store/sqlite"
)

type fakeResolver struct {
	users        map[string]int64
	profiles     map[int64]*Profile
	profileCalls atomic.Int64
	fail         bool
}

func (r *fakeResolver) LookupUser(_ context.Context, username string) (int64, error) {
	if r.fail {
		return 0, errors.New("resolver down")
	}
	id, ok := r.users[username]
	if !ok {
		return 0, ErrUserNotFound
	}
	return id, nil
}

func (r *fakeResolver) FetchProfile(_ context.Context, userID int64) (*Profile, error) {
	r.profileCalls.Add(1)
	if r.fail {
		return nil, errors.New("resolver down")
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return p, nil
}

func newService(t *testing.T, resolver Resolver) (*Service, *sqlite.SQLiteStore) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	l := zerolog.Nop()
	return NewService(resolver, st, &l), st
}

func TestGenerateAndConfirm(t *testing.T) {
	resolver := &fakeResolver{
		users:    map[string]int64{"builderman": 156},
		profiles: map[int64]*Profile{156: {ID: 156, Name: "builderman", Description: ""}},
	}
	svc, _ := newService(t, resolver)
	ctx := context.Background()

	code, userID, err := svc.GenerateCode(ctx, "builderman")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if userID != 156 {
		t.Fatalf("got user id %d, want 156", userID)
	}
	if !strings.HasPrefix(code, "RC-") || len(code) != len("RC-")+6 {
		t.Fatalf("unexpected code shape: %q", code)
	}

	// Code not yet in the profile.
	if err := svc.Confirm(ctx, userID, "hwid-1"); !errors.Is(err, ErrCodeNotInProfile) {
		t.Fatalf("expected ErrCodeNotInProfile, got %v", err)
	}

	resolver.profiles[156].Description = "my profile " + code
	if err := svc.Confirm(ctx, userID, "hwid-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	name, verified := svc.ResolveDisplayName(ctx, "hwid-1")
	if !verified || name != "builderman" {
		t.Fatalf("resolve after confirm: name=%q verified=%v", name, verified)
	}

	// The code is single-use.
	if err := svc.Confirm(ctx, userID, "hwid-1"); !errors.Is(err, ErrNoPendingCode) {
		t.Fatalf("expected ErrNoPendingCode on reuse, got %v", err)
	}
}

func TestConfirmWithoutPendingCode(t *testing.T) {
	svc, _ := newService(t, &fakeResolver{})
	if err := svc.Confirm(context.Background(), 42, "hwid-1"); !errors.Is(err, ErrNoPendingCode) {
		t.Fatalf("expected ErrNoPendingCode, got %v", err)
	}
}

func TestGenerateUnknownUsername(t *testing.T) {
	svc, _ := newService(t, &fakeResolver{users: map[string]int64{}})
	if _, _, err := svc.GenerateCode(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResolveDisplayNameCachesNames(t *testing.T) {
	resolver := &fakeResolver{
		profiles: map[int64]*Profile{156: {ID: 156, Name: "builderman"}},
	}
	svc, st := newService(t, resolver)
	ctx := context.Background()

	if err := st.UpsertIdentityLink(ctx, "hwid-1", 156); err != nil {
		t.Fatalf("seed link: %v", err)
	}

	for i := 0; i < 3; i++ {
		name, verified := svc.ResolveDisplayName(ctx, "hwid-1")
		if !verified || name != "builderman" {
			t.Fatalf("resolve %d: name=%q verified=%v", i, name, verified)
		}
	}

	if calls := resolver.profileCalls.Load(); calls != 1 {
		t.Fatalf("expected 1 profile fetch thanks to the cache, got %d", calls)
	}
}

func TestResolveDisplayNameFallsBackOnResolverOutage(t *testing.T) {
	resolver := &fakeResolver{fail: true}
	svc, st := newService(t, resolver)
	ctx := context.Background()

	if err := st.UpsertIdentityLink(ctx, "hwid-1", 156); err != nil {
		t.Fatalf("seed link: %v", err)
	}

	name, verified := svc.ResolveDisplayName(ctx, "hwid-1")
	if !verified {
		t.Fatal("link is persisted, identity should still count as verified")
	}
	if name != "User:156" {
		t.Fatalf("expected synthetic fallback label, got %q", name)
	}
}

func TestUnverifyRemovesLink(t *testing.T) {
	resolver := &fakeResolver{
		profiles: map[int64]*Profile{156: {ID: 156, Name: "builderman"}},
	}
	svc, st := newService(t, resolver)
	ctx := context.Background()

	if err := st.UpsertIdentityLink(ctx, "hwid-1", 156); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	if err := svc.Unverify(ctx, "hwid-1"); err != nil {
		t.Fatalf("unverify: %v", err)
	}

	if _, verified := svc.ResolveDisplayName(ctx, "hwid-1"); verified {
		t.Fatal("unlinked hardware id must resolve as unverified")
	}
}
