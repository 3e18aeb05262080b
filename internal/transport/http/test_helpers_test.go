package http

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/config"
	"github.com/overchat/relay-server/internal/core"
	"github.com/overchat/relay-server/internal/identity"
	"github.com/overchat/relay-server/internal/mailbox"
	"github.com/overchat/relay-server/internal/moderation"
	"github.com/overchat/relay-server/internal/registry"
	"github.com/overchat/relay-server/internal/store/sqlite"
	"github.com/overchat/relay-server/internal/verify"
)

const testAdminKey = "test-admin-key"

// logBuffer collects log output for assertions. zerolog writes from several
// goroutines, so access is serialized.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// stubGate denies text containing "badword" and errors on "outage". Text
// containing "slowpath" blocks until the hold channel is closed, simulating
// a backed-up classifier.
type stubGate struct {
	hold chan struct{}
}

func (g *stubGate) Classify(_ context.Context, text string) (bool, error) {
	if strings.Contains(text, "slowpath") {
		<-g.hold
	}
	if strings.Contains(text, "outage") {
		return false, errors.New("analyzer unreachable")
	}
	return !strings.Contains(text, "badword"), nil
}

// stubResolver serves a single fixed external user.
type stubResolver struct {
	description string
}

func (r *stubResolver) LookupUser(_ context.Context, username string) (int64, error) {
	if username != "builderman" {
		return 0, verify.ErrUserNotFound
	}
	return 156, nil
}

func (r *stubResolver) FetchProfile(_ context.Context, userID int64) (*verify.Profile, error) {
	if userID != 156 {
		return nil, verify.ErrUserNotFound
	}
	return &verify.Profile{ID: userID, Name: "builderman", Description: r.description}, nil
}

type testEnv struct {
	srv       *httptest.Server
	channels  *core.Registry
	mailboxes *mailbox.Store
	auth      *registry.Authenticator
	resolver  *stubResolver
	gate      *stubGate
	logs      *logBuffer
}

// newTestEnv spins up the full transport surface over in-memory state with
// a stub moderation gate and resolver. Log output is captured for
// redaction assertions.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.AdminKey = testAdminKey
	cfg.ModerationCooldown = time.Millisecond
	cfg.HeartbeatInterval = time.Minute
	if mutate != nil {
		mutate(&cfg)
	}

	logs := &logBuffer{}
	logger := zerolog.New(logs)

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gate := &stubGate{hold: make(chan struct{})}
	queue := moderation.NewQueue(gate, cfg.ModerationQueueCap, cfg.ModerationCooldown, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go queue.Run(ctx)

	resolver := &stubResolver{}
	env := &testEnv{
		channels:  core.NewRegistry(&logger),
		mailboxes: mailbox.NewStore(cfg.MailboxTTL, cfg.MailboxSweep, &logger),
		auth:      registry.NewAuthenticator(st, &logger),
		resolver:  resolver,
		gate:      gate,
		logs:      logs,
	}

	server, _ := NewServer(Deps{
		Channels:  env.channels,
		Queue:     queue,
		Mailboxes: env.mailboxes,
		Auth:      env.auth,
		Verifier:  verify.NewService(resolver, st, &logger),
		Hasher:    identity.NewHasher("test-salt"),
	}, cfg, &logger)

	env.srv = httptest.NewServer(server.Handler)
	t.Cleanup(env.srv.Close)
	return env
}
