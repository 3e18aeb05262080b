package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeGate struct {
	calls   atomic.Int64
	allowFn func(text string) (bool, error)
}

func (g *fakeGate) Classify(_ context.Context, text string) (bool, error) {
	g.calls.Add(1)
	if g.allowFn == nil {
		return true, nil
	}
	return g.allowFn(text)
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func awaitVerdict(t *testing.T, future <-chan Verdict) Verdict {
	t.Helper()
	select {
	case v := <-future:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for verdict")
		return Verdict{}
	}
}

func TestSubmitResolvesInFIFOOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	gate := &fakeGate{allowFn: func(text string) (bool, error) {
		order = append(order, text)
		return true, nil
	}}

	q := NewQueue(gate, 10, time.Millisecond, testLogger())
	go q.Run(ctx)

	futures := make([]<-chan Verdict, 0, 5)
	for i := 0; i < 5; i++ {
		futures = append(futures, q.Submit(fmt.Sprintf("msg-%d", i)))
	}

	for i, f := range futures {
		v := awaitVerdict(t, f)
		if !v.Allowed {
			t.Fatalf("message %d unexpectedly denied: %+v", i, v)
		}
	}

	for i, text := range order {
		if want := fmt.Sprintf("msg-%d", i); text != want {
			t.Fatalf("classification order broken at %d: got %s, want %s", i, text, want)
		}
	}
}

func TestSubmitFullQueueRejectsWithoutClassifying(t *testing.T) {
	gate := &fakeGate{}
	// No consumer running: submissions stay queued.
	q := NewQueue(gate, 2, time.Millisecond, testLogger())

	q.Submit("one")
	q.Submit("two")

	v := awaitVerdict(t, q.Submit("overflow"))
	if v.Allowed || v.Reason != ReasonQueueFull {
		t.Fatalf("expected queue_full verdict, got %+v", v)
	}
	if got := gate.calls.Load(); got != 0 {
		t.Fatalf("classifier invoked %d times for rejected item", got)
	}
}

func TestDeniedMessageGetsModerationReason(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := &fakeGate{allowFn: func(text string) (bool, error) {
		return !strings.Contains(text, "toxic"), nil
	}}
	q := NewQueue(gate, 10, time.Millisecond, testLogger())
	go q.Run(ctx)

	v := awaitVerdict(t, q.Submit("very toxic text"))
	if v.Allowed || v.Reason != ReasonModeration {
		t.Fatalf("expected moderation denial, got %+v", v)
	}

	v = awaitVerdict(t, q.Submit("friendly text"))
	if !v.Allowed {
		t.Fatalf("expected allow, got %+v", v)
	}
}

func TestGateErrorFailsClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := &fakeGate{allowFn: func(string) (bool, error) {
		return false, errors.New("analyzer unreachable")
	}}
	q := NewQueue(gate, 10, time.Millisecond, testLogger())
	go q.Run(ctx)

	v := awaitVerdict(t, q.Submit("anything"))
	if v.Allowed || v.Reason != ReasonAPIError {
		t.Fatalf("expected api_error denial, got %+v", v)
	}
}

func TestRunCancelResolvesPendingItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gate := &fakeGate{}
	q := NewQueue(gate, 10, time.Hour, testLogger()) // cooldown blocks after first item
	go q.Run(ctx)

	first := q.Submit("first")
	awaitVerdict(t, first)

	pending := q.Submit("stuck behind cooldown")
	cancel()

	v := awaitVerdict(t, pending)
	if v.Allowed {
		t.Fatalf("pending item resolved allowed after shutdown: %+v", v)
	}
}
