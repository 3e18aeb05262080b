package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reason explains why a message was denied.
type Reason string

const (
	ReasonModeration Reason = "moderation"
	ReasonQueueFull  Reason = "queue_full"
	ReasonAPIError   Reason = "api_error"
)

// Verdict is the allow/deny result for one message.
type Verdict struct {
	Allowed bool
	Reason  Reason
}

type item struct {
	text   string
	result chan Verdict
}

// Queue serializes gate calls to respect the analyzer's rate limit. Items
// are classified strictly in submission order by a single consumer loop,
// with a fixed cooldown between calls.
type Queue struct {
	gate     Gate
	items    chan item
	cooldown time.Duration
	log      *zerolog.Logger
}

// NewQueue creates a queue bounded at capacity with the given cooldown.
func NewQueue(gate Gate, capacity int, cooldown time.Duration, logger *zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		gate:     gate,
		items:    make(chan item, capacity),
		cooldown: cooldown,
		log:      logger,
	}
}

// Submit enqueues text for classification and returns a future verdict.
// The returned channel receives exactly one value. When the queue is full
// the verdict resolves immediately with ReasonQueueFull and the classifier
// is never invoked for the item.
func (q *Queue) Submit(text string) <-chan Verdict {
	result := make(chan Verdict, 1)
	select {
	case q.items <- item{text: text, result: result}:
	default:
		result <- Verdict{Allowed: false, Reason: ReasonQueueFull}
	}
	return result
}

// Run consumes the queue until ctx is cancelled. It owns all gate calls;
// there is exactly one classification in flight at a time.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return ctx.Err()
		case it := <-q.items:
			it.result <- q.classify(ctx, it.text)

			// Cooldown applies regardless of outcome.
			select {
			case <-ctx.Done():
				q.drain()
				return ctx.Err()
			case <-time.After(q.cooldown):
			}
		}
	}
}

func (q *Queue) classify(ctx context.Context, text string) Verdict {
	allowed, err := q.gate.Classify(ctx, text)
	if err != nil {
		// Fail closed. The message text is deliberately not logged.
		q.log.Warn().Err(err).Msg("classifier call failed")
		return Verdict{Allowed: false, Reason: ReasonAPIError}
	}
	if !allowed {
		return Verdict{Allowed: false, Reason: ReasonModeration}
	}
	return Verdict{Allowed: true}
}

// drain resolves queued items as api_error so no caller blocks forever.
func (q *Queue) drain() {
	for {
		select {
		case it := <-q.items:
			it.result <- Verdict{Allowed: false, Reason: ReasonAPIError}
		default:
			return
		}
	}
}
