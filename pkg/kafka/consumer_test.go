package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type countingHandler struct {
	topic string
	calls int
	err   func(call int) error
}

func (h *countingHandler) Topic() string { return h.topic }

func (h *countingHandler) Handle(_ context.Context, _ []byte) error {
	h.calls++
	return h.err(h.calls)
}

func newTestConsumer(t *testing.T) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(3, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestHandleRetriesTransientErrors(t *testing.T) {
	c := newTestConsumer(t)
	h := &countingHandler{topic: "snapshots", err: func(call int) error {
		if call < 3 {
			return errors.New("downstream busy")
		}
		return nil
	}}

	var failed bool
	c.WithConsumerHook(HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { failed = true }})
	c.handle(h, &message{topic: "snapshots", data: []byte(`{}`)})

	if h.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", h.calls)
	}
	if failed {
		t.Fatalf("OnError must not fire when a retry succeeds")
	}
}

func TestHandleSkipsRetriesForPermanentErrors(t *testing.T) {
	c := newTestConsumer(t)
	h := &countingHandler{topic: "snapshots", err: func(int) error {
		return Permanent(fmt.Errorf("decode: %w", errors.New("bad json")))
	}}

	var got error
	c.WithConsumerHook(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { got = err }})
	c.handle(h, &message{topic: "snapshots"})

	if h.calls != 1 {
		t.Fatalf("permanent failures must not be retried, calls=%d", h.calls)
	}
	if !errors.Is(got, ErrPermanent) {
		t.Fatalf("expected permanent error in hook, got %v", got)
	}
}

func TestHandleGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t)
	h := &countingHandler{topic: "snapshots", err: func(int) error { return errors.New("still down") }}

	c.handle(h, &message{topic: "snapshots"})

	if h.calls != 4 {
		t.Fatalf("expected 1 try + 3 retries, got %d", h.calls)
	}
}

func TestHandleBeforeHookRejects(t *testing.T) {
	c := newTestConsumer(t)
	h := &countingHandler{topic: "snapshots", err: func(int) error { return nil }}
	c.WithConsumerHook(HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
		return ctx, km, data, errors.New("rejected")
	}})

	c.handle(h, &message{topic: "snapshots"})
	if h.calls != 0 {
		t.Fatalf("handler must not run when BeforeHandle fails")
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		if d <= 0 || d > 100*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
