package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SignalDesk/pkg/logger"
)

type emailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
}

func TestParsePayload(t *testing.T) {
	raw, _ := json.Marshal(emailPayload{To: []string{"ops@example.com"}, Subject: "BTCUSDT STRONG_LONG"})

	got, err := ParsePayload[emailPayload](raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Subject != "BTCUSDT STRONG_LONG" || len(got.To) != 1 {
		t.Fatalf("unexpected payload %+v", got)
	}

	if _, err := ParsePayload[emailPayload](nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := ParsePayload[emailPayload](json.RawMessage(`{"to":`)); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestRetryAtGrowsLinearly(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := RetryAt(now, 30*time.Second, 1); !got.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("attempt 1: %v", got)
	}
	if got := RetryAt(now, 30*time.Second, 3); !got.Equal(now.Add(90 * time.Second)) {
		t.Fatalf("attempt 3: %v", got)
	}
	if got := RetryAt(now, 30*time.Second, 0); !got.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("attempt 0 should clamp to 1: %v", got)
	}
}

type nopJob struct{}

func (nopJob) Name() string { return "NopJob" }

func (nopJob) Type() string { return "nop" }

func (nopJob) Handle(context.Context, json.RawMessage) error { return nil }

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q := NewRedisQueue(logger.Nop(), nil, nil, WithKeyPrefix("test:queue"))
	q.RegisterJobs([]Job{nopJob{}, nopJob{}})

	err := q.Enqueue(context.Background(), "email.alert", map[string]string{"to": "ops@example.com"})
	if !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
	if q.keys.retry != "test:queue:retry" || q.keys.dead != "test:queue:dlq" {
		t.Fatalf("unexpected keys %+v", q.keys)
	}
	if q.config.Workers != 1 || q.config.JobTimeout != 2*time.Minute {
		t.Fatalf("defaults not applied: %+v", q.config)
	}
}

func TestStopWithoutStart(t *testing.T) {
	q := NewRedisQueue(logger.Nop(), &QueueConfig{Workers: 2}, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
