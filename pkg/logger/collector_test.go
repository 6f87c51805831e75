package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedEntry))
	return nil
}

func TestCollectorDeduplicatesAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewErrorCollector(CollectorConfig{FlushInterval: time.Hour, Topic: "errors", Publisher: pub})

	for i := 0; i < 3; i++ {
		c.Add("error", "fetch failed", map[string]interface{}{"symbol": "BTCUSDT"}, "a.go:1")
	}
	c.Add("error", "fetch failed", map[string]interface{}{"symbol": "ETHUSDT"}, "a.go:1")

	if got := c.Pending(); got != 2 {
		t.Fatalf("expected 2 unique entries, got %d", got)
	}

	c.Close()
	c.Close()

	if len(pub.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(pub.batches))
	}
	if pub.topics[0] != "errors" {
		t.Fatalf("unexpected topic %q", pub.topics[0])
	}
	total := 0
	for _, e := range pub.batches[0] {
		total += e.Count
	}
	if total != 4 {
		t.Fatalf("expected 4 occurrences, got %d", total)
	}
}

func TestLoggerFeedsCollector(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zerolog.DebugLevel)
	c := NewErrorCollector(CollectorConfig{FlushInterval: time.Hour})
	log.AttachCollector(c)
	defer log.Close()

	log.Info("ignored", String("k", "v"))
	log.Error("boom", String("symbol", "GC=F"), Int("attempt", 2))

	if c.Pending() != 1 {
		t.Fatalf("only error entries should be collected, pending=%d", c.Pending())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["symbol"] != "GC=F" || entry["message"] != "boom" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
