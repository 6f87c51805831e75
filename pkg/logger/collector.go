package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated error batches somewhere outside the process.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectorConfig struct {
	FlushInterval  time.Duration
	CountThreshold int // unique entries before an early flush
	Topic          string
	Publisher      Publisher
}

type AggregatedEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorCollector deduplicates error entries by (level, message, fields,
// caller) and publishes them in batches.
type ErrorCollector struct {
	cfg     CollectorConfig
	entries map[string]*AggregatedEntry
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  sync.Once
}

func NewErrorCollector(cfg CollectorConfig) *ErrorCollector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &ErrorCollector{
		cfg:     cfg,
		entries: make(map[string]*AggregatedEntry),
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.loop(ctx)

	return c
}

func (c *ErrorCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.entries[key] = &AggregatedEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked(false)
	}
}

// Pending reports how many unique entries are waiting for a flush.
func (c *ErrorCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	// encoding/json sorts map keys, so the digest is stable
	data, _ := json.Marshal(struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller})
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func (c *ErrorCollector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked(false)
			c.mu.Unlock()
		case <-ctx.Done():
			c.mu.Lock()
			c.flushLocked(true)
			c.mu.Unlock()
			return
		}
	}
}

func (c *ErrorCollector) flushLocked(sync bool) {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return
	}

	batch := make([]AggregatedEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		batch = append(batch, *entry)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	c.entries = make(map[string]*AggregatedEntry)

	publish := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// the logger itself is the failing path, so report on stderr
			fmt.Fprintf(os.Stderr, "error collector: publish failed: %v\n", err)
		}
	}
	if sync {
		publish()
		return
	}
	go publish()
}

// Close flushes what is left and stops the background loop.
func (c *ErrorCollector) Close() {
	c.closed.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}
