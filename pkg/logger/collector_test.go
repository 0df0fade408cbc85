package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (c *capturePublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		c.batches = append(c.batches, logs)
	}
	return nil
}

func (c *capturePublisher) snapshot() (int, [][]AggregatedLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics), c.batches
}

func waitForBatches(t *testing.T, pub *capturePublisher, want int) [][]AggregatedLogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, batches := pub.snapshot()
		if n >= want {
			return batches
		}
		if time.Now().After(deadline) {
			t.Fatalf("published batches = %d, want %d", n, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCollectorAggregatesAndFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	col := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour, // flush by count, not by time
		CountThreshold: 2,
		Topic:          "bookpulse.logs",
		Publisher:      pub,
	})
	defer col.Close()

	// Same signature twice: one entry with count 2, below the threshold.
	col.AddLog("error", "snapshot store unreachable", map[string]interface{}{"symbol": "BTCUSDT"}, "a.go:1")
	col.AddLog("error", "snapshot store unreachable", map[string]interface{}{"symbol": "BTCUSDT"}, "a.go:1")
	if n, _ := pub.snapshot(); n != 0 {
		t.Fatalf("flushed %d batches before threshold, want 0", n)
	}

	// A second unique entry reaches the threshold and triggers a flush.
	col.AddLog("error", "alert publish failed", nil, "b.go:2")
	batches := waitForBatches(t, pub, 1)

	if len(batches[0]) != 2 {
		t.Fatalf("flushed entries = %d, want 2", len(batches[0]))
	}
	var dup *AggregatedLogEntry
	for i := range batches[0] {
		if batches[0][i].Message == "snapshot store unreachable" {
			dup = &batches[0][i]
		}
	}
	if dup == nil {
		t.Fatal("deduplicated entry missing from flush")
	}
	if dup.Count != 2 {
		t.Errorf("Count = %d, want 2", dup.Count)
	}
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{}
	col := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "bookpulse.logs",
		Publisher:      pub,
	})

	col.AddLog("error", "clickhouse write failed", nil, "c.go:3")
	col.Close()

	batches := waitForBatches(t, pub, 1)
	if len(batches[0]) != 1 {
		t.Fatalf("flushed entries = %d, want 1", len(batches[0]))
	}
	if batches[0][0].Message != "clickhouse write failed" {
		t.Errorf("Message = %q, want the pending entry", batches[0][0].Message)
	}
}
