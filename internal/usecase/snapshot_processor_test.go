package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BookPulse/internal/domain/models"

	"github.com/shopspring/decimal"
)

// recordingStore captures every batch it receives.
type recordingStore struct {
	mu      sync.Mutex
	batches [][]*models.OrderBookSnapshot
	fail    bool
	closed  bool
}

func (s *recordingStore) Init(ctx context.Context) error { return nil }

func (s *recordingStore) Store(ctx context.Context, snap *models.OrderBookSnapshot) error {
	return s.StoreBatch(ctx, []*models.OrderBookSnapshot{snap})
}

func (s *recordingStore) StoreBatch(ctx context.Context, snaps []*models.OrderBookSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.batches = append(s.batches, snaps)
	return nil
}

func (s *recordingStore) Query(ctx context.Context, symbol string, from, to time.Time) ([]*models.OrderBookSnapshot, error) {
	return nil, nil
}

func (s *recordingStore) Health(ctx context.Context) error { return nil }

func (s *recordingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// nopMetrics satisfies the Metrics interface for tests.
type nopMetrics struct{}

func (nopMetrics) RecordAnalysis(operation, symbol string)         {}
func (nopMetrics) RecordError(kind string)                         {}
func (nopMetrics) RecordSnapshotStored(symbol string, count int)   {}
func (nopMetrics) RecordStreamState(symbol string, connected bool) {}
func (nopMetrics) RecordLatency(op string, seconds float64)        {}

func testSnap(symbol string) *models.OrderBookSnapshot {
	return &models.OrderBookSnapshot{
		Symbol:     symbol,
		CapturedAt: time.Now(),
		Bids:       []models.PriceLevel{{Price: decimal.RequireFromString("100"), Quantity: decimal.RequireFromString("1")}},
		Asks:       []models.PriceLevel{{Price: decimal.RequireFromString("101"), Quantity: decimal.RequireFromString("1")}},
	}
}

func TestSnapshotProcessorFlushesAtBatchSize(t *testing.T) {
	store := &recordingStore{}
	proc := NewSnapshotProcessor(store, nopMetrics{}, 3, time.Hour)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := proc.Process(ctx, testSnap("BTCUSDT")); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	// 7 snapshots at batch size 3: two full batches, one still queued.
	if got := store.batchCount(); got != 2 {
		t.Fatalf("flushed %d batches, want 2", got)
	}
	if got := len(store.batches[0]); got != 3 {
		t.Errorf("first batch has %d snapshots, want 3", got)
	}

	if err := proc.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := store.batchCount(); got != 3 {
		t.Errorf("after close: %d batches, want 3", got)
	}
	if got := len(store.batches[2]); got != 1 {
		t.Errorf("final batch has %d snapshots, want 1", got)
	}
	if !store.closed {
		t.Error("store was not closed")
	}
}

func TestSnapshotProcessorFlushEmptyIsNoop(t *testing.T) {
	store := &recordingStore{}
	proc := NewSnapshotProcessor(store, nopMetrics{}, 10, time.Hour)

	if err := proc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := store.batchCount(); got != 0 {
		t.Errorf("flushed %d batches, want 0", got)
	}
}

func TestSnapshotProcessorStoreError(t *testing.T) {
	store := &recordingStore{fail: true}
	proc := NewSnapshotProcessor(store, nopMetrics{}, 1, time.Hour)

	err := proc.Process(context.Background(), testSnap("BTCUSDT"))
	if err == nil {
		t.Fatal("Process() expected error when store fails")
	}
}

func TestSnapshotProcessorRejectsNil(t *testing.T) {
	proc := NewSnapshotProcessor(&recordingStore{}, nopMetrics{}, 10, time.Hour)
	if err := proc.Process(context.Background(), nil); err == nil {
		t.Error("Process(nil) expected error")
	}
}
