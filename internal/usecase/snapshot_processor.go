package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
)

// SnapshotProcessor accumulates snapshots and writes them to the store
// in batches: a batch flushes when it reaches the size limit or when
// the timeout fires, whichever is first.
type SnapshotProcessor struct {
	store   drepo.SnapshotStore
	metrics drepo.Metrics
	batchSz int
	batchTO time.Duration

	mu  sync.Mutex
	buf []*models.OrderBookSnapshot

	stopCh  chan struct{}
	stopped sync.Once
}

// NewSnapshotProcessor creates a new SnapshotProcessor instance.
func NewSnapshotProcessor(store drepo.SnapshotStore, metrics drepo.Metrics, batchSz int, batchTO time.Duration) *SnapshotProcessor {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	return &SnapshotProcessor{
		store:   store,
		metrics: metrics,
		batchSz: batchSz,
		batchTO: batchTO,
		buf:     make([]*models.OrderBookSnapshot, 0, batchSz),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the timed flush loop.
func (p *SnapshotProcessor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.batchTO)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if err := p.Flush(ctx); err != nil {
					p.metrics.RecordError("snapshot_flush")
				}
			}
		}
	}()
}

// Process queues one snapshot, flushing if the batch is full.
func (p *SnapshotProcessor) Process(ctx context.Context, snap *models.OrderBookSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}

	p.mu.Lock()
	p.buf = append(p.buf, snap)
	full := len(p.buf) >= p.batchSz
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes out whatever is queued. Safe to call concurrently.
func (p *SnapshotProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.buf
	p.buf = make([]*models.OrderBookSnapshot, 0, p.batchSz)
	p.mu.Unlock()

	start := time.Now()
	if err := p.store.StoreBatch(ctx, batch); err != nil {
		p.metrics.RecordError("store_batch")
		return fmt.Errorf("store snapshot batch: %w", err)
	}

	bySymbol := make(map[string]int, 4)
	for _, snap := range batch {
		bySymbol[snap.Symbol]++
	}
	for symbol, n := range bySymbol {
		p.metrics.RecordSnapshotStored(symbol, n)
	}
	p.metrics.RecordLatency("store_batch", time.Since(start).Seconds())
	return nil
}

// Close stops the flush loop and writes the final batch.
func (p *SnapshotProcessor) Close(ctx context.Context) error {
	p.stopped.Do(func() { close(p.stopCh) })
	if err := p.Flush(ctx); err != nil {
		return err
	}
	return p.store.Close()
}
