package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BookPulse/internal/domain/models"
	domrepo "BookPulse/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, snap *models.OrderBookSnapshot) error
}

// RealtimePipeline sits between the depth stream and storage. It
// validates, throttles per symbol, and buffers when downstream is
// unavailable, retrying buffered snapshots in the background.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.OrderBookSnapshot
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max accepted snapshots per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per symbol
		bufSize:  1000, // default buffer
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.OrderBookSnapshot, p.bufSize)
	return p
}

// Start launches background flushing of buffered snapshots.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case snap := <-p.bufCh:
				if snap == nil {
					continue
				}
				if err := p.proc.Process(ctx, snap); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- snap:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards the snapshot downstream,
// buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, snap *models.OrderBookSnapshot) error {
	start := time.Now()
	if err := validateSnapshot(snap); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(snap.Symbol, start) {
		// throttled; the next snapshot carries fresher state anyway
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, snap); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- snap:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateSnapshot(snap *models.OrderBookSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot nil")
	}
	if snap.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if snap.CapturedAt.IsZero() {
		return fmt.Errorf("capture time missing")
	}
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return fmt.Errorf("book empty on both sides")
	}
	for _, lvl := range snap.Bids {
		if lvl.Price.Sign() <= 0 || lvl.Quantity.Sign() < 0 {
			return fmt.Errorf("invalid bid level %s@%s", lvl.Quantity, lvl.Price)
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Price.Sign() <= 0 || lvl.Quantity.Sign() < 0 {
			return fmt.Errorf("invalid ask level %s@%s", lvl.Quantity, lvl.Price)
		}
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
