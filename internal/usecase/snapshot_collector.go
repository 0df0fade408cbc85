package usecase

import (
	"context"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	mid "BookPulse/internal/middleware"
)

// SnapshotCollector drains the depth stream and hands snapshots to the
// pipeline, reconnecting when the stream drops.
type SnapshotCollector struct {
	stream  drepo.DepthStream
	proc    *SnapshotProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewSnapshotCollector creates a new SnapshotCollector instance.
func NewSnapshotCollector(stream drepo.DepthStream, proc *SnapshotProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *SnapshotCollector {
	return &SnapshotCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the depth stream is connected.
func (c *SnapshotCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *SnapshotCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	c.proc.Start(ctx)
	snapCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, snapCh, errCh)
	return nil
}

func (c *SnapshotCollector) consume(ctx context.Context, snapCh <-chan *models.OrderBookSnapshot, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
			}
			if err != nil || !ok {
				// the read loop has stopped; reconnect until it sticks
				for {
					if ctx.Err() != nil {
						return
					}
					if rerr := c.stream.Reconnect(ctx); rerr == nil {
						break
					}
					c.metrics.RecordError("reconnect")
				}
				snapCh, errCh = c.stream.Read(ctx)
			}
		case snap := <-snapCh:
			if snap == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, snap)
			} else {
				_ = c.proc.Process(ctx, snap)
			}
		}
	}
}

// Processor returns the underlying SnapshotProcessor for lifecycle management.
func (c *SnapshotCollector) Processor() *SnapshotProcessor { return c.proc }

// Shutdown stops the pipeline, flushes pending batches, and closes the stream.
func (c *SnapshotCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	if err := c.proc.Close(ctx); err != nil {
		return err
	}
	return c.stream.Close()
}
