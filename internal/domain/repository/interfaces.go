package repository

import (
	"context"
	"time"

	"BookPulse/internal/domain/models"
)

// SnapshotStore is the order book snapshot store consumed by the
// analytics engine. Query returns snapshots captured in the closed
// interval [from, to], ordered by capture time ascending.
type SnapshotStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, s *models.OrderBookSnapshot) error
	StoreBatch(ctx context.Context, snaps []*models.OrderBookSnapshot) error
	Query(ctx context.Context, symbol string, from, to time.Time) ([]*models.OrderBookSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// DepthStream is the exchange depth feed that captures snapshots.
type DepthStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.OrderBookSnapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TradeStream subscribes to a symbol's aggregated trade feed. The
// returned channel is bounded; a slow consumer blocks the producer
// rather than losing trades. Calling the returned stop function tears
// down the background connection task.
type TradeStream interface {
	Subscribe(ctx context.Context, symbol string) (<-chan *models.AggregatedTrade, func(), error)
}

// AlertPublisher forwards detected anomalies to downstream consumers.
type AlertPublisher interface {
	PublishAnomalies(ctx context.Context, anomalies []models.MicrostructureAnomaly) error
	Close() error
}

// Metrics abstracts operational metrics recording.
type Metrics interface {
	RecordAnalysis(operation, symbol string)
	RecordError(kind string)
	RecordSnapshotStored(symbol string, count int)
	RecordStreamState(symbol string, connected bool)
	RecordLatency(op string, seconds float64)
}
