package service

import (
	"context"
	"time"

	"BookPulse/internal/domain/models"
)

// OrderFlowAnalyzer computes bid/ask pressure metrics over a snapshot window.
type OrderFlowAnalyzer interface {
	ComputeOrderFlow(ctx context.Context, symbol string, window time.Duration, end time.Time) (*models.OrderFlowSnapshot, error)
}

// VolumeProfileBuilder bins collected trades by price and derives the
// point of control and value area boundaries.
type VolumeProfileBuilder interface {
	GenerateProfile(ctx context.Context, symbol string, lookback time.Duration, tickSize string) (*models.VolumeProfile, error)
}

// AnomalyDetector runs the manipulation pattern detectors over a snapshot window.
type AnomalyDetector interface {
	DetectAnomalies(ctx context.Context, symbol string, window time.Duration) ([]models.MicrostructureAnomaly, error)
}

// HealthScorer computes the composite liquidity health score.
type HealthScorer interface {
	ScoreHealth(ctx context.Context, symbol string, window time.Duration) (*models.MicrostructureHealth, error)
}
