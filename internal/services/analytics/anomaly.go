package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	applogger "BookPulse/pkg/logger"

	"github.com/google/uuid"
)

// Detection thresholds for the three pattern detectors.
const (
	stuffingRateThreshold     = 500.0 // snapshots/second
	stuffingFillRateThreshold = 0.10
	stuffingHighRate          = 750.0
	stuffingCriticalRate      = 1000.0

	icebergMinSnapshots    = 10
	icebergRefillThreshold = 5.0
	icebergHighRefill      = 10.0

	flashCrashMinSnapshots     = 5
	flashCrashDepthLossPct     = 80.0
	flashCrashSpreadMultiplier = 10.0
	flashCrashCancellationRate = 0.90
)

// DetectorConfig holds the estimation constants the detectors use in
// place of genuine consecutive-snapshot delta computation. They are
// provisional placeholders; names reflect that.
type DetectorConfig struct {
	EstimatedFillRate         float64
	EstimatedRefillCount      float64
	EstimatedMedianAbsorption float64
	EstimatedCancellationRate float64
}

// DefaultDetectorConfig returns the provisional estimation constants.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		EstimatedFillRate:         0.05,
		EstimatedRefillCount:      3,
		EstimatedMedianAbsorption: 1.0,
		EstimatedCancellationRate: 0.95,
	}
}

// AnomalyService runs the manipulation pattern detectors over stored snapshots.
type AnomalyService struct {
	store  drepo.SnapshotStore
	cfg    DetectorConfig
	logger *applogger.Logger
}

// NewAnomalyService creates an anomaly detector backed by the snapshot store.
func NewAnomalyService(store drepo.SnapshotStore, cfg DetectorConfig, logger *applogger.Logger) *AnomalyService {
	if cfg == (DetectorConfig{}) {
		cfg = DefaultDetectorConfig()
	}
	return &AnomalyService{store: store, cfg: cfg, logger: logger}
}

// DetectAnomalies runs all three detectors over snapshots captured in
// [now-window, now]. Detectors are independent; any subset may fire.
// An empty window yields an empty list, not an error.
func (s *AnomalyService) DetectAnomalies(ctx context.Context, symbol string, window time.Duration) ([]models.MicrostructureAnomaly, error) {
	end := time.Now()
	start := end.Add(-window)

	snaps, err := s.store.Query(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for anomaly detection: %w", err)
	}

	anomalies := make([]models.MicrostructureAnomaly, 0, 3)
	if a := s.detectQuoteStuffing(symbol, snaps, window, start, end); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := s.detectIcebergOrder(symbol, snaps, start, end); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := s.detectFlashCrashRisk(symbol, snaps, start, end); a != nil {
		anomalies = append(anomalies, *a)
	}

	if s.logger != nil && len(anomalies) > 0 {
		s.logger.Warn("market anomalies detected",
			applogger.String("symbol", symbol),
			applogger.Int("count", len(anomalies)))
	}
	return anomalies, nil
}

// detectQuoteStuffing flags excessive update rates paired with a low
// fill rate. The fill rate is an estimation constant, not a measured
// value; see DetectorConfig.
func (s *AnomalyService) detectQuoteStuffing(symbol string, snaps []*models.OrderBookSnapshot, window time.Duration, start, end time.Time) *models.MicrostructureAnomaly {
	secs := window.Seconds()
	if secs < 1 {
		secs = 1
	}
	updateRate := float64(len(snaps)) / secs
	fillRate := s.cfg.EstimatedFillRate

	if updateRate <= stuffingRateThreshold || fillRate >= stuffingFillRateThreshold {
		return nil
	}

	severity := models.SeverityMedium
	switch {
	case updateRate > stuffingCriticalRate:
		severity = models.SeverityCritical
	case updateRate > stuffingHighRate:
		severity = models.SeverityHigh
	}

	anomaly := &models.MicrostructureAnomaly{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Kind:        models.AnomalyQuoteStuffing,
		DetectedAt:  end,
		WindowStart: start,
		WindowEnd:   end,
		Confidence:  math.Min(1, (updateRate-stuffingRateThreshold)/stuffingRateThreshold),
		Severity:    severity,
		Metadata:    map[string]interface{}{"snapshot_count": len(snaps)},
		QuoteStuffing: &models.QuoteStuffingDetails{
			UpdateRate: updateRate,
			FillRate:   fillRate,
		},
	}
	anomaly.Recommendation = "Suspicious update rate with low fills; widen quotes and reduce order sizes until the pattern clears."
	return anomaly
}

// detectIcebergOrder flags repeated refills at a price level. Refill
// count and median absorption are estimation constants; see DetectorConfig.
func (s *AnomalyService) detectIcebergOrder(symbol string, snaps []*models.OrderBookSnapshot, start, end time.Time) *models.MicrostructureAnomaly {
	if len(snaps) < icebergMinSnapshots {
		return nil
	}
	if s.cfg.EstimatedMedianAbsorption <= 0 {
		return nil
	}
	refillRate := s.cfg.EstimatedRefillCount / s.cfg.EstimatedMedianAbsorption
	if refillRate <= icebergRefillThreshold {
		return nil
	}

	severity := models.SeverityMedium
	if refillRate > icebergHighRefill {
		severity = models.SeverityHigh
	}

	anomaly := &models.MicrostructureAnomaly{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Kind:        models.AnomalyIcebergOrder,
		DetectedAt:  end,
		WindowStart: start,
		WindowEnd:   end,
		Confidence:  math.Min(1, (refillRate-icebergRefillThreshold)/icebergRefillThreshold),
		Severity:    severity,
		Metadata:    map[string]interface{}{"snapshot_count": len(snaps)},
		IcebergOrder: &models.IcebergOrderDetails{
			RefillRateMultiplier: refillRate,
			MedianRefillRate:     s.cfg.EstimatedMedianAbsorption,
		},
	}
	anomaly.Recommendation = "Hidden size likely resting at this level; expect absorption and avoid crossing it with market orders."

	// Attach the best bid of the latest snapshot as the suspected level.
	last := snaps[len(snaps)-1]
	if bid, ok := last.BestBid(); ok {
		anomaly.IcebergOrder.PriceLevel = bid.Price
		anomaly.AffectedLevels = append(anomaly.AffectedLevels, bid.Price)
	}
	return anomaly
}

// detectFlashCrashRisk compares the first and last snapshot of the
// window: a collapse in depth together with a blown-out spread and a
// high cancellation rate. The cancellation rate is an estimation
// constant; see DetectorConfig. Severity is always critical when fired.
func (s *AnomalyService) detectFlashCrashRisk(symbol string, snaps []*models.OrderBookSnapshot, start, end time.Time) *models.MicrostructureAnomaly {
	if len(snaps) < flashCrashMinSnapshots {
		return nil
	}

	first, last := snaps[0], snaps[len(snaps)-1]
	initialLevels := first.LevelCount()
	if initialLevels == 0 {
		return nil
	}
	depthLossPct := float64(initialLevels-last.LevelCount()) / float64(initialLevels) * 100

	initialSpread, ok1 := first.Spread()
	finalSpread, ok2 := last.Spread()
	if !ok1 || !ok2 || initialSpread.Sign() <= 0 {
		return nil
	}
	spreadMult, _ := finalSpread.Div(initialSpread).Float64()

	cancellationRate := s.cfg.EstimatedCancellationRate

	if depthLossPct <= flashCrashDepthLossPct || spreadMult <= flashCrashSpreadMultiplier || cancellationRate <= flashCrashCancellationRate {
		return nil
	}

	anomaly := &models.MicrostructureAnomaly{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Kind:        models.AnomalyFlashCrashRisk,
		DetectedAt:  end,
		WindowStart: start,
		WindowEnd:   end,
		Confidence:  math.Min(1, (depthLossPct-flashCrashDepthLossPct)/20),
		Severity:    models.SeverityCritical,
		Metadata: map[string]interface{}{
			"initial_levels": initialLevels,
			"final_levels":   last.LevelCount(),
		},
		FlashCrashRisk: &models.FlashCrashRiskDetails{
			DepthLossPct:     depthLossPct,
			SpreadMultiplier: spreadMult,
			CancellationRate: cancellationRate,
		},
	}
	anomaly.Recommendation = "Book depth collapsing with spread blow-out; pull resting orders and halt aggressive entries immediately."
	if bid, ok := last.BestBid(); ok {
		anomaly.AffectedLevels = append(anomaly.AffectedLevels, bid.Price)
	}
	if ask, ok := last.BestAsk(); ok {
		anomaly.AffectedLevels = append(anomaly.AffectedLevels, ask.Price)
	}
	return anomaly
}
