package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	applogger "BookPulse/pkg/logger"
)

// Sub-score weights. They sum to 1.
const (
	spreadWeight  = 0.25
	depthWeight   = 0.35
	balanceWeight = 0.25
	rateWeight    = 0.15
)

// HealthService scores market liquidity quality from stored snapshots.
type HealthService struct {
	store  drepo.SnapshotStore
	logger *applogger.Logger
}

// NewHealthService creates a health scorer backed by the snapshot store.
func NewHealthService(store drepo.SnapshotStore, logger *applogger.Logger) *HealthService {
	return &HealthService{store: store, logger: logger}
}

// ScoreHealth computes the composite liquidity health over snapshots
// captured in [now-window, now]. An empty window scores zero with a
// critical level rather than returning an error.
func (s *HealthService) ScoreHealth(ctx context.Context, symbol string, window time.Duration) (*models.MicrostructureHealth, error) {
	end := time.Now()
	start := end.Add(-window)

	snaps, err := s.store.Query(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for health scoring: %w", err)
	}

	health := &models.MicrostructureHealth{
		Symbol:      symbol,
		Timestamp:   end,
		WindowStart: start,
		WindowEnd:   end,
	}
	if len(snaps) == 0 {
		health.Level = models.HealthCritical
		health.Recommendation = noDataRecommendation
		return health, nil
	}

	bidRate, askRate := countFlowRates(snaps, window)

	health.SpreadStability = scoreSpreadStability(snaps)
	health.LiquidityDepth = scoreLiquidityDepth(snaps)
	health.FlowBalance = scoreFlowBalance(bidRate, askRate)
	health.UpdateRate = scoreUpdateRate(snaps, window)

	health.OverallScore = health.SpreadStability*spreadWeight +
		health.LiquidityDepth*depthWeight +
		health.FlowBalance*balanceWeight +
		health.UpdateRate*rateWeight
	health.Level = classifyHealth(health.OverallScore)
	health.Recommendation = recommendationFor(health.Level)

	if s.logger != nil {
		s.logger.Debug("health scored",
			applogger.String("symbol", symbol),
			applogger.Float64("score", health.OverallScore),
			applogger.String("level", string(health.Level)))
	}
	return health, nil
}

// scoreSpreadStability maps the coefficient of variation of observed
// spreads onto [0,100]: CV <= 0.05 is a perfect 100, CV >= 0.5 is 0,
// linear in between. Fewer than two usable spreads scores a neutral 50.
func scoreSpreadStability(snaps []*models.OrderBookSnapshot) float64 {
	var spreads []float64
	for _, snap := range snaps {
		if spread, ok := snap.Spread(); ok {
			v, _ := spread.Float64()
			spreads = append(spreads, v)
		}
	}
	if len(spreads) < 2 {
		return 50
	}

	var sum float64
	for _, v := range spreads {
		sum += v
	}
	mean := sum / float64(len(spreads))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, v := range spreads {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(spreads))
	cv := math.Sqrt(variance) / mean

	switch {
	case cv <= 0.05:
		return 100
	case cv >= 0.5:
		return 0
	default:
		return 100 * (0.5 - cv) / 0.45
	}
}

// scoreLiquidityDepth is the average populated level count across
// snapshots, clamped to [0,100]. A book holding 100+ levels on both
// sides combined is treated as fully healthy depth.
func scoreLiquidityDepth(snaps []*models.OrderBookSnapshot) float64 {
	var total int
	for _, snap := range snaps {
		total += snap.LevelCount()
	}
	avg := float64(total) / float64(len(snaps))
	return clamp(avg, 0, 100)
}

// scoreFlowBalance scores how close the bid/ask flow ratio sits to 1.
// Ratios inside [0.8, 1.2] are a perfect 100; the score decays linearly
// to 0 at ratio 2.0 on the buy side and 0.5 on the sell side.
func scoreFlowBalance(bidRate, askRate float64) float64 {
	if askRate == 0 {
		if bidRate == 0 {
			return 50
		}
		return 0
	}
	ratio := bidRate / askRate
	switch {
	case ratio >= 0.8 && ratio <= 1.2:
		return 100
	case ratio > 1.2 && ratio <= 2.0:
		return 100 - 50*(ratio-1.2)/0.8
	case ratio >= 0.5 && ratio < 0.8:
		return 100 - 50*(0.8-ratio)/0.3
	default:
		return 0
	}
}

// scoreUpdateRate scores snapshots/second: ramping up to 100 across
// [0,10), flat at 100 through [10,100], decaying back to 0 across
// (100,500]. Both a stale book and a stuffed book score poorly.
func scoreUpdateRate(snaps []*models.OrderBookSnapshot, window time.Duration) float64 {
	secs := window.Seconds()
	if secs < 1 {
		secs = 1
	}
	rate := float64(len(snaps)) / secs

	switch {
	case rate < 10:
		return rate * 10
	case rate <= 100:
		return 100
	case rate < 500:
		return 100 * (500 - rate) / 400
	default:
		return 0
	}
}

// countFlowRates is the same coarse update-count proxy the order flow
// analyzer uses: populated level counts per side, divided by window length.
func countFlowRates(snaps []*models.OrderBookSnapshot, window time.Duration) (float64, float64) {
	var bidUpdates, askUpdates int
	for _, snap := range snaps {
		bidUpdates += len(snap.Bids)
		askUpdates += len(snap.Asks)
	}
	secs := window.Seconds()
	if secs < 1 {
		secs = 1
	}
	return float64(bidUpdates) / secs, float64(askUpdates) / secs
}

func classifyHealth(score float64) models.HealthLevel {
	switch {
	case score >= 80:
		return models.HealthExcellent
	case score >= 60:
		return models.HealthGood
	case score >= 40:
		return models.HealthFair
	case score >= 20:
		return models.HealthPoor
	default:
		return models.HealthCritical
	}
}

// noDataRecommendation distinguishes an empty window from a measured
// critical score.
const noDataRecommendation = "No order book data in window; halt trading until capture resumes."

func recommendationFor(level models.HealthLevel) string {
	switch level {
	case models.HealthExcellent:
		return "Liquidity is deep and stable; normal execution sizing applies."
	case models.HealthGood:
		return "Healthy conditions; monitor spread stability before large orders."
	case models.HealthFair:
		return "Thinning liquidity; split large orders and widen limit prices."
	case models.HealthPoor:
		return "Degraded book; restrict to small passive orders only."
	default:
		return "Liquidity is critical; suspend trading until the book recovers."
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
