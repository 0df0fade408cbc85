package analytics

import (
	"context"
	"fmt"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	applogger "BookPulse/pkg/logger"

	"github.com/shopspring/decimal"
)

// Flow direction ratio thresholds (bid rate / ask rate).
const (
	strongBuyRatio = 2.0
	buyRatio       = 1.2
	neutralRatio   = 0.8
	sellRatio      = 0.5
)

// OrderFlowService computes order flow pressure from stored snapshots.
type OrderFlowService struct {
	store  drepo.SnapshotStore
	logger *applogger.Logger
}

// NewOrderFlowService creates an order flow analyzer backed by the snapshot store.
func NewOrderFlowService(store drepo.SnapshotStore, logger *applogger.Logger) *OrderFlowService {
	return &OrderFlowService{store: store, logger: logger}
}

// ComputeOrderFlow analyzes snapshots captured in [end-window, end]. A
// zero end time means now. An empty window yields a fully neutral
// snapshot: no data yet is routine for newly tracked symbols, not an
// error.
func (s *OrderFlowService) ComputeOrderFlow(ctx context.Context, symbol string, window time.Duration, end time.Time) (*models.OrderFlowSnapshot, error) {
	if end.IsZero() {
		end = time.Now()
	}
	start := end.Add(-window)

	snaps, err := s.store.Query(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for order flow: %w", err)
	}

	result := &models.OrderFlowSnapshot{
		Symbol:      symbol,
		WindowStart: start,
		WindowEnd:   end,
		Direction:   models.FlowNeutral,
		DeltaVolume: decimal.Zero,
	}
	if len(snaps) == 0 {
		if s.logger != nil {
			s.logger.Debug("order flow: empty window", applogger.String("symbol", symbol))
		}
		return result, nil
	}

	var bidUpdates, askUpdates int
	delta := decimal.Zero
	for _, snap := range snaps {
		// Level counts are a coarse proxy for update activity; consecutive
		// snapshots are not diffed to separate additions from cancellations.
		bidUpdates += len(snap.Bids)
		askUpdates += len(snap.Asks)

		bidQty := decimal.Zero
		for _, lvl := range snap.Bids {
			bidQty = bidQty.Add(lvl.Quantity)
		}
		askQty := decimal.Zero
		for _, lvl := range snap.Asks {
			askQty = askQty.Add(lvl.Quantity)
		}
		delta = delta.Add(bidQty.Sub(askQty))
	}

	secs := window.Seconds()
	if secs < 1 {
		secs = 1
	}
	result.BidFlowRate = float64(bidUpdates) / secs
	result.AskFlowRate = float64(askUpdates) / secs
	result.NetFlow = result.BidFlowRate - result.AskFlowRate
	result.Direction = DetermineFlowDirection(result.BidFlowRate, result.AskFlowRate)
	result.DeltaVolume = delta

	return result, nil
}

// DetermineFlowDirection classifies the bid/ask rate ratio. A zero
// denominator counts as infinite pressure in favor of the nonzero side;
// both zero is neutral.
func DetermineFlowDirection(bidRate, askRate float64) models.FlowDirection {
	if askRate == 0 {
		if bidRate == 0 {
			return models.FlowNeutral
		}
		return models.FlowStrongBuy
	}
	if bidRate == 0 {
		return models.FlowStrongSell
	}

	ratio := bidRate / askRate
	switch {
	case ratio > strongBuyRatio:
		return models.FlowStrongBuy
	case ratio > buyRatio:
		return models.FlowModerateBuy
	case ratio >= neutralRatio:
		return models.FlowNeutral
	case ratio >= sellRatio:
		return models.FlowModerateSell
	default:
		return models.FlowStrongSell
	}
}
