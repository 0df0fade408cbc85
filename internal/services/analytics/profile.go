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

// valueAreaFraction is the share of total volume the value area must cover.
var valueAreaFraction = decimal.NewFromFloat(0.70)

// ProfileConfig bounds the live trade sample the builder collects.
// Collection stops at whichever limit is hit first. Sampling the live
// stream is a simplification; production use should source historical
// trades from a backfill API instead.
type ProfileConfig struct {
	MaxTrades      int
	CollectTimeout time.Duration
}

// ProfileService builds volume profiles from a bounded trade sample.
type ProfileService struct {
	stream drepo.TradeStream
	cfg    ProfileConfig
	logger *applogger.Logger
}

// NewProfileService creates a volume profile builder fed by the trade stream.
func NewProfileService(stream drepo.TradeStream, cfg ProfileConfig, logger *applogger.Logger) *ProfileService {
	if cfg.MaxTrades <= 0 {
		cfg.MaxTrades = 1000
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 5 * time.Second
	}
	return &ProfileService{stream: stream, cfg: cfg, logger: logger}
}

// GenerateProfile collects trades and bins them by price. Zero collected
// trades is a hard failure (NoDataError): a profile without a price range
// is undefined.
func (s *ProfileService) GenerateProfile(ctx context.Context, symbol string, lookback time.Duration, tickSize string) (*models.VolumeProfile, error) {
	tick, err := decimal.NewFromString(tickSize)
	if err != nil {
		return nil, fmt.Errorf("parse tick size %q: %w", tickSize, err)
	}
	if tick.Sign() <= 0 {
		return nil, fmt.Errorf("tick size must be positive, got %s", tick)
	}

	end := time.Now()
	start := end.Add(-lookback)

	trades, err := s.collect(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("collect trades for volume profile: %w", err)
	}
	if len(trades) == 0 {
		return nil, &models.NoDataError{Symbol: symbol, PeriodStart: start, PeriodEnd: end}
	}

	low, high := priceRange(trades)
	binSize := AdaptiveBinSize(tick, low, high)
	bins, total := buildBins(trades, low, binSize)

	pocIdx := pointOfControl(bins)
	valIdx, vahIdx := expandValueArea(bins, total, pocIdx)

	profile := &models.VolumeProfile{
		Symbol:         symbol,
		PeriodStart:    start,
		PeriodEnd:      end,
		PriceLow:       low,
		PriceHigh:      high,
		BinSize:        binSize,
		Bins:           bins,
		TotalVolume:    total,
		PointOfControl: bins[pocIdx].PriceLevel,
		ValueAreaHigh:  bins[vahIdx].PriceLevel,
		ValueAreaLow:   bins[valIdx].PriceLevel,
	}
	if s.logger != nil {
		s.logger.Debug("volume profile built",
			applogger.String("symbol", symbol),
			applogger.Int("trades", len(trades)),
			applogger.Int("bins", len(bins)))
	}
	return profile, nil
}

// collect drains the trade stream until the record cap or the collection
// timeout, whichever comes first. The subscription is torn down before
// returning so the background connection task never outlives the call.
func (s *ProfileService) collect(ctx context.Context, symbol string) ([]*models.AggregatedTrade, error) {
	collectCtx, cancel := context.WithTimeout(ctx, s.cfg.CollectTimeout)
	defer cancel()

	ch, stop, err := s.stream.Subscribe(collectCtx, symbol)
	if err != nil {
		return nil, fmt.Errorf("subscribe trade stream: %w", err)
	}
	defer stop()

	trades := make([]*models.AggregatedTrade, 0, s.cfg.MaxTrades)
	for len(trades) < s.cfg.MaxTrades {
		select {
		case <-collectCtx.Done():
			return trades, nil
		case t, ok := <-ch:
			if !ok {
				return trades, nil
			}
			if t != nil {
				trades = append(trades, t)
			}
		}
	}
	return trades, nil
}

// AdaptiveBinSize picks a bin width of max(tick*10, range/100): never
// finer than ten ticks, and at most about one hundred bins regardless of
// the price range.
func AdaptiveBinSize(tick, low, high decimal.Decimal) decimal.Decimal {
	minBin := tick.Mul(decimal.NewFromInt(10))
	rangeBin := high.Sub(low).Div(decimal.NewFromInt(100))
	if rangeBin.GreaterThan(minBin) {
		return rangeBin
	}
	return minBin
}

func priceRange(trades []*models.AggregatedTrade) (low, high decimal.Decimal) {
	low, high = trades[0].Price, trades[0].Price
	for _, t := range trades[1:] {
		if t.Price.LessThan(low) {
			low = t.Price
		}
		if t.Price.GreaterThan(high) {
			high = t.Price
		}
	}
	return low, high
}

// buildBins assigns each trade to floor((price-low)/binSize) and emits
// the populated bins in ascending price order.
func buildBins(trades []*models.AggregatedTrade, low, binSize decimal.Decimal) ([]models.ProfileBin, decimal.Decimal) {
	maxIdx := 0
	byIdx := make(map[int]*models.ProfileBin)
	total := decimal.Zero
	for _, t := range trades {
		idx := int(t.Price.Sub(low).Div(binSize).IntPart())
		if idx > maxIdx {
			maxIdx = idx
		}
		bin, ok := byIdx[idx]
		if !ok {
			bin = &models.ProfileBin{
				PriceLevel: low.Add(binSize.Mul(decimal.NewFromInt(int64(idx)))),
			}
			byIdx[idx] = bin
		}
		bin.Volume = bin.Volume.Add(t.Quantity)
		bin.TradeCount++
		total = total.Add(t.Quantity)
	}

	bins := make([]models.ProfileBin, 0, len(byIdx))
	for i := 0; i <= maxIdx; i++ {
		if bin, ok := byIdx[i]; ok {
			bins = append(bins, *bin)
		}
	}
	return bins, total
}

func pointOfControl(bins []models.ProfileBin) int {
	poc := 0
	for i, b := range bins {
		if b.Volume.GreaterThan(bins[poc].Volume) {
			poc = i
		}
	}
	return poc
}

// expandValueArea grows a contiguous range outward from the POC, taking
// at each step the neighbor with more volume (ties toward the lower
// side), until the accumulated volume reaches the value area target or
// both boundaries are exhausted. Returns the final low and high indices.
func expandValueArea(bins []models.ProfileBin, total decimal.Decimal, poc int) (int, int) {
	target := total.Mul(valueAreaFraction)
	low, high := poc, poc
	acc := bins[poc].Volume

	for acc.LessThan(target) {
		canLow := low > 0
		canHigh := high < len(bins)-1
		if !canLow && !canHigh {
			break
		}
		switch {
		case canLow && canHigh:
			if bins[high+1].Volume.GreaterThan(bins[low-1].Volume) {
				high++
				acc = acc.Add(bins[high].Volume)
			} else {
				low--
				acc = acc.Add(bins[low].Volume)
			}
		case canLow:
			low--
			acc = acc.Add(bins[low].Volume)
		default:
			high++
			acc = acc.Add(bins[high].Volume)
		}
	}
	return low, high
}
