package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"BookPulse/internal/domain/models"

	"github.com/shopspring/decimal"
)

// bookSnap builds a snapshot with the given level counts around a mid
// price: bids descend from mid-spread/2, asks ascend from mid+spread/2.
func bookSnap(mid, halfSpread string, bidLevels, askLevels int) *models.OrderBookSnapshot {
	m := decimal.RequireFromString(mid)
	h := decimal.RequireFromString(halfSpread)
	tick := decimal.RequireFromString("0.1")

	snap := &models.OrderBookSnapshot{Symbol: "BTCUSDT", CapturedAt: time.Now()}
	for i := 0; i < bidLevels; i++ {
		price := m.Sub(h).Sub(tick.Mul(decimal.NewFromInt(int64(i))))
		snap.Bids = append(snap.Bids, models.PriceLevel{Price: price, Quantity: decimal.RequireFromString("1")})
	}
	for i := 0; i < askLevels; i++ {
		price := m.Add(h).Add(tick.Mul(decimal.NewFromInt(int64(i))))
		snap.Asks = append(snap.Asks, models.PriceLevel{Price: price, Quantity: decimal.RequireFromString("1")})
	}
	return snap
}

func repeatSnaps(n int, f func() *models.OrderBookSnapshot) []*models.OrderBookSnapshot {
	snaps := make([]*models.OrderBookSnapshot, n)
	for i := range snaps {
		snaps[i] = f()
	}
	return snaps
}

func findAnomaly(anomalies []models.MicrostructureAnomaly, kind models.AnomalyKind) *models.MicrostructureAnomaly {
	for i := range anomalies {
		if anomalies[i].Kind == kind {
			return &anomalies[i]
		}
	}
	return nil
}

func TestDetectAnomaliesQuietMarket(t *testing.T) {
	snaps := repeatSnaps(8, func() *models.OrderBookSnapshot {
		return bookSnap("100", "0.05", 5, 5)
	})
	svc := NewAnomalyService(&stubStore{snaps: snaps}, DetectorConfig{}, nil)

	got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", 10*time.Second)
	if err != nil {
		t.Fatalf("DetectAnomalies() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d anomalies on a quiet market, want 0", len(got))
	}
}

func TestDetectQuoteStuffing(t *testing.T) {
	tests := []struct {
		name          string
		snapshots     int
		window        time.Duration
		wantFired     bool
		wantSeverity  models.AnomalySeverity
		wantConfAbout float64
	}{
		{"below rate threshold", 400, time.Second, false, "", 0},
		{"rate exactly at threshold", 500, time.Second, false, "", 0},
		{"medium stuffing", 600, time.Second, true, models.SeverityMedium, 0.2},
		{"high stuffing", 800, time.Second, true, models.SeverityHigh, 0.6},
		{"critical stuffing", 1200, time.Second, true, models.SeverityCritical, 1.0},
		{"confidence capped at one", 2000, time.Second, true, models.SeverityCritical, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := repeatSnaps(tt.snapshots, func() *models.OrderBookSnapshot {
				return bookSnap("100", "0.05", 3, 3)
			})
			svc := NewAnomalyService(&stubStore{snaps: snaps}, DetectorConfig{}, nil)

			got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", tt.window)
			if err != nil {
				t.Fatalf("DetectAnomalies() error = %v", err)
			}

			anomaly := findAnomaly(got, models.AnomalyQuoteStuffing)
			if !tt.wantFired {
				if anomaly != nil {
					t.Fatalf("quote stuffing fired at %d snaps/s, want no detection", tt.snapshots)
				}
				return
			}
			if anomaly == nil {
				t.Fatalf("quote stuffing did not fire at %d snaps/s", tt.snapshots)
			}
			if anomaly.Severity != tt.wantSeverity {
				t.Errorf("Severity = %v, want %v", anomaly.Severity, tt.wantSeverity)
			}
			if diff := anomaly.Confidence - tt.wantConfAbout; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Confidence = %v, want %v", anomaly.Confidence, tt.wantConfAbout)
			}
			if anomaly.ID == "" {
				t.Error("anomaly ID is empty")
			}
			if anomaly.QuoteStuffing == nil {
				t.Fatal("QuoteStuffing details missing")
			}
			if anomaly.QuoteStuffing.UpdateRate != float64(tt.snapshots) {
				t.Errorf("UpdateRate = %v, want %v", anomaly.QuoteStuffing.UpdateRate, tt.snapshots)
			}
		})
	}
}

func TestDetectQuoteStuffingHighFillRate(t *testing.T) {
	snaps := repeatSnaps(600, func() *models.OrderBookSnapshot {
		return bookSnap("100", "0.05", 3, 3)
	})
	cfg := DefaultDetectorConfig()
	cfg.EstimatedFillRate = 0.5
	svc := NewAnomalyService(&stubStore{snaps: snaps}, cfg, nil)

	got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", time.Second)
	if err != nil {
		t.Fatalf("DetectAnomalies() error = %v", err)
	}
	// A high fill rate means the updates are genuine trading interest.
	if findAnomaly(got, models.AnomalyQuoteStuffing) != nil {
		t.Error("quote stuffing fired despite a healthy fill rate")
	}
}

func TestDetectIcebergOrder(t *testing.T) {
	tests := []struct {
		name         string
		snapshots    int
		refillCount  float64
		absorption   float64
		wantFired    bool
		wantSeverity models.AnomalySeverity
	}{
		{"default estimates stay quiet", 20, 3, 1.0, false, ""},
		{"too few snapshots", 9, 6, 1.0, false, ""},
		{"medium refill pressure", 20, 6, 1.0, true, models.SeverityMedium},
		{"high refill pressure", 20, 12, 1.0, true, models.SeverityHigh},
		{"zero absorption guarded", 20, 6, 0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := repeatSnaps(tt.snapshots, func() *models.OrderBookSnapshot {
				return bookSnap("100", "0.05", 3, 3)
			})
			cfg := DefaultDetectorConfig()
			cfg.EstimatedRefillCount = tt.refillCount
			cfg.EstimatedMedianAbsorption = tt.absorption
			svc := NewAnomalyService(&stubStore{snaps: snaps}, cfg, nil)

			got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", time.Minute)
			if err != nil {
				t.Fatalf("DetectAnomalies() error = %v", err)
			}

			anomaly := findAnomaly(got, models.AnomalyIcebergOrder)
			if !tt.wantFired {
				if anomaly != nil {
					t.Fatal("iceberg detector fired, want no detection")
				}
				return
			}
			if anomaly == nil {
				t.Fatal("iceberg detector did not fire")
			}
			if anomaly.Severity != tt.wantSeverity {
				t.Errorf("Severity = %v, want %v", anomaly.Severity, tt.wantSeverity)
			}
			if anomaly.IcebergOrder == nil {
				t.Fatal("IcebergOrder details missing")
			}
			wantBid := decimal.RequireFromString("99.95")
			if !anomaly.IcebergOrder.PriceLevel.Equal(wantBid) {
				t.Errorf("PriceLevel = %s, want %s", anomaly.IcebergOrder.PriceLevel, wantBid)
			}
			if len(anomaly.AffectedLevels) != 1 || !anomaly.AffectedLevels[0].Equal(wantBid) {
				t.Errorf("AffectedLevels = %v, want [%s]", anomaly.AffectedLevels, wantBid)
			}
		})
	}
}

func TestDetectFlashCrashRisk(t *testing.T) {
	// A healthy book collapsing to two levels with a twenty-fold spread.
	healthy := func() *models.OrderBookSnapshot { return bookSnap("100", "0.05", 10, 10) }
	collapsed := bookSnap("96", "1", 1, 1)

	snaps := []*models.OrderBookSnapshot{healthy(), healthy(), healthy(), healthy(), collapsed}
	svc := NewAnomalyService(&stubStore{snaps: snaps}, DetectorConfig{}, nil)

	got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", time.Minute)
	if err != nil {
		t.Fatalf("DetectAnomalies() error = %v", err)
	}

	anomaly := findAnomaly(got, models.AnomalyFlashCrashRisk)
	if anomaly == nil {
		t.Fatal("flash crash detector did not fire on a collapsing book")
	}
	if anomaly.Severity != models.SeverityCritical {
		t.Errorf("Severity = %v, want %v", anomaly.Severity, models.SeverityCritical)
	}
	if anomaly.FlashCrashRisk == nil {
		t.Fatal("FlashCrashRisk details missing")
	}
	// 20 levels down to 2 is a 90% loss; confidence (90-80)/20 = 0.5.
	if anomaly.FlashCrashRisk.DepthLossPct != 90 {
		t.Errorf("DepthLossPct = %v, want 90", anomaly.FlashCrashRisk.DepthLossPct)
	}
	if diff := anomaly.Confidence - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want 0.5", anomaly.Confidence)
	}
	if anomaly.FlashCrashRisk.SpreadMultiplier != 20 {
		t.Errorf("SpreadMultiplier = %v, want 20", anomaly.FlashCrashRisk.SpreadMultiplier)
	}
	if len(anomaly.AffectedLevels) != 2 {
		t.Errorf("AffectedLevels = %v, want best bid and ask", anomaly.AffectedLevels)
	}
}

func TestDetectFlashCrashRiskNeedsAllConditions(t *testing.T) {
	healthy := func() *models.OrderBookSnapshot { return bookSnap("100", "0.05", 10, 10) }

	tests := []struct {
		name string
		last *models.OrderBookSnapshot
	}{
		{"depth intact", bookSnap("96", "1", 10, 10)},
		{"spread intact", bookSnap("96", "0.05", 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := []*models.OrderBookSnapshot{healthy(), healthy(), healthy(), healthy(), tt.last}
			svc := NewAnomalyService(&stubStore{snaps: snaps}, DetectorConfig{}, nil)

			got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", time.Minute)
			if err != nil {
				t.Fatalf("DetectAnomalies() error = %v", err)
			}
			if findAnomaly(got, models.AnomalyFlashCrashRisk) != nil {
				t.Error("flash crash detector fired with a condition unmet")
			}
		})
	}
}

func TestDetectAnomaliesOrdering(t *testing.T) {
	// 600 snaps/s plus an aggressive refill estimate fires both the
	// stuffing and iceberg detectors; output order is fixed.
	snaps := repeatSnaps(600, func() *models.OrderBookSnapshot {
		return bookSnap("100", "0.05", 3, 3)
	})
	cfg := DefaultDetectorConfig()
	cfg.EstimatedRefillCount = 6
	svc := NewAnomalyService(&stubStore{snaps: snaps}, cfg, nil)

	got, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", time.Second)
	if err != nil {
		t.Fatalf("DetectAnomalies() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d anomalies, want 2", len(got))
	}
	if got[0].Kind != models.AnomalyQuoteStuffing || got[1].Kind != models.AnomalyIcebergOrder {
		t.Errorf("order = [%v, %v], want [quote_stuffing, iceberg_order]", got[0].Kind, got[1].Kind)
	}
	if got[0].ID == got[1].ID {
		t.Error("anomaly IDs are not unique")
	}
}

func TestDetectAnomaliesStoreError(t *testing.T) {
	wantErr := fmt.Errorf("query timeout")
	svc := NewAnomalyService(&stubStore{err: wantErr}, DetectorConfig{}, nil)

	_, err := svc.DetectAnomalies(context.Background(), "BTCUSDT", time.Minute)
	if !errors.Is(err, wantErr) {
		t.Errorf("DetectAnomalies() error = %v, want wrapped %v", err, wantErr)
	}
}
