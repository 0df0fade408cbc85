package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"BookPulse/internal/domain/models"

	"github.com/shopspring/decimal"
)

// stubStore serves a fixed snapshot slice regardless of the query window.
type stubStore struct {
	snaps []*models.OrderBookSnapshot
	err   error
}

func (s *stubStore) Init(ctx context.Context) error { return nil }

func (s *stubStore) Store(ctx context.Context, snap *models.OrderBookSnapshot) error { return nil }

func (s *stubStore) StoreBatch(ctx context.Context, snaps []*models.OrderBookSnapshot) error {
	return nil
}

func (s *stubStore) Query(ctx context.Context, symbol string, from, to time.Time) ([]*models.OrderBookSnapshot, error) {
	return s.snaps, s.err
}

func (s *stubStore) Health(ctx context.Context) error { return nil }

func (s *stubStore) Close() error { return nil }

func level(price, qty string) models.PriceLevel {
	return models.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestDetermineFlowDirection(t *testing.T) {
	tests := []struct {
		name    string
		bidRate float64
		askRate float64
		want    models.FlowDirection
	}{
		{"heavy bid pressure", 10, 4, models.FlowStrongBuy},
		{"moderate bid pressure", 6, 4, models.FlowModerateBuy},
		{"balanced", 5, 5, models.FlowNeutral},
		{"moderate ask pressure", 4, 6, models.FlowModerateSell},
		{"heavy ask pressure", 2, 10, models.FlowStrongSell},
		{"ratio exactly 2.0", 8, 4, models.FlowModerateBuy},
		{"ratio exactly 1.2", 6, 5, models.FlowNeutral},
		{"ratio exactly 0.8", 4, 5, models.FlowNeutral},
		{"ratio exactly 0.5", 2, 4, models.FlowModerateSell},
		{"zero ask nonzero bid", 3, 0, models.FlowStrongBuy},
		{"zero bid nonzero ask", 0, 3, models.FlowStrongSell},
		{"both zero", 0, 0, models.FlowNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineFlowDirection(tt.bidRate, tt.askRate); got != tt.want {
				t.Errorf("DetermineFlowDirection(%v, %v) = %v, want %v", tt.bidRate, tt.askRate, got, tt.want)
			}
		})
	}
}

func TestComputeOrderFlowEmptyWindow(t *testing.T) {
	svc := NewOrderFlowService(&stubStore{}, nil)

	end := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	got, err := svc.ComputeOrderFlow(context.Background(), "BTCUSDT", time.Minute, end)
	if err != nil {
		t.Fatalf("ComputeOrderFlow() error = %v", err)
	}

	if got.Direction != models.FlowNeutral {
		t.Errorf("Direction = %v, want %v", got.Direction, models.FlowNeutral)
	}
	if got.BidFlowRate != 0 || got.AskFlowRate != 0 || got.NetFlow != 0 {
		t.Errorf("rates = (%v, %v, %v), want all zero", got.BidFlowRate, got.AskFlowRate, got.NetFlow)
	}
	if !got.DeltaVolume.IsZero() {
		t.Errorf("DeltaVolume = %v, want 0", got.DeltaVolume)
	}
	if !got.WindowEnd.Equal(end) || !got.WindowStart.Equal(end.Add(-time.Minute)) {
		t.Errorf("window = [%v, %v], want [%v, %v]", got.WindowStart, got.WindowEnd, end.Add(-time.Minute), end)
	}
}

func TestComputeOrderFlowRatesAndDelta(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snaps := make([]*models.OrderBookSnapshot, 0, 10)
	for i := 0; i < 10; i++ {
		snaps = append(snaps, &models.OrderBookSnapshot{
			Symbol:     "BTCUSDT",
			CapturedAt: base.Add(time.Duration(i) * time.Second),
			Bids:       []models.PriceLevel{level("100.0", "2.0"), level("99.5", "1.0")},
			Asks:       []models.PriceLevel{level("100.5", "1.5")},
		})
	}

	svc := NewOrderFlowService(&stubStore{snaps: snaps}, nil)
	got, err := svc.ComputeOrderFlow(context.Background(), "BTCUSDT", 10*time.Second, base.Add(10*time.Second))
	if err != nil {
		t.Fatalf("ComputeOrderFlow() error = %v", err)
	}

	// 10 snapshots with 2 bid levels and 1 ask level over 10 seconds.
	if got.BidFlowRate != 2.0 {
		t.Errorf("BidFlowRate = %v, want 2.0", got.BidFlowRate)
	}
	if got.AskFlowRate != 1.0 {
		t.Errorf("AskFlowRate = %v, want 1.0", got.AskFlowRate)
	}
	if got.NetFlow != 1.0 {
		t.Errorf("NetFlow = %v, want 1.0", got.NetFlow)
	}
	if got.Direction != models.FlowModerateBuy {
		t.Errorf("Direction = %v, want %v", got.Direction, models.FlowModerateBuy)
	}

	// Per snapshot: bids 3.0, asks 1.5, delta +1.5; ten snapshots.
	wantDelta := decimal.RequireFromString("15")
	if !got.DeltaVolume.Equal(wantDelta) {
		t.Errorf("DeltaVolume = %v, want %v", got.DeltaVolume, wantDelta)
	}
}

func TestComputeOrderFlowSubSecondWindow(t *testing.T) {
	snaps := []*models.OrderBookSnapshot{
		{
			Symbol: "ETHUSDT",
			Bids:   []models.PriceLevel{level("2000", "1")},
			Asks:   []models.PriceLevel{level("2001", "1")},
		},
	}

	svc := NewOrderFlowService(&stubStore{snaps: snaps}, nil)
	got, err := svc.ComputeOrderFlow(context.Background(), "ETHUSDT", 100*time.Millisecond, time.Now())
	if err != nil {
		t.Fatalf("ComputeOrderFlow() error = %v", err)
	}

	// Sub-second windows are clamped to one second for rate math.
	if got.BidFlowRate != 1.0 || got.AskFlowRate != 1.0 {
		t.Errorf("rates = (%v, %v), want (1, 1)", got.BidFlowRate, got.AskFlowRate)
	}
}

func TestComputeOrderFlowStoreError(t *testing.T) {
	wantErr := errors.New("connection refused")
	svc := NewOrderFlowService(&stubStore{err: wantErr}, nil)

	_, err := svc.ComputeOrderFlow(context.Background(), "BTCUSDT", time.Minute, time.Now())
	if !errors.Is(err, wantErr) {
		t.Errorf("ComputeOrderFlow() error = %v, want wrapped %v", err, wantErr)
	}
}
