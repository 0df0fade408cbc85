package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

// requireDecimal asserts value equality and that the exact string form
// (including trailing zeros) survived serialization.
func requireDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
	if got.String() != want {
		t.Errorf("%s string form = %q, want %q", name, got.String(), want)
	}
}

func TestOrderFlowSnapshotJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := OrderFlowSnapshot{
		Symbol:      "BTCUSDT",
		WindowStart: now.Add(-time.Minute),
		WindowEnd:   now,
		BidFlowRate: 2.5,
		AskFlowRate: 1.25,
		NetFlow:     1.25,
		Direction:   FlowModerateBuy,
		DeltaVolume: dec(t, "15.50"),
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out OrderFlowSnapshot
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if out.BidFlowRate != 2.5 || out.AskFlowRate != 1.25 || out.NetFlow != 1.25 {
		t.Errorf("rates = (%v, %v, %v), want (2.5, 1.25, 1.25)",
			out.BidFlowRate, out.AskFlowRate, out.NetFlow)
	}
	if out.Direction != FlowModerateBuy {
		t.Errorf("Direction = %v, want %v", out.Direction, FlowModerateBuy)
	}
	requireDecimal(t, "DeltaVolume", out.DeltaVolume, "15.50")
}

func TestVolumeProfileJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := VolumeProfile{
		Symbol:      "BTCUSDT",
		PeriodStart: now.Add(-24 * time.Hour),
		PeriodEnd:   now,
		PriceLow:    dec(t, "42853.90"),
		PriceHigh:   dec(t, "43120.00"),
		BinSize:     dec(t, "0.10"),
		Bins: []ProfileBin{
			{PriceLevel: dec(t, "42853.90"), Volume: dec(t, "10.025"), TradeCount: 7},
			{PriceLevel: dec(t, "42854.00"), Volume: dec(t, "50.000"), TradeCount: 31},
		},
		TotalVolume:    dec(t, "60.025"),
		PointOfControl: dec(t, "42854.00"),
		ValueAreaHigh:  dec(t, "42854.00"),
		ValueAreaLow:   dec(t, "42853.90"),
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out VolumeProfile
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	requireDecimal(t, "PriceLow", out.PriceLow, "42853.90")
	requireDecimal(t, "PriceHigh", out.PriceHigh, "43120.00")
	requireDecimal(t, "BinSize", out.BinSize, "0.10")
	requireDecimal(t, "TotalVolume", out.TotalVolume, "60.025")
	requireDecimal(t, "PointOfControl", out.PointOfControl, "42854.00")
	if len(out.Bins) != 2 {
		t.Fatalf("Bins = %d, want 2", len(out.Bins))
	}
	requireDecimal(t, "Bins[1].Volume", out.Bins[1].Volume, "50.000")
	if out.Bins[1].TradeCount != 31 {
		t.Errorf("Bins[1].TradeCount = %d, want 31", out.Bins[1].TradeCount)
	}
}

func TestMicrostructureAnomalyJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := MicrostructureAnomaly{
		ID:             "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Symbol:         "BTCUSDT",
		Kind:           AnomalyIcebergOrder,
		DetectedAt:     now,
		WindowStart:    now.Add(-time.Minute),
		WindowEnd:      now,
		Confidence:     0.75,
		Severity:       SeverityMedium,
		AffectedLevels: []decimal.Decimal{dec(t, "42853.90"), dec(t, "42853.80")},
		Recommendation: "Large hidden order suspected; expect absorption at this level.",
		IcebergOrder: &IcebergOrderDetails{
			PriceLevel:           dec(t, "42853.90"),
			RefillRateMultiplier: 6.2,
			MedianRefillRate:     1.0,
		},
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out MicrostructureAnomaly
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if out.ID != in.ID || out.Kind != AnomalyIcebergOrder || out.Severity != SeverityMedium {
		t.Errorf("identity = (%s, %s, %s), want preserved", out.ID, out.Kind, out.Severity)
	}
	if out.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", out.Confidence)
	}
	if len(out.AffectedLevels) != 2 {
		t.Fatalf("AffectedLevels = %d, want 2", len(out.AffectedLevels))
	}
	requireDecimal(t, "AffectedLevels[0]", out.AffectedLevels[0], "42853.90")
	if out.IcebergOrder == nil {
		t.Fatal("IcebergOrder details lost")
	}
	requireDecimal(t, "IcebergOrder.PriceLevel", out.IcebergOrder.PriceLevel, "42853.90")
	if out.IcebergOrder.RefillRateMultiplier != 6.2 {
		t.Errorf("RefillRateMultiplier = %v, want 6.2", out.IcebergOrder.RefillRateMultiplier)
	}
	if out.QuoteStuffing != nil || out.FlashCrashRisk != nil {
		t.Error("unpopulated detail fields must stay nil")
	}
}
