package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BookPulse/internal/domain/models"
)

type fakeFlow struct {
	snap *models.OrderFlowSnapshot
	err  error
}

func (f *fakeFlow) ComputeOrderFlow(ctx context.Context, symbol string, window time.Duration, end time.Time) (*models.OrderFlowSnapshot, error) {
	return f.snap, f.err
}

type fakeProfile struct {
	profile *models.VolumeProfile
	err     error
}

func (f *fakeProfile) GenerateProfile(ctx context.Context, symbol string, lookback time.Duration, tickSize string) (*models.VolumeProfile, error) {
	return f.profile, f.err
}

type fakeDetector struct {
	anomalies []models.MicrostructureAnomaly
	err       error
}

func (f *fakeDetector) DetectAnomalies(ctx context.Context, symbol string, window time.Duration) ([]models.MicrostructureAnomaly, error) {
	return f.anomalies, f.err
}

type fakeHealth struct {
	health *models.MicrostructureHealth
	err    error
}

func (f *fakeHealth) ScoreHealth(ctx context.Context, symbol string, window time.Duration) (*models.MicrostructureHealth, error) {
	return f.health, f.err
}

type fakeAlerts struct {
	mu        sync.Mutex
	published []models.MicrostructureAnomaly
	err       error
}

func (f *fakeAlerts) PublishAnomalies(ctx context.Context, anomalies []models.MicrostructureAnomaly) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, anomalies...)
	return f.err
}

func (f *fakeAlerts) Close() error { return nil }

func TestGetReportAllSections(t *testing.T) {
	anomaly := models.MicrostructureAnomaly{ID: "a1", Symbol: "BTCUSDT", Kind: models.AnomalyQuoteStuffing}
	alerts := &fakeAlerts{}
	uc := NewMarketReportUseCase(
		&fakeFlow{snap: &models.OrderFlowSnapshot{Symbol: "BTCUSDT", Direction: models.FlowNeutral}},
		&fakeProfile{profile: &models.VolumeProfile{Symbol: "BTCUSDT"}},
		&fakeDetector{anomalies: []models.MicrostructureAnomaly{anomaly}},
		&fakeHealth{health: &models.MicrostructureHealth{Symbol: "BTCUSDT", Level: models.HealthGood}},
		alerts,
		ReportWindows{},
		nil,
	)

	got, err := uc.GetReport(context.Background(), GetReportParams{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}

	if got.OrderFlow == nil || got.Profile == nil || got.Health == nil {
		t.Fatalf("missing sections: flow=%v profile=%v health=%v", got.OrderFlow, got.Profile, got.Health)
	}
	if len(got.Anomalies) != 1 || got.Anomalies[0].ID != "a1" {
		t.Errorf("Anomalies = %v, want the single detection", got.Anomalies)
	}
	if got.Errors != nil {
		t.Errorf("Errors = %v, want nil", got.Errors)
	}
	if len(alerts.published) != 1 {
		t.Errorf("published %d alerts, want 1", len(alerts.published))
	}
}

func TestGetReportPartialFailure(t *testing.T) {
	uc := NewMarketReportUseCase(
		&fakeFlow{snap: &models.OrderFlowSnapshot{Symbol: "BTCUSDT"}},
		&fakeProfile{err: &models.NoDataError{Symbol: "BTCUSDT"}},
		&fakeDetector{},
		&fakeHealth{err: errors.New("clickhouse down")},
		nil,
		ReportWindows{},
		nil,
	)

	got, err := uc.GetReport(context.Background(), GetReportParams{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}

	if got.OrderFlow == nil {
		t.Error("OrderFlow section missing despite healthy analyzer")
	}
	if got.Profile != nil {
		t.Error("Profile should be nil when the builder fails")
	}
	if got.Health != nil {
		t.Error("Health should be nil when the scorer fails")
	}
	if len(got.Errors) != 2 {
		t.Fatalf("Errors = %v, want entries for volume_profile and health", got.Errors)
	}
	if _, ok := got.Errors["volume_profile"]; !ok {
		t.Error("missing volume_profile error entry")
	}
	if _, ok := got.Errors["health"]; !ok {
		t.Error("missing health error entry")
	}
}

func TestGetReportAlertFailureIsBestEffort(t *testing.T) {
	anomaly := models.MicrostructureAnomaly{ID: "a1", Symbol: "BTCUSDT"}
	uc := NewMarketReportUseCase(
		&fakeFlow{snap: &models.OrderFlowSnapshot{}},
		&fakeProfile{profile: &models.VolumeProfile{}},
		&fakeDetector{anomalies: []models.MicrostructureAnomaly{anomaly}},
		&fakeHealth{health: &models.MicrostructureHealth{}},
		&fakeAlerts{err: errors.New("broker unreachable")},
		ReportWindows{},
		nil,
	)

	got, err := uc.GetReport(context.Background(), GetReportParams{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if len(got.Anomalies) != 1 {
		t.Errorf("Anomalies = %v, want the detection despite the publish failure", got.Anomalies)
	}
}

func TestGetReportRequiresSymbol(t *testing.T) {
	uc := NewMarketReportUseCase(&fakeFlow{}, &fakeProfile{}, &fakeDetector{}, &fakeHealth{}, nil, ReportWindows{}, nil)
	if _, err := uc.GetReport(context.Background(), GetReportParams{}); err == nil {
		t.Error("GetReport() without symbol: expected error")
	}
}
