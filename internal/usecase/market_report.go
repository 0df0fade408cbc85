package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	dsvc "BookPulse/internal/domain/service"
	applogger "BookPulse/pkg/logger"
)

// ReportWindows carries the default analysis windows for one report.
type ReportWindows struct {
	Flow            time.Duration
	Anomaly         time.Duration
	Health          time.Duration
	ProfileLookback time.Duration
	TickSize        string
}

// MarketReportUseCase fans out the four analytics concurrently and
// assembles a single report. A section failure lands in Errors without
// sinking the rest of the report.
type MarketReportUseCase struct {
	flow     dsvc.OrderFlowAnalyzer
	profile  dsvc.VolumeProfileBuilder
	detector dsvc.AnomalyDetector
	health   dsvc.HealthScorer
	alerts   drepo.AlertPublisher
	windows  ReportWindows
	logger   *applogger.Logger
	timeout  time.Duration
}

func NewMarketReportUseCase(
	flow dsvc.OrderFlowAnalyzer,
	profile dsvc.VolumeProfileBuilder,
	detector dsvc.AnomalyDetector,
	health dsvc.HealthScorer,
	alerts drepo.AlertPublisher,
	windows ReportWindows,
	logger *applogger.Logger,
) *MarketReportUseCase {
	if windows.Flow <= 0 {
		windows.Flow = 5 * time.Minute
	}
	if windows.Anomaly <= 0 {
		windows.Anomaly = 5 * time.Minute
	}
	if windows.Health <= 0 {
		windows.Health = 5 * time.Minute
	}
	if windows.ProfileLookback <= 0 {
		windows.ProfileLookback = 24 * time.Hour
	}
	if windows.TickSize == "" {
		windows.TickSize = "0.01"
	}
	return &MarketReportUseCase{
		flow:     flow,
		profile:  profile,
		detector: detector,
		health:   health,
		alerts:   alerts,
		windows:  windows,
		logger:   logger,
		timeout:  15 * time.Second,
	}
}

// GetReportParams selects the symbol and optional window overrides.
type GetReportParams struct {
	Symbol   string
	TickSize string
}

func (uc *MarketReportUseCase) GetReport(ctx context.Context, p GetReportParams) (*models.MarketReport, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	tick := p.TickSize
	if tick == "" {
		tick = uc.windows.TickSize
	}

	// Overall timeout
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &models.MarketReport{
		Symbol:    p.Symbol,
		Timestamp: time.Now(),
		Errors:    map[string]string{},
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.flow.ComputeOrderFlow(ctx, p.Symbol, uc.windows.Flow, time.Time{})
		ch <- item{"order_flow", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.profile.GenerateProfile(ctx, p.Symbol, uc.windows.ProfileLookback, tick)
		ch <- item{"volume_profile", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.detector.DetectAnomalies(ctx, p.Symbol, uc.windows.Anomaly)
		ch <- item{"anomalies", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.health.ScoreHealth(ctx, p.Symbol, uc.windows.Health)
		ch <- item{"health", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			continue
		}
		switch it.name {
		case "order_flow":
			res.OrderFlow = it.val.(*models.OrderFlowSnapshot)
		case "volume_profile":
			res.Profile = it.val.(*models.VolumeProfile)
		case "anomalies":
			res.Anomalies = it.val.([]models.MicrostructureAnomaly)
		case "health":
			res.Health = it.val.(*models.MicrostructureHealth)
		}
	}

	uc.forwardAlerts(ctx, res.Anomalies)

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

// forwardAlerts pushes detections to the alert topic, best effort: a
// broker outage must not fail the report.
func (uc *MarketReportUseCase) forwardAlerts(ctx context.Context, anomalies []models.MicrostructureAnomaly) {
	if uc.alerts == nil || len(anomalies) == 0 {
		return
	}
	if err := uc.alerts.PublishAnomalies(ctx, anomalies); err != nil && uc.logger != nil {
		uc.logger.Warn("anomaly alert publish failed",
			applogger.Int("count", len(anomalies)),
			applogger.Error(err))
	}
}
