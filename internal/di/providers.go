package di

import (
	"context"
	"fmt"
	"time"

	"BookPulse/internal/domain/repository"
	dsvc "BookPulse/internal/domain/service"
	"BookPulse/internal/handler/api"
	mid "BookPulse/internal/middleware"
	internalrepo "BookPulse/internal/repository"
	"BookPulse/internal/service/binance"
	icache "BookPulse/internal/service/cache"
	analytics "BookPulse/internal/services/analytics"
	"BookPulse/internal/usecase"
	pkgch "BookPulse/pkg/clickhouse"
	"BookPulse/pkg/config"
	pkgkafka "BookPulse/pkg/kafka"
	applogger "BookPulse/pkg/logger"
	"BookPulse/pkg/metrics"
	"BookPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	l, err := applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates the alert producer. Returns nil when
// alerting is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Alerts.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Alerts.Brokers),
		pkgkafka.WithCompression(cfg.Alerts.Compression),
		pkgkafka.WithRequiredAcks(cfg.Alerts.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSnapshotStore creates the ClickHouse snapshot repository and
// initializes its table.
func ProvideSnapshotStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.SnapshotStore, error) {
	store := internalrepo.NewCHSnapshotStore(chClient.DB(), cfg.ClickHouse.Database+".ob_snapshots")
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	return store, nil
}

// ProvideAlertPublisher creates the Kafka alert publisher. Nil when
// alerting is disabled; the report use case treats a nil publisher as
// a no-op sink.
func ProvideAlertPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.AlertPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Alerts.Topic)
}

// ProvideDepthStream creates the Binance depth WebSocket client.
func ProvideDepthStream(cfg *config.Config, l *applogger.Logger) repository.DepthStream {
	return binance.NewDepthClient(
		cfg.Binance.WebSocketURL,
		cfg.Binance.Symbols,
		cfg.Binance.DepthLevels,
		cfg.Binance.ReconnectFloor,
		l,
	)
}

// ProvideTradeStream creates the Binance aggregated-trade feed.
func ProvideTradeStream(cfg *config.Config, l *applogger.Logger, m repository.Metrics) repository.TradeStream {
	return binance.NewTradeFeed(
		cfg.Binance.WebSocketURL,
		cfg.Binance.ReconnectFloor,
		cfg.Binance.ReconnectCeil,
		cfg.Binance.QueueSize,
		l,
		m,
	)
}

// ProvideOrderFlowAnalyzer creates the order flow service.
func ProvideOrderFlowAnalyzer(store repository.SnapshotStore, l *applogger.Logger) dsvc.OrderFlowAnalyzer {
	return analytics.NewOrderFlowService(store, l)
}

// ProvideVolumeProfileBuilder creates the volume profile service.
func ProvideVolumeProfileBuilder(stream repository.TradeStream, cfg *config.Config, l *applogger.Logger) dsvc.VolumeProfileBuilder {
	return analytics.NewProfileService(stream, analytics.ProfileConfig{
		MaxTrades:      cfg.Engine.Profile.MaxTrades,
		CollectTimeout: cfg.Engine.Profile.CollectTimeout,
	}, l)
}

// ProvideAnomalyDetector creates the anomaly detection service.
func ProvideAnomalyDetector(store repository.SnapshotStore, cfg *config.Config, l *applogger.Logger) dsvc.AnomalyDetector {
	return analytics.NewAnomalyService(store, analytics.DetectorConfig{
		EstimatedFillRate:         cfg.Engine.Detector.EstimatedFillRate,
		EstimatedRefillCount:      cfg.Engine.Detector.EstimatedRefillCount,
		EstimatedMedianAbsorption: cfg.Engine.Detector.EstimatedMedianAbsorption,
		EstimatedCancellationRate: cfg.Engine.Detector.EstimatedCancellationRate,
	}, l)
}

// ProvideHealthScorer creates the book health service.
func ProvideHealthScorer(store repository.SnapshotStore, l *applogger.Logger) dsvc.HealthScorer {
	return analytics.NewHealthService(store, l)
}

// ProvideSnapshotProcessor creates the batching snapshot processor.
func ProvideSnapshotProcessor(
	store repository.SnapshotStore,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.SnapshotProcessor {
	return usecase.NewSnapshotProcessor(store, m, cfg.Capture.BatchSize, cfg.Capture.BatchTimeout)
}

// ProvideSnapshotCollector creates the capture collector.
func ProvideSnapshotCollector(
	stream repository.DepthStream,
	processor *usecase.SnapshotProcessor,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.SnapshotCollector {
	// Validation and throttling sit between the WebSocket and ClickHouse
	pipe := mid.NewRealtimePipeline(processor, m,
		mid.WithMaxRPS(20),
		mid.WithBufferSize(cfg.Capture.BufferSize),
	)
	return usecase.NewSnapshotCollector(stream, processor, m, pipe)
}

// ProvideMarketReport creates the combined report use case.
func ProvideMarketReport(
	flow dsvc.OrderFlowAnalyzer,
	profile dsvc.VolumeProfileBuilder,
	detector dsvc.AnomalyDetector,
	health dsvc.HealthScorer,
	alerts repository.AlertPublisher,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.MarketReportUseCase {
	windows := usecase.ReportWindows{
		Flow:            cfg.Engine.FlowWindow,
		Anomaly:         cfg.Engine.AnomalyWindow,
		Health:          cfg.Engine.HealthWindow,
		ProfileLookback: time.Duration(cfg.Engine.Profile.LookbackHours) * time.Hour,
		TickSize:        cfg.Engine.Profile.TickSize,
	}
	return usecase.NewMarketReportUseCase(flow, profile, detector, health, alerts, windows, l)
}

// ProvideAnalyticsHandler creates the HTTP handler with its response cache.
func ProvideAnalyticsHandler(
	l *applogger.Logger,
	flow dsvc.OrderFlowAnalyzer,
	profile dsvc.VolumeProfileBuilder,
	detector dsvc.AnomalyDetector,
	health dsvc.HealthScorer,
	report *usecase.MarketReportUseCase,
	cfg *config.Config,
) *api.AnalyticsEchoHandler {
	h := api.NewAnalyticsEchoHandler(l, flow, profile, detector, health, report)

	var c icache.BytesCache
	if cfg.Cache.Enabled {
		c = icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
	} else {
		c = icache.NewTTLCache()
	}
	h.SetCache(c, api.CacheTTLs{
		OrderFlow: cfg.Cache.TTL.OrderFlow,
		Profile:   cfg.Cache.TTL.Profile,
		Anomalies: cfg.Cache.TTL.Anomalies,
		Health:    cfg.Cache.TTL.Health,
		// the report embeds the flow section, so it shares its lifetime
		Report: cfg.Cache.TTL.OrderFlow,
	})
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.SnapshotCollector,
	handler *api.AnalyticsEchoHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	l *applogger.Logger,
) *server.App {
	// Aggregate repeated error logs onto a Kafka topic when one is set
	if producer != nil && cfg.Alerts.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Alerts.LogTopic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, collector, handler, chClient, producer, l)
}
