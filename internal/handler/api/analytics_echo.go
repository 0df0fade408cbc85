package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"BookPulse/internal/domain/models"
	dsvc "BookPulse/internal/domain/service"
	icache "BookPulse/internal/service/cache"
	"BookPulse/internal/service/metrics"
	"BookPulse/internal/service/ratelimit"
	"BookPulse/internal/usecase"
	xhttp "BookPulse/pkg/http"
	xlogger "BookPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CacheTTLs sets per-endpoint response cache lifetimes. Zero disables
// caching for that endpoint.
type CacheTTLs struct {
	OrderFlow time.Duration
	Profile   time.Duration
	Anomalies time.Duration
	Health    time.Duration
	Report    time.Duration
}

// AnalyticsEchoHandler exposes the analytics engine over HTTP.
type AnalyticsEchoHandler struct {
	logger   *xlogger.Logger
	flow     dsvc.OrderFlowAnalyzer
	profile  dsvc.VolumeProfileBuilder
	detector dsvc.AnomalyDetector
	health   dsvc.HealthScorer
	report   *usecase.MarketReportUseCase
	cache    icache.BytesCache
	ttls     CacheTTLs
	rl       *ratelimit.Limiter
}

func NewAnalyticsEchoHandler(
	logger *xlogger.Logger,
	flow dsvc.OrderFlowAnalyzer,
	profile dsvc.VolumeProfileBuilder,
	detector dsvc.AnomalyDetector,
	health dsvc.HealthScorer,
	report *usecase.MarketReportUseCase,
) *AnalyticsEchoHandler {
	metrics.Register()
	return &AnalyticsEchoHandler{
		logger:   logger,
		flow:     flow,
		profile:  profile,
		detector: detector,
		health:   health,
		report:   report,
		rl:       ratelimit.New(),
	}
}

// SetCache injects a response cache.
func (h *AnalyticsEchoHandler) SetCache(c icache.BytesCache, ttls CacheTTLs) {
	h.cache = c
	h.ttls = ttls
}

func (h *AnalyticsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/orderflow", h.OrderFlow)
	g.GET("/volume-profile", h.VolumeProfile)
	g.GET("/anomalies", h.Anomalies)
	g.GET("/health", h.Health)
	g.GET("/report", h.Report)
}

func (h *AnalyticsEchoHandler) OrderFlow(c echo.Context) error {
	req := &models.OrderFlowRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	end := xhttp.ParseTimeDefault(req.End, time.Time{})
	key := fmt.Sprintf("orderflow:%s:%d:%s", req.Symbol, req.WindowSec, req.End)

	return h.serve(c, "orderflow", key, h.ttls.OrderFlow, func(ctx context.Context) (interface{}, error) {
		return h.flow.ComputeOrderFlow(ctx, req.Symbol, time.Duration(req.WindowSec)*time.Second, end)
	})
}

func (h *AnalyticsEchoHandler) VolumeProfile(c echo.Context) error {
	req := &models.VolumeProfileRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := fmt.Sprintf("profile:%s:%d:%s", req.Symbol, req.LookbackHours, req.TickSize)

	return h.serve(c, "volume_profile", key, h.ttls.Profile, func(ctx context.Context) (interface{}, error) {
		return h.profile.GenerateProfile(ctx, req.Symbol, time.Duration(req.LookbackHours)*time.Hour, req.TickSize)
	})
}

func (h *AnalyticsEchoHandler) Anomalies(c echo.Context) error {
	req := &models.AnomaliesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := fmt.Sprintf("anomalies:%s:%d", req.Symbol, req.WindowSec)

	return h.serve(c, "anomalies", key, h.ttls.Anomalies, func(ctx context.Context) (interface{}, error) {
		return h.detector.DetectAnomalies(ctx, req.Symbol, time.Duration(req.WindowSec)*time.Second)
	})
}

func (h *AnalyticsEchoHandler) Health(c echo.Context) error {
	req := &models.HealthRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := fmt.Sprintf("health:%s:%d", req.Symbol, req.WindowSec)

	return h.serve(c, "health", key, h.ttls.Health, func(ctx context.Context) (interface{}, error) {
		return h.health.ScoreHealth(ctx, req.Symbol, time.Duration(req.WindowSec)*time.Second)
	})
}

func (h *AnalyticsEchoHandler) Report(c echo.Context) error {
	req := &models.ReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := "report:" + req.Symbol

	return h.serve(c, "report", key, h.ttls.Report, func(ctx context.Context) (interface{}, error) {
		return h.report.GetReport(ctx, usecase.GetReportParams{Symbol: req.Symbol})
	})
}

// serve wraps an endpoint with rate limiting, response caching, latency
// metrics, and error mapping.
func (h *AnalyticsEchoHandler) serve(c echo.Context, endpoint, key string, ttl time.Duration, fetch func(ctx context.Context) (interface{}, error)) error {
	start := time.Now()
	defer func() { metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		if h.logger != nil {
			h.logger.Warn("analytics rate_limited",
				xlogger.String("endpoint", endpoint),
				xlogger.String("remote", c.RealIP()))
		}
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", 429))
	}

	ctx := c.Request().Context()
	useCache := h.cache != nil && ttl > 0
	if useCache {
		if b, ok, err := h.cache.GetBytes(ctx, key); err != nil {
			if h.logger != nil {
				h.logger.Warn("analytics cache_get_error", xlogger.Error(err))
			}
		} else if ok {
			metrics.CacheHits.WithLabelValues(endpoint).Inc()
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	res, err := fetch(ctx)
	if err != nil {
		metrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		var noData *models.NoDataError
		if errors.As(err, &noData) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError(noData.Error()).WithError(err))
		}
		if h.logger != nil {
			h.logger.Error("analytics usecase error",
				xlogger.String("endpoint", endpoint),
				xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}

	if useCache {
		b, merr := json.Marshal(res)
		if merr == nil {
			if serr := h.cache.SetBytes(ctx, key, b, ttl); serr != nil && h.logger != nil {
				h.logger.Warn("analytics cache_set_error", xlogger.Error(serr))
			}
		}
	}
	return xhttp.SuccessResponse(c, res)
}
