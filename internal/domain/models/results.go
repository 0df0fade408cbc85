package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlowDirection classifies net order flow pressure over a window.
type FlowDirection string

const (
	FlowStrongBuy    FlowDirection = "strong_buy"
	FlowModerateBuy  FlowDirection = "moderate_buy"
	FlowNeutral      FlowDirection = "neutral"
	FlowModerateSell FlowDirection = "moderate_sell"
	FlowStrongSell   FlowDirection = "strong_sell"
)

// OrderFlowSnapshot is the order flow analysis result for one window.
// Every result carries the symbol and the exact window it was computed
// over, so it is reproducible given the same snapshot set.
type OrderFlowSnapshot struct {
	Symbol      string          `json:"symbol"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	BidFlowRate float64         `json:"bid_flow_rate"` // bid updates/second
	AskFlowRate float64         `json:"ask_flow_rate"` // ask updates/second
	NetFlow     float64         `json:"net_flow"`
	Direction   FlowDirection   `json:"direction"`
	DeltaVolume decimal.Decimal `json:"delta_volume"` // cumulative bid-ask quantity delta
}

// ProfileBin is one price bucket of a volume profile histogram.
type ProfileBin struct {
	PriceLevel decimal.Decimal `json:"price_level"`
	Volume     decimal.Decimal `json:"volume"`
	TradeCount int             `json:"trade_count"`
}

// VolumeProfile is the traded-volume distribution over a price range.
type VolumeProfile struct {
	Symbol         string          `json:"symbol"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	PriceLow       decimal.Decimal `json:"price_low"`
	PriceHigh      decimal.Decimal `json:"price_high"`
	BinSize        decimal.Decimal `json:"bin_size"`
	Bins           []ProfileBin    `json:"bins"` // ascending by price
	TotalVolume    decimal.Decimal `json:"total_volume"`
	PointOfControl decimal.Decimal `json:"point_of_control"`
	ValueAreaHigh  decimal.Decimal `json:"value_area_high"`
	ValueAreaLow   decimal.Decimal `json:"value_area_low"`
}

// AnomalyKind names a manipulation pattern detector.
type AnomalyKind string

const (
	AnomalyQuoteStuffing  AnomalyKind = "quote_stuffing"
	AnomalyIcebergOrder   AnomalyKind = "iceberg_order"
	AnomalyFlashCrashRisk AnomalyKind = "flash_crash_risk"
)

// AnomalySeverity grades how dangerous a finding is.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// QuoteStuffingDetails carries the quote stuffing detector's evidence.
type QuoteStuffingDetails struct {
	UpdateRate float64 `json:"update_rate"` // snapshots/second
	FillRate   float64 `json:"fill_rate"`
}

// IcebergOrderDetails carries the iceberg detector's evidence.
type IcebergOrderDetails struct {
	PriceLevel           decimal.Decimal `json:"price_level"`
	RefillRateMultiplier float64         `json:"refill_rate_multiplier"`
	MedianRefillRate     float64         `json:"median_refill_rate"`
}

// FlashCrashRiskDetails carries the flash crash detector's evidence.
type FlashCrashRiskDetails struct {
	DepthLossPct     float64 `json:"depth_loss_pct"`
	SpreadMultiplier float64 `json:"spread_multiplier"`
	CancellationRate float64 `json:"cancellation_rate"`
}

// MicrostructureAnomaly is one detector finding. Exactly one of the
// details fields is populated, matching Kind.
type MicrostructureAnomaly struct {
	ID             string                 `json:"id"`
	Symbol         string                 `json:"symbol"`
	Kind           AnomalyKind            `json:"kind"`
	DetectedAt     time.Time              `json:"detected_at"`
	WindowStart    time.Time              `json:"window_start"`
	WindowEnd      time.Time              `json:"window_end"`
	Confidence     float64                `json:"confidence"` // [0,1]
	Severity       AnomalySeverity        `json:"severity"`
	AffectedLevels []decimal.Decimal      `json:"affected_levels,omitempty"`
	Recommendation string                 `json:"recommendation"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	QuoteStuffing  *QuoteStuffingDetails  `json:"quote_stuffing,omitempty"`
	IcebergOrder   *IcebergOrderDetails   `json:"iceberg_order,omitempty"`
	FlashCrashRisk *FlashCrashRiskDetails `json:"flash_crash_risk,omitempty"`
}

// HealthLevel is the qualitative classification of a health score.
type HealthLevel string

const (
	HealthExcellent HealthLevel = "excellent"
	HealthGood      HealthLevel = "good"
	HealthFair      HealthLevel = "fair"
	HealthPoor      HealthLevel = "poor"
	HealthCritical  HealthLevel = "critical"
)

// MicrostructureHealth is the composite liquidity health result.
type MicrostructureHealth struct {
	Symbol          string      `json:"symbol"`
	Timestamp       time.Time   `json:"timestamp"`
	WindowStart     time.Time   `json:"window_start"`
	WindowEnd       time.Time   `json:"window_end"`
	OverallScore    float64     `json:"overall_score"` // [0,100]
	SpreadStability float64     `json:"spread_stability"`
	LiquidityDepth  float64     `json:"liquidity_depth"`
	FlowBalance     float64     `json:"flow_balance"`
	UpdateRate      float64     `json:"update_rate"`
	Level           HealthLevel `json:"level"`
	Recommendation  string      `json:"recommendation"`
}

// MarketReport aggregates all four analytics for one symbol. Sections
// that failed are nil with the failure recorded in Errors.
type MarketReport struct {
	Symbol    string                  `json:"symbol"`
	Timestamp time.Time               `json:"timestamp"`
	OrderFlow *OrderFlowSnapshot      `json:"order_flow,omitempty"`
	Profile   *VolumeProfile          `json:"volume_profile,omitempty"`
	Anomalies []MicrostructureAnomaly `json:"anomalies"`
	Health    *MicrostructureHealth   `json:"health,omitempty"`
	Errors    map[string]string       `json:"errors,omitempty"`
}
