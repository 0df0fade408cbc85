package models

// Requests for analytics HTTP endpoints. Defined in domain for consistency and reuse.

type OrderFlowRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	WindowSec int    `query:"window" json:"window" default:"60" validate:"gte=1,lte=86400"`
	End       string `query:"end" json:"end"` // RFC3339 or unix seconds; empty means now
}

type VolumeProfileRequest struct {
	Symbol        string `query:"symbol" json:"symbol" validate:"required"`
	LookbackHours int    `query:"hours" json:"hours" default:"4" validate:"gte=1,lte=168"`
	TickSize      string `query:"tick" json:"tick" default:"0.01" validate:"required"`
}

type AnomaliesRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	WindowSec int    `query:"window" json:"window" default:"60" validate:"gte=1,lte=3600"`
}

type HealthRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	WindowSec int    `query:"window" json:"window" default:"300" validate:"gte=1,lte=86400"`
}

type ReportRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}
