package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single order book level. Prices and quantities keep the
// exchange's decimal text representation exactly; no float64 intermediate.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot is one captured view of a symbol's book. Snapshots are
// immutable after capture; analyzers receive them read-only and must not
// mutate the level slices.
type OrderBookSnapshot struct {
	Symbol     string       `json:"symbol"`
	CapturedAt time.Time    `json:"captured_at"`
	UpdateID   int64        `json:"update_id"`
	Bids       []PriceLevel `json:"bids"` // sorted by price descending
	Asks       []PriceLevel `json:"asks"` // sorted by price ascending
}

// BestBid returns the top bid level, or false when the side is empty.
func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level, or false when the side is empty.
func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Spread returns best ask minus best bid. The second value is false when
// either side is empty.
func (s *OrderBookSnapshot) Spread() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return ask.Price.Sub(bid.Price), true
}

// LevelCount returns the number of populated bid and ask levels.
func (s *OrderBookSnapshot) LevelCount() int {
	return len(s.Bids) + len(s.Asks)
}

// AggregatedTrade is one compressed trade print from the exchange. Produced
// by the trade stream, consumed exactly once by the profile builder.
type AggregatedTrade struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TradeTime    time.Time       `json:"trade_time"`
	EventTime    time.Time       `json:"event_time"`
	FirstTradeID int64           `json:"first_trade_id"`
	LastTradeID  int64           `json:"last_trade_id"`
	IsBuyerMaker bool            `json:"is_buyer_maker"`
}
