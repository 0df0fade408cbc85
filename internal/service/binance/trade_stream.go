package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	applogger "BookPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// StreamState is the lifecycle state of one trade subscription.
type StreamState string

const (
	StateDisconnected StreamState = "disconnected"
	StateConnecting   StreamState = "connecting"
	StateStreaming    StreamState = "streaming"
)

// TradeFeed implements a TradeStream backed by Binance aggregated trade
// streams. Each Subscribe call owns one connection and its reconnect
// loop: attempts back off exponentially from the floor to the ceiling,
// and a successful connection resets the backoff to the floor.
//
// The returned channel is a bounded queue. When it fills, the reader
// blocks instead of dropping trades, so a slow consumer throttles the
// whole subscription.
type TradeFeed struct {
	websocketURL   string
	reconnectFloor time.Duration
	reconnectCeil  time.Duration
	queueSize      int
	logger         *applogger.Logger
	metrics        drepo.Metrics
}

// NewTradeFeed creates a Binance aggregated trade stream.
func NewTradeFeed(websocketURL string, reconnectFloor, reconnectCeil time.Duration, queueSize int, logger *applogger.Logger, metrics drepo.Metrics) drepo.TradeStream {
	if reconnectFloor <= 0 {
		reconnectFloor = time.Second
	}
	if reconnectCeil < reconnectFloor {
		reconnectCeil = 60 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &TradeFeed{
		websocketURL:   websocketURL,
		reconnectFloor: reconnectFloor,
		reconnectCeil:  reconnectCeil,
		queueSize:      queueSize,
		logger:         logger,
		metrics:        metrics,
	}
}

// Subscribe opens the feed for one symbol. The channel closes once the
// stop function is called (or ctx ends) and the connection is torn down.
func (f *TradeFeed) Subscribe(ctx context.Context, symbol string) (<-chan *models.AggregatedTrade, func(), error) {
	if symbol == "" {
		return nil, nil, fmt.Errorf("binance trades: symbol is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan *models.AggregatedTrade, f.queueSize)
	go f.run(runCtx, symbol, out)
	return out, cancel, nil
}

// run drives the Disconnected -> Connecting -> Streaming loop until the
// context ends.
func (f *TradeFeed) run(ctx context.Context, symbol string, out chan<- *models.AggregatedTrade) {
	defer close(out)
	defer f.setState(symbol, StateDisconnected)

	backoff := f.reconnectFloor
	for {
		f.setState(symbol, StateConnecting)
		conn, err := f.dial(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if f.logger != nil {
				f.logger.Warn("binance trades: connect failed",
					applogger.String("symbol", symbol),
					applogger.Duration("retry_in", backoff),
					applogger.Error(err))
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, f.reconnectCeil)
			continue
		}

		backoff = f.reconnectFloor
		f.setState(symbol, StateStreaming)
		if f.logger != nil {
			f.logger.Info("binance trades: streaming", applogger.String("symbol", symbol))
		}

		err = f.readLoop(ctx, conn, symbol, out)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if f.logger != nil {
			f.logger.Warn("binance trades: stream dropped",
				applogger.String("symbol", symbol),
				applogger.Duration("retry_in", backoff),
				applogger.Error(err))
		}
		f.setState(symbol, StateDisconnected)

		// A drop waits out the current backoff too, so a server that
		// accepts and immediately closes cannot be redialed in a tight
		// loop.
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, f.reconnectCeil)
	}
}

func (f *TradeFeed) dial(ctx context.Context, symbol string) (*websocket.Conn, error) {
	u := fmt.Sprintf("%s/%s@aggTrade", strings.TrimSuffix(f.websocketURL, "/"), strings.ToLower(symbol))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return conn, nil
}

// aggTradeEvent is the Binance aggTrade wire format. Prices and
// quantities arrive as strings and stay exact through decimal parsing.
type aggTradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"` // ms
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"` // ms
	IsBuyerMaker bool   `json:"m"`
}

// readLoop pushes trades until the connection or the context fails.
// Malformed messages are logged and skipped; the send into the bounded
// queue blocks when the consumer lags.
func (f *TradeFeed) readLoop(ctx context.Context, conn *websocket.Conn, symbol string, out chan<- *models.AggregatedTrade) error {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		trade, err := parseAggTrade(b)
		if err != nil {
			if f.logger != nil {
				f.logger.Warn("binance trades: skipping malformed message",
					applogger.String("symbol", symbol),
					applogger.Error(err))
			}
			if f.metrics != nil {
				f.metrics.RecordError("malformed_trade")
			}
			continue
		}

		select {
		case out <- trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseAggTrade(b []byte) (*models.AggregatedTrade, error) {
	var ev aggTradeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode aggTrade: %w", err)
	}
	if ev.EventType != "aggTrade" {
		return nil, fmt.Errorf("unexpected event type %q", ev.EventType)
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", ev.Price, err)
	}
	qty, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return nil, fmt.Errorf("parse quantity %q: %w", ev.Quantity, err)
	}

	return &models.AggregatedTrade{
		Symbol:       ev.Symbol,
		Price:        price,
		Quantity:     qty,
		TradeTime:    time.UnixMilli(ev.TradeTime).UTC(),
		EventTime:    time.UnixMilli(ev.EventTime).UTC(),
		FirstTradeID: ev.FirstTradeID,
		LastTradeID:  ev.LastTradeID,
		IsBuyerMaker: ev.IsBuyerMaker,
	}, nil
}

func (f *TradeFeed) setState(symbol string, state StreamState) {
	if f.metrics != nil {
		f.metrics.RecordStreamState(symbol, state == StateStreaming)
	}
}

// nextBackoff doubles the delay up to the ceiling.
func nextBackoff(current, ceil time.Duration) time.Duration {
	next := current * 2
	if next > ceil {
		return ceil
	}
	return next
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
