package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"BookPulse/internal/domain/models"
	drepo "BookPulse/internal/domain/repository"
	applogger "BookPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const pingInterval = 30 * time.Second

// DepthClient implements a DepthStream backed by Binance partial book
// depth streams. One combined-stream connection carries every
// configured symbol.
type DepthClient struct {
	websocketURL   string
	symbols        []string
	depthLevels    int
	reconnectDelay time.Duration
	logger         *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewDepthClient creates a Binance depth stream for the given symbols.
func NewDepthClient(websocketURL string, symbols []string, depthLevels int, reconnectDelay time.Duration, logger *applogger.Logger) drepo.DepthStream {
	return &DepthClient{
		websocketURL:   websocketURL,
		symbols:        symbols,
		depthLevels:    depthLevels,
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

// streamURL builds the combined-stream endpoint, e.g.
// wss://host/stream?streams=btcusdt@depth20@100ms/ethusdt@depth20@100ms.
func (c *DepthClient) streamURL() string {
	names := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		names = append(names, fmt.Sprintf("%s@depth%d@100ms", strings.ToLower(s), c.depthLevels))
	}
	base := strings.TrimSuffix(c.websocketURL, "/ws")
	return fmt.Sprintf("%s/stream?streams=%s", base, strings.Join(names, "/"))
}

// Connect establishes the WebSocket connection.
func (c *DepthClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("binance depth connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("binance depth stream connected",
			applogger.Strings("symbols", c.symbols),
			applogger.Int("levels", c.depthLevels))
	}
	return nil
}

type streamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthPayload struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// Read streams parsed book snapshots and errors. A read error ends both
// channels; the caller decides whether to Reconnect. Malformed frames
// are logged and skipped, never fatal.
func (c *DepthClient) Read(ctx context.Context) (<-chan *models.OrderBookSnapshot, <-chan error) {
	snaps := make(chan *models.OrderBookSnapshot, 1024)
	errs := make(chan error, 1)
	done := make(chan struct{})

	// ping loop, ends with the read loop so reconnects do not stack
	// ping goroutines
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(snaps)
		defer close(errs)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("binance depth conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance depth read: %w", err)
					return
				}

				snap, err := c.parseFrame(b)
				if err != nil {
					if c.logger != nil {
						c.logger.Warn("binance depth: skipping malformed frame", applogger.Error(err))
					}
					continue
				}
				select {
				case snaps <- snap:
				default:
					// drop on backpressure; the next snapshot supersedes it
				}
			}
		}
	}()

	return snaps, errs
}

func (c *DepthClient) parseFrame(b []byte) (*models.OrderBookSnapshot, error) {
	var frame streamFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	symbol, ok := symbolFromStream(frame.Stream)
	if !ok {
		return nil, fmt.Errorf("unrecognized stream name %q", frame.Stream)
	}

	var payload depthPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode depth payload: %w", err)
	}

	snap := &models.OrderBookSnapshot{
		Symbol:     symbol,
		CapturedAt: time.Now().UTC(),
		UpdateID:   payload.LastUpdateID,
	}
	var err error
	if snap.Bids, err = parseLevels(payload.Bids); err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	if snap.Asks, err = parseLevels(payload.Asks); err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}
	return snap, nil
}

// symbolFromStream maps "btcusdt@depth20@100ms" to "BTCUSDT".
func symbolFromStream(stream string) (string, bool) {
	name, _, found := strings.Cut(stream, "@")
	if !found || name == "" {
		return "", false
	}
	return strings.ToUpper(name), true
}

func parseLevels(raw [][]string) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level needs price and quantity, got %v", pair)
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", pair[1], err)
		}
		levels = append(levels, models.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// Reconnect closes and reconnects.
func (c *DepthClient) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *DepthClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *DepthClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
