package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"BookPulse/internal/domain/models"
	applogger "BookPulse/pkg/logger"

	"github.com/shopspring/decimal"
)

// CHSnapshotStore implements SnapshotStore backed by ClickHouse. Levels
// are stored as parallel price/quantity string arrays so decimal values
// survive the round trip exactly.
type CHSnapshotStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHSnapshotStore creates ClickHouse snapshot storage.
func NewCHSnapshotStore(db *sql.DB, table string) *CHSnapshotStore {
	return &CHSnapshotStore{db: db, table: table}
}

// SetLogger injects a structured logger.
func (s *CHSnapshotStore) SetLogger(l *applogger.Logger) { s.l = l }

// Init creates the snapshot table if missing (idempotent).
func (s *CHSnapshotStore) Init(ctx context.Context) error {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            captured_at DateTime64(3, 'UTC'),
            symbol      LowCardinality(String),
            update_id   Int64,
            bid_prices  Array(String),
            bid_qtys    Array(String),
            ask_prices  Array(String),
            ask_qtys    Array(String)
        ) ENGINE = MergeTree()
        ORDER BY (symbol, captured_at)
        TTL toDateTime(captured_at) + INTERVAL 7 DAY
    `, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init snapshot table: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) Store(ctx context.Context, snap *models.OrderBookSnapshot) error {
	return s.StoreBatch(ctx, []*models.OrderBookSnapshot{snap})
}

func (s *CHSnapshotStore) StoreBatch(ctx context.Context, snaps []*models.OrderBookSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	// Multi-row VALUES to reduce round-trips; 2000 rows per chunk.
	const chunkSize = 2000
	for start := 0; start < len(snaps); start += chunkSize {
		end := start + chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, snap := range snaps[start:end] {
			if snap == nil || snap.Symbol == "" {
				continue
			}
			bidPrices, bidQtys := levelColumns(snap.Bids)
			askPrices, askQtys := levelColumns(snap.Asks)
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				snap.CapturedAt,
				snap.Symbol,
				snap.UpdateID,
				bidPrices,
				bidQtys,
				askPrices,
				askQtys,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (captured_at, symbol, update_id, bid_prices, bid_qtys, ask_prices, ask_qtys) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse snapshot insert error",
					applogger.String("table", s.table),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("store snapshots: %w", err)
		}
	}
	return nil
}

// Query returns snapshots in [from, to] ordered by capture time ascending.
func (s *CHSnapshotStore) Query(ctx context.Context, symbol string, from, to time.Time) ([]*models.OrderBookSnapshot, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT captured_at, symbol, update_id, bid_prices, bid_qtys, ask_prices, ask_qtys
        FROM %s
        WHERE symbol = ? AND captured_at >= ? AND captured_at <= ?
        ORDER BY captured_at ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse snapshot query error",
				applogger.String("table", s.table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]*models.OrderBookSnapshot, 0, 1024)
	for rows.Next() {
		snap := &models.OrderBookSnapshot{}
		var bidPrices, bidQtys, askPrices, askQtys []string
		if err := rows.Scan(&snap.CapturedAt, &snap.Symbol, &snap.UpdateID, &bidPrices, &bidQtys, &askPrices, &askQtys); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.Bids, err = columnLevels(bidPrices, bidQtys); err != nil {
			return nil, fmt.Errorf("decode bids: %w", err)
		}
		if snap.Asks, err = columnLevels(askPrices, askQtys); err != nil {
			return nil, fmt.Errorf("decode asks: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse snapshot query ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHSnapshotStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSnapshotStore) Close() error {
	return nil // Pool managed by pkg
}

func levelColumns(levels []models.PriceLevel) ([]string, []string) {
	prices := make([]string, len(levels))
	qtys := make([]string, len(levels))
	for i, lvl := range levels {
		prices[i] = lvl.Price.String()
		qtys[i] = lvl.Quantity.String()
	}
	return prices, qtys
}

func columnLevels(prices, qtys []string) ([]models.PriceLevel, error) {
	if len(prices) != len(qtys) {
		return nil, fmt.Errorf("column length mismatch: %d prices, %d quantities", len(prices), len(qtys))
	}
	levels := make([]models.PriceLevel, len(prices))
	for i := range prices {
		price, err := decimal.NewFromString(prices[i])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", prices[i], err)
		}
		qty, err := decimal.NewFromString(qtys[i])
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", qtys[i], err)
		}
		levels[i] = models.PriceLevel{Price: price, Quantity: qty}
	}
	return levels, nil
}
