package binance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func TestNextBackoffDoublesToCeiling(t *testing.T) {
	ceil := 60 * time.Second
	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, 60 * time.Second, 60 * time.Second,
	}

	current := time.Second
	for i, w := range want {
		current = nextBackoff(current, ceil)
		if current != w {
			t.Fatalf("step %d: backoff = %v, want %v", i, current, w)
		}
	}
}

func TestParseAggTrade(t *testing.T) {
	raw := []byte(`{"e":"aggTrade","E":1693400000123,"s":"BTCUSDT","a":5933014,` +
		`"p":"25001.10","q":"0.00150000","f":100,"l":105,"T":1693400000120,"m":true,"M":true}`)

	got, err := parseAggTrade(raw)
	if err != nil {
		t.Fatalf("parseAggTrade() error = %v", err)
	}

	if got.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", got.Symbol)
	}
	if !got.Price.Equal(decimal.RequireFromString("25001.10")) {
		t.Errorf("Price = %s, want 25001.10", got.Price)
	}
	if !got.Quantity.Equal(decimal.RequireFromString("0.0015")) {
		t.Errorf("Quantity = %s, want 0.0015", got.Quantity)
	}
	// Exact string form survives the round trip, not just the value.
	if got.Quantity.String() != "0.0015" {
		t.Errorf("Quantity.String() = %q, want trailing zeros trimmed", got.Quantity.String())
	}
	if got.FirstTradeID != 100 || got.LastTradeID != 105 {
		t.Errorf("trade IDs = (%d, %d), want (100, 105)", got.FirstTradeID, got.LastTradeID)
	}
	if !got.IsBuyerMaker {
		t.Error("IsBuyerMaker = false, want true")
	}
	if want := time.UnixMilli(1693400000120).UTC(); !got.TradeTime.Equal(want) {
		t.Errorf("TradeTime = %v, want %v", got.TradeTime, want)
	}
}

func TestParseAggTradeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"e":"aggTrade"`},
		{"wrong event type", `{"e":"depthUpdate","s":"BTCUSDT"}`},
		{"bad price", `{"e":"aggTrade","s":"BTCUSDT","p":"abc","q":"1"}`},
		{"bad quantity", `{"e":"aggTrade","s":"BTCUSDT","p":"100","q":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseAggTrade([]byte(tt.raw)); err == nil {
				t.Error("parseAggTrade() expected error")
			}
		})
	}
}

func TestStreamDropWaitsBeforeRedial(t *testing.T) {
	var dials atomic.Int64
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Accept and drop straight away: the client must still wait out
		// its backoff before the next dial.
		_ = conn.Close()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	feed := NewTradeFeed(wsURL, 200*time.Millisecond, time.Second, 8, nil, nil)

	trades, stop, err := feed.Subscribe(t.Context(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer stop()

	time.Sleep(700 * time.Millisecond)
	stop()
	for range trades {
	}

	got := dials.Load()
	if got < 2 {
		t.Errorf("dials = %d, want reconnects to continue", got)
	}
	// A 200ms floor allows at most ~4 dials in 700ms.
	if got > 6 {
		t.Errorf("dials = %d in 700ms, want backoff between redials", got)
	}
}

func TestSubscribeRequiresSymbol(t *testing.T) {
	feed := NewTradeFeed("wss://example.invalid/ws", time.Second, time.Minute, 16, nil, nil)
	if _, _, err := feed.Subscribe(t.Context(), ""); err == nil {
		t.Error("Subscribe() with empty symbol: expected error")
	}
}
