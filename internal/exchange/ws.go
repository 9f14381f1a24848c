package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsHeartbeatInterval = 15 * time.Second
	wsReconnectBaseWait = time.Second
	wsReconnectMaxWait  = 30 * time.Second
)

// TickerCache keeps a live last-price cache warm over a websocket
// subscription, falling back to whatever was last seen if the
// connection drops — REST remains the source of truth for OHLCV, this
// only serves FetchTicker cheaply. Grounded on the teacher's
// SmartWebSocketV2 auto-resubscribe/heartbeat/reconnect loop, adapted
// from Angel One's binary tick frames to a public JSON ticker stream.
type TickerCache struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	prices map[string]float64

	dialer *websocket.Dialer
}

// NewTickerCache creates a cache that will stream symbols once Run starts.
func NewTickerCache(wsURL string, symbols []string) *TickerCache {
	return &TickerCache{
		url:     wsURL,
		symbols: symbols,
		prices:  make(map[string]float64, len(symbols)),
		dialer:  websocket.DefaultDialer,
	}
}

// Price returns the last cached price for symbol and whether one has
// been observed yet.
func (t *TickerCache) Price(symbol string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[symbol]
	return p, ok
}

func (t *TickerCache) setPrice(symbol string, price float64) {
	t.mu.Lock()
	t.prices[symbol] = price
	t.mu.Unlock()
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled, continuously re-subscribing to t.symbols on every
// (re)connect, exactly as the teacher's resubscribeFlag does after a
// dropped connection.
func (t *TickerCache) Run(ctx context.Context) error {
	wait := wsReconnectBaseWait
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := t.runOnce(ctx, func() { wait = wsReconnectBaseWait })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("ticker websocket disconnected, reconnecting", "error", err, "wait", wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > wsReconnectMaxWait {
			wait = wsReconnectMaxWait
		}
	}
}

func (t *TickerCache) runOnce(ctx context.Context, onConnected func()) error {
	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("exchange: parse ws url: %w", err)
	}

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("exchange: dial: %w", err)
	}
	defer conn.Close()

	if err := t.subscribe(conn); err != nil {
		return err
	}
	onConnected() // reset backoff once a connection succeeds

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(wsHeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return fmt.Errorf("exchange: heartbeat loop stopped")
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("exchange: read: %w", err)
		}
		t.handleMessage(msg)
	}
}

func (t *TickerCache) subscribe(conn *websocket.Conn) error {
	req := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{Method: "SUBSCRIBE", Params: t.symbols}
	return conn.WriteJSON(req)
}

func (t *TickerCache) handleMessage(msg []byte) {
	var tick struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
	}
	if err := json.Unmarshal(msg, &tick); err != nil || tick.Symbol == "" {
		return
	}
	price, err := strconv.ParseFloat(tick.Price, 64)
	if err != nil {
		return
	}
	t.setPrice(tick.Symbol, price)
}
