package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"levelcore/internal/model"
)

// Mock is a deterministic in-memory model.ExchangeClient: candles are
// seeded per (symbol, tf) ahead of time and served back by FetchOHLCV
// without any network I/O. Used by unit tests and the backtest tool,
// which need reproducible series rather than live market data.
type Mock struct {
	mu      sync.Mutex
	candles map[string][]model.Candle
	tickers map[string]float64
	err     error // if set, every call fails with this error
}

// NewMock creates an empty mock adapter.
func NewMock() *Mock {
	return &Mock{candles: make(map[string][]model.Candle), tickers: make(map[string]float64)}
}

// Seed registers a candle series for (symbol, tf), sorted ascending by TS.
func (m *Mock) Seed(symbol string, tf model.Timeframe, candles []model.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.Candle, len(candles))
	copy(cp, candles)
	sort.Slice(cp, func(i, j int) bool { return cp[i].TS.Before(cp[j].TS) })
	m.candles[key(symbol, tf)] = cp
}

// SetTicker registers the last-traded price FetchTicker returns for symbol.
func (m *Mock) SetTicker(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[symbol] = price
}

// FailWith makes every subsequent call return err (nil clears the fault).
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func key(symbol string, tf model.Timeframe) string { return symbol + ":" + string(tf) }

func (m *Mock) FetchOHLCV(_ context.Context, symbol string, tf model.Timeframe, since time.Time, limit int) ([]model.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	all := m.candles[key(symbol, tf)]
	var filtered []model.Candle
	for _, c := range all {
		if since.IsZero() || !c.TS.Before(since) {
			filtered = append(filtered, c)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]model.Candle, len(filtered))
	copy(out, filtered)
	return out, nil
}

func (m *Mock) FetchTicker(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	price, ok := m.tickers[symbol]
	if !ok {
		return 0, fmt.Errorf("exchange: mock has no ticker seeded for %s", symbol)
	}
	return price, nil
}
