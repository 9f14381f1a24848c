package indicator

import "levelcore/internal/model"

// MACD calculates the Moving Average Convergence Divergence: the spread
// between a fast and slow EMA, plus a signal-line EMA of that spread.
// O(1) per update, built from two embedded EMAs rather than a window scan.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	macd   float64
	hist   float64
}

// NewMACD creates a MACD indicator with the conventional 12/26/9 periods.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(candle model.Candle) {
	m.fast.Update(candle)
	m.slow.Update(candle)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.macd = m.fast.Value() - m.slow.Value()
	m.signal.Update(model.Candle{Close: m.macd})
	if m.signal.Ready() {
		m.hist = m.macd - m.signal.Value()
	}
}

// Value returns the MACD histogram (macd line minus signal line). Screen
// 2's momentum check reads Line and Signal rather than this value.
func (m *MACD) Value() float64 { return m.hist }

// Line returns the raw MACD line (fast EMA minus slow EMA).
func (m *MACD) Line() float64 { return m.macd }

// Signal returns the signal line value.
func (m *MACD) Signal() float64 { return m.signal.Value() }

func (m *MACD) Ready() bool { return m.signal.Ready() }

// Peek computes what the histogram would be with an additional close,
// without mutating state.
func (m *MACD) Peek(close float64) float64 {
	if !m.fast.Ready() || !m.slow.Ready() {
		return 0
	}
	macd := m.fast.Peek(close) - m.slow.Peek(close)
	if !m.signal.Ready() {
		return 0
	}
	return macd - m.signal.Peek(macd)
}
