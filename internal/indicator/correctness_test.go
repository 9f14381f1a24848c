package indicator

import (
	"math"
	"testing"

	"levelcore/internal/model"
)

func assertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s = %v, want %v (tol %v)", name, got, want, tol)
	}
}

func closeCandle(c float64) model.Candle {
	return model.Candle{Close: c}
}

func TestEMASeedsWithSMA(t *testing.T) {
	e := NewEMA(3)
	for _, c := range []float64{10, 20, 30} {
		e.Update(closeCandle(c))
	}
	if !e.Ready() {
		t.Fatal("expected EMA ready after period candles")
	}
	assertClose(t, "EMA seed", e.Value(), 20.0, 1e-9)
}

func TestEMAUpdateFormula(t *testing.T) {
	e := NewEMA(3)
	for _, c := range []float64{10, 20, 30, 40} {
		e.Update(closeCandle(c))
	}
	// multiplier = 2/(3+1) = 0.5; seed 20; next = 40*0.5 + 20*0.5 = 30
	assertClose(t, "EMA next", e.Value(), 30.0, 1e-9)
}

func TestEMAPeekDoesNotMutate(t *testing.T) {
	e := NewEMA(3)
	for _, c := range []float64{10, 20, 30} {
		e.Update(closeCandle(c))
	}
	before := e.Value()
	peeked := e.Peek(100)
	if e.Value() != before {
		t.Fatal("Peek mutated EMA state")
	}
	assertClose(t, "EMA peek", peeked, 60.0, 1e-9) // 100*0.5 + 20*0.5
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	r := NewRSI(3)
	closes := []float64{10, 11, 12, 13, 14}
	for _, c := range closes {
		r.Update(closeCandle(c))
	}
	if !r.Ready() {
		t.Fatal("expected RSI ready")
	}
	assertClose(t, "RSI all-gain", r.Value(), 100.0, 1e-9)
}

func TestRSIMixedMoves(t *testing.T) {
	r := NewRSI(3)
	// deltas after seed: +1,+1,+1 (seed avgGain=1,avgLoss=0) then -2 (loss)
	closes := []float64{10, 11, 12, 13, 11}
	for _, c := range closes {
		r.Update(closeCandle(c))
	}
	if r.Value() <= 0 || r.Value() >= 100 {
		t.Fatalf("expected RSI between 0 and 100 with mixed moves, got %v", r.Value())
	}
}

func TestMACDReadyOnlyAfterSignalPeriod(t *testing.T) {
	m := NewMACD(2, 4, 2)
	for i := 0; i < 4; i++ {
		m.Update(closeCandle(float64(10 + i)))
		if m.Ready() {
			t.Fatalf("MACD should not be ready before slow+signal warm-up, iter %d", i)
		}
	}
	m.Update(closeCandle(20))
	m.Update(closeCandle(25))
	if !m.Ready() {
		t.Fatal("expected MACD ready after enough candles")
	}
}

func TestADXNotReadyBeforePeriod(t *testing.T) {
	a := NewADX(3)
	candles := []model.Candle{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
	}
	for _, c := range candles {
		a.Update(c)
	}
	if a.Ready() {
		t.Fatal("ADX should not be ready with fewer than period DX samples")
	}
}

func TestADXReadyAndBounded(t *testing.T) {
	a := NewADX(2)
	candles := []model.Candle{
		{High: 10, Low: 8, Close: 9},
		{High: 12, Low: 9, Close: 11},
		{High: 14, Low: 10, Close: 13},
		{High: 16, Low: 11, Close: 15},
		{High: 18, Low: 12, Close: 17},
	}
	for _, c := range candles {
		a.Update(c)
	}
	if !a.Ready() {
		t.Fatal("expected ADX ready")
	}
	if a.Value() < 0 || a.Value() > 100 {
		t.Fatalf("ADX out of bounds: %v", a.Value())
	}
}
