package filter

import (
	"fmt"
	"time"

	"levelcore/internal/model"
)

// SignalFreshness / DisplayFreshness are the two verdict-cache
// freshness windows spec.md §9 distinguishes: a tight window for the
// signal-generation read path, and a looser one for display reads that
// don't need to re-run the full chain on every poll.
const (
	SignalFreshness  = 60 * time.Second
	DisplayFreshness = 5 * time.Minute
)

// Input is everything the filter chain needs to evaluate one
// (pair, level, direction) candidate.
type Input struct {
	Pair         string
	Direction    model.Direction
	LevelType    model.LevelType
	LevelPrice   float64
	LevelScore   float64
	DistancePct  float64
	TestCount    int
	BTC          TrendContext
	PairTrend    TrendContext
	Recent1h     []model.Candle
	RSI          float64
	MACDLine     float64
	MACDSignal   float64
	HasTriangle  bool
	TriangleBias model.Direction
	Policy       PolicyParams
}

// Chain composes Screen1, Screen2, and the universal policy filter
// behind a VerdictCache, short-circuiting Screen2 when Screen1 fails
// (spec.md §4.3: "Screen 2 ... evaluated only if Screen 1 passed").
type Chain struct {
	cache model.VerdictCache
}

// NewChain builds a filter chain backed by the given verdict cache.
func NewChain(cache model.VerdictCache) *Chain {
	return &Chain{cache: cache}
}

// Evaluate runs the full chain and caches the resulting verdict under
// DisplayFreshness, the longest of the two read windows; readers that
// need the tighter signal-generation window check the verdict's age
// themselves via ForSignalGeneration.
func (ch *Chain) Evaluate(in Input, now time.Time) *model.VerdictSnapshot {
	var screens []model.ScreenResult
	var warnings []string

	screen1 := Screen1(in.Direction, in.BTC, in.PairTrend, in.LevelScore)
	screens = append(screens, screen1)
	collectWarnings(&warnings, screen1)
	admitted := screen1.Passed

	if admitted {
		screen2 := Screen2(in.Direction, in.LevelType, in.LevelPrice, in.Recent1h, in.RSI, in.MACDLine, in.MACDSignal)
		screens = append(screens, screen2)
		collectWarnings(&warnings, screen2)
		admitted = admitted && screen2.Passed
	}

	policy := Policy(PolicyCandidate{
		Direction:    in.Direction,
		LevelType:    in.LevelType,
		Score:        in.LevelScore,
		Trend:        in.PairTrend.Classification,
		DistancePct:  in.DistancePct,
		TestCount:    in.TestCount,
		HasTriangle:  in.HasTriangle,
		TriangleBias: in.TriangleBias,
	}, in.Policy)
	screens = append(screens, policy)
	collectWarnings(&warnings, policy)
	admitted = admitted && policy.Passed

	snap := &model.VerdictSnapshot{
		Pair:        in.Pair,
		Direction:   in.Direction,
		LevelPrice:  in.LevelPrice,
		Admitted:    admitted,
		Screens:     screens,
		Warnings:    warnings,
		Trend:       in.PairTrend.Classification,
		EvaluatedAt: now,
	}
	if !admitted {
		_, reason := snap.FirstFailingScreen()
		snap.BlockedReason = reason
	}

	ch.cache.Set(cacheKey(in.Pair, in.Direction, in.LevelPrice), snap, DisplayFreshness)
	return snap
}

// ForSignalGeneration returns a cached verdict only if it is fresh
// enough for the signal-generation path (60s).
func (ch *Chain) ForSignalGeneration(pair string, direction model.Direction, levelPrice float64, now time.Time) (*model.VerdictSnapshot, bool) {
	return ch.cached(pair, direction, levelPrice, SignalFreshness, now)
}

// ForDisplay returns a cached verdict only if it is fresh enough for
// the display path (5min).
func (ch *Chain) ForDisplay(pair string, direction model.Direction, levelPrice float64, now time.Time) (*model.VerdictSnapshot, bool) {
	return ch.cached(pair, direction, levelPrice, DisplayFreshness, now)
}

func (ch *Chain) cached(pair string, direction model.Direction, levelPrice float64, maxAge time.Duration, now time.Time) (*model.VerdictSnapshot, bool) {
	snap, ok := ch.cache.Get(cacheKey(pair, direction, levelPrice))
	if !ok {
		return nil, false
	}
	if now.Sub(snap.EvaluatedAt) > maxAge {
		return nil, false
	}
	return snap, true
}

func cacheKey(pair string, direction model.Direction, levelPrice float64) string {
	return fmt.Sprintf("%s:%s:%.8f", pair, direction, levelPrice)
}

func collectWarnings(dst *[]string, screen model.ScreenResult) {
	for _, c := range screen.Checks {
		if c.Warning {
			*dst = append(*dst, fmt.Sprintf("%s: %s", c.Name, c.Detail))
		}
	}
}
