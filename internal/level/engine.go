package level

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"levelcore/internal/model"
)

// Params bundles every level-engine tunable from config (spec.md §6).
type Params struct {
	ExcludeRecentMinutes int
	FractalLookback      int
	HistoricalTouchTol   float64
	LiveTouchTol         float64
	BreakTolerancePct    float64
	MinHistoricalTouches int
	MaxHistoricalTouches int
	MaxLiveTests         int
	MinDistancePct       float64
	MaxDistancePct       float64
	MaxAge               time.Duration
}

// Engine discovers, scores, persists, and evicts levels for one
// (symbol, timeframe) series per scan, per spec.md §4.2.
type Engine struct {
	levels   model.LevelRepository
	triangle model.TriangleProvider
	params   Params
}

// New creates a level engine against repo, consulting triangle for the
// chart-pattern bonus/penalty on each candidate.
func New(repo model.LevelRepository, triangle model.TriangleProvider, params Params) *Engine {
	return &Engine{levels: repo, triangle: triangle, params: params}
}

// ScanResult is what one Scan call produced, for the caller (the
// scheduler's per-pair analysis) to log and feed to the filter chain.
type ScanResult struct {
	Discovered []model.Level
	Evicted    []EvictionReason
}

// Scan discovers fractals on candles (ascending, oldest first), scores
// each candidate, merges it into the store, and evicts any existing
// active level for this pair that now fails an eviction condition.
// trend is the pair's own trend context (for trend_bonus); currentPx is
// the latest known price.
func (e *Engine) Scan(ctx context.Context, pair model.Pair, tf model.Timeframe, candles []model.Candle, trend model.TrendClassification, currentPx float64) (*ScanResult, error) {
	if len(candles) == 0 {
		return &ScanResult{}, nil
	}

	excludeBars := excludeRecentBars(tf, e.params.ExcludeRecentMinutes)
	fractals := DiscoverFractals(candles, e.params.FractalLookback, excludeBars)

	avgVolume := averageVolume(candles)
	now := time.Now().UTC()

	var discovered []model.Level
	for _, fr := range fractals {
		window := candles[:len(candles)-excludeBars]
		if excludeBars >= len(candles) {
			window = candles
		}
		touches := CountHistoricalTouches(window, fr.Price, e.params.HistoricalTouchTol)
		if touches < e.params.MinHistoricalTouches || touches > e.params.MaxHistoricalTouches {
			continue
		}

		distPct := percentDistance(fr.Price, currentPx)
		if distPct < e.params.MinDistancePct || distPct > e.params.MaxDistancePct {
			continue
		}

		ageHours := now.Sub(fr.Bar.TS).Hours()
		maxAgeHours := e.params.MaxAge.Hours()
		recentApproach := trailing(candles, approachWindow)

		triangle, hasTriangle := e.triangle.ActiveTriangle(pair.Symbol, tf, fr.Price)
		breakdown := Score(ScoreInput{
			Price:       fr.Price,
			Type:        fr.Type,
			CurrentPx:   currentPx,
			MaxDistPct:  e.params.MaxDistancePct,
			Volume:      fr.Bar.Volume,
			AvgVolume:   avgVolume,
			Touches:     touches,
			MinTouches:  e.params.MinHistoricalTouches,
			MaxTouches:  e.params.MaxHistoricalTouches,
			BarAgeHours: ageHours,
			MaxAgeHours: maxAgeHours,
			RecentBars:  recentApproach,
			Trend:       trend,
		}, triangle, hasTriangle)

		lvl := model.Level{
			PairID:            pair.ID,
			Symbol:            pair.Symbol,
			Price:             fr.Price,
			Type:              fr.Type,
			Timeframe:         tf,
			HistoricalTouches: touches,
			Score:             breakdown.Total,
			IsActive:          true,
			FirstTouch:        fr.Bar.TS,
			LastTouch:         fr.Bar.TS,
			CreatedAt:         now,
			UpdatedAt:         now,
			Meta: model.LevelMeta{
				BaseScore:       breakdown.BaseScore,
				TriangleBonus:   breakdown.TriangleBonus,
				DistanceScore:   breakdown.DistanceScore,
				VolumeScore:     breakdown.VolumeScore,
				TouchScore:      breakdown.TouchScore,
				FreshnessScore:  breakdown.FreshnessScore,
				ApproachScore:   breakdown.ApproachScore,
				TrendBonus:      breakdown.TrendBonus,
				DistancePercent: distPct,
				TrendContext:    trend,
			},
		}

		stored, err := e.levels.Upsert(ctx, lvl)
		if err != nil {
			return nil, fmt.Errorf("level: upsert %s %s %.2f: %w", pair.Symbol, tf, fr.Price, err)
		}
		discovered = append(discovered, stored)
	}

	evicted, err := e.evictStale(ctx, pair, tf, candles, currentPx, now)
	if err != nil {
		return nil, err
	}

	return &ScanResult{Discovered: discovered, Evicted: evicted}, nil
}

// evictStale checks every active level on this (pair, tf) against the
// eviction policy and deletes any that fail, per spec.md §4.2's
// "broken levels are deleted, not hidden".
func (e *Engine) evictStale(ctx context.Context, pair model.Pair, tf model.Timeframe, candles []model.Candle, currentPx float64, now time.Time) ([]EvictionReason, error) {
	active, err := e.levels.Active(ctx, pair.ID)
	if err != nil {
		return nil, fmt.Errorf("level: read active %s: %w", pair.Symbol, err)
	}

	policy := EvictionPolicy{
		BreakTolerancePct: e.params.BreakTolerancePct,
		MaxLiveTests:      e.params.MaxLiveTests,
		MaxAge:            e.params.MaxAge,
		MaxDistancePct:    e.params.MaxDistancePct,
	}

	var reasons []EvictionReason
	for i := range active {
		lvl := active[i]
		if lvl.Timeframe != tf {
			continue
		}
		reason := Evaluate(&lvl, currentPx, candles, now, policy)
		if reason == EvictionNone {
			continue
		}
		if err := e.levels.Delete(ctx, lvl.ID); err != nil {
			return nil, fmt.Errorf("level: delete %d: %w", lvl.ID, err)
		}
		slog.Info("level evicted", "symbol", pair.Symbol, "tf", tf, "price", lvl.Price, "reason", reason)
		reasons = append(reasons, reason)
	}
	return reasons, nil
}

// ObserveTouch updates lvl's live_test_count and LastTouch if candle
// constitutes a new live touch, persisting the change. Called by the
// scheduler's per-pair analysis on active levels for this (pair, tf).
func (e *Engine) ObserveTouch(ctx context.Context, lvl *model.Level, candle model.Candle) error {
	if !ObserveLiveTouch(lvl, candle, e.params.LiveTouchTol) {
		return nil
	}
	lvl.LiveTestCount++
	lvl.LastTouch = candle.TS
	lvl.UpdatedAt = time.Now().UTC()
	if err := e.levels.Update(ctx, *lvl); err != nil {
		return fmt.Errorf("level: update touch %d: %w", lvl.ID, err)
	}
	return nil
}

func excludeRecentBars(tf model.Timeframe, excludeMinutes int) int {
	d := tf.Duration()
	if d <= 0 {
		return 0
	}
	bars := int(time.Duration(excludeMinutes) * time.Minute / d)
	return bars
}

func averageVolume(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

func percentDistance(price, currentPx float64) float64 {
	if currentPx == 0 {
		return 0
	}
	d := price - currentPx
	if d < 0 {
		d = -d
	}
	return d / currentPx
}
