package level

import (
	"testing"

	"levelcore/internal/model"
)

func TestDistanceScoreDecaysToZeroAtMaxDistance(t *testing.T) {
	if s := distanceScore(100, 100, 0.05); s != 100 {
		t.Errorf("expected 100 at zero distance, got %v", s)
	}
	if s := distanceScore(105, 100, 0.05); s > 1 {
		t.Errorf("expected ~0 at the max-distance boundary, got %v", s)
	}
	if s := distanceScore(110, 100, 0.05); s != 0 {
		t.Errorf("expected 0 beyond max distance, got %v", s)
	}
}

func TestVolumeScoreCapsAtTwiceAverage(t *testing.T) {
	if s := volumeScore(200, 100); s != 100 {
		t.Errorf("expected 100 at 2x average volume, got %v", s)
	}
	if s := volumeScore(50, 100); s != 25 {
		t.Errorf("expected 25 at half average volume, got %v", s)
	}
	if s := volumeScore(500, 100); s != 100 {
		t.Errorf("expected volume score to cap at 100, got %v", s)
	}
}

func TestTouchScoreLinearAcrossRange(t *testing.T) {
	if s := touchScore(2, 2, 8); s != 0 {
		t.Errorf("expected 0 at the floor, got %v", s)
	}
	if s := touchScore(8, 2, 8); s != 100 {
		t.Errorf("expected 100 at the ceiling, got %v", s)
	}
	if s := touchScore(5, 2, 8); s < 40 || s > 60 {
		t.Errorf("expected roughly midpoint for 5 touches in [2,8], got %v", s)
	}
}

func TestFreshnessScoreDecaysWithAge(t *testing.T) {
	if s := freshnessScore(0, 168); s != 100 {
		t.Errorf("expected 100 for a brand-new bar, got %v", s)
	}
	if s := freshnessScore(168, 168); s != 0 {
		t.Errorf("expected 0 at max age, got %v", s)
	}
}

func TestApproachScoreRewardsCorrectDirection(t *testing.T) {
	recent := []model.Candle{
		{Close: 102}, {Close: 101.5}, {Close: 101}, {Close: 100.5}, {Close: 100},
	}
	s := approachScore(model.LevelSupport, 99, recent)
	if s <= 0 {
		t.Errorf("expected a positive approach score for price falling into support, got %v", s)
	}

	// price rising away from support (wrong direction) scores zero
	rising := []model.Candle{
		{Close: 100}, {Close: 100.5}, {Close: 101}, {Close: 101.5}, {Close: 102},
	}
	if s := approachScore(model.LevelSupport, 99, rising); s != 0 {
		t.Errorf("expected 0 for price moving away from support, got %v", s)
	}
}

func TestTrendBonusRewardsAlignment(t *testing.T) {
	if s := trendBonusScore(model.LevelSupport, model.TrendUpStrong); s != 100 {
		t.Errorf("expected 100 for support in a strong uptrend, got %v", s)
	}
	if s := trendBonusScore(model.LevelResistance, model.TrendUpStrong); s != 20 {
		t.Errorf("expected the off-alignment fallback for resistance in an uptrend, got %v", s)
	}
}

func TestTriangleBonusPeaksAtBorderAndPenalizesOutside(t *testing.T) {
	tri := model.Triangle{LowerBorder: 100, UpperBorder: 110}
	if b := triangleBonus(100, tri, true); b != triangleBonusCap {
		t.Errorf("expected full bonus at the lower border, got %v", b)
	}
	if b := triangleBonus(105, tri, true); b != 0 {
		t.Errorf("expected 0 at the triangle midpoint, got %v", b)
	}
	if b := triangleBonus(200, tri, false); b != -triangleOutsidePenal {
		t.Errorf("expected the outside-triangle penalty, got %v", b)
	}
}

func TestScoreComposesAllTerms(t *testing.T) {
	in := ScoreInput{
		Price: 100, Type: model.LevelSupport, CurrentPx: 100,
		MaxDistPct: 0.05, Volume: 200, AvgVolume: 100,
		Touches: 5, MinTouches: 2, MaxTouches: 8,
		BarAgeHours: 1, MaxAgeHours: 168,
		RecentBars: []model.Candle{{Close: 102}, {Close: 101}, {Close: 100}},
		Trend:      model.TrendUpStrong,
	}
	b := Score(in, model.Triangle{}, false)
	if b.Total <= 0 {
		t.Fatalf("expected a positive composed score, got %v", b.Total)
	}
	if b.BaseScore <= 0 {
		t.Fatalf("expected a positive base score, got %v", b.BaseScore)
	}
}
