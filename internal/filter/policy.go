package filter

import (
	"fmt"

	"levelcore/internal/model"
)

// PolicyParams bundles the universal policy filter's tunables
// (spec.md §4.3/§6), independent of the specific screen that admitted
// the candidate.
type PolicyParams struct {
	MinScoreForTimeframe float64
	BlockSideways        bool
	MaxDistancePct       float64
	MaxTestCount         int
}

// PolicyCandidate is the minimal view the universal policy filter
// needs of a (level, trend, triangle) candidate.
type PolicyCandidate struct {
	Direction    model.Direction
	LevelType    model.LevelType
	Score        float64
	Trend        model.TrendClassification
	DistancePct  float64
	TestCount    int
	HasTriangle  bool
	TriangleBias model.Direction
}

// Policy evaluates the universal policy filter: a level-score floor
// per timeframe, an optional block on SIDEWAYS trends, a distance cap,
// a test-count cap, and a triangle-bias contradiction check for weak
// scores.
func Policy(c PolicyCandidate, p PolicyParams) model.ScreenResult {
	checks := []model.CheckResult{
		minScoreCheck(c.Score, p.MinScoreForTimeframe),
		sidewaysCheck(c.Trend, p.BlockSideways),
		distanceCheck(c.DistancePct, p.MaxDistancePct),
		testCountCheck(c.TestCount, p.MaxTestCount),
		triangleBiasCheck(c),
	}

	passed := true
	reason := ""
	for _, chk := range checks {
		if !chk.Passed {
			passed = false
			if reason == "" {
				reason = chk.Detail
			}
		}
	}

	return model.ScreenResult{Name: "universal_policy", Passed: passed, Checks: checks, Reason: reason}
}

func minScoreCheck(score, minScore float64) model.CheckResult {
	name := "min_score"
	if score < minScore {
		return model.CheckResult{Name: name, Passed: false, Value: score, Detail: fmt.Sprintf("level score %.1f below timeframe floor %.1f", score, minScore)}
	}
	return model.CheckResult{Name: name, Passed: true, Value: score, Detail: "score clears timeframe floor"}
}

func sidewaysCheck(trend model.TrendClassification, blockSideways bool) model.CheckResult {
	name := "sideways_policy"
	if blockSideways && trend == model.TrendSideways {
		return model.CheckResult{Name: name, Passed: false, Detail: "SIDEWAYS trend blocked by policy"}
	}
	return model.CheckResult{Name: name, Passed: true, Detail: "trend admitted by sideways policy"}
}

func distanceCheck(distancePct, maxDistancePct float64) model.CheckResult {
	name := "max_distance"
	if distancePct > maxDistancePct {
		return model.CheckResult{Name: name, Passed: false, Value: distancePct, Detail: fmt.Sprintf("distance %.3f%% exceeds max %.3f%%", distancePct*100, maxDistancePct*100)}
	}
	return model.CheckResult{Name: name, Passed: true, Value: distancePct, Detail: "within max distance"}
}

func testCountCheck(testCount, maxTestCount int) model.CheckResult {
	name := "max_test_count"
	if testCount > maxTestCount {
		return model.CheckResult{Name: name, Passed: false, Value: float64(testCount), Detail: fmt.Sprintf("test count %d exceeds max %d", testCount, maxTestCount)}
	}
	return model.CheckResult{Name: name, Passed: true, Value: float64(testCount), Detail: "within max test count"}
}

// weakScoreCeiling is the score below which a contradicting active
// triangle bias is enough to block the candidate outright.
const weakScoreCeiling = 50.0

func triangleBiasCheck(c PolicyCandidate) model.CheckResult {
	name := "triangle_bias"
	if !c.HasTriangle {
		return model.CheckResult{Name: name, Passed: true, Detail: "no active triangle"}
	}
	if c.TriangleBias == c.Direction {
		return model.CheckResult{Name: name, Passed: true, Detail: "triangle bias agrees with direction"}
	}
	if c.Score < weakScoreCeiling {
		return model.CheckResult{Name: name, Passed: false, Value: c.Score, Detail: fmt.Sprintf("triangle bias %s contradicts %s on a weak score (%.1f)", c.TriangleBias, c.Direction, c.Score)}
	}
	return model.CheckResult{Name: name, Passed: true, Detail: "triangle bias contradicts direction but score is strong enough to proceed"}
}
