package sentiment

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"gridpulse/internal/storage"
)

func observation(price, load float64) storage.ObservationRecord {
	return storage.ObservationRecord{
		Zone:  "NORTH",
		Price: decimal.NewFromFloat(price),
		Load:  decimal.NewFromFloat(load),
	}
}

func TestScoreAtBaselineIsFifty(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	price := Baseline{Center: 30, Spread: 5, SampleCount: 100}
	load := Baseline{Center: 40000, Spread: 1000, SampleCount: 100}

	result := scorer.Score(observation(30, 40000), price, load)
	if result.Score != 50 {
		t.Fatalf("zero deviation must score exactly 50, got %v", result.Score)
	}
	if result.PriceScore != 50 || result.LoadScore != 50 {
		t.Fatalf("sub-scores at baseline must be 50, got %v / %v", result.PriceScore, result.LoadScore)
	}
	if result.Category != storage.CategoryYellow {
		t.Fatalf("score 50 must be yellow, got %s", result.Category)
	}
}

func TestScoreBounded(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	price := Baseline{Center: 30, Spread: 1, SampleCount: 100}
	load := Baseline{Center: 40000, Spread: 50, SampleCount: 100}

	extremes := []storage.ObservationRecord{
		observation(1e9, 1e9),
		observation(-1e9, 0),
		observation(30, 40000),
		observation(31.5, 39000),
	}
	for _, obs := range extremes {
		result := scorer.Score(obs, price, load)
		if result.Score < 0 || result.Score > 100 {
			t.Fatalf("score out of bounds for %s: %v", obs.Price, result.Score)
		}
		if result.PriceScore < 0 || result.PriceScore > 100 {
			t.Fatalf("price sub-score out of bounds: %v", result.PriceScore)
		}
		if result.LoadScore < 0 || result.LoadScore > 100 {
			t.Fatalf("load sub-score out of bounds: %v", result.LoadScore)
		}
	}
}

func TestSquashSymmetricAndMonotonic(t *testing.T) {
	for _, z := range []float64{0.25, 1, 2, 5, 20} {
		up := squash(z)
		down := squash(-z)
		if math.Abs((up+down)-100) > 1e-9 {
			t.Fatalf("squash not symmetric at z=%v: %v + %v", z, up, down)
		}
	}

	prev := squash(-10.0)
	for z := -9.5; z <= 10; z += 0.5 {
		current := squash(z)
		if current >= prev {
			t.Fatalf("squash not strictly decreasing at z=%v", z)
		}
		prev = current
	}
}

func TestScoreBelowBaselineIsFavorable(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	price := Baseline{Center: 30, Spread: 5, SampleCount: 100}
	load := Baseline{Center: 40000, Spread: 1000, SampleCount: 100}

	cheap := scorer.Score(observation(10, 35000), price, load)
	expensive := scorer.Score(observation(60, 46000), price, load)
	if cheap.Score <= 50 {
		t.Fatalf("below-baseline conditions should score above 50, got %v", cheap.Score)
	}
	if expensive.Score >= 50 {
		t.Fatalf("above-baseline conditions should score below 50, got %v", expensive.Score)
	}
}

func TestCategorizeBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  storage.Category
	}{
		{100, storage.CategoryGreen},
		{70, storage.CategoryGreen},
		{69.999, storage.CategoryYellow},
		{40, storage.CategoryYellow},
		{39.999, storage.CategoryRed},
		{0, storage.CategoryRed},
	}
	for _, tc := range cases {
		if got := Categorize(tc.score); got != tc.want {
			t.Fatalf("Categorize(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestWeightsNormalize(t *testing.T) {
	w := Weights{Price: 3, Load: 1}.Normalize()
	if w.Price != 0.75 || w.Load != 0.25 {
		t.Fatalf("normalize = %+v, want 0.75/0.25", w)
	}

	fallback := Weights{}.Normalize()
	if fallback != DefaultWeights() {
		t.Fatalf("zero weights should fall back to defaults, got %+v", fallback)
	}
}

func TestScoreWeighting(t *testing.T) {
	// All weight on price: load deviation must not move the composite.
	scorer := NewScorer(Weights{Price: 1, Load: 0})
	price := Baseline{Center: 30, Spread: 5, SampleCount: 100}
	load := Baseline{Center: 40000, Spread: 1000, SampleCount: 100}

	result := scorer.Score(observation(30, 48000), price, load)
	if result.Score != 50 {
		t.Fatalf("price-only weighting should ignore load deviation, got %v", result.Score)
	}
}

func TestScoreSpikeGoesRed(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	price := Baseline{Center: 30, Spread: 5, SampleCount: 168}
	load := Baseline{Center: 40000, Spread: 1000, SampleCount: 168}

	// Price an order of magnitude above baseline, load at baseline.
	result := scorer.Score(observation(300, 40000), price, load)
	if result.PriceScore > 1 {
		t.Fatalf("10x price spike should drive the price sub-score near 0, got %v", result.PriceScore)
	}
	if result.Category != storage.CategoryRed {
		t.Fatalf("10x price spike should be red, got %s (score %v)", result.Category, result.Score)
	}
}
