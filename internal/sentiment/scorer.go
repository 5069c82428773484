package sentiment

import (
	"math"

	"gridpulse/internal/storage"
)

const (
	// logisticScale tunes how fast the squashing function saturates; one
	// spread unit of deviation moves a sub-score from 50 to ~27.
	logisticScale = 1.0

	// Category thresholds. Documented contract: score >= 70 is green,
	// 40 <= score < 70 is yellow, below 40 is red.
	greenThreshold  = 70.0
	yellowThreshold = 40.0
)

// Weights blend the per-metric sub-scores into the composite. Equal
// weighting by default; Normalize scales any non-negative pair to sum to 1.
type Weights struct {
	Price float64
	Load  float64
}

// DefaultWeights returns the documented equal weighting.
func DefaultWeights() Weights {
	return Weights{Price: 0.5, Load: 0.5}
}

// Normalize scales the weights to sum to 1, falling back to the default
// when both are zero.
func (w Weights) Normalize() Weights {
	total := w.Price + w.Load
	if total == 0 {
		return DefaultWeights()
	}
	return Weights{Price: w.Price / total, Load: w.Load / total}
}

// Scored is the outcome of scoring one observation against its baselines.
type Scored struct {
	Score      float64
	Category   storage.Category
	PriceScore float64
	LoadScore  float64
	PriceZ     float64
	LoadZ      float64
}

// Scorer converts observations plus baselines into composite scores. Pure:
// no side effects, the caller persists results.
type Scorer struct {
	weights Weights
}

// NewScorer builds a Scorer with normalized weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights.Normalize()}
}

// Score standardizes the observation against each baseline, squashes the
// deviations into [0,100] sub-scores, and blends them. Deviations below
// baseline are favorable for consumers, so they score toward 100.
func (s *Scorer) Score(obs storage.ObservationRecord, price, load Baseline) Scored {
	priceZ := (obs.Price.InexactFloat64() - price.Center) / price.Spread
	loadZ := (obs.Load.InexactFloat64() - load.Center) / load.Spread

	priceScore := squash(priceZ)
	loadScore := squash(loadZ)

	composite := s.weights.Price*priceScore + s.weights.Load*loadScore
	composite = clamp(composite, 0, 100)

	return Scored{
		Score:      composite,
		Category:   Categorize(composite),
		PriceScore: priceScore,
		LoadScore:  loadScore,
		PriceZ:     priceZ,
		LoadZ:      loadZ,
	}
}

// squash maps a standardized deviation onto [0,100] with a logistic curve:
// 100 / (1 + e^(z/k)). Zero deviation maps to exactly 50, strongly negative
// deviations saturate toward 100, strongly positive toward 0. Symmetric
// around 50 and bounded for any finite input.
func squash(z float64) float64 {
	return 100 / (1 + math.Exp(z/logisticScale))
}

// Categorize buckets a composite score.
func Categorize(score float64) storage.Category {
	switch {
	case score >= greenThreshold:
		return storage.CategoryGreen
	case score >= yellowThreshold:
		return storage.CategoryYellow
	default:
		return storage.CategoryRed
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
