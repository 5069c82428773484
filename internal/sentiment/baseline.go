// Package sentiment computes rolling robust baselines and converts hourly
// observations into bounded favorability scores.
package sentiment

import (
	"errors"
	"sort"
	"time"

	"gridpulse/internal/storage"
)

// Metric selects which observation value a baseline describes.
type Metric string

const (
	MetricPrice Metric = "price"
	MetricLoad  Metric = "load"
)

const (
	// WindowHours is the trailing baseline window.
	WindowHours = 168
	// MinSamples is the minimum number of in-window observations required
	// before a baseline is considered meaningful.
	MinSamples = 24
	// madScale converts a MAD into a standard-deviation equivalent under
	// normality.
	madScale = 1.4826
	// Spread floors keep the standardized deviation finite when the window
	// is flat. Price in $/MWh, load in MW.
	priceSpreadFloor = 1.0
	loadSpreadFloor  = 50.0
)

// ErrInsufficientHistory signals fewer than MinSamples qualifying
// observations in the window. It is a retriable condition, not a failure.
var ErrInsufficientHistory = errors.New("sentiment: insufficient history for baseline")

// Baseline is the robust statistical reference a current observation is
// compared against.
type Baseline struct {
	Center      float64
	Spread      float64
	SampleCount int
}

// Calculator derives baselines from trailing zone history.
type Calculator struct {
	windowHours int
	minSamples  int
}

// NewCalculator returns a Calculator with the documented window defaults.
func NewCalculator() *Calculator {
	return &Calculator{windowHours: WindowHours, minSamples: MinSamples}
}

// Compute derives the baseline for one metric from the history of a single
// zone, relative to the record being scored at time `at`. The window covers
// [at-168h, at): the record itself never contributes to its own baseline.
// Deterministic for identical input.
func (c *Calculator) Compute(history []storage.ObservationRecord, metric Metric, at time.Time) (Baseline, error) {
	windowStart := at.Add(-time.Duration(c.windowHours) * time.Hour)

	values := make([]float64, 0, len(history))
	for _, record := range history {
		if record.Timestamp.Before(windowStart) || !record.Timestamp.Before(at) {
			continue
		}
		values = append(values, metricValue(record, metric))
	}

	if len(values) < c.minSamples {
		return Baseline{}, ErrInsufficientHistory
	}

	center := median(values)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = abs(v - center)
	}
	spread := madScale * median(deviations)
	if floor := spreadFloor(metric); spread < floor {
		spread = floor
	}

	return Baseline{Center: center, Spread: spread, SampleCount: len(values)}, nil
}

func metricValue(record storage.ObservationRecord, metric Metric) float64 {
	switch metric {
	case MetricLoad:
		return record.Load.InexactFloat64()
	default:
		return record.Price.InexactFloat64()
	}
}

func spreadFloor(metric Metric) float64 {
	if metric == MetricLoad {
		return loadSpreadFloor
	}
	return priceSpreadFloor
}

// median mutates nothing; it sorts a copy.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
