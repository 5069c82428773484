package sentiment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridpulse/internal/storage"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hourlyHistory(prices []float64) []storage.ObservationRecord {
	records := make([]storage.ObservationRecord, len(prices))
	for i, price := range prices {
		records[i] = storage.ObservationRecord{
			Timestamp: testStart.Add(time.Duration(i) * time.Hour),
			Zone:      "NORTH",
			Price:     decimal.NewFromFloat(price),
			Load:      decimal.NewFromFloat(40000),
		}
	}
	return records
}

func TestComputeInsufficientHistory(t *testing.T) {
	calc := NewCalculator()
	history := hourlyHistory(make([]float64, MinSamples-1))
	at := testStart.Add(time.Duration(len(history)) * time.Hour)

	for _, metric := range []Metric{MetricPrice, MetricLoad} {
		if _, err := calc.Compute(history, metric, at); !errors.Is(err, ErrInsufficientHistory) {
			t.Fatalf("%s: want ErrInsufficientHistory with %d samples, got %v", metric, len(history), err)
		}
	}
}

func TestComputeExcludesRecordItself(t *testing.T) {
	calc := NewCalculator()
	history := hourlyHistory(make([]float64, MinSamples))
	// Score the last record: only the 23 earlier hours qualify.
	at := history[len(history)-1].Timestamp
	if _, err := calc.Compute(history, MetricPrice, at); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("record at scoring instant must not count toward its own baseline, got %v", err)
	}
}

func TestComputeMedianAndMAD(t *testing.T) {
	calc := NewCalculator()
	prices := make([]float64, 48)
	for i := range prices {
		// Alternate 20 and 40: median 30, MAD 10.
		if i%2 == 0 {
			prices[i] = 20
		} else {
			prices[i] = 40
		}
	}
	history := hourlyHistory(prices)
	at := testStart.Add(48 * time.Hour)

	baseline, err := calc.Compute(history, MetricPrice, at)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if baseline.SampleCount != 48 {
		t.Fatalf("sample count = %d, want 48", baseline.SampleCount)
	}
	if baseline.Center != 30 {
		t.Fatalf("center = %v, want 30", baseline.Center)
	}
	want := 1.4826 * 10
	if math.Abs(baseline.Spread-want) > 1e-9 {
		t.Fatalf("spread = %v, want %v", baseline.Spread, want)
	}
}

func TestComputeFlatWindowUsesFloor(t *testing.T) {
	calc := NewCalculator()
	prices := make([]float64, 48)
	for i := range prices {
		prices[i] = 25
	}
	history := hourlyHistory(prices)
	at := testStart.Add(48 * time.Hour)

	priceBaseline, err := calc.Compute(history, MetricPrice, at)
	if err != nil {
		t.Fatalf("Compute price failed: %v", err)
	}
	if priceBaseline.Spread != priceSpreadFloor {
		t.Fatalf("flat price window spread = %v, want floor %v", priceBaseline.Spread, priceSpreadFloor)
	}

	loadBaseline, err := calc.Compute(history, MetricLoad, at)
	if err != nil {
		t.Fatalf("Compute load failed: %v", err)
	}
	if loadBaseline.Spread != loadSpreadFloor {
		t.Fatalf("flat load window spread = %v, want floor %v", loadBaseline.Spread, loadSpreadFloor)
	}
}

func TestComputeWindowBound(t *testing.T) {
	calc := NewCalculator()
	// 200 hours of price 10, then 168 hours of price 50. Scoring right after
	// the end must only see the 50s.
	prices := make([]float64, 368)
	for i := range prices {
		if i < 200 {
			prices[i] = 10
		} else {
			prices[i] = 50
		}
	}
	history := hourlyHistory(prices)
	at := testStart.Add(368 * time.Hour)

	baseline, err := calc.Compute(history, MetricPrice, at)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if baseline.SampleCount != WindowHours {
		t.Fatalf("sample count = %d, want %d", baseline.SampleCount, WindowHours)
	}
	if baseline.Center != 50 {
		t.Fatalf("center = %v, want 50 (old hours must fall outside the window)", baseline.Center)
	}
}

func TestComputeDeterministic(t *testing.T) {
	calc := NewCalculator()
	prices := []float64{31, 29, 35, 27, 33, 25, 37, 23, 39, 21, 41, 19,
		31, 29, 35, 27, 33, 25, 37, 23, 39, 21, 41, 19, 30}
	history := hourlyHistory(prices)
	at := testStart.Add(time.Duration(len(prices)) * time.Hour)

	first, err := calc.Compute(history, MetricPrice, at)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	second, err := calc.Compute(history, MetricPrice, at)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if first != second {
		t.Fatalf("Compute not deterministic: %+v vs %+v", first, second)
	}
}
