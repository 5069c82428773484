package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"gridpulse/internal/locations"
	"gridpulse/internal/storage"
)

// Export renders one zone's historical observations as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Zone == "" {
		return errors.New("--zone is required")
	}
	zone, ok := locations.Normalize(opts.Zone)
	if !ok {
		return fmt.Errorf("unknown zone %q", opts.Zone)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.Range(ctx, zone, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("zone", zone).Msg("no observations in export window")
		return nil
	}

	downsampled := downsampleObservations(records, opts.MaxPoints)
	a.Logger.Info().
		Str("zone", zone).
		Int("total", len(records)).
		Int("exported", len(downsampled)).
		Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeObservationsPNG(opts.PNGPath, zone, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleObservations(records []storage.ObservationRecord, max int) []storage.ObservationRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.ObservationRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeObservationsCSV(path string, records []storage.ObservationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts", "zone", "price", "load_mw", "sentiment_score", "sentiment_category"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		score, category := "", ""
		if record.SentimentScore != nil {
			score = strconv.FormatFloat(*record.SentimentScore, 'f', -1, 64)
		}
		if record.SentimentCategory != nil {
			category = string(*record.SentimentCategory)
		}
		row := []string{
			record.Timestamp.UTC().Format(time.RFC3339),
			record.Zone,
			record.Price.String(),
			record.Load.String(),
			score,
			category,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeObservationsPNG(path, zone string, records []storage.ObservationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	priceX := make([]time.Time, len(records))
	price := make([]float64, len(records))
	scoreX := make([]time.Time, 0, len(records))
	score := make([]float64, 0, len(records))

	for i, record := range records {
		priceX[i] = record.Timestamp
		price[i] = record.Price.InexactFloat64()
		if record.SentimentScore != nil {
			scoreX = append(scoreX, record.Timestamp)
			score = append(score, *record.SentimentScore)
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price ($/MWh)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:  "Sentiment",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    zone + " price",
				XValues: priceX,
				YValues: price,
			},
		},
	}
	if len(score) > 0 {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "sentiment",
			XValues: scoreX,
			YValues: score,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
