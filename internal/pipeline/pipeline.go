// Package pipeline orchestrates ingestion: normalize raw observations,
// append them to the store, score whatever now has enough history, and
// report what happened. A run is an idempotent batch job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridpulse/internal/alerting"
	"gridpulse/internal/locations"
	"gridpulse/internal/sentiment"
	"gridpulse/internal/storage"
)

// RawObservation is one fetched row before zone canonicalization.
type RawObservation struct {
	Timestamp time.Time
	Zone      string
	Price     decimal.Decimal
	Load      decimal.Decimal
}

// Report summarises one pipeline run.
type Report struct {
	Fetched    int
	Rejected   int
	Inserted   int
	Replaced   int
	Duplicates int
	Scored     int
	Unscorable int

	// RejectedZones lists the distinct raw zone names that failed
	// canonicalization, for the caller's error reporting.
	RejectedZones []string
}

// Pipeline owns one store handle and the scoring components. It expects to
// be the only writer during a run; readers may observe the store mid-run.
type Pipeline struct {
	store    storage.ObservationStore
	calc     *sentiment.Calculator
	scorer   *sentiment.Scorer
	notifier alerting.Notifier
	logger   zerolog.Logger
}

// New constructs a Pipeline. notifier may be nil to disable alerting.
func New(store storage.ObservationStore, scorer *sentiment.Scorer, notifier alerting.Notifier, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		calc:     sentiment.NewCalculator(),
		scorer:   scorer,
		notifier: notifier,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Submit ingests a batch of raw observations. Per-record zone failures are
// counted and reported, never abort the batch; storage errors abort the run.
// Safe to call repeatedly with overlapping batches.
func (p *Pipeline) Submit(ctx context.Context, raw []RawObservation) (Report, error) {
	report := Report{Fetched: len(raw)}

	records := make([]storage.ObservationRecord, 0, len(raw))
	touched := make(map[string]struct{})
	rejectedZones := make(map[string]struct{})

	for _, row := range raw {
		zone, ok := locations.Normalize(row.Zone)
		if !ok {
			report.Rejected++
			if _, seen := rejectedZones[row.Zone]; !seen {
				rejectedZones[row.Zone] = struct{}{}
				report.RejectedZones = append(report.RejectedZones, row.Zone)
				p.logger.Warn().Str("zone_raw", row.Zone).Msg("rejected observation with unknown zone")
			}
			continue
		}
		records = append(records, storage.ObservationRecord{
			Timestamp: row.Timestamp.UTC().Truncate(time.Hour),
			Zone:      zone,
			Price:     row.Price,
			Load:      row.Load,
		})
		touched[zone] = struct{}{}
	}
	sort.Strings(report.RejectedZones)

	appended, err := p.store.Append(ctx, records)
	if err != nil {
		return report, fmt.Errorf("append raw observations: %w", err)
	}
	report.Inserted = appended.Inserted
	report.Replaced = appended.Replaced
	report.Duplicates = appended.Skipped

	zones := make([]string, 0, len(touched))
	for zone := range touched {
		zones = append(zones, zone)
	}
	sort.Strings(zones)

	for _, zone := range zones {
		scored, unscorable, err := p.scoreZone(ctx, zone)
		if err != nil {
			return report, err
		}
		report.Scored += scored
		report.Unscorable += unscorable
	}

	p.logger.Info().
		Int("fetched", report.Fetched).
		Int("inserted", report.Inserted).
		Int("replaced", report.Replaced).
		Int("duplicates", report.Duplicates).
		Int("scored", report.Scored).
		Int("unscorable", report.Unscorable).
		Int("rejected", report.Rejected).
		Msg("pipeline run complete")

	return report, nil
}

// Rescore retries scoring for every zone in the store. Unscored rows are a
// retriable condition; this is the explicit retry path.
func (p *Pipeline) Rescore(ctx context.Context) (Report, error) {
	zones, err := p.store.AllZones(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list zones: %w", err)
	}

	var report Report
	for _, zone := range zones {
		scored, unscorable, err := p.scoreZone(ctx, zone)
		if err != nil {
			return report, err
		}
		report.Scored += scored
		report.Unscorable += unscorable
	}
	return report, nil
}

// scoreZone scores every unscored record of one zone. Records with fewer
// than the minimum in-window samples stay unscored and are retried on the
// next run once more history has accumulated.
func (p *Pipeline) scoreZone(ctx context.Context, zone string) (int, int, error) {
	unscored, err := p.store.Unscored(ctx, zone)
	if err != nil {
		return 0, 0, fmt.Errorf("list unscored for %s: %w", zone, err)
	}
	if len(unscored) == 0 {
		return 0, 0, nil
	}

	from := unscored[0].Timestamp.Add(-sentiment.WindowHours * time.Hour)
	to := unscored[len(unscored)-1].Timestamp
	history, err := p.store.Range(ctx, zone, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("load history for %s: %w", zone, err)
	}

	scored := make([]storage.ObservationRecord, 0, len(unscored))
	outcomes := make(map[time.Time]sentiment.Scored, len(unscored))
	unscorable := 0

	for _, record := range unscored {
		priceBaseline, err := p.calc.Compute(history, sentiment.MetricPrice, record.Timestamp)
		if errors.Is(err, sentiment.ErrInsufficientHistory) {
			unscorable++
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("price baseline for %s: %w", zone, err)
		}
		loadBaseline, err := p.calc.Compute(history, sentiment.MetricLoad, record.Timestamp)
		if errors.Is(err, sentiment.ErrInsufficientHistory) {
			unscorable++
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("load baseline for %s: %w", zone, err)
		}

		outcome := p.scorer.Score(record, priceBaseline, loadBaseline)
		record.SentimentScore = &outcome.Score
		category := outcome.Category
		record.SentimentCategory = &category

		scored = append(scored, record)
		outcomes[record.Timestamp] = outcome
	}

	if len(scored) > 0 {
		if _, err := p.store.Append(ctx, scored); err != nil {
			return 0, 0, fmt.Errorf("write scored records for %s: %w", zone, err)
		}
		if err := p.maybeAlert(ctx, zone, history, scored, outcomes); err != nil {
			// Alert delivery failure must not fail the batch.
			p.logger.Error().Err(err).Str("zone", zone).Msg("alert dispatch failed")
		}
	}

	return len(scored), unscorable, nil
}

// maybeAlert notifies when the newest record scored in this run entered the
// red bucket from a non-red previous hour. Staying red does not re-alert.
func (p *Pipeline) maybeAlert(ctx context.Context, zone string, history, scored []storage.ObservationRecord, outcomes map[time.Time]sentiment.Scored) error {
	if p.notifier == nil {
		return nil
	}

	newest := scored[len(scored)-1]
	if newest.SentimentCategory == nil || *newest.SentimentCategory != storage.CategoryRed {
		return nil
	}

	latest, err := p.store.Latest(ctx, zone)
	if err != nil {
		return err
	}
	if !latest.Timestamp.Equal(newest.Timestamp) {
		// A newer record exists that this run did not score; no transition
		// to report.
		return nil
	}

	if prev := previousCategory(newest.Timestamp, history, outcomes); prev != nil && *prev == storage.CategoryRed {
		return nil
	}

	outcome := outcomes[newest.Timestamp]
	return p.notifier.Notify(ctx, alerting.Notification{
		Zone:       zone,
		Timestamp:  newest.Timestamp,
		Price:      newest.Price,
		Load:       newest.Load,
		Score:      outcome.Score,
		Category:   outcome.Category,
		PriceScore: outcome.PriceScore,
		LoadScore:  outcome.LoadScore,
	})
}

// previousCategory finds the category of the record immediately before ts,
// preferring the category assigned in this run over the stored one.
func previousCategory(ts time.Time, history []storage.ObservationRecord, outcomes map[time.Time]sentiment.Scored) *storage.Category {
	var prev *storage.ObservationRecord
	for i := range history {
		record := &history[i]
		if !record.Timestamp.Before(ts) {
			continue
		}
		if prev == nil || record.Timestamp.After(prev.Timestamp) {
			prev = record
		}
	}
	if prev == nil {
		return nil
	}
	if outcome, ok := outcomes[prev.Timestamp]; ok {
		category := outcome.Category
		return &category
	}
	return prev.SentimentCategory
}
