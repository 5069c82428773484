package pipeline

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridpulse/internal/alerting"
	"gridpulse/internal/sentiment"
	"gridpulse/internal/storage"
)

// memStore implements storage.ObservationStore in memory using the same
// conflict resolution as the real store.
type memStore struct {
	records map[string]map[time.Time]storage.ObservationRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]map[time.Time]storage.ObservationRecord)}
}

func (m *memStore) Append(_ context.Context, records []storage.ObservationRecord) (storage.AppendResult, error) {
	var result storage.AppendResult
	for _, record := range records {
		zone := m.records[record.Zone]
		if zone == nil {
			zone = make(map[time.Time]storage.ObservationRecord)
			m.records[record.Zone] = zone
		}

		var existing *storage.ObservationRecord
		if current, ok := zone[record.Timestamp]; ok {
			copied := current
			existing = &copied
		}

		switch storage.ResolveConflict(existing, record) {
		case storage.MergeInsert:
			zone[record.Timestamp] = record
			result.Inserted++
		case storage.MergeReplace:
			zone[record.Timestamp] = record
			result.Replaced++
		case storage.MergeSkip:
			result.Skipped++
		}
	}
	return result, nil
}

func (m *memStore) Range(_ context.Context, zone string, from, to time.Time) ([]storage.ObservationRecord, error) {
	records := make([]storage.ObservationRecord, 0)
	for ts, record := range m.records[zone] {
		if ts.Before(from) || ts.After(to) {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}

func (m *memStore) Unscored(_ context.Context, zone string) ([]storage.ObservationRecord, error) {
	records := make([]storage.ObservationRecord, 0)
	for _, record := range m.records[zone] {
		if !record.Scored() {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}

func (m *memStore) Latest(_ context.Context, zone string) (storage.ObservationRecord, error) {
	var latest *storage.ObservationRecord
	for _, record := range m.records[zone] {
		record := record
		if latest == nil || record.Timestamp.After(latest.Timestamp) {
			latest = &record
		}
	}
	if latest == nil {
		return storage.ObservationRecord{}, storage.ErrNotFound
	}
	return *latest, nil
}

func (m *memStore) AllZones(_ context.Context) ([]string, error) {
	zones := make([]string, 0, len(m.records))
	for zone := range m.records {
		zones = append(zones, zone)
	}
	sort.Strings(zones)
	return zones, nil
}

func (m *memStore) count() int {
	total := 0
	for _, zone := range m.records {
		total += len(zone)
	}
	return total
}

func (m *memStore) get(t *testing.T, zone string, ts time.Time) storage.ObservationRecord {
	t.Helper()
	record, ok := m.records[zone][ts]
	if !ok {
		t.Fatalf("record %s %s not found", zone, ts)
	}
	return record
}

type captureNotifier struct {
	notes []alerting.Notification
}

func (c *captureNotifier) Notify(_ context.Context, note alerting.Notification) error {
	c.notes = append(c.notes, note)
	return nil
}

var batchStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// normalPrice wiggles deterministically around 30 $/MWh.
func normalPrice(hour int) float64 {
	return 30 + float64(hour%5) - 2
}

func rawBatch(zone string, startHour, hours int) []RawObservation {
	rows := make([]RawObservation, hours)
	for i := 0; i < hours; i++ {
		hour := startHour + i
		rows[i] = RawObservation{
			Timestamp: batchStart.Add(time.Duration(hour) * time.Hour),
			Zone:      zone,
			Price:     decimal.NewFromFloat(normalPrice(hour)),
			Load:      decimal.NewFromFloat(40000),
		}
	}
	return rows
}

func newTestPipeline(store storage.ObservationStore, notifier alerting.Notifier) *Pipeline {
	return New(store, sentiment.NewScorer(sentiment.DefaultWeights()), notifier, zerolog.Nop())
}

func TestSubmitIdempotent(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, nil)
	batch := rawBatch("LZ_NORTH", 0, 48)

	first, err := p.Submit(context.Background(), batch)
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if first.Inserted != 48 {
		t.Fatalf("first submit inserted %d, want 48", first.Inserted)
	}
	countAfterFirst := store.count()

	second, err := p.Submit(context.Background(), batch)
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if second.Inserted != 0 || second.Replaced != 0 {
		t.Fatalf("second identical submit should change nothing, got %+v", second)
	}
	if second.Duplicates != 48 {
		t.Fatalf("second submit duplicates = %d, want 48", second.Duplicates)
	}
	if store.count() != countAfterFirst {
		t.Fatalf("row count changed on identical re-submit: %d -> %d", countAfterFirst, store.count())
	}
}

func TestSubmitNormalizesZones(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, nil)

	_, err := p.Submit(context.Background(), rawBatch("North Zone", 0, 2))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, ok := store.records["NORTH"]; !ok {
		t.Fatalf("alias should canonicalize to NORTH, stored zones: %v", store.records)
	}
}

func TestSubmitRejectsUnknownZone(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, nil)

	rows := rawBatch("LZ_NORTH", 0, 3)
	rows = append(rows, RawObservation{
		Timestamp: batchStart,
		Zone:      "EASTERN_TIE",
		Price:     decimal.NewFromFloat(20),
		Load:      decimal.NewFromFloat(41000),
	})

	report, err := p.Submit(context.Background(), rows)
	if err != nil {
		t.Fatalf("per-record rejection must not abort the batch: %v", err)
	}
	if report.Rejected != 1 {
		t.Fatalf("rejected = %d, want 1", report.Rejected)
	}
	if len(report.RejectedZones) != 1 || report.RejectedZones[0] != "EASTERN_TIE" {
		t.Fatalf("rejected zones = %v", report.RejectedZones)
	}
	if report.Inserted != 3 {
		t.Fatalf("valid rows should still insert, got %d", report.Inserted)
	}
	if store.count() != 3 {
		t.Fatalf("store count = %d, want 3", store.count())
	}
}

func TestSubmitScoresOnceHistoryAccrues(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, nil)

	first, err := p.Submit(context.Background(), rawBatch("NORTH", 0, 20))
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if first.Scored != 0 || first.Unscorable != 20 {
		t.Fatalf("20 rows cannot be scored yet, got %+v", first)
	}

	second, err := p.Submit(context.Background(), rawBatch("NORTH", 20, 20))
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	// Rows 24..39 now have at least 24 prior in-window samples.
	if second.Scored != 16 {
		t.Fatalf("second submit scored %d, want 16", second.Scored)
	}
	if second.Unscorable != 24 {
		t.Fatalf("second submit unscorable = %d, want 24", second.Unscorable)
	}
}

func TestSpikeScenario(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, nil)

	rows := rawBatch("NORTH", 0, 200)
	spikeTS := batchStart.Add(200 * time.Hour)
	rows = append(rows, RawObservation{
		Timestamp: spikeTS,
		Zone:      "NORTH",
		Price:     decimal.NewFromFloat(300), // 10x the rolling median
		Load:      decimal.NewFromFloat(40000),
	})

	report, err := p.Submit(context.Background(), rows)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if report.Unscorable != sentiment.MinSamples {
		t.Fatalf("first %d rows must stay unscored, got %d", sentiment.MinSamples, report.Unscorable)
	}

	for hour := 0; hour < sentiment.MinSamples; hour++ {
		record := store.get(t, "NORTH", batchStart.Add(time.Duration(hour)*time.Hour))
		if record.Scored() {
			t.Fatalf("row %d should have no score", hour)
		}
	}

	spiked := store.get(t, "NORTH", spikeTS)
	if !spiked.Scored() {
		t.Fatal("spike row should be scored")
	}
	if *spiked.SentimentScore >= 40 {
		t.Fatalf("spike score = %v, want red territory", *spiked.SentimentScore)
	}
	if *spiked.SentimentCategory != storage.CategoryRed {
		t.Fatalf("spike category = %s, want red", *spiked.SentimentCategory)
	}

	// An hour at the baseline stays comfortably off red.
	normal := store.get(t, "NORTH", batchStart.Add(190*time.Hour))
	if !normal.Scored() {
		t.Fatal("normal row should be scored")
	}
	if *normal.SentimentCategory == storage.CategoryRed {
		t.Fatalf("normal row should not be red, score %v", *normal.SentimentScore)
	}
}

func TestRedTransitionAlertsOnce(t *testing.T) {
	store := newMemStore()
	notifier := &captureNotifier{}
	p := newTestPipeline(store, notifier)

	// Flat prices: every scored hour sits exactly at baseline (yellow).
	seed := make([]RawObservation, 40)
	for i := range seed {
		seed[i] = RawObservation{
			Timestamp: batchStart.Add(time.Duration(i) * time.Hour),
			Zone:      "NORTH",
			Price:     decimal.NewFromFloat(30),
			Load:      decimal.NewFromFloat(40000),
		}
	}

	if _, err := p.Submit(context.Background(), seed); err != nil {
		t.Fatalf("seed submit failed: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("normal conditions should not alert, got %d", len(notifier.notes))
	}

	spike := func(hour int) []RawObservation {
		return []RawObservation{{
			Timestamp: batchStart.Add(time.Duration(hour) * time.Hour),
			Zone:      "NORTH",
			Price:     decimal.NewFromFloat(400),
			Load:      decimal.NewFromFloat(48000),
		}}
	}

	if _, err := p.Submit(context.Background(), spike(40)); err != nil {
		t.Fatalf("spike submit failed: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("transition into red should alert once, got %d", len(notifier.notes))
	}
	if notifier.notes[0].Zone != "NORTH" || notifier.notes[0].Category != storage.CategoryRed {
		t.Fatalf("unexpected notification: %+v", notifier.notes[0])
	}

	if _, err := p.Submit(context.Background(), spike(41)); err != nil {
		t.Fatalf("second spike submit failed: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("staying red should not re-alert, got %d", len(notifier.notes))
	}
}

func TestRescoreRetriesAllZones(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, nil)

	if _, err := p.Submit(context.Background(), rawBatch("NORTH", 0, 20)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := p.Submit(context.Background(), rawBatch("LZ_WEST", 0, 30)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	report, err := p.Rescore(context.Background())
	if err != nil {
		t.Fatalf("rescore failed: %v", err)
	}
	// WEST rows 24..29 already got scored on submit; nothing new is
	// scorable until more history arrives.
	if report.Scored != 0 {
		t.Fatalf("rescore scored %d, want 0", report.Scored)
	}
	if report.Unscorable != 44 {
		t.Fatalf("rescore unscorable = %d, want 44", report.Unscorable)
	}
}
