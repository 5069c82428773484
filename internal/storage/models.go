package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category buckets a sentiment score.
type Category string

const (
	CategoryGreen  Category = "green"
	CategoryYellow Category = "yellow"
	CategoryRed    Category = "red"
)

// ObservationRecord is one hourly market observation for a canonical zone.
// SentimentScore and SentimentCategory stay nil until the scoring pass has
// enough history for the zone.
type ObservationRecord struct {
	Timestamp         time.Time
	Zone              string
	Price             decimal.Decimal
	Load              decimal.Decimal
	SentimentScore    *float64
	SentimentCategory *Category
	CreatedAt         time.Time
}

// Scored reports whether the record carries a sentiment score.
func (r ObservationRecord) Scored() bool {
	return r.SentimentScore != nil
}

// AppendResult summarises one append batch.
type AppendResult struct {
	Inserted int
	Replaced int
	Skipped  int
}
