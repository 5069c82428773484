package fetcher

import (
	"context"
	"time"

	"gridpulse/internal/pipeline"
)

// Fetcher retrieves raw hourly observations from an external market-data
// source for the pipeline to ingest.
type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time) ([]pipeline.RawObservation, error)
}
