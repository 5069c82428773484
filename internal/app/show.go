package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"gridpulse/internal/locations"
	"gridpulse/internal/storage"
)

// Show prints recent observations. With a zone it lists that zone's newest
// rows; without one it prints the latest row per zone as an overview.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var records []storage.ObservationRecord
	if opts.Zone == "" {
		zones, err := store.AllZones(ctx)
		if err != nil {
			return err
		}
		for _, zone := range zones {
			record, err := store.Latest(ctx, zone)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
	} else {
		zone, ok := locations.Normalize(opts.Zone)
		if !ok {
			return fmt.Errorf("unknown zone %q", opts.Zone)
		}
		records, err = store.Recent(ctx, zone, opts.Limit)
		if err != nil {
			return err
		}
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tZone\tPrice\tLoad MW\tScore\tCategory")

	for _, record := range records {
		score, category := "-", "-"
		if record.SentimentScore != nil {
			score = strconv.FormatFloat(*record.SentimentScore, 'f', 1, 64)
		}
		if record.SentimentCategory != nil {
			category = string(*record.SentimentCategory)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			record.Timestamp.UTC().Format(time.RFC3339),
			record.Zone,
			record.Price.StringFixed(2),
			record.Load.StringFixed(0),
			score,
			category,
		)
	}

	writer.Flush()
	return nil
}
