package app

import (
	"context"
	"time"
)

// Collect runs a single fetch-and-score pass over the lookback window ending
// now. Useful for catching up after downtime or seeding a fresh database.
func (a *App) Collect(ctx context.Context, opts CollectOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	lookback := opts.LookbackHours
	if lookback <= 0 {
		lookback = a.Config.Provider.LookbackHours
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(lookback) * time.Hour)

	raw, err := a.newFetcher().Fetch(ctx, start, end)
	if err != nil {
		return err
	}

	pipe := a.newPipeline(store, a.newNotifier())
	report, err := pipe.Submit(ctx, raw)
	if err != nil {
		return err
	}

	if len(report.RejectedZones) > 0 {
		a.Logger.Warn().Strs("zones", report.RejectedZones).Msg("rows rejected for unknown zones")
	}
	a.Logger.Info().
		Int("fetched", report.Fetched).
		Int("inserted", report.Inserted).
		Int("scored", report.Scored).
		Int("unscorable", report.Unscorable).
		Msg("collection pass complete")
	return nil
}
