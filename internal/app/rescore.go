package app

import "context"

// Rescore retries every stored observation that is still missing a sentiment
// score. Rescoring is a repair action; it does not send alerts.
func (a *App) Rescore(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pipe := a.newPipeline(store, nil)
	report, err := pipe.Rescore(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("scored", report.Scored).
		Int("unscorable", report.Unscorable).
		Msg("rescore complete")
	return nil
}
