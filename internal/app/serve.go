package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"gridpulse/internal/api"
)

// Serve runs the HTTP query service until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := api.NewServer(a.Config.API, store, a.Logger)
	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
