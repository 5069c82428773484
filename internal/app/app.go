package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gridpulse/internal/alerting"
	"gridpulse/internal/config"
	"gridpulse/internal/fetcher"
	"gridpulse/internal/pipeline"
	"gridpulse/internal/scheduler"
	"gridpulse/internal/sentiment"
	"gridpulse/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.Fetcher {
	return fetcher.NewProvider(fetcher.ProviderOptions{
		BaseURL:   a.Config.Provider.BaseURL,
		Timeout:   a.Config.Provider.RequestTimeout,
		UserAgent: a.Config.Provider.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newPipeline(store storage.ObservationStore, notifier alerting.Notifier) *pipeline.Pipeline {
	weights := sentiment.Weights{
		Price: a.Config.Scoring.PriceWeight,
		Load:  a.Config.Scoring.LoadWeight,
	}
	return pipeline.New(store, sentiment.NewScorer(weights), notifier, a.Logger)
}

// openStore connects to the database and makes sure the schema exists. A
// missing DSN or unreachable database fails here, before any work starts.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Run executes the long-running collection service: one fetch-and-score pass
// per scheduler tick.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	fetch := a.newFetcher()
	pipe := a.newPipeline(store, a.newNotifier())

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Align:        a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting collection service")
	err = sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
		return a.collectOnce(ctx, store, fetch, pipe, tick)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("collection service terminated with error")
		return err
	}

	a.Logger.Info().Msg("collection service stopped")
	return nil
}

// collectOnce fetches the lookback window ending at tick and submits it. The
// advisory lock keeps concurrent deployments from double-collecting; losing
// the race is not an error.
func (a *App) collectOnce(ctx context.Context, locker storage.AdvisoryLocker, fetch fetcher.Fetcher, pipe *pipeline.Pipeline, tick time.Time) error {
	unlock, acquired, err := locker.TryAdvisoryLock(ctx, a.Config.Scheduler.AdvisoryLockKey)
	if err != nil {
		return err
	}
	if !acquired {
		a.Logger.Info().Msg("another instance holds the collection lock; skipping tick")
		return nil
	}
	defer unlock()

	start := tick.Add(-time.Duration(a.Config.Provider.LookbackHours) * time.Hour)
	raw, err := fetch.Fetch(ctx, start, tick)
	if err != nil {
		return err
	}

	_, err = pipe.Submit(ctx, raw)
	return err
}

// CollectOptions configure a one-shot collection pass.
type CollectOptions struct {
	LookbackHours int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Zone  string
	Limit int
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	Zone      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
