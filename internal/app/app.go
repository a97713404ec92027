package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"orderbook-watcher/internal/alerting"
	"orderbook-watcher/internal/config"
	"orderbook-watcher/internal/exchange"
	"orderbook-watcher/internal/sampler"
	"orderbook-watcher/internal/scheduler"
	"orderbook-watcher/internal/service"
	"orderbook-watcher/internal/storage"
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

func (a *App) newExchange() *exchange.Binance {
	return exchange.NewBinance(exchange.BinanceOptions{
		BaseURL:    a.Config.Exchange.BaseURL,
		APIKey:     a.Config.Exchange.APIKey,
		APISecret:  a.Config.Exchange.APISecret,
		Timeout:    a.Config.Exchange.RequestTimeout,
		UseTestnet: a.Config.Exchange.UseTestnet,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running sampling service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	// Schema failure is fatal: the loop never arms against a store it
	// could not prepare.
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("all tables ready")

	sched := scheduler.New(scheduler.Options{
		Interval: a.Config.Sampler.Interval,
	}, a.Logger)

	binance := a.newExchange()
	marketSampler := sampler.New(binance, a.Config.Sampler.Depth, a.Logger)
	coordinator := sampler.NewCoordinator(marketSampler, a.Config.Sampler.Markets, a.Logger)

	svc := service.New(a.Config, sched, coordinator, binance, store, a.newNotifier(), a.Logger)

	a.Logger.Info().Msg("starting sampling service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sampling service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// QueryOptions configure range queries against stored series.
type QueryOptions struct {
	Kind   string
	Market string
	From   time.Time
	To     time.Time
	Period int
	// Resolution applies to candle queries only.
	Resolution string
}

// CandlesOptions configure the candle connector command.
type CandlesOptions struct {
	Market     string
	Resolution string
	From       time.Time
	To         time.Time
}

// FundingOptions configure the funding-rate connector command.
type FundingOptions struct {
	Market string
	From   time.Time
	To     time.Time
}

// ExportOptions hold parameters for exporting the imbalance series.
type ExportOptions struct {
	Market    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
