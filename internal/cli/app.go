package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"nse-monitor/internal/config"
	"nse-monitor/internal/logging"
	"nse-monitor/internal/market"
	"nse-monitor/internal/monitor"
	"nse-monitor/internal/notify"
	"nse-monitor/internal/nse"
	"nse-monitor/internal/resilience"
	"nse-monitor/internal/store"
)

// App holds the application dependencies. They are built once the command
// line has been parsed, so --config and --debug apply to all of them.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *store.Store
	Prices   monitor.PriceSource
	Calendar *market.Calendar
	Notifier *notify.MultiNotifier
	AlertLog *notify.AlertLog

	// Set by options; take precedence over the configured components.
	prices    monitor.PriceSource
	logOutput io.Writer

	closers []func() error
}

// Option customizes an App before it is initialized.
type Option func(*App)

// WithPriceSource replaces the NSE fetcher.
func WithPriceSource(ps monitor.PriceSource) Option {
	return func(a *App) { a.prices = ps }
}

// WithLogOutput sends console logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *App) { a.logOutput = w }
}

func (a *App) init(configDir string, debug bool, out io.Writer) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	a.Config = cfg

	lc := cfg.LogConfig()
	if debug {
		lc.Level = "debug"
	}
	lc.ConsoleOut = a.logOutput
	a.Logger = logging.NewLoggerWithConfig(lc)

	persister, closePersister, err := store.OpenPersister(cfg.Store.Backend, cfg.Store.Path, cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening threshold store: %w", err)
	}
	a.closers = append(a.closers, closePersister)
	a.Store = store.New(persister, a.Logger)

	if a.prices != nil {
		a.Prices = a.prices
	} else {
		fetcher, err := nse.NewFetcher(fetcherConfig(cfg.Fetcher), a.Logger)
		if err != nil {
			return fmt.Errorf("creating price fetcher: %w", err)
		}
		a.Prices = fetcher
	}

	a.Calendar, err = newCalendar(cfg.Monitor)
	if err != nil {
		return err
	}

	a.AlertLog = notify.NewAlertLog(cfg.Alerts.LogFile)
	a.Notifier = notify.NewMultiNotifier(cfg.Notifications, a.Logger, a.AlertLog, notify.NewConsoleNotifier(out))

	a.Logger.Debug().
		Str("config_dir", cfg.Dir).
		Str("store", persister.Location()).
		Strs("channels", a.Notifier.Channels()).
		Msg("Application initialized")
	return nil
}

// Close releases the store backend.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// newMonitor builds a monitor on the app's store, prices, calendar and
// notifier.
func (a *App) newMonitor(interval time.Duration, opts monitor.Options) *monitor.Monitor {
	opts.Interval = interval
	opts.Gate = a.Calendar
	opts.Alerts = a.Notifier
	opts.Logger = a.Logger
	return monitor.New(a.Store, a.Prices, opts)
}

func fetcherConfig(fc config.FetcherConfig) nse.Config {
	cfg := nse.DefaultConfig()
	cfg.BaseURL = fc.BaseURL
	if fc.QuotePath != "" {
		cfg.QuotePath = fc.QuotePath
	}
	if fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	cfg.PrimeTimeout = fc.PrimeTimeout
	cfg.RequestTimeout = fc.RequestTimeout
	cfg.Backoff = resilience.Backoff{
		MaxAttempts: fc.MaxAttempts,
		Base:        fc.BackoffBase,
		Jitter:      fc.BackoffJitter,
		MaxDelay:    resilience.DefaultBackoff().MaxDelay,
	}
	cfg.ThrottleMin, cfg.ThrottleMax = fc.ThrottleMin, fc.ThrottleMax
	cfg.PrimeDelayMin, cfg.PrimeDelayMax = fc.PrimeDelayMin, fc.PrimeDelayMax
	return cfg
}

func newCalendar(mc config.MonitorConfig) (*market.Calendar, error) {
	loc, err := time.LoadLocation(mc.Timezone)
	if err != nil {
		loc = market.IndiaLocation()
	}
	open, err := config.ParseClock(mc.Open)
	if err != nil {
		return nil, err
	}
	closing, err := config.ParseClock(mc.Close)
	if err != nil {
		return nil, err
	}
	return market.NewCalendar(market.Options{
		Location:    loc,
		Open:        open,
		Close:       closing,
		Holidays:    mc.Holidays,
		IgnoreHours: mc.IgnoreMarketHours,
	})
}
