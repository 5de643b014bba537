// Package monitor drives the periodic price check: on every tick inside
// market hours it fetches each tracked symbol, runs the crossing detector
// against the store and fans results out to the alert and price sinks.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nse-monitor/internal/detector"
	"nse-monitor/internal/logging"
	"nse-monitor/internal/models"
	"nse-monitor/internal/store"
)

// PriceSource returns the latest price of a symbol, or false when none is
// available this cycle.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, bool)
}

// Gate reports whether ticks should run right now.
type Gate interface {
	IsOpen() bool
}

// AlertSink receives every alert the detector emits.
type AlertSink interface {
	Send(ctx context.Context, alert models.Alert) error
}

// PriceSink receives the prices obtained in one tick.
type PriceSink interface {
	PublishPrices(ctx context.Context, prices map[string]float64) error
}

// AlwaysOpen is a Gate that never closes.
type AlwaysOpen struct{}

// IsOpen implements Gate.
func (AlwaysOpen) IsOpen() bool { return true }

// Options configures a Monitor.
type Options struct {
	Interval   time.Duration
	Gate       Gate
	Alerts     AlertSink
	PriceSinks []PriceSink
	Clock      func() time.Time
	Logger     zerolog.Logger

	// OnTick, when set, is called by the running loop after every tick.
	OnTick func(TickReport)
}

// TickReport summarizes one tick.
type TickReport struct {
	Skipped bool // gate was closed
	Symbols int
	// Checked is the start-of-tick symbol snapshot, sorted.
	Checked []string
	Priced  int
	Prices  map[string]float64
	Alerts  []models.Alert
	Started time.Time
}

// Monitor is the monitoring loop. It is either STOPPED or RUNNING; Start
// and Stop are idempotent.
type Monitor struct {
	store    *store.Store
	prices   PriceSource
	gate     Gate
	alerts   AlertSink
	interval time.Duration
	now      func() time.Time
	onTick   func(TickReport)
	logger   zerolog.Logger

	sinksMu sync.RWMutex
	sinks   []PriceSink

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	lastMu   sync.RWMutex
	last     map[string]models.Quote
	lastTick TickReport
}

// New creates a stopped monitor.
func New(st *store.Store, prices PriceSource, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Gate == nil {
		opts.Gate = AlwaysOpen{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Monitor{
		store:    st,
		prices:   prices,
		gate:     opts.Gate,
		alerts:   opts.Alerts,
		interval: opts.Interval,
		now:      opts.Clock,
		onTick:   opts.OnTick,
		logger:   logging.WithComponent(opts.Logger, "monitor"),
		sinks:    append([]PriceSink(nil), opts.PriceSinks...),
		last:     make(map[string]models.Quote),
	}
}

// AddPriceSink registers another price sink.
func (m *Monitor) AddPriceSink(s PriceSink) {
	m.sinksMu.Lock()
	defer m.sinksMu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Interval returns the tick period.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start launches the loop. It returns false if the loop was already running.
// The loop ends when Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return false
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(ctx, m.stop, m.done)

	m.logger.Info().Dur("interval", m.interval).Msg("Monitoring started")
	return true
}

// Stop signals the loop and waits for it to exit. The symbol being
// processed is allowed to finish. It returns false if the loop was not
// running.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info().Msg("Monitoring stopped")
	return true
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// State returns STOPPED or RUNNING.
func (m *Monitor) State() models.MonitorState {
	if m.Running() {
		return models.MonitorRunning
	}
	return models.MonitorStopped
}

// Wait blocks until the running loop exits. It returns immediately when
// stopped.
func (m *Monitor) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Monitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		// A cancelled parent context also ends the RUNNING state.
		m.mu.Lock()
		if m.stop == stop {
			m.running = false
		}
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		report := m.tick(ctx, stop)
		if m.onTick != nil {
			m.onTick(report)
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one gated tick synchronously.
func (m *Monitor) Tick(ctx context.Context) TickReport {
	return m.tick(ctx, nil)
}

func (m *Monitor) tick(ctx context.Context, stop <-chan struct{}) TickReport {
	report := TickReport{Started: m.now()}

	if !m.gate.IsOpen() {
		report.Skipped = true
		m.logger.Debug().Msg("Market closed, skipping tick")
		m.recordTick(report)
		return report
	}

	symbols := m.store.Symbols()
	report.Symbols = len(symbols)
	report.Checked = symbols
	prices := make(map[string]float64, len(symbols))

	for _, sym := range symbols {
		if stopped(ctx, stop) {
			break
		}

		price, ok, alerts := m.processSymbol(ctx, sym)
		if !ok {
			continue
		}
		prices[sym] = price
		report.Alerts = append(report.Alerts, alerts...)
	}
	report.Priced = len(prices)
	report.Prices = prices

	if len(prices) > 0 {
		m.publishPrices(ctx, prices)
	}

	m.logger.Debug().
		Int("symbols", report.Symbols).
		Int("priced", report.Priced).
		Int("alerts", len(report.Alerts)).
		Msg("Tick complete")
	m.recordTick(report)
	return report
}

// processSymbol fetches, evaluates and dispatches one symbol. A panic in
// any step is contained to this symbol.
func (m *Monitor) processSymbol(ctx context.Context, symbol string) (price float64, ok bool, alerts []models.Alert) {
	logger := logging.WithSymbol(m.logger, symbol)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Symbol processing failed")
			ok = false
			alerts = nil
		}
	}()

	price, ok = m.prices.GetPrice(ctx, symbol)
	if !ok || !models.ValidPrice(price) {
		logger.Debug().Msg("No price this cycle")
		return 0, false, nil
	}

	now := m.now()
	m.remember(symbol, price, now)

	m.store.Mutate(symbol, func(rec *models.ThresholdRecord) {
		alerts = detector.Evaluate(rec, price, now)
	})

	for _, a := range alerts {
		logging.LogAlert(logger, a.Symbol, string(a.Kind), a.Price, a.Threshold)
		if m.alerts == nil {
			continue
		}
		if err := m.alerts.Send(ctx, a); err != nil {
			logger.Error().Err(err).Str("kind", string(a.Kind)).Msg("Failed to deliver alert")
		}
	}

	return price, true, alerts
}

func (m *Monitor) publishPrices(ctx context.Context, prices map[string]float64) {
	m.sinksMu.RLock()
	sinks := append([]PriceSink(nil), m.sinks...)
	m.sinksMu.RUnlock()

	for _, s := range sinks {
		if err := s.PublishPrices(ctx, prices); err != nil {
			m.logger.Warn().Err(err).Str("sink", fmt.Sprintf("%T", s)).Msg("Price sink failed")
		}
	}
}

// RefreshPrices fetches every tracked symbol now, bypassing the gate and the
// detector, and returns the prices obtained. The last-price cache is updated.
func (m *Monitor) RefreshPrices(ctx context.Context) map[string]float64 {
	prices := make(map[string]float64)
	for _, sym := range m.store.Symbols() {
		if ctx.Err() != nil {
			break
		}
		if price, ok := m.prices.GetPrice(ctx, sym); ok && models.ValidPrice(price) {
			prices[sym] = price
			m.remember(sym, price, m.now())
		}
	}
	return prices
}

func (m *Monitor) remember(symbol string, price float64, at time.Time) {
	m.lastMu.Lock()
	defer m.lastMu.Unlock()
	m.last[symbol] = models.Quote{Symbol: symbol, Price: price, Timestamp: at}
}

func (m *Monitor) recordTick(r TickReport) {
	m.lastMu.Lock()
	defer m.lastMu.Unlock()
	m.lastTick = r
}

// LastPrice returns the most recent price seen for symbol.
func (m *Monitor) LastPrice(symbol string) (models.Quote, bool) {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	q, ok := m.last[models.NormalizeSymbol(symbol)]
	return q, ok
}

// LastPrices returns a copy of the last-price cache.
func (m *Monitor) LastPrices() map[string]models.Quote {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	out := make(map[string]models.Quote, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

// LastTick returns the report of the most recent tick.
func (m *Monitor) LastTick() TickReport {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.lastTick
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
