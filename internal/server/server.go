// Package server exposes the threshold store and the monitor over HTTP and
// mounts the WebSocket hub.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/logging"
	"nse-monitor/internal/models"
	"nse-monitor/internal/monitor"
	"nse-monitor/internal/notify"
	"nse-monitor/internal/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	defaultTailLines  = 20
)

// SnapshotReader returns stored quotes, such as those left in Redis by an
// earlier run.
type SnapshotReader interface {
	Snapshots(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}

// Deps groups what the handlers need. Hub serves /ws and Health serves
// /api/health when set. Snapshots, when set, supplies prices the monitor has
// not seen yet.
type Deps struct {
	Store     *store.Store
	Monitor   *monitor.Monitor
	Gate      monitor.Gate
	Hub       http.Handler
	Health    http.Handler
	Snapshots SnapshotReader
	AlertLog  string
	TailLines int
	Logger    zerolog.Logger
}

// Server is the HTTP front end.
type Server struct {
	deps   Deps
	logger zerolog.Logger

	// runCtx bounds monitoring loops started over HTTP; request contexts
	// end with the response.
	runCtx context.Context
	mux    *http.ServeMux
}

// New builds the server and its routes.
func New(deps Deps) *Server {
	if deps.Gate == nil {
		deps.Gate = monitor.AlwaysOpen{}
	}
	if deps.TailLines <= 0 {
		deps.TailLines = defaultTailLines
	}
	s := &Server{
		deps:   deps,
		logger: logging.WithComponent(deps.Logger, "server"),
		runCtx: context.Background(),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/stocks", s.handleListStocks)
	s.mux.HandleFunc("POST /api/stocks", s.handleAddStock)
	s.mux.HandleFunc("PUT /api/stocks/{symbol}", s.handleUpdateStock)
	s.mux.HandleFunc("DELETE /api/stocks/{symbol}", s.handleRemoveStock)
	s.mux.HandleFunc("POST /api/monitoring/start", s.handleStartMonitoring)
	s.mux.HandleFunc("POST /api/monitoring/stop", s.handleStopMonitoring)
	s.mux.HandleFunc("GET /api/monitoring/status", s.handleMonitoringStatus)
	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	if s.deps.Hub != nil {
		s.mux.Handle("GET /ws", s.deps.Hub)
	}
	if s.deps.Health != nil {
		s.mux.Handle("GET /api/health", s.deps.Health)
	}
}

// ServeHTTP implements http.Handler. Handlers find a request-scoped logger
// in the context.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithOperation(s.logger, r.Method+" "+r.URL.Path)
	logger.Debug().Str("remote", r.RemoteAddr).Msg("Request")
	s.mux.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
// Monitoring started through the API stops with ctx as well.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.runCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

type stockView struct {
	Symbol       string   `json:"symbol"`
	UpperLimit   *float64 `json:"upper_limit"`
	LowerLimit   *float64 `json:"lower_limit"`
	CurrentPrice *float64 `json:"current_price"`
	PriceChange  *float64 `json:"price_change"`
}

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	var fresh map[string]float64
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		fresh = s.deps.Monitor.RefreshPrices(r.Context())
	}

	records := s.deps.Store.All()
	cached := s.deps.Monitor.LastPrices()
	for sym, p := range fresh {
		cached[sym] = models.Quote{Symbol: sym, Price: p}
	}
	s.fillFromSnapshots(r, records, cached)

	out := make(map[string]stockView, len(records))
	for _, rec := range records {
		view := stockView{Symbol: rec.Symbol, UpperLimit: rec.UpperLimit, LowerLimit: rec.LowerLimit}
		if q, ok := cached[rec.Symbol]; ok {
			price := q.Price
			view.CurrentPrice = &price
		}
		out[rec.Symbol] = view
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fillFromSnapshots(r *http.Request, records []*models.ThresholdRecord, cached map[string]models.Quote) {
	if s.deps.Snapshots == nil {
		return
	}
	var missing []string
	for _, rec := range records {
		if _, ok := cached[rec.Symbol]; !ok {
			missing = append(missing, rec.Symbol)
		}
	}
	if len(missing) == 0 {
		return
	}

	snaps, err := s.deps.Snapshots.Snapshots(r.Context(), missing)
	if err != nil {
		logger := logging.FromContext(r.Context())
		logger.Warn().Err(err).Msg("Reading stored prices failed")
		return
	}
	for sym, q := range snaps {
		if models.ValidPrice(q.Price) {
			cached[sym] = q
		}
	}
}

type stockRequest struct {
	Symbol     string          `json:"symbol"`
	UpperLimit json.RawMessage `json:"upper_limit"`
	LowerLimit json.RawMessage `json:"lower_limit"`
}

func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "Symbol is required")
		return
	}
	upper, lower, msg := parseLimits(req)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.deps.Store.Add(symbol, upper, lower); err != nil {
		writeStoreError(w, r, err, "Failed to add stock")
		return
	}
	writeMessage(w, fmt.Sprintf("Stock %s added successfully", strings.ToUpper(symbol)))
}

func (s *Server) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	upper, lower, msg := parseLimits(req)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.deps.Store.Update(symbol, upper, lower); err != nil {
		writeStoreError(w, r, err, "Failed to update stock")
		return
	}
	writeMessage(w, fmt.Sprintf("Stock %s updated successfully", strings.ToUpper(symbol)))
}

func (s *Server) handleRemoveStock(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !s.deps.Store.Remove(symbol) {
		writeError(w, http.StatusNotFound, "Stock not found")
		return
	}
	writeMessage(w, fmt.Sprintf("Stock %s removed successfully", strings.ToUpper(symbol)))
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, _ *http.Request) {
	if !s.deps.Monitor.Start(s.runCtx) {
		writeMessage(w, "Monitoring already active")
		return
	}
	writeMessage(w, "Monitoring started")
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, _ *http.Request) {
	s.deps.Monitor.Stop()
	writeMessage(w, "Monitoring stopped")
}

func (s *Server) handleMonitoringStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"active":       s.deps.Monitor.Running(),
		"market_hours": s.deps.Gate.IsOpen(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	lines, err := notify.TailAlerts(s.deps.AlertLog, s.deps.TailLines)
	if err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Error reading alerts")
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, lines)
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *apperrors.ValidationError
	switch {
	case apperrors.Is(err, apperrors.ErrSymbolNotFound):
		writeError(w, http.StatusNotFound, "Stock not found")
	case apperrors.Is(err, apperrors.ErrInvertedThresholds):
		writeError(w, http.StatusBadRequest, "Upper limit must be greater than lower limit")
	case apperrors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// parseLimits accepts numbers, numeric strings, or null for each limit and
// returns a client-facing message when one is unusable.
func parseLimits(req stockRequest) (upper, lower *float64, msg string) {
	upper, ok := parseLimit(req.UpperLimit)
	if !ok {
		return nil, nil, "Invalid upper limit"
	}
	if upper != nil && *upper <= 0 {
		return nil, nil, "Upper limit must be positive"
	}

	lower, ok = parseLimit(req.LowerLimit)
	if !ok {
		return nil, nil, "Invalid lower limit"
	}
	if lower != nil && *lower <= 0 {
		return nil, nil, "Lower limit must be positive"
	}

	if upper != nil && lower != nil && *upper <= *lower {
		return nil, nil, "Upper limit must be greater than lower limit"
	}
	return upper, lower, ""
}

func parseLimit(raw json.RawMessage) (*float64, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, true
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil, false
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
