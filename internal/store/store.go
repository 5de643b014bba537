// Package store provides the threshold store and its persistence backends.
package store

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/models"
)

// Persister loads and saves the whole symbol table at once.
type Persister interface {
	Load() (map[string]*models.ThresholdRecord, error)
	Save(records map[string]*models.ThresholdRecord) error
	Location() string
}

// Store is the single owner of all threshold records. Every read and write,
// including hysteresis flag updates, is serialized by one mutex and written
// through to the persister.
type Store struct {
	mu        sync.Mutex
	records   map[string]*models.ThresholdRecord
	persister Persister
	logger    zerolog.Logger
}

// New creates a store and loads the persisted state. A load failure is
// logged and the store starts empty.
func New(persister Persister, logger zerolog.Logger) *Store {
	s := &Store{
		records:   make(map[string]*models.ThresholdRecord),
		persister: persister,
		logger:    logger.With().Str("component", "store").Logger(),
	}

	if persister == nil {
		return s
	}

	loaded, err := persister.Load()
	if err != nil {
		s.logger.Error().Err(err).Str("path", persister.Location()).Msg("Failed to load thresholds, starting empty")
		return s
	}
	for sym, rec := range loaded {
		if rec == nil {
			continue
		}
		sym = models.NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		rec.Symbol = sym
		s.records[sym] = rec
	}

	s.logger.Info().Int("symbols", len(s.records)).Str("path", persister.Location()).Msg("Thresholds loaded")
	return s
}

// Add inserts or overwrites a record with both boundaries armed.
func (s *Store) Add(symbol string, upper, lower *float64) error {
	rec, err := models.NewThresholdRecord(symbol, upper, lower)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Symbol] = rec
	s.persistLocked()
	return nil
}

// Remove deletes a record and reports whether it existed.
func (s *Store) Remove(symbol string) bool {
	symbol = models.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[symbol]; !ok {
		return false
	}
	delete(s.records, symbol)
	s.persistLocked()
	return true
}

// Update overwrites the provided limits of an existing record. Omitted limits
// keep their value and the armed flags are left untouched. Unknown symbols
// fail with ErrSymbolNotFound.
func (s *Store) Update(symbol string, upper, lower *float64) error {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[symbol]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrSymbolNotFound, "%s", symbol)
	}
	if upper == nil && lower == nil {
		return nil
	}

	merged := rec.Clone()
	if upper != nil {
		merged.UpperLimit = models.Float(*upper)
	}
	if lower != nil {
		merged.LowerLimit = models.Float(*lower)
	}
	if err := models.ValidateLimits(merged.UpperLimit, merged.LowerLimit); err != nil {
		return err
	}

	s.records[symbol] = merged
	s.persistLocked()
	return nil
}

// Get returns a copy of the record for symbol.
func (s *Store) Get(symbol string) (*models.ThresholdRecord, bool) {
	symbol = models.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[symbol]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Symbols returns a sorted snapshot of the tracked symbols.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.records))
	for sym := range s.records {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// All returns copies of every record, sorted by symbol.
func (s *Store) All() []*models.ThresholdRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.ThresholdRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Mutate runs fn against the live record for symbol while holding the store
// lock. fn must not retain the record. If the armed flags changed, the store
// is persisted. Returns false when the symbol is not tracked.
func (s *Store) Mutate(symbol string, fn func(rec *models.ThresholdRecord)) bool {
	symbol = models.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[symbol]
	if !ok {
		return false
	}

	upper, lower := rec.UpperArmed, rec.LowerArmed
	fn(rec)
	if rec.UpperArmed != upper || rec.LowerArmed != lower {
		s.persistLocked()
	}
	return true
}

// persistLocked writes the full table. Failures keep the in-memory state.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(s.records); err != nil {
		s.logger.Error().Err(err).Str("path", s.persister.Location()).Msg("Failed to persist thresholds")
	}
}
