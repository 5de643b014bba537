// Package models provides domain models for the stock monitor.
package models

import (
	"math"
	"strings"
	"time"

	apperrors "nse-monitor/internal/errors"
)

// MarketStatus represents the current market status as seen by the gate.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
	MarketHoliday MarketStatus = "HOLIDAY"
	MarketWeekend MarketStatus = "WEEKEND"
)

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ThresholdRecord holds the configured limits of one tracked symbol together
// with its hysteresis flags.
//
// UpperArmed/LowerArmed are true while the detector is allowed to fire for that
// boundary. They are flipped only by the detector.
type ThresholdRecord struct {
	Symbol     string
	UpperLimit *float64
	LowerLimit *float64
	UpperArmed bool
	LowerArmed bool
}

// NewThresholdRecord builds a validated record with both boundaries armed.
func NewThresholdRecord(symbol string, upper, lower *float64) (*ThresholdRecord, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if err := ValidateLimits(upper, lower); err != nil {
		return nil, err
	}
	return &ThresholdRecord{
		Symbol:     symbol,
		UpperLimit: copyFloat(upper),
		LowerLimit: copyFloat(lower),
		UpperArmed: true,
		LowerArmed: true,
	}, nil
}

// ValidateLimits checks that set limits are positive and not inverted.
func ValidateLimits(upper, lower *float64) error {
	if upper != nil && !(*upper > 0) {
		return apperrors.NewValidationError("upper_limit", *upper, "upper limit must be positive")
	}
	if lower != nil && !(*lower > 0) {
		return apperrors.NewValidationError("lower_limit", *lower, "lower limit must be positive")
	}
	if upper != nil && lower != nil && *upper <= *lower {
		return &apperrors.ValidationError{
			Field:   "upper_limit",
			Value:   *upper,
			Message: "upper limit must be greater than lower limit",
			Err:     apperrors.ErrInvertedThresholds,
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the store.
func (r *ThresholdRecord) Clone() *ThresholdRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.UpperLimit = copyFloat(r.UpperLimit)
	c.LowerLimit = copyFloat(r.LowerLimit)
	return &c
}

// ValidPrice reports whether p can be a traded price. The quote API sends 0
// for suspended and pre-open symbols.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// Float returns a pointer to v, for optional limit fields.
func Float(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// MonitorState is the lifecycle state of the monitoring loop.
type MonitorState string

const (
	MonitorStopped MonitorState = "STOPPED"
	MonitorRunning MonitorState = "RUNNING"
)

// Quote is the last known price of a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
