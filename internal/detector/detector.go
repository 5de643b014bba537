// Package detector decides when a price crosses a configured threshold.
//
// Each boundary of a record is a two-state machine. While armed, a price
// strictly past the boundary emits one alert and disarms it; the boundary
// re-arms once the price is back on the safe side (touching counts as safe).
package detector

import (
	"time"

	"nse-monitor/internal/models"
)

// Evaluate checks price against rec, flips its armed flags and returns the
// alerts produced, upper first. A nil record yields nothing. It performs no
// I/O; the caller owns locking and persistence.
func Evaluate(rec *models.ThresholdRecord, price float64, now time.Time) []models.Alert {
	if rec == nil {
		return nil
	}

	var alerts []models.Alert

	if rec.UpperLimit != nil {
		limit := *rec.UpperLimit
		switch {
		case price > limit && rec.UpperArmed:
			rec.UpperArmed = false
			alerts = append(alerts, newAlert(rec.Symbol, price, limit, models.AlertUpper, now))
		case price <= limit:
			rec.UpperArmed = true
		}
	}

	if rec.LowerLimit != nil {
		limit := *rec.LowerLimit
		switch {
		case price < limit && rec.LowerArmed:
			rec.LowerArmed = false
			alerts = append(alerts, newAlert(rec.Symbol, price, limit, models.AlertLower, now))
		case price >= limit:
			rec.LowerArmed = true
		}
	}

	return alerts
}

func newAlert(symbol string, price, threshold float64, kind models.AlertKind, now time.Time) models.Alert {
	return models.Alert{
		Symbol:    symbol,
		Price:     price,
		Threshold: threshold,
		Kind:      kind,
		Timestamp: now,
	}
}
