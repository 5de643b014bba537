package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertKind identifies which boundary an alert crossed.
type AlertKind string

const (
	AlertUpper AlertKind = "UPPER"
	AlertLower AlertKind = "LOWER"
)

// Alert is a write-once threshold crossing event.
type Alert struct {
	Symbol    string
	Price     float64
	Threshold float64
	Kind      AlertKind
	Timestamp time.Time
}

// Message returns the short human-readable description of the crossing.
func (a Alert) Message() string {
	return fmt.Sprintf("%s crossed %s threshold", a.Symbol, a.Kind)
}

// Direction returns "above" for upper alerts and "below" for lower ones.
func (a Alert) Direction() string {
	if a.Kind == AlertUpper {
		return "above"
	}
	return "below"
}

type alertPayload struct {
	Symbol       string    `json:"symbol"`
	CurrentPrice float64   `json:"current_price"`
	Threshold    float64   `json:"threshold"`
	Type         AlertKind `json:"type"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarshalJSON renders the alert in the shape consumed by socket and webhook sinks.
func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(alertPayload{
		Symbol:       a.Symbol,
		CurrentPrice: a.Price,
		Threshold:    a.Threshold,
		Type:         a.Kind,
		Message:      a.Message(),
		Timestamp:    a.Timestamp,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; the message is derived and ignored.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var p alertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Alert{
		Symbol:    p.Symbol,
		Price:     p.CurrentPrice,
		Threshold: p.Threshold,
		Kind:      p.Type,
		Timestamp: p.Timestamp,
	}
	return nil
}
