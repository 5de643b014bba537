package models

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "nse-monitor/internal/errors"
)

func TestNewThresholdRecord(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		upper   *float64
		lower   *float64
		wantErr error
	}{
		{"both limits", " reliance ", Float(3000), Float(2500), nil},
		{"no limits", "TCS", nil, nil, nil},
		{"upper only", "infy", Float(1800), nil, nil},
		{"empty symbol", "   ", Float(10), nil, apperrors.ErrInvalidSymbol},
		{"zero upper", "SBIN", Float(0), nil, apperrors.ErrInvalidThreshold},
		{"negative lower", "SBIN", nil, Float(-5), apperrors.ErrInvalidThreshold},
		{"inverted", "SBIN", Float(50), Float(100), apperrors.ErrInvertedThresholds},
		{"equal", "SBIN", Float(100), Float(100), apperrors.ErrInvertedThresholds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewThresholdRecord(tt.symbol, tt.upper, tt.lower)
			if tt.wantErr != nil {
				if !apperrors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Symbol != NormalizeSymbol(tt.symbol) {
				t.Errorf("symbol = %q, want normalized %q", rec.Symbol, NormalizeSymbol(tt.symbol))
			}
			if !rec.UpperArmed || !rec.LowerArmed {
				t.Error("new record should be armed on both boundaries")
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	rec, _ := NewThresholdRecord("HDFCBANK", Float(1700), Float(1500))
	c := rec.Clone()
	*c.UpperLimit = 1
	if *rec.UpperLimit != 1700 {
		t.Error("clone shares limit storage with original")
	}
}

func TestAlertJSON(t *testing.T) {
	a := Alert{
		Symbol:    "TESTCO",
		Price:     110,
		Threshold: 100,
		Kind:      AlertUpper,
		Timestamp: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["message"] != "TESTCO crossed UPPER threshold" {
		t.Errorf("message = %v", m["message"])
	}
	if m["type"] != "UPPER" || m["current_price"] != 110.0 || m["threshold"] != 100.0 {
		t.Errorf("unexpected payload %v", m)
	}

	var back Alert
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != a {
		t.Errorf("decoded %+v, want %+v", back, a)
	}
	if a.Direction() != "above" {
		t.Errorf("direction = %s", a.Direction())
	}
}
