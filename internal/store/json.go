package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/models"
)

// jsonRecord is the on-disk shape of one record. last_alert_* is the inverse
// of the armed flag: true means an alert fired and has not re-armed yet.
type jsonRecord struct {
	Symbol         string   `json:"symbol"`
	UpperLimit     *float64 `json:"upper_limit"`
	LowerLimit     *float64 `json:"lower_limit"`
	LastAlertUpper bool     `json:"last_alert_upper"`
	LastAlertLower bool     `json:"last_alert_lower"`
}

// JSONPersister stores the table as one pretty-printed JSON object.
type JSONPersister struct {
	path string
}

// NewJSONPersister creates a persister backed by path.
func NewJSONPersister(path string) *JSONPersister {
	return &JSONPersister{path: path}
}

// Location returns the file path.
func (p *JSONPersister) Location() string {
	return p.path
}

// Load reads the file. A missing file is an empty table.
func (p *JSONPersister) Load() (map[string]*models.ThresholdRecord, error) {
	records := make(map[string]*models.ThresholdRecord)

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, apperrors.NewPersistenceError("load", p.path, err)
	}

	var raw map[string]jsonRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewPersistenceError("decode", p.path, err)
	}

	for key, jr := range raw {
		sym := jr.Symbol
		if sym == "" {
			sym = key
		}
		sym = models.NormalizeSymbol(sym)
		records[sym] = &models.ThresholdRecord{
			Symbol:     sym,
			UpperLimit: jr.UpperLimit,
			LowerLimit: jr.LowerLimit,
			UpperArmed: !jr.LastAlertUpper,
			LowerArmed: !jr.LastAlertLower,
		}
	}
	return records, nil
}

// Save rewrites the whole file via a temp file and rename.
func (p *JSONPersister) Save(records map[string]*models.ThresholdRecord) error {
	raw := make(map[string]jsonRecord, len(records))
	for sym, rec := range records {
		raw[sym] = jsonRecord{
			Symbol:         rec.Symbol,
			UpperLimit:     rec.UpperLimit,
			LowerLimit:     rec.LowerLimit,
			LastAlertUpper: !rec.UpperArmed,
			LastAlertLower: !rec.LowerArmed,
		}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceError("encode", p.path, err)
	}

	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewPersistenceError("mkdir", p.path, err)
		}
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.NewPersistenceError("write", p.path, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return apperrors.NewPersistenceError("rename", p.path, err)
	}
	return nil
}
