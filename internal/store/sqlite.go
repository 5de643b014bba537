package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/models"
)

// SQLitePersister stores the table in a SQLite database.
type SQLitePersister struct {
	db   *sql.DB
	path string
}

// NewSQLitePersister opens (or creates) the database at dbPath.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; the store already serializes access.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	p := &SQLitePersister{db: db, path: dbPath}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return p, nil
}

func (p *SQLitePersister) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS thresholds (
		symbol TEXT PRIMARY KEY,
		upper_limit REAL,
		lower_limit REAL,
		last_alert_upper INTEGER NOT NULL DEFAULT 0,
		last_alert_lower INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Location returns the database path.
func (p *SQLitePersister) Location() string {
	return p.path
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// Load reads every row.
func (p *SQLitePersister) Load() (map[string]*models.ThresholdRecord, error) {
	rows, err := p.db.Query(`SELECT symbol, upper_limit, lower_limit, last_alert_upper, last_alert_lower FROM thresholds`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load", p.path, err)
	}
	defer rows.Close()

	records := make(map[string]*models.ThresholdRecord)
	for rows.Next() {
		var (
			symbol             string
			upper, lower       sql.NullFloat64
			alertUp, alertDown bool
		)
		if err := rows.Scan(&symbol, &upper, &lower, &alertUp, &alertDown); err != nil {
			return nil, apperrors.NewPersistenceError("scan", p.path, err)
		}
		rec := &models.ThresholdRecord{
			Symbol:     symbol,
			UpperArmed: !alertUp,
			LowerArmed: !alertDown,
		}
		if upper.Valid {
			rec.UpperLimit = models.Float(upper.Float64)
		}
		if lower.Valid {
			rec.LowerLimit = models.Float(lower.Float64)
		}
		records[symbol] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("load", p.path, err)
	}
	return records, nil
}

// Save replaces the table contents in one transaction.
func (p *SQLitePersister) Save(records map[string]*models.ThresholdRecord) error {
	tx, err := p.db.Begin()
	if err != nil {
		return apperrors.NewPersistenceError("begin", p.path, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM thresholds`); err != nil {
		return apperrors.NewPersistenceError("clear", p.path, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO thresholds (symbol, upper_limit, lower_limit, last_alert_upper, last_alert_lower, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperrors.NewPersistenceError("prepare", p.path, err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, rec := range records {
		if _, err := stmt.Exec(rec.Symbol, nullable(rec.UpperLimit), nullable(rec.LowerLimit), !rec.UpperArmed, !rec.LowerArmed, now); err != nil {
			return apperrors.NewPersistenceError("insert", p.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("commit", p.path, err)
	}
	return nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
