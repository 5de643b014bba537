// Package market provides the trading-hours gate for the monitoring loop.
package market

import (
	"fmt"
	"time"

	"nse-monitor/internal/models"
)

// Clock returns the current time.
type Clock func() time.Time

// IndiaLocation returns Asia/Kolkata, falling back to a fixed UTC+5:30 zone
// when the tz database is unavailable.
func IndiaLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// Calendar decides whether the exchange is trading at a given instant.
// The session runs from Open to Close inclusive on weekdays that are not
// holidays.
type Calendar struct {
	location *time.Location
	open     time.Duration // offset from local midnight
	close    time.Duration
	holidays map[string]bool
	ignore   bool
	now      Clock
}

// Options configures a Calendar.
type Options struct {
	Location *time.Location
	// Open and Close are minutes after midnight.
	Open  int
	Close int
	// Holidays are YYYY-MM-DD dates in Location.
	Holidays []string
	// IgnoreHours keeps the gate open at all times.
	IgnoreHours bool
	Clock       Clock
}

// DefaultOptions returns the NSE equity session, 09:15 to 15:30 IST.
func DefaultOptions() Options {
	return Options{
		Location: IndiaLocation(),
		Open:     9*60 + 15,
		Close:    15*60 + 30,
	}
}

// NewCalendar builds a calendar. Invalid holiday dates are rejected.
func NewCalendar(opts Options) (*Calendar, error) {
	if opts.Location == nil {
		opts.Location = IndiaLocation()
	}
	if opts.Open >= opts.Close {
		return nil, fmt.Errorf("market open %d must be before close %d", opts.Open, opts.Close)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	c := &Calendar{
		location: opts.Location,
		open:     time.Duration(opts.Open) * time.Minute,
		close:    time.Duration(opts.Close) * time.Minute,
		holidays: make(map[string]bool, len(opts.Holidays)),
		ignore:   opts.IgnoreHours,
		now:      opts.Clock,
	}
	for _, h := range opts.Holidays {
		d, err := time.ParseInLocation("2006-01-02", h, opts.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.AddHoliday(d)
	}
	return c, nil
}

// AddHoliday marks the date of t as a holiday.
func (c *Calendar) AddHoliday(t time.Time) {
	c.holidays[t.In(c.location).Format("2006-01-02")] = true
}

// IsHoliday reports whether the date of t is a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[t.In(c.location).Format("2006-01-02")]
}

// Location returns the calendar time zone.
func (c *Calendar) Location() *time.Location {
	return c.location
}

// Now returns the current time in the calendar zone.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.location)
}

// StatusAt classifies t, ignoring the IgnoreHours override.
func (c *Calendar) StatusAt(t time.Time) models.MarketStatus {
	t = t.In(c.location)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return models.MarketWeekend
	}
	if c.IsHoliday(t) {
		return models.MarketHoliday
	}

	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location)
	offset := t.Sub(midnight)
	if offset >= c.open && offset <= c.close {
		return models.MarketOpen
	}
	return models.MarketClosed
}

// Status classifies the current time.
func (c *Calendar) Status() models.MarketStatus {
	return c.StatusAt(c.now())
}

// IsOpenAt reports whether ticks should run at t.
func (c *Calendar) IsOpenAt(t time.Time) bool {
	return c.ignore || c.StatusAt(t) == models.MarketOpen
}

// IsOpen reports whether ticks should run now.
func (c *Calendar) IsOpen() bool {
	return c.IsOpenAt(c.now())
}

// Ignoring reports whether the gate is disabled.
func (c *Calendar) Ignoring() bool {
	return c.ignore
}

// NextOpen returns the next session open strictly after t, skipping weekends
// and holidays. Used for status display.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	t = t.In(c.location)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location)
	for i := 0; i < 30; i++ {
		candidate := day.AddDate(0, 0, i).Add(c.open)
		if !candidate.After(t) {
			continue
		}
		if wd := candidate.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if c.IsHoliday(candidate) {
			continue
		}
		return candidate
	}
	return day.AddDate(0, 0, 30).Add(c.open)
}
