package market

import (
	"testing"
	"time"

	"nse-monitor/internal/models"
)

func istCalendar(t *testing.T, opts Options) *Calendar {
	t.Helper()
	base := DefaultOptions()
	if opts.Holidays != nil {
		base.Holidays = opts.Holidays
	}
	base.IgnoreHours = opts.IgnoreHours
	base.Clock = opts.Clock
	c, err := NewCalendar(base)
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return c
}

func at(c *Calendar, y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, c.Location())
}

func TestStatusAt(t *testing.T) {
	c := istCalendar(t, Options{Holidays: []string{"2024-01-26"}})

	tests := []struct {
		name string
		when time.Time
		want models.MarketStatus
	}{
		{"before open", at(c, 2024, 3, 4, 9, 14, 59), models.MarketClosed},
		{"at open", at(c, 2024, 3, 4, 9, 15, 0), models.MarketOpen},
		{"midday", at(c, 2024, 3, 4, 12, 0, 0), models.MarketOpen},
		{"at close", at(c, 2024, 3, 4, 15, 30, 0), models.MarketOpen},
		{"after close", at(c, 2024, 3, 4, 15, 30, 1), models.MarketClosed},
		{"saturday", at(c, 2024, 3, 2, 11, 0, 0), models.MarketWeekend},
		{"sunday", at(c, 2024, 3, 3, 11, 0, 0), models.MarketWeekend},
		{"holiday", at(c, 2024, 1, 26, 11, 0, 0), models.MarketHoliday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.StatusAt(tt.when); got != tt.want {
				t.Errorf("StatusAt(%v) = %s, want %s", tt.when, got, tt.want)
			}
		})
	}
}

func TestStatusConvertsTimezone(t *testing.T) {
	c := istCalendar(t, Options{})
	// 04:00 UTC on a Monday is 09:30 IST.
	utc := time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)
	if !c.IsOpenAt(utc) {
		t.Error("04:00 UTC should be inside the IST session")
	}
}

func TestIgnoreHours(t *testing.T) {
	c := istCalendar(t, Options{IgnoreHours: true})
	sunday := at(c, 2024, 3, 3, 2, 0, 0)
	if !c.IsOpenAt(sunday) {
		t.Error("ignore flag should open the gate")
	}
	if c.StatusAt(sunday) != models.MarketWeekend {
		t.Error("status should still report the real session")
	}
}

func TestClockInjection(t *testing.T) {
	fixed := time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC) // 10:30 IST
	c := istCalendar(t, Options{Clock: func() time.Time { return fixed }})
	if !c.IsOpen() || c.Status() != models.MarketOpen {
		t.Error("injected clock not used")
	}
	if c.Now().Location() != c.Location() {
		t.Error("Now should be in calendar zone")
	}
}

func TestNextOpen(t *testing.T) {
	c := istCalendar(t, Options{Holidays: []string{"2024-03-04"}})
	// Friday evening, Monday is a holiday: next open is Tuesday 09:15.
	fri := at(c, 2024, 3, 1, 16, 0, 0)
	want := at(c, 2024, 3, 5, 9, 15, 0)
	if got := c.NextOpen(fri); !got.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", got, want)
	}
}

func TestNewCalendarRejectsBadInput(t *testing.T) {
	opts := DefaultOptions()
	opts.Holidays = []string{"26/01/2024"}
	if _, err := NewCalendar(opts); err == nil {
		t.Error("bad holiday accepted")
	}

	opts = DefaultOptions()
	opts.Open, opts.Close = 600, 600
	if _, err := NewCalendar(opts); err == nil {
		t.Error("empty window accepted")
	}
}
