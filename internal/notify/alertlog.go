package notify

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nse-monitor/internal/models"
)

// AlertLog appends a human-readable block per alert to a plain text file.
// The file is never rotated; the last lines are read back by TailAlerts.
type AlertLog struct {
	path string
	mu   sync.Mutex
}

// NewAlertLog creates an alert log writing to path.
func NewAlertLog(path string) *AlertLog {
	return &AlertLog{path: path}
}

// Name implements NotificationChannel.
func (l *AlertLog) Name() string {
	return "alert_log"
}

// IsEnabled implements NotificationChannel.
func (l *AlertLog) IsEnabled() bool {
	return l.path != ""
}

// Send appends the alert block.
func (l *AlertLog) Send(_ context.Context, n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating alert log directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening alert log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLogEntry(n)); err != nil {
		return fmt.Errorf("writing alert log: %w", err)
	}
	return nil
}

// FormatLogEntry renders the block written to the alert log. Prices use the
// plain ₹0.00 form so the file stays greppable.
func FormatLogEntry(n Notification) string {
	a := n.Alert
	emoji := "🔺"
	if a.Kind == models.AlertLower {
		emoji = "🔻"
	}
	return fmt.Sprintf("\n%s:\n%s ALERT: %s\nStock Symbol: %s\nCurrent Price: ₹%.2f\nThreshold: ₹%.2f\nTime: %s\nPrice is %s the set threshold!\n\n",
		n.Timestamp.Format("2006-01-02 15:04:05.000000"),
		emoji,
		a.Message(),
		a.Symbol,
		a.Price,
		a.Threshold,
		n.Timestamp.Format("2006-01-02 15:04:05"),
		a.Direction(),
	)
}

// TailAlerts returns the trimmed lines containing "ALERT" among the last n
// lines of the file at path. A missing file yields no lines.
func TailAlerts(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("opening alert log: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		n = 20
	}

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading alert log: %w", err)
	}

	alerts := []string{}
	for _, line := range ring {
		if strings.Contains(line, "ALERT") {
			alerts = append(alerts, strings.TrimSpace(line))
		}
	}
	return alerts, nil
}
