package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"nse-monitor/internal/models"
)

// ConsoleNotifier prints an alert banner to a terminal.
type ConsoleNotifier struct {
	out io.Writer
	mu  sync.Mutex

	upColor   *color.Color
	downColor *color.Color
}

// NewConsoleNotifier writes banners to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{
		out:       out,
		upColor:   color.New(color.FgGreen, color.Bold),
		downColor: color.New(color.FgRed, color.Bold),
	}
}

// Name implements NotificationChannel.
func (c *ConsoleNotifier) Name() string {
	return "console"
}

// IsEnabled implements NotificationChannel.
func (c *ConsoleNotifier) IsEnabled() bool {
	return c.out != nil
}

// Send prints the banner.
func (c *ConsoleNotifier) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	title := c.upColor
	if n.Alert.Kind == models.AlertLower {
		title = c.downColor
	}

	rule := strings.Repeat("=", 50)
	fmt.Fprintln(c.out, rule)
	title.Fprintln(c.out, n.Title)
	fmt.Fprintln(c.out, n.Message)
	fmt.Fprintln(c.out, rule)
	return nil
}
