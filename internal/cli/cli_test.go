package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/market"
	"nse-monitor/internal/monitor"
	"nse-monitor/internal/store"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type fixedPrices map[string]float64

func (f fixedPrices) GetPrice(_ context.Context, symbol string) (float64, bool) {
	p, ok := f[symbol]
	return p, ok
}

// syncBuffer is written by the monitor goroutine while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(ctx context.Context, dir string, prices fixedPrices, stdin string, out io.Writer, args ...string) error {
	cmd := NewRootCmd(WithPriceSource(prices), WithLogOutput(io.Discard))
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	return cmd.ExecuteContext(ctx)
}

func run(t *testing.T, dir string, prices fixedPrices, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), dir, prices, "", &out, args...)
	return out.String(), err
}

func TestAddStatusRemove(t *testing.T) {
	dir := t.TempDir()
	prices := fixedPrices{"TCS": 3890.5}

	out, err := run(t, dir, prices, "add", "tcs", "--upper", "4000")
	if err != nil || !strings.Contains(out, "Added TCS to monitoring") {
		t.Fatalf("add: %v %q", err, out)
	}
	if _, err := run(t, dir, prices, "add", "INFY"); err != nil {
		t.Fatal(err)
	}

	// A new process reads the persisted thresholds.
	out, err = run(t, dir, prices, "status")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"=== STOCK MONITORING STATUS ===",
		"Symbol: TCS", "Current Price: ₹3,890.50", "Upper Limit: ₹4,000.00", "Lower Limit: Not set",
		"Symbol: INFY", "Current Price: N/A",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q in:\n%s", want, out)
		}
	}

	out, err = run(t, dir, prices, "remove", "infy")
	if err != nil || !strings.Contains(out, "Removed INFY from monitoring") {
		t.Errorf("remove: %v %q", err, out)
	}
	out, err = run(t, dir, prices, "remove", "INFY")
	if !errors.Is(err, apperrors.ErrSymbolNotFound) || !strings.Contains(out, "INFY not found in monitoring list") {
		t.Errorf("second remove: %v %q", err, out)
	}
}

func TestAddRejectsInvertedLimits(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, nil, "add", "TCS", "--upper", "100", "--lower", "200")
	if !errors.Is(err, apperrors.ErrInvertedThresholds) {
		t.Errorf("err = %v", err)
	}
	out, _ := run(t, dir, nil, "status", "--json")
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("status after rejected add = %s", out)
	}
}

func TestUpdate(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, nil, "update", "SBIN", "--upper", "800")
	if !errors.Is(err, apperrors.ErrSymbolNotFound) || !strings.Contains(out, "nse-monitor add SBIN") {
		t.Errorf("update unknown: %v %q", err, out)
	}

	run(t, dir, nil, "add", "SBIN", "--upper", "800", "--lower", "700")
	out, err = run(t, dir, nil, "update", "sbin", "--lower", "650")
	if err != nil || !strings.Contains(out, "Updated thresholds for SBIN") {
		t.Fatalf("update: %v %q", err, out)
	}

	out, _ = run(t, dir, fixedPrices{"SBIN": 765.4}, "status", "--json")
	var rows []statusRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("status json: %v\n%s", err, out)
	}
	if len(rows) != 1 || *rows[0].UpperLimit != 800 || *rows[0].LowerLimit != 650 || *rows[0].CurrentPrice != 765.4 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestImportWatchlist(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "watchlist.yaml")
	os.WriteFile(file, []byte(`watchlist:
  - symbol: reliance
    upper_limit: 3000
    lower_limit: 2500
  - symbol: TCS
    upper_limit: 4200
  - symbol: BAD
    upper_limit: 10
    lower_limit: 20
  - symbol: ""
`), 0o644)

	out, err := run(t, dir, nil, "import", file, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var res importResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("%v\n%s", err, out)
	}
	if len(res.Imported) != 2 || res.Imported[0] != "RELIANCE" || len(res.Skipped) != 2 {
		t.Errorf("result = %+v", res)
	}
	if _, ok := res.Skipped["BAD"]; !ok {
		t.Errorf("BAD not reported: %+v", res.Skipped)
	}
}

func TestSQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[store]\nbackend = \"sqlite\"\n"), 0o600)

	if _, err := run(t, dir, nil, "add", "HDFCBANK", "--lower", "1400"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "monitor.db")); err != nil {
		t.Errorf("sqlite file not created: %v", err)
	}
	out, _ := run(t, dir, nil, "status")
	if !strings.Contains(out, "Lower Limit: ₹1,400.00") {
		t.Errorf("status = %q", out)
	}
}

func TestInteractiveMenu(t *testing.T) {
	dir := t.TempDir()
	input := strings.Join([]string{
		"1", "tcs", "4000", "", // add with upper only
		"9",                 // unknown choice
		"1", "infy", "abc", // bad number
		"3", "nope", "", "", // update unknown
		"4",
		"6",
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := execute(context.Background(), dir, fixedPrices{"TCS": 3950}, input, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		"=== NSE STOCK MONITOR - INTERACTIVE MODE ===",
		"Added TCS to monitoring",
		"Invalid choice. Please try again.",
		"Invalid input. Please enter a valid number.",
		"NOPE not found",
		"Current Price: ₹3,950.00",
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(got, "Added INFY") {
		t.Error("invalid limit should not add the stock")
	}
}

func TestInteractiveEndOfInput(t *testing.T) {
	var out bytes.Buffer
	if err := execute(context.Background(), t.TempDir(), nil, "1\nTCS\n", &out, "interactive"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Exiting...") {
		t.Errorf("output = %q", out.String())
	}
}

func TestMonitorCommandAlerts(t *testing.T) {
	t.Setenv("NSE_MONITOR_IGNORE_MARKET_HOURS", "true")
	dir := t.TempDir()
	run(t, dir, nil, "add", "TCS", "--upper", "4000")
	run(t, dir, nil, "add", "WIPRO")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, dir, fixedPrices{"TCS": 4100}, "", out, "monitor", "--interval", "1h")
	}()

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "WIPRO: Unable to fetch price") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{"Monitoring 2 stocks", "TCS: ₹4,100.00", "TCS crossed UPPER threshold", "Monitoring stopped by user"} {
		if !strings.Contains(got, want) {
			t.Errorf("monitor output missing %q:\n%s", want, got)
		}
	}

	logData, err := os.ReadFile(filepath.Join(dir, "stock_alerts.log"))
	if err != nil || !strings.Contains(string(logData), "Stock Symbol: TCS") {
		t.Errorf("alert log: %v %q", err, logData)
	}
}

func TestPrintTickUsesTickSnapshot(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", false, "")
	cmd.SetOut(&out)

	cal, err := market.NewCalendar(market.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(nil, zerolog.Nop())
	st.Add("LATE", nil, nil) // added after the tick started
	app := &App{Store: st, Calendar: cal}

	printTick(NewOutput(cmd), app, monitor.TickReport{
		Started: time.Now(),
		Symbols: 2,
		Checked: []string{"GONE", "TCS"},
		Prices:  map[string]float64{"TCS": 3890.5},
	})

	got := out.String()
	for _, want := range []string{"Monitoring 2 stocks", "GONE: Unable to fetch price", "TCS: ₹3,890.50"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "LATE") {
		t.Errorf("symbol outside the tick was printed:\n%s", got)
	}
}

func TestVersionAndConfig(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, nil, "version", "--json")
	if err != nil || !strings.Contains(out, `"version": "`+Version+`"`) {
		t.Errorf("version: %v %q", err, out)
	}

	out, err = run(t, dir, nil, "config", "path")
	if err != nil || strings.TrimSpace(out) != dir {
		t.Errorf("config path: %v %q", err, out)
	}

	out, err = run(t, dir, nil, "config", "validate")
	if err != nil || !strings.Contains(out, "Configuration is valid") {
		t.Errorf("config validate: %v %q", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("template not written: %v", err)
	}

	out, err = run(t, dir, nil, "config", "show")
	if err != nil || !strings.Contains(out, "Backend:         json") {
		t.Errorf("config show: %v %q", err, out)
	}
}
