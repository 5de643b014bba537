package cli

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/models"
)

var (
	errInvalidNumber = errors.New("invalid number")
	errEndOfInput    = errors.New("end of input")
)

func newInteractiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Menu-driven mode (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, app)
		},
	}
}

type prompter struct {
	scanner *bufio.Scanner
	output  *Output
}

// ask prints label and returns the trimmed reply. ok is false at end of input.
func (p *prompter) ask(label string) (string, bool) {
	p.output.Printf("%s", label)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// askLimit reads an optional number; blank means no value.
func (p *prompter) askLimit(label string) (*float64, bool, error) {
	reply, ok := p.ask(label)
	if !ok || reply == "" {
		return nil, ok, nil
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return nil, true, errInvalidNumber
	}
	return &v, true, nil
}

func runInteractive(cmd *cobra.Command, app *App) error {
	output := NewOutput(cmd)
	p := &prompter{scanner: bufio.NewScanner(cmd.InOrStdin()), output: output}
	ctx := cmd.Context()

	output.Bold("=== NSE STOCK MONITOR - INTERACTIVE MODE ===")
	for {
		if ctx.Err() != nil {
			output.Println("\nExiting...")
			return nil
		}

		output.Println("\nOptions:")
		output.Println("1. Add stock")
		output.Println("2. Remove stock")
		output.Println("3. Update thresholds")
		output.Println("4. Show status")
		output.Println("5. Start monitoring")
		output.Println("6. Exit")

		choice, ok := p.ask("Enter your choice (1-6): ")
		if !ok {
			output.Println("\nExiting...")
			return nil
		}

		var err error
		switch choice {
		case "1":
			err = menuAdd(p, app)
		case "2":
			menuRemove(p, app)
		case "3":
			err = menuUpdate(p, app)
		case "4":
			err = showStatus(cmd, app)
		case "5":
			err = menuMonitor(ctx, p, app)
		case "6":
			output.Println("Goodbye!")
			return nil
		default:
			output.Warning("Invalid choice. Please try again.")
			continue
		}

		if errors.Is(err, errInvalidNumber) {
			output.Error("Invalid input. Please enter a valid number.")
		} else if err != nil && !errors.Is(err, errEndOfInput) {
			output.Error("%v", err)
		}
	}
}

func readSymbolAndLimits(p *prompter, symbolLabel, upperLabel, lowerLabel string) (string, *float64, *float64, error) {
	symbol, ok := p.ask(symbolLabel)
	if !ok {
		return "", nil, nil, errEndOfInput
	}
	upper, ok, err := p.askLimit(upperLabel)
	if err != nil || !ok {
		return "", nil, nil, firstErr(err, errEndOfInput)
	}
	lower, ok, err := p.askLimit(lowerLabel)
	if err != nil || !ok {
		return "", nil, nil, firstErr(err, errEndOfInput)
	}
	return symbol, upper, lower, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func menuAdd(p *prompter, app *App) error {
	symbol, upper, lower, err := readSymbolAndLimits(p,
		"Enter stock symbol: ",
		"Enter upper limit (press Enter to skip): ",
		"Enter lower limit (press Enter to skip): ")
	if err != nil {
		return err
	}
	if err := app.Store.Add(symbol, upper, lower); err != nil {
		return err
	}
	p.output.Success("Added %s to monitoring", models.NormalizeSymbol(symbol))
	return nil
}

func menuRemove(p *prompter, app *App) {
	symbol, ok := p.ask("Enter stock symbol to remove: ")
	if !ok {
		return
	}
	symbol = models.NormalizeSymbol(symbol)
	if app.Store.Remove(symbol) {
		p.output.Success("Removed %s from monitoring", symbol)
		return
	}
	p.output.Warning("%s not found in monitoring list", symbol)
}

func menuUpdate(p *prompter, app *App) error {
	symbol, upper, lower, err := readSymbolAndLimits(p,
		"Enter stock symbol: ",
		"Enter new upper limit (press Enter to keep current): ",
		"Enter new lower limit (press Enter to keep current): ")
	if err != nil {
		return err
	}
	symbol = models.NormalizeSymbol(symbol)
	if err := app.Store.Update(symbol, upper, lower); err != nil {
		if apperrors.Is(err, apperrors.ErrSymbolNotFound) {
			p.output.Warning("%s not found. Add it first with option 1.", symbol)
			return nil
		}
		return err
	}
	p.output.Success("Updated thresholds for %s", symbol)
	return nil
}

func menuMonitor(ctx context.Context, p *prompter, app *App) error {
	reply, ok := p.ask("Enter monitoring interval in minutes (default 5): ")
	if !ok {
		return errEndOfInput
	}
	interval := app.Config.Monitor.CLIInterval
	if reply != "" {
		minutes, err := strconv.Atoi(reply)
		if err != nil || minutes <= 0 {
			return errInvalidNumber
		}
		interval = time.Duration(minutes) * time.Minute
	}
	runMonitor(ctx, p.output, app, interval)
	return nil
}
