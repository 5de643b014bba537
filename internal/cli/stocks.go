package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/models"
)

func addStockCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAddCmd(app))
	rootCmd.AddCommand(newRemoveCmd(app))
	rootCmd.AddCommand(newUpdateCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
}

// limitFlags returns the --upper/--lower values that were actually set.
func limitFlags(cmd *cobra.Command) (upper, lower *float64) {
	if cmd.Flags().Changed("upper") {
		v, _ := cmd.Flags().GetFloat64("upper")
		upper = &v
	}
	if cmd.Flags().Changed("lower") {
		v, _ := cmd.Flags().GetFloat64("lower")
		lower = &v
	}
	return upper, lower
}

func newAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add SYMBOL",
		Short: "Track a stock",
		Long:  "Add a stock with optional upper and lower limits. Both limits start armed.",
		Example: `  nse-monitor add RELIANCE --upper 3000 --lower 2500
  nse-monitor add TCS --upper 4200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			upper, lower := limitFlags(cmd)
			symbol := models.NormalizeSymbol(args[0])

			if err := app.Store.Add(symbol, upper, lower); err != nil {
				output.Error("Could not add %s: %v", args[0], err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "added": true})
			}
			output.Success("Added %s to monitoring", symbol)
			return nil
		},
	}
	cmd.Flags().Float64("upper", 0, "upper limit")
	cmd.Flags().Float64("lower", 0, "lower limit")
	return cmd
}

func newRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove SYMBOL",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a stock",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := models.NormalizeSymbol(args[0])

			if !app.Store.Remove(symbol) {
				output.Warning("%s not found in monitoring list", symbol)
				return apperrors.Wrapf(apperrors.ErrSymbolNotFound, "%s", symbol)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "removed": true})
			}
			output.Success("Removed %s from monitoring", symbol)
			return nil
		},
	}
}

func newUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update SYMBOL",
		Short: "Change the limits of a tracked stock",
		Long: `Change one or both limits of a tracked stock. Limits that are not given
keep their current value. The armed state of each limit is unchanged.`,
		Example: `  nse-monitor update RELIANCE --upper 3100`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			upper, lower := limitFlags(cmd)
			symbol := models.NormalizeSymbol(args[0])

			if err := app.Store.Update(symbol, upper, lower); err != nil {
				if apperrors.Is(err, apperrors.ErrSymbolNotFound) {
					output.Error("%s not found. Add it first with 'nse-monitor add %s'", symbol, symbol)
				} else {
					output.Error("Could not update %s: %v", symbol, err)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "updated": true})
			}
			output.Success("Updated thresholds for %s", symbol)
			return nil
		},
	}
	cmd.Flags().Float64("upper", 0, "new upper limit")
	cmd.Flags().Float64("lower", 0, "new lower limit")
	return cmd
}

type statusRow struct {
	Symbol       string   `json:"symbol"`
	CurrentPrice *float64 `json:"current_price"`
	UpperLimit   *float64 `json:"upper_limit"`
	LowerLimit   *float64 `json:"lower_limit"`
	UpperArmed   bool     `json:"upper_armed"`
	LowerArmed   bool     `json:"lower_armed"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked stocks with live prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd, app)
		},
	}
}

func showStatus(cmd *cobra.Command, app *App) error {
	output := NewOutput(cmd)
	records := app.Store.All()

	rows := make([]statusRow, 0, len(records))
	for _, rec := range records {
		row := statusRow{
			Symbol:     rec.Symbol,
			UpperLimit: rec.UpperLimit,
			LowerLimit: rec.LowerLimit,
			UpperArmed: rec.UpperArmed,
			LowerArmed: rec.LowerArmed,
		}
		if price, ok := app.Prices.GetPrice(cmd.Context(), rec.Symbol); ok {
			row.CurrentPrice = &price
		}
		rows = append(rows, row)
	}

	if output.IsJSON() {
		return output.JSON(rows)
	}

	output.Bold("\n=== STOCK MONITORING STATUS ===")
	if len(rows) == 0 {
		output.Println("No stocks configured")
		return nil
	}
	for _, row := range rows {
		output.Printf("\nSymbol: %s\n", row.Symbol)
		output.Printf("Current Price: %s\n", formatPrice(row.CurrentPrice, "N/A"))
		output.Printf("Upper Limit: %s\n", formatPrice(row.UpperLimit, "Not set"))
		output.Printf("Lower Limit: %s\n", formatPrice(row.LowerLimit, "Not set"))
	}
	return nil
}

type watchlistFile struct {
	Watchlist []watchlistEntry `yaml:"watchlist"`
}

type watchlistEntry struct {
	Symbol     string   `yaml:"symbol"`
	UpperLimit *float64 `yaml:"upper_limit"`
	LowerLimit *float64 `yaml:"lower_limit"`
}

type importResult struct {
	Imported []string          `json:"imported"`
	Skipped  map[string]string `json:"skipped"`
}

func newImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Bulk-add stocks from a YAML watchlist",
		Long: `Add every entry of a YAML watchlist. Entries that fail validation are
reported and skipped.

  watchlist:
    - symbol: RELIANCE
      upper_limit: 3000
      lower_limit: 2500
    - symbol: TCS
      upper_limit: 4200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading watchlist: %w", err)
			}
			var file watchlistFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parsing watchlist %s: %w", args[0], err)
			}

			result := importResult{Imported: []string{}, Skipped: map[string]string{}}
			for i, entry := range file.Watchlist {
				if err := app.Store.Add(entry.Symbol, entry.UpperLimit, entry.LowerLimit); err != nil {
					key := models.NormalizeSymbol(entry.Symbol)
					if key == "" {
						key = fmt.Sprintf("#%d", i+1)
					}
					result.Skipped[key] = err.Error()
					continue
				}
				result.Imported = append(result.Imported, models.NormalizeSymbol(entry.Symbol))
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			for key, reason := range result.Skipped {
				output.Warning("Skipped %s: %s", key, reason)
			}
			output.Success("Imported %d of %d stocks", len(result.Imported), len(file.Watchlist))
			return nil
		},
	}
}
