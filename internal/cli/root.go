// Package cli provides the command-line interface for the stock monitor.
package cli

import (
	"github.com/spf13/cobra"

	"nse-monitor/internal/config"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// NewRootCmd creates the root command for the CLI. Running it without a
// subcommand starts the interactive menu.
func NewRootCmd(opts ...Option) *cobra.Command {
	app := &App{}
	for _, opt := range opts {
		opt(app)
	}

	rootCmd := &cobra.Command{
		Use:   "nse-monitor",
		Short: "NSE stock price threshold monitor",
		Long: `nse-monitor watches NSE equity prices and alerts when a stock crosses the
upper or lower limit you set for it.

Each limit fires once per crossing and re-arms when the price returns inside
the band. Alerts go to the alert log, the terminal, and any configured
webhook or Telegram chat.

Run without a command for the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit(cmd) {
				return nil
			}
			dir, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")
			return app.init(dir, debug, cmd.OutOrStdout())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, app)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nse-monitor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addStockCommands(rootCmd, app)
	addMonitorCommands(rootCmd, app)
	rootCmd.AddCommand(newInteractiveCmd(app))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

// skipInit reports whether cmd runs without loading configuration.
func skipInit(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help":
		return true
	case "path":
		return cmd.Parent() != nil && cmd.Parent().Name() == "config"
	}
	return false
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("nse-monitor v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the configuration in config.toml.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
				return
			}
			output.Println(dir)
		},
	})

	// Load already validates; reaching RunE means the file is valid.
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Store")
	output.Printf("  Backend:         %s\n", cfg.Store.Backend)
	output.Printf("  Path:            %s\n", cfg.Store.Path)
	if cfg.Store.Backend == "sqlite" {
		output.Printf("  SQLite:          %s\n", cfg.Store.SQLitePath)
	}
	output.Println()

	output.Bold("Fetcher")
	output.Printf("  Base URL:        %s\n", cfg.Fetcher.BaseURL)
	output.Printf("  Attempts:        %d\n", cfg.Fetcher.MaxAttempts)
	output.Printf("  Request Timeout: %s\n", cfg.Fetcher.RequestTimeout)
	output.Println()

	output.Bold("Monitor")
	output.Printf("  Interval:        %s (CLI %s)\n", cfg.Monitor.Interval, cfg.Monitor.CLIInterval)
	output.Printf("  Market Hours:    %s-%s %s\n", cfg.Monitor.Open, cfg.Monitor.Close, cfg.Monitor.Timezone)
	output.Printf("  Holidays:        %d\n", len(cfg.Monitor.Holidays))
	output.Printf("  Ignore Hours:    %v\n", cfg.Monitor.IgnoreMarketHours)
	output.Println()

	output.Bold("Alerts")
	output.Printf("  Log File:        %s\n", cfg.Alerts.LogFile)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Println()

	output.Bold("Server")
	output.Printf("  Listen:          %s\n", cfg.Server.Listen)
	output.Printf("  Redis:           %v (%s)\n", cfg.Redis.Enabled, cfg.Redis.Addr)
}
