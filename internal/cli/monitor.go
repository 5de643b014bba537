package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nse-monitor/internal/cache"
	"nse-monitor/internal/monitor"
	"nse-monitor/internal/notify"
	"nse-monitor/internal/nse"
	"nse-monitor/internal/resilience"
	"nse-monitor/internal/server"
	"nse-monitor/internal/stream"
)

func addMonitorCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newMonitorCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
}

func newMonitorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch tracked stocks in the foreground",
		Long: `Check every tracked stock on a fixed interval during market hours and
print alerts as limits are crossed. Press Ctrl+C to stop.`,
		Example: `  nse-monitor monitor
  nse-monitor monitor --interval 2m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				interval = app.Config.Monitor.CLIInterval
			}
			runMonitor(cmd.Context(), NewOutput(cmd), app, interval)
			return nil
		},
	}
	cmd.Flags().Duration("interval", 0, "check interval (default from monitor.cli_interval)")
	return cmd
}

// runMonitor blocks until ctx is cancelled, printing one summary per tick.
func runMonitor(ctx context.Context, output *Output, app *App, interval time.Duration) {
	output.Info("Starting NSE Stock Monitor (checking every %s)", interval)
	output.Dim("Press Ctrl+C to stop")

	mon := app.newMonitor(interval, monitor.Options{
		OnTick: func(r monitor.TickReport) { printTick(output, app, r) },
	})
	mon.Start(ctx)
	mon.Wait()

	output.Println("\nMonitoring stopped by user")
}

func printTick(output *Output, app *App, r monitor.TickReport) {
	stamp := r.Started.In(app.Calendar.Location())
	if r.Skipped {
		output.Dim("Market is closed. Current time: %s", stamp.Format("2006-01-02 15:04:05"))
		return
	}
	if r.Symbols == 0 {
		output.Println("No stocks configured for monitoring")
		return
	}

	output.Printf("\nMonitoring %d stocks at %s\n", r.Symbols, stamp.Format("15:04:05"))
	for _, sym := range r.Checked {
		if price, ok := r.Prices[sym]; ok {
			output.Printf("%s: %s\n", sym, notify.FormatCurrency(price))
		} else {
			output.Warning("%s: Unable to fetch price", sym)
		}
	}
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and WebSocket feed",
		Long: `Serve the JSON API and the /ws WebSocket feed. Monitoring is controlled
through POST /api/monitoring/start and /stop, or started immediately with
--monitor. Prices are mirrored to Redis when [redis] is enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			if listen == "" {
				listen = app.Config.Server.Listen
			}
			autoStart, _ := cmd.Flags().GetBool("monitor")
			return runServe(cmd.Context(), app, listen, autoStart)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default from server.listen)")
	cmd.Flags().Bool("monitor", false, "start monitoring immediately")
	return cmd
}

func runServe(ctx context.Context, app *App, listen string, autoStart bool) error {
	cfg := app.Config
	logger := app.Logger

	hub := stream.NewHub(cfg.Server.AllowedOrigins, logger)
	app.Notifier.AddChannel(hub)

	mon := app.newMonitor(cfg.Monitor.Interval, monitor.Options{
		PriceSinks: []monitor.PriceSink{hub},
	})
	hub.OnRefresh(mon.RefreshPrices)

	health := resilience.NewHealthRegistry(2 * time.Second)
	health.Register("monitor", resilience.StaticCheck(func() map[string]interface{} {
		last := mon.LastTick()
		return map[string]interface{}{
			"state":       mon.State(),
			"symbols":     app.Store.Len(),
			"last_tick":   last.Started,
			"last_priced": last.Priced,
			"market":      app.Calendar.Status(),
			"next_open":   app.Calendar.NextOpen(app.Calendar.Now()),
			"gate_off":    app.Calendar.Ignoring(),
		}
	}))
	health.Register("websocket", resilience.StaticCheck(func() map[string]interface{} {
		return map[string]interface{}{"clients": hub.ClientCount()}
	}))
	if f, ok := app.Prices.(*nse.Fetcher); ok {
		health.Register("upstream", resilience.StaticCheck(func() map[string]interface{} {
			return map[string]interface{}{"session_primed": f.Primed()}
		}))
	}

	var snapshots server.SnapshotReader
	if cfg.Redis.Enabled {
		client, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, continuing without price cache")
		} else {
			sink := cache.NewRedisPriceSink(client, cfg.Redis.KeyPrefix, cfg.Redis.ChannelPrefix)
			defer sink.Close()
			mon.AddPriceSink(sink)
			snapshots = sink
			health.Register("redis", resilience.PingCheck(func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}, 100*time.Millisecond))
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Publishing prices to Redis")
		}
	}

	srv := server.New(server.Deps{
		Store:     app.Store,
		Monitor:   mon,
		Gate:      app.Calendar,
		Hub:       hub,
		Health:    health,
		Snapshots: snapshots,
		AlertLog:  cfg.Alerts.LogFile,
		TailLines: cfg.Alerts.TailLines,
		Logger:    logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx, listen)
	})
	group.Go(func() error {
		if autoStart {
			mon.Start(groupCtx)
		}
		<-groupCtx.Done()
		mon.Stop()
		hub.Close()
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Stopped")
	return nil
}
