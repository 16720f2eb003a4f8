package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/api"
	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/config"
	"github.com/VectorBarks/smart-climate-sub001/internal/diagnostics"
	"github.com/VectorBarks/smart-climate-sub001/internal/ha"
	"github.com/VectorBarks/smart-climate-sub001/internal/monitor"
	"github.com/VectorBarks/smart-climate-sub001/internal/offset"
	"github.com/VectorBarks/smart-climate-sub001/internal/sensors"
	"github.com/VectorBarks/smart-climate-sub001/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	RunE:  runService,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		fmt.Printf("%s: OK\n", flagConfig)
		fmt.Printf("  sensors:        %d\n", len(cfg.Sensors.Configured()))
		fmt.Printf("  poll interval:  %s\n", cfg.Monitor.PollInterval)
		fmt.Printf("  offset engine:  %v\n", cfg.Offset.Enabled)
		fmt.Printf("  api port:       %d\n", cfg.API.Port)
		return nil
	},
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting smartclimate",
		zap.String("version", rootCmd.Version),
		zap.String("ha_url", cfg.HomeAssistant.URL),
		zap.Bool("read_only", cfg.Monitor.ReadOnly))

	client := ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Home Assistant: %w", err)
	}
	defer client.Disconnect()

	source := sensors.NewSource(client, cfg.Sensors, logger)

	var (
		engine   *offset.Engine
		features monitor.FeatureSource
	)
	if cfg.Offset.Enabled {
		offsetCfg := cfg.Offset.Config
		if offsetCfg.Latitude == 0 && offsetCfg.Longitude == 0 {
			offsetCfg.Latitude = cfg.Location.Latitude
			offsetCfg.Longitude = cfg.Location.Longitude
		}
		if offsetCfg.Latitude == 0 && offsetCfg.Longitude == 0 {
			// Fall back to the coordinates the HA instance is configured with.
			if haCfg, err := client.GetConfig(); err != nil {
				logger.Warn("Failed to fetch instance coordinates, daylight feature disabled",
					zap.Error(err))
			} else {
				offsetCfg.Latitude = haCfg.Latitude
				offsetCfg.Longitude = haCfg.Longitude
			}
		}
		engine = offset.NewEngine(offsetCfg, nil, logger)
		features = engine
	}

	st := store.NewFileStore(cfg.Store.Path, logger)

	mon := monitor.NewMonitor(
		client,
		source,
		engine,
		features,
		st,
		climate.NewThresholdSet(cfg.Thresholds),
		monitor.Config{
			PollInterval:    cfg.Monitor.PollInterval,
			StartupTimeout:  cfg.Monitor.StartupTimeout,
			BufferHours:     cfg.Monitor.BufferHours,
			RetentionDays:   cfg.Monitor.RetentionDays,
			SaveEveryCycles: cfg.Monitor.SaveEveryCycles,
			NotifyService:   cfg.Monitor.NotifyService,
			ReadOnly:        cfg.Monitor.ReadOnly,
			ComfortMin:      cfg.Monitor.ComfortMin,
			ComfortMax:      cfg.Monitor.ComfortMax,
		},
		nil,
		logger,
	)

	registry := diagnostics.NewRegistry()
	registry.Register("monitor", mon)
	if engine != nil {
		registry.Register("offset_engine", engine)
	}

	server := api.NewServer(mon, registry, logger, cfg.API.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("API server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	cancel()
	shutdownErr := multierr.Combine(
		server.Stop(),
		mon.Stop(),
	)
	if shutdownErr != nil {
		logger.Error("Shutdown finished with errors", zap.Error(shutdownErr))
		return shutdownErr
	}
	logger.Info("Shutdown complete")
	return nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
