package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whsync/internal/api"
	"whsync/internal/config"
	"whsync/internal/device"
	"whsync/internal/state"
	"whsync/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const refreshTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the device and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port for the HTTP API (overrides API_PORT)")
}

func runServe(cmd *cobra.Command) error {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("config-dir"); dir != "" {
		settings.ConfigDir = dir
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		settings.APIPort = port
	}

	logger.Info("Starting capability sync service",
		zap.String("device_url", settings.DeviceURL),
		zap.Duration("poll_interval", settings.PollInterval),
		zap.Bool("periodic_updates", settings.RunPeriodicUpdates))

	registry, err := config.NewLoader(settings.ConfigDir, logger).LoadCapabilities()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// Connect to the device bridge
	client := device.NewClient(settings.DeviceURL, settings.DeviceToken, logger)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to device bridge: %w", err)
	}
	defer client.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := state.NewManager(ctx, state.Config{
		Device:       client,
		Registry:     registry,
		Events:       telemetry.Multi{telemetry.NewZapLogger(logger), metrics},
		Logger:       logger.Named("state"),
		PollInterval: settings.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create state manager: %w", err)
	}
	defer manager.Close()

	if !manager.IsWhsVersionSupported(ctx) {
		logger.Warn("Device Health Services version is not supported, capability changes may not apply")
	}

	// Device-side changes trigger an immediate reconciliation
	sub := client.SubscribeChanges(func() {
		refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if err := manager.ForceUpdateState(refreshCtx); err != nil {
			logger.Debug("Change-triggered refresh skipped", zap.Error(err))
		}
	})
	defer sub.Unsubscribe()

	manager.SetRunPeriodicUpdates(settings.RunPeriodicUpdates)

	server := api.NewServer(manager, reg, logger, settings.APIAddr())
	if err := server.Start(); err != nil {
		return err
	}

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	return nil
}
