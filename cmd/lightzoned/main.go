package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"lightzone/internal/aggregator"
	"lightzone/internal/api"
	"lightzone/internal/clock"
	"lightzone/internal/config"
	"lightzone/internal/darkness"
	"lightzone/internal/ha"
	"lightzone/internal/mqtt"
	"lightzone/internal/zone"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	haURL := os.Getenv("HA_URL")
	haToken := os.Getenv("HA_TOKEN")
	configPath := os.Getenv("CONFIG_PATH")
	mqttURL := os.Getenv("MQTT_URL")

	if haURL == "" || haToken == "" {
		logger.Fatal("HA_URL and HA_TOKEN environment variables must be set")
	}
	if configPath == "" {
		configPath = "zones.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration",
			zap.String("path", configPath), zap.Error(err))
	}

	logger.Info("Starting lighting zone controller",
		zap.String("url", haURL),
		zap.Int("zones", len(cfg.Zones)))

	// Create HA client
	client, err := ha.NewClient(haURL, haToken, logger)
	if err != nil {
		logger.Fatal("Invalid HA_URL", zap.Error(err))
	}

	// Connect to Home Assistant
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	logger.Info("Connected to Home Assistant")

	clk := clock.NewRealClock()
	registry := zone.NewRegistry()
	sinks := []zone.StatusSink{registry}

	var publisher *mqtt.Publisher
	if mqttURL != "" {
		publisher, err = mqtt.NewPublisher(mqttURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker",
				zap.String("broker", mqttURL), zap.Error(err))
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("Publishing zone status to MQTT", zap.String("broker", mqttURL))
	}

	var sun *darkness.SunFallback
	if cfg.Location != nil {
		sun = &darkness.SunFallback{
			Latitude:  cfg.Location.Latitude,
			Longitude: cfg.Location.Longitude,
		}
	}

	// Build and start a controller per zone
	controllers := make([]*zone.Controller, 0, len(cfg.Zones))
	for _, zc := range cfg.Zones {
		eval := darkness.NewEvaluator(client, clk, zc.DarkOnly(),
			zc.LuxSensor, zc.LuxThreshold, sun,
			logger.Named("darkness").With(zap.String("zone", zc.Name)))

		ctrl, err := zone.NewController(zc, client, eval, clk, logger, sinks...)
		if err != nil {
			logger.Fatal("Failed to build zone controller",
				zap.String("zone", zc.Name), zap.Error(err))
		}
		if err := ctrl.Start(); err != nil {
			logger.Fatal("Failed to start zone controller",
				zap.String("zone", zc.Name), zap.Error(err))
		}
		controllers = append(controllers, ctrl)
	}

	// Aggregate manual-state indicator across zones
	manager := aggregator.NewManager(client, clk, cfg.AggregatorZones(), logger)
	if err := manager.Start(); err != nil {
		logger.Fatal("Failed to start aggregator", zap.Error(err))
	}

	apiServer := api.NewServer(registry, logger, apiPort(logger))
	apiServer.Start()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("All zones running. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutting down gracefully...")

	for _, ctrl := range controllers {
		ctrl.Stop()
	}
	manager.Stop()
	apiServer.Stop()
}

// apiPort reads API_PORT with a default of 8099
func apiPort(logger *zap.Logger) int {
	raw := os.Getenv("API_PORT")
	if raw == "" {
		return 8099
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		logger.Warn("Invalid API_PORT, using default", zap.String("value", raw))
		return 8099
	}
	return port
}
