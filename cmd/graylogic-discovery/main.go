// Gray Logic Discovery - device discovery service
//
// This is the main entry point for the Gray Logic Discovery service. It scans
// USB dongles for ZigBee gateways, keeps an inbox of discovered devices, and
// publishes discovery results and bridge health over MQTT.
//
// Startup order: config, logging, database (with migrations), MQTT,
// InfluxDB (optional), metrics, inbox recorder, bridges, HTTP API.
// Shutdown runs the deferred closers in reverse.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-discovery/migrations"

	"github.com/nerrad567/gray-logic-discovery/internal/api"
	"github.com/nerrad567/gray-logic-discovery/internal/bridges/openwebnet"
	"github.com/nerrad567/gray-logic-discovery/internal/bridges/tahoma"
	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
	"github.com/nerrad567/gray-logic-discovery/internal/inbox"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-discovery/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Discovery",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	influxClient, err := connectInflux(ctx, cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Prometheus metrics (optional)
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics, err = telemetry.NewMetrics(cfg.Metrics.Runtime)
		if err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
	}

	// Inbox
	repo := inbox.NewSQLiteRepository(db.DB)
	recorder := inbox.NewRecorder(db.DB)
	recorder.SetLogger(log.Component("inbox"))
	if startErr := recorder.Start(); startErr != nil {
		return fmt.Errorf("starting inbox recorder: %w", startErr)
	}
	defer func() {
		log.Info("stopping inbox recorder")
		recorder.Stop()
	}()

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	// OpenWebNet dongle discovery
	sinks, observer := discoverySinks(recorder, hub, metrics, influxClient)
	owBridge, err := openwebnet.NewBridge(openwebnet.BridgeOptions{
		Config:     bridgeConfig(cfg),
		MQTTClient: mqttClient.ForBridge(),
		Sinks:      sinks,
		Observer:   observer,
		Logger:     log.Component("openwebnet"),
	})
	if err != nil {
		return fmt.Errorf("creating OpenWebNet bridge: %w", err)
	}
	if startErr := owBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting OpenWebNet bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping OpenWebNet bridge")
		owBridge.Stop()
	}()
	log.Info("OpenWebNet bridge started", "dongles", len(owBridge.Scanners()))

	// TaHoma devices (optional)
	var tahomaInfo api.TahomaInfo
	if cfg.Tahoma.Enabled {
		tBridge, tErr := tahoma.NewBridge(tahoma.BridgeOptions{
			Config:     tahomaConfig(cfg.Tahoma),
			MQTTClient: mqttClient.ForBridge(),
			Logger:     log.Component("tahoma"),
		})
		if tErr != nil {
			return fmt.Errorf("creating TaHoma bridge: %w", tErr)
		}
		if startErr := tBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting TaHoma bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping TaHoma bridge")
			tBridge.Stop()
		}()
		tahomaInfo = tBridge
		log.Info("TaHoma bridge started", "devices", len(tBridge.Devices()))
	} else {
		log.Info("TaHoma bridge disabled")
	}

	// HTTP API
	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Scanner: owBridge,
		Inbox:   repo,
		MQTT:    mqttClient,
		Checks:  checks,
		Tahoma:  tahomaInfo,
		Hub:     hub,
		Version: version,
	}
	if metrics != nil {
		deps.Metrics = metrics.Handler()
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("Gray Logic Discovery stopped")
	return nil
}

// getConfigPath returns GRAYLOGIC_CONFIG, or the default path.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects to InfluxDB when enabled. A nil client with a nil
// error means InfluxDB is disabled.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.ConnectContext(ctx, cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// discoverySinks assembles the result sinks and scan observers, leaving out
// disabled components.
func discoverySinks(recorder *inbox.Recorder, hub *api.Hub, metrics *telemetry.Metrics, influx *influxdb.Client) ([]discovery.Sink, discovery.Observer) {
	sinks := []discovery.Sink{recorder, hub}
	observers := discovery.MultiObserver{recorder, hub}

	if metrics != nil {
		sinks = append(sinks, metrics)
		observers = append(observers, metrics)
	}
	if influx != nil {
		rec := telemetry.NewInfluxRecorder(influx)
		sinks = append(sinks, rec)
		observers = append(observers, rec)
	}
	return sinks, observers
}

// bridgeConfig maps the discovery section onto the OpenWebNet bridge config.
func bridgeConfig(cfg *config.Config) openwebnet.Config {
	dongles := make([]openwebnet.DongleConfig, 0, len(cfg.Discovery.Dongles))
	for _, d := range cfg.Discovery.Dongles {
		dongles = append(dongles, openwebnet.DongleConfig{
			Name:     d.Name,
			Port:     d.Port,
			BaudRate: d.BaudRate,
			USBVID:   d.USBVID,
			USBPID:   d.USBPID,
		})
	}

	return openwebnet.Config{
		Version:         version,
		HealthInterval:  cfg.GetHealthInterval(),
		AutoScan:        cfg.Discovery.AutoScan,
		ScanInterval:    cfg.GetScanInterval(),
		IdentifyTimeout: cfg.GetIdentifyTimeout(),
		IdentifyRetries: cfg.Discovery.IdentifyRetries,
		Dongles:         dongles,
	}
}

// tahomaConfig maps the tahoma section onto the TaHoma bridge config.
func tahomaConfig(cfg config.TahomaConfig) tahoma.Config {
	devices := make([]tahoma.DeviceConfig, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, tahoma.DeviceConfig{ID: d.ID, Profile: d.Profile})
	}
	return tahoma.Config{Devices: devices}
}

// healthCheck probes every component concurrently and returns the first
// failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, c := range checks {
		g.Go(func() error {
			if err := c.HealthCheck(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
