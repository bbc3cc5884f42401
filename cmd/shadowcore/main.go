// Shadow Core - Device Shadow Synchronization Engine
//
// This is the main entry point for the Shadow Core service. Shadow Core
// maintains a cloud-style shadow document for each configured thing:
//   - {reported, desired} state pairs synchronized over MQTT
//   - Ordered per-thing event processing with token correlation
//   - REST and WebSocket access to the merged document
//   - Optional state history recording to InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/tmarren/shadow-core/migrations"

	"github.com/tmarren/shadow-core/internal/api"
	"github.com/tmarren/shadow-core/internal/history"
	"github.com/tmarren/shadow-core/internal/infrastructure/config"
	"github.com/tmarren/shadow-core/internal/infrastructure/database"
	"github.com/tmarren/shadow-core/internal/infrastructure/influxdb"
	"github.com/tmarren/shadow-core/internal/infrastructure/logging"
	"github.com/tmarren/shadow-core/internal/infrastructure/mqtt"
	"github.com/tmarren/shadow-core/internal/shadow"
	"github.com/tmarren/shadow-core/internal/shadow/shadowmqtt"
	"github.com/tmarren/shadow-core/internal/thing"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
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

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Shadow Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Seed the thing registry from configuration
	thingRepo := thing.NewSQLiteRepository(db.DB)
	if seedErr := thing.Seed(ctx, thingRepo, cfg.Things); seedErr != nil {
		return fmt.Errorf("seeding thing registry: %w", seedErr)
	}
	log.Info("thing registry initialised", "configured", len(cfg.Things))

	// Connect to MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Bridge shadow topics onto per-thing event streams
	conn := shadowmqtt.New(mqttClient, shadowmqtt.Options{
		QoS:         byte(cfg.MQTT.QoS),
		EventBuffer: cfg.Shadow.EventBuffer,
		Logger:      log,
	})
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing shadow transport", "error", closeErr)
		}
	}()

	// Build the device fleet from the registry
	fleet := shadow.NewFleet()
	defer fleet.Close()

	things, err := thingRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing things: %w", err)
	}
	for _, t := range things {
		dev, devErr := shadow.NewDevice(shadow.Identity{
			ThingID: t.ID,
			Name:    t.Name,
			Address: t.Address,
		}, conn, shadow.Options{
			UpdateTimeout:   cfg.UpdateTimeout(),
			SnapshotTimeout: cfg.SnapshotTimeout(),
			Logger:          log,
		})
		if devErr != nil {
			return fmt.Errorf("creating shadow device %q: %w", t.ID, devErr)
		}
		fleet.Add(dev)
	}
	log.Info("shadow fleet initialised", "devices", fleet.Len())

	// Snapshot answers published while the broker link was down are gone;
	// re-run the get-shadow handshake on every reconnect.
	conn.SetOnReconnect(func() {
		log.Info("MQTT reconnected, resynchronizing shadows")
		fleet.ResyncAll()
	})

	// Connect to InfluxDB and start state history recording (optional)
	var influxClient *influxdb.Client
	var recorder *history.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder = history.NewRecorder(influxClient, log)
		defer recorder.Close()
		for _, dev := range fleet.All() {
			recorder.Track(dev)
		}
		log.Info("state history recording started", "devices", fleet.Len())
	} else {
		log.Info("InfluxDB disabled, state history recording off")
	}

	// Start the API server (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Things:  thingRepo,
			Fleet:   fleet,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started",
			"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		)
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. State history recorder, then InfluxDB (if enabled)
	// 3. Device fleet
	// 4. Shadow transport, then MQTT
	// 5. Database

	log.Info("Shadow Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHADOWCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHADOWCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
