// HomePulse Core - Polling and Update Coordination Hub
//
// This is the main entry point for the HomePulse Core application.
// HomePulse keeps smart-home data fresh without hammering devices:
//   - One coordinator per data source, at most one fetch in flight
//   - Debounced manual refreshes collapse request bursts
//   - Entities fan out from shared payloads over MQTT
//   - Refresh history in SQLite, refresh metrics in InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nwalden/homepulse-core/migrations"

	"github.com/nwalden/homepulse-core/internal/coordinator"
	"github.com/nwalden/homepulse-core/internal/entity"
	"github.com/nwalden/homepulse-core/internal/history"
	"github.com/nwalden/homepulse-core/internal/infrastructure/config"
	"github.com/nwalden/homepulse-core/internal/infrastructure/database"
	"github.com/nwalden/homepulse-core/internal/infrastructure/influxdb"
	"github.com/nwalden/homepulse-core/internal/infrastructure/logging"
	"github.com/nwalden/homepulse-core/internal/infrastructure/mqtt"
	"github.com/nwalden/homepulse-core/internal/source"
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
	log.Info("starting HomePulse Core",
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

	historyRepo := history.NewSQLiteRepository(db.DB)

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

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build coordinators and their sources
	var teardowns []func()
	defer func() {
		// Coordinators shut down before the deferred transport closes run.
		for i := len(teardowns) - 1; i >= 0; i-- {
			teardowns[i]()
		}
	}()

	for _, src := range cfg.Sources {
		teardown, err := startSource(ctx, src, sourceDeps{
			mqtt:    mqttClient,
			influx:  influxClient,
			history: historyRepo,
			qos:     byte(cfg.MQTT.QoS),
			log:     log,
		})
		if err != nil {
			return fmt.Errorf("starting source %s: %w", src.ID, err)
		}
		teardowns = append(teardowns, teardown)
	}
	log.Info("sources started", "count", len(cfg.Sources))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Source teardowns (coordinators, subscriptions, sensors)
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("HomePulse Core stopped")
	return nil
}

// sourceDeps bundles the shared infrastructure one source wires into.
type sourceDeps struct {
	mqtt    *mqtt.Client
	influx  *influxdb.Client
	history history.Repository
	qos     byte
	log     *logging.Logger
}

// startSource builds the coordinator, transport source, history recorder,
// metrics listener and sensor entities for one configured data source.
//
// The returned teardown detaches everything in dependency order. A failed
// initial poll is logged but does not abort startup: the coordinator stays
// scheduled and recovers on a later interval.
func startSource(ctx context.Context, src config.SourceConfig, deps sourceDeps) (func(), error) {
	var (
		pollSrc *source.PollSource
		pushSrc *source.PushSource
	)

	update, err := buildUpdateFunc(src, deps, &pollSrc)
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.New(coordinator.Config[map[string]any]{
		Name:                    src.ID,
		Interval:                src.Interval(),
		Update:                  update,
		Logger:                  deps.log,
		FetchTimeout:            src.FetchTimeout(),
		RequestRefreshCooldown:  src.DebounceCooldown(),
		RequestRefreshImmediate: src.Immediate(),
		OnAuthFailed: func(err error) {
			deps.log.Error("source requires re-authentication",
				"source", src.ID,
				"error", err,
			)
		},
	})
	if err != nil {
		if pollSrc != nil {
			_ = pollSrc.Close()
		}
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}

	if src.Mode == config.SourceModePush {
		pushSrc = source.NewPushSource(deps.mqtt, src.ID, deps.qos, coord)
		if err := pushSrc.Start(); err != nil {
			coord.Shutdown()
			return nil, err
		}
	}

	// History: every refresh outcome becomes a row.
	recorder := history.NewRecorder(deps.history, coord, deps.log)
	coord.AddListener(recorder.Record, nil)

	// Metrics: ship refresh outcomes to InfluxDB when enabled.
	if deps.influx != nil {
		influx := deps.influx
		coord.AddListener(func() {
			snap := coord.Snapshot()
			influx.WriteRefreshPoint(snap.Source, snap.Success, snap.Duration, snap.FailureStreak)
		}, nil)
	}

	// Entities: one sensor per configured payload key. Numeric readings are
	// mirrored into InfluxDB when it is enabled.
	var sensorMetrics entity.Metrics
	if deps.influx != nil {
		sensorMetrics = deps.influx
	}
	sensors := make([]*entity.Sensor, 0, len(src.Entities))
	for _, e := range src.Entities {
		sensor := entity.NewSensor(entity.SensorConfig{
			ID:        e.ID,
			Key:       e.Key,
			Source:    coord,
			Publisher: deps.mqtt,
			Grace:     src.AvailabilityGrace(),
			Metrics:   sensorMetrics,
			Logger:    deps.log,
		})
		sensor.Start()
		sensors = append(sensors, sensor)
	}

	// Poll sources fetch once during setup so entities start populated.
	// Failure is logged, not fatal: the interval timer retries.
	if src.Mode == config.SourceModePoll {
		refreshCtx, cancel := context.WithTimeout(ctx, src.FetchTimeout())
		if err := coord.FirstRefresh(refreshCtx); err != nil {
			deps.log.Warn("initial refresh failed, source stays scheduled",
				"source", src.ID,
				"error", err,
			)
		}
		cancel()
	}

	deps.log.Info("source started",
		"source", src.ID,
		"mode", src.Mode,
		"interval", src.Interval(),
		"entities", len(sensors),
	)

	return func() {
		coord.Shutdown()
		for _, sensor := range sensors {
			sensor.Close()
		}
		if pollSrc != nil {
			if err := pollSrc.Close(); err != nil {
				deps.log.Error("error closing poll source", "source", src.ID, "error", err)
			}
		}
		if pushSrc != nil {
			if err := pushSrc.Close(); err != nil {
				deps.log.Error("error closing push source", "source", src.ID, "error", err)
			}
		}
	}, nil
}

// buildUpdateFunc returns the coordinator update function for a source.
// Poll sources get a live MQTT round trip; push sources never poll, so
// their update function only reports misuse.
func buildUpdateFunc(src config.SourceConfig, deps sourceDeps, pollSrc **source.PollSource) (coordinator.UpdateFunc[map[string]any], error) {
	switch src.Mode {
	case config.SourceModePoll:
		ps := source.NewPollSource(deps.mqtt, src.ID, deps.qos)
		if err := ps.Start(); err != nil {
			return nil, err
		}
		*pollSrc = ps
		return ps.UpdateFunc(), nil

	case config.SourceModePush:
		return func(context.Context) (map[string]any, error) {
			return nil, coordinator.NewUpdateFailed(
				fmt.Sprintf("source %s is push-only and cannot be polled", src.ID), nil)
		}, nil

	default:
		return nil, fmt.Errorf("unknown source mode %q", src.Mode)
	}
}

// getConfigPath returns the configuration file path.
// Uses HOMEPULSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEPULSE_CONFIG"); path != "" {
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
