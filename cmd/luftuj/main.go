// Luftuj HRU Core - Heat Recovery Unit Control
//
// This is the main entry point for the Luftuj core service. It drives a
// single heat-recovery unit over Modbus TCP, resolves the weekly timeline
// into setpoints, and maintains the unit's Home Assistant presence over
// MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/luftuj/hru-core/migrations"

	"github.com/luftuj/hru-core/internal/api"
	"github.com/luftuj/hru-core/internal/catalog"
	"github.com/luftuj/hru-core/internal/command"
	"github.com/luftuj/hru-core/internal/discovery"
	"github.com/luftuj/hru-core/internal/hru"
	"github.com/luftuj/hru-core/internal/infrastructure/config"
	"github.com/luftuj/hru-core/internal/infrastructure/database"
	"github.com/luftuj/hru-core/internal/infrastructure/influxdb"
	"github.com/luftuj/hru-core/internal/infrastructure/logging"
	"github.com/luftuj/hru-core/internal/infrastructure/mqtt"
	"github.com/luftuj/hru-core/internal/modbus"
	"github.com/luftuj/hru-core/internal/settings"
	"github.com/luftuj/hru-core/internal/timeline"
	"github.com/luftuj/hru-core/internal/valve"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Luftuj HRU core",
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
	db, err := database.Open(ctx, database.Config{
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

	// Settings store and catalog
	store := settings.NewStore(db)

	cat, err := catalog.Load(cfg.Catalog.StrategiesDir, cfg.Catalog.UnitsDir, log.Logger)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	strategies, units := cat.Len()
	log.Info("catalog loaded", "strategies", strategies, "units", units)

	// Modbus connection pool and script interpreter
	pool := modbus.NewPool(cfg.GetRequestTimeout(), cfg.GetReconnectDelay(), log.Logger)
	defer func() {
		log.Info("closing modbus pool")
		pool.Close()
	}()

	executor := &hru.PoolExecutor{
		Pool:   pool,
		Interp: command.NewInterpreter(log.Logger),
	}
	controller := hru.NewController(cat, store, executor, log.Logger)

	tlStore := timeline.NewStore(store)

	// Connect to MQTT broker (optional). Installer-configured broker
	// settings in the settings store take precedence over the config file.
	var mqttClient *mqtt.Client
	var valves timeline.ValveDriver

	mqttCfg, err := resolveBrokerConfig(ctx, cfg.MQTT, store)
	if err != nil {
		return fmt.Errorf("resolving broker settings: %w", err)
	}
	if mqttCfg.Enabled {
		mqttClient, err = mqtt.Connect(mqttCfg, initialStatusTopic(ctx, controller))
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
			"broker", fmt.Sprintf("%s:%d", mqttCfg.Broker.Host, mqttCfg.Broker.Port),
			"client_id", mqttCfg.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		valves = valve.NewMQTTDriver(mqttClient, log.Logger)
	} else {
		log.Info("MQTT disabled")
	}

	// Timeline runner
	runner := timeline.NewRunner(tlStore, controller, valves,
		cfg.GetTickInterval(), cfg.GetKeepAliveRetry(), log.Logger)

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

	// Discovery/state publisher (requires MQTT)
	var publisher *discovery.Publisher
	if mqttClient != nil {
		publisher = discovery.NewPublisher(mqttClient, store, tlStore,
			controller, runner, discovery.Config{}, log.Logger)
		if influxClient != nil {
			publisher.SetTelemetry(influxClient)
		}

		// Re-announce everything after a broker reconnect: retained
		// documents survive, but subscriptions and availability need
		// refreshing.
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			if refreshErr := publisher.Refresh(context.Background()); refreshErr != nil {
				log.Warn("discovery refresh after reconnect failed", "error", refreshErr)
			}
		})
	}

	// Per-tick side effects: state publish and telemetry. With MQTT enabled
	// the publisher's read cycle feeds the telemetry sink; without it the
	// read cycle runs here so InfluxDB still gets per-tick values.
	runner.SetOnTick(func(state timeline.ActiveState) {
		tickCtx := context.Background()
		if publisher != nil {
			if pubErr := publisher.PublishState(tickCtx); pubErr != nil {
				log.Warn("state publish failed", "error", pubErr)
			}
		}
		if influxClient == nil {
			return
		}
		resolved, resErr := controller.ResolvedConfiguration(tickCtx)
		if resErr != nil || resolved == nil {
			return
		}
		influxClient.WriteTickState(resolved.Unit.ID, string(state.Source), state.ModeName)
		if publisher == nil {
			values, readErr := controller.ReadValues(tickCtx)
			if readErr != nil {
				log.Warn("telemetry read cycle failed", "error", readErr)
				return
			}
			influxClient.WriteReadCycle(resolved.Unit.ID, values.Value.Power, values.Value.Temperature, values.Value.Mode)
			if len(values.Registers) > 0 {
				influxClient.WriteRegisters(resolved.Unit.ID, values.Registers)
			}
		}
	})

	runner.Start(ctx)
	defer runner.Stop()

	if publisher != nil {
		publisher.Start(ctx)
		defer publisher.Stop()
	}

	// Start HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log,
			Controller:  controller,
			Runner:      runner,
			Timeline:    tlStore,
			Settings:    store,
			Version:     version,
			Connections: pool,
			OnSettingsChanged: func() {
				if publisher == nil {
					return
				}
				if refreshErr := publisher.Refresh(context.Background()); refreshErr != nil {
					log.Warn("discovery refresh after settings change failed", "error", refreshErr)
				}
			},
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
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
	// 2. Discovery publisher, timeline runner
	// 3. InfluxDB (if enabled)
	// 4. MQTT, Modbus pool
	// 5. Database

	log.Info("Luftuj HRU core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LUFTUJ_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LUFTUJ_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// resolveBrokerConfig merges installer-configured broker settings from the
// settings store over the config-file defaults. Stored settings win for
// every field they carry.
func resolveBrokerConfig(ctx context.Context, base config.MQTTConfig, store *settings.Store) (config.MQTTConfig, error) {
	stored, err := store.GetMQTT(ctx)
	if err != nil {
		return config.MQTTConfig{}, err
	}
	if stored == nil {
		return base, nil
	}

	base.Enabled = stored.Enabled
	if stored.Host != "" {
		base.Broker.Host = stored.Host
	}
	if stored.Port != 0 {
		base.Broker.Port = stored.Port
	}
	if stored.User != "" {
		base.Auth.Username = stored.User
	}
	if stored.Password != "" {
		base.Auth.Password = stored.Password
	}
	return base, nil
}

// initialStatusTopic derives the availability topic for the MQTT last-will
// from the currently configured unit. Empty when no unit is configured yet;
// the discovery publisher assigns it once a unit is selected.
func initialStatusTopic(ctx context.Context, controller *hru.Controller) string {
	resolved, err := controller.ResolvedConfiguration(ctx)
	if err != nil || resolved == nil {
		return ""
	}
	return mqtt.Topics{}.Status(discovery.Slugify(resolved.Unit.Name))
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
