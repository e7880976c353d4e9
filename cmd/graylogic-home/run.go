package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/api"
	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/bridges/launcher"
	"github.com/nerrad567/gray-logic-home/internal/bridges/mqttbridge"
	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/home"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-home/internal/mirror"
	"github.com/nerrad567/gray-logic-home/migrations"
)

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Home",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, usedDefaults, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if usedDefaults {
		log.Warn("config file not found, using built-in defaults", "path", configPath)
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	initial, err := automation.ParseSystemState(cfg.Home.InitialState)
	if err != nil {
		return fmt.Errorf("home.initial_state: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Metrics (optional, nil recorder drops everything)
	rec, err := metrics.New(cfg.StatsD, log)
	if err != nil {
		return fmt.Errorf("creating metrics recorder: %w", err)
	}
	defer func() {
		if closeErr := rec.Close(); closeErr != nil {
			log.Warn("error closing metrics", "error", closeErr)
		}
	}()
	if rec != nil {
		log.Info("statsd metrics enabled", "address", cfg.StatsD.Address)
	}

	// MQTT carries both the bridges and the primary state mirror.
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
		log.Warn("MQTT connection lost", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttBackend := mirror.NewMQTTBackend(mqttClient, cfg.Home.MirrorRoot, mqttClient.DefaultQoS())
	backends := []mirror.Backend{mqttBackend}

	// SQLite snapshot of the mirror (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(database.ConfigFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)
		backends = append(backends, mirror.NewSQLiteBackend(db))
	}

	// InfluxDB history of the mirror (optional, failure is not fatal)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without history", "error", err)
		} else {
			defer func() {
				log.Info("closing InfluxDB")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write failed", "error", err)
			})
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
			backends = append(backends, mirror.NewInfluxBackend(influxClient))
		}
	}

	// Mirror writer outlives the orchestrator so its final writes land.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writer := mirror.NewWriter(cfg.Home.MirrorQueueSize, log.Component("mirror"), backends...)
	writer.SetMetrics(rec)
	writer.SetLastUpdated(mirror.PathLastUpdated)
	go writer.Run(writerCtx)
	defer func() {
		stopWriter()
		<-writer.Done()
	}()

	// Home automation document
	registry := automation.NewRegistry(nil)
	registry.SetLogger(log.Component("automation"))
	if loadErr := registry.LoadFile(cfg.Home.ConfigFile); loadErr != nil {
		if !errors.Is(loadErr, os.ErrNotExist) {
			return fmt.Errorf("loading home config: %w", loadErr)
		}
		log.Warn("home config not found, starting with no commands", "path", cfg.Home.ConfigFile)
	}

	// Orchestrator and capability supervisor
	var orch *home.Orchestrator
	supervisor := capability.NewSupervisor(func(ev capability.Event) {
		orch.HandleEvent(ev)
	}, log.Component("capability"))
	supervisor.SetMetrics(rec)

	orch = home.New(home.Options{
		InitialState: initial,
		InboxSize:    cfg.Home.InboxSize,
		Version:      version,
		Logger:       log.Component("home"),
		Metrics:      rec,
	}, registry, supervisor, writer)
	supervisor.SetOnChange(orch.CapabilityChanged)

	topics := mqtt.Topics{Prefix: cfg.Bridges.TopicPrefix}
	for _, kind := range enabledBridges(cfg.Bridges) {
		regErr := supervisor.Register(capability.Registration{
			Kind:    kind,
			Factory: mqttbridge.Factory(kind, mqttClient, topics, log.Component("bridge").With("kind", kind)),
		})
		if regErr != nil {
			return fmt.Errorf("registering %s bridge: %w", kind, regErr)
		}
	}

	homeCtx, stopHome := context.WithCancel(ctx)
	defer stopHome()
	go func() {
		if runErr := orch.Run(homeCtx); runErr != nil {
			log.Error("orchestrator stopped with error", "error", runErr)
		}
	}()
	defer func() {
		stopHome()
		<-orch.Done()
	}()

	// Bridge executables owned by this process (optional)
	bridgeProcs := launcher.NewGroup(cfg.Bridges.Processes, log.Component("launcher"), rec)
	if bridgeProcs.Len() > 0 {
		if startErr := bridgeProcs.Start(homeCtx); startErr != nil {
			log.Warn("some bridge processes failed to start", "error", startErr)
		}
		defer func() {
			log.Info("stopping bridge processes")
			bridgeProcs.Stop()
		}()
	}

	supervisor.InitAll(ctx)
	defer func() {
		log.Info("shutting down capability adapters")
		if shutdownErr := supervisor.ShutdownAll(); shutdownErr != nil {
			log.Error("error shutting down adapters", "error", shutdownErr)
		}
	}()

	// Remote control paths
	if watchErr := orch.WatchControl(mqttBackend); watchErr != nil {
		return fmt.Errorf("watching control paths: %w", watchErr)
	}
	if cfg.Home.ConfigPath != "" {
		if watchErr := home.WatchRemoteConfig(mqttBackend, cfg.Home.ConfigPath, registry, log.Component("automation")); watchErr != nil {
			return fmt.Errorf("watching remote config: %w", watchErr)
		}
	}

	if cfg.Home.WatchConfigFile {
		watcher := home.NewConfigWatcher(cfg.Home.ConfigFile, registry, log.Component("automation"))
		go func() {
			if watchErr := watcher.Run(homeCtx); watchErr != nil {
				log.Warn("config file watcher stopped", "error", watchErr)
			}
		}()
	}

	// REST API and WebSocket (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Security:     cfg.Security,
			Logger:       log.Component("api"),
			Home:         orch,
			Capabilities: supervisor,
			MQTT:         mqttClient,
			Processes:    bridgeProcs,
			Version:      version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(homeCtx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if healthErr := healthCheck(ctx, db, mqttClient, influxClient); healthErr != nil {
		log.Warn("initial health check failed", "error", healthErr)
	} else {
		log.Info("all services healthy")
	}

	log.Info("Gray Logic Home started",
		"state", initial,
		"bridges", len(supervisor.Kinds()),
		"api", cfg.API.Enabled,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, stopping services")
	return nil
}

// enabledBridges lists the capability kinds whose bridge is switched on,
// in AllKinds order.
func enabledBridges(cfg config.BridgesConfig) []capability.Kind {
	enabled := map[capability.Kind]bool{
		capability.Lighting:    cfg.Lighting,
		capability.Thermostat:  cfg.Thermostat,
		capability.ActivityHub: cfg.ActivityHub,
		capability.BinaryMesh:  cfg.BinaryMesh,
		capability.Camera:      cfg.Camera,
		capability.Audio:       cfg.Audio,
		capability.Presence:    cfg.Presence,
	}

	var kinds []capability.Kind
	for _, kind := range capability.AllKinds() {
		if enabled[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// healthCheck verifies the infrastructure services. Optional services
// passed as nil are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
