// Gray Logic Chroma - cross-vendor RGB lighting daemon
//
// chromad drives every configured lighting vendor from one shader stack:
// a native SDK over its local REST endpoint, a JSON event protocol over
// websocket or MQTT, an Adalight serial strip and in-memory test devices.
// Diagnostics are served over HTTP; lifecycle events are journalled to
// SQLite and frame statistics exported to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/api"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/engine"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-chroma/internal/journal"
	"github.com/nerrad567/gray-logic-chroma/internal/pipeline"
	"github.com/nerrad567/gray-logic-chroma/internal/rules"
	"github.com/nerrad567/gray-logic-chroma/internal/statebus"
	"github.com/nerrad567/gray-logic-chroma/internal/telemetry"
	"github.com/nerrad567/gray-logic-chroma/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/chromad.yaml"

	statsReportInterval = 10 * time.Second
	pruneInterval       = 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Chroma",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	health := make(map[string]api.HealthChecker)
	failures := &failureFanout{}
	var onEvent []func(device.Event)

	// Journal (optional)
	var jr *journal.Journal
	if cfg.Database.Enabled {
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
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		jr = journal.New(db.DB, log.Component("journal"))
		failures.add(jr)
		onEvent = append(onEvent, jr.RecordEvent)
		health["database"] = db
		if cfg.Database.RetentionDays > 0 {
			go pruneJournal(ctx, jr, time.Duration(cfg.Database.RetentionDays)*24*time.Hour, log)
		}
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	var bus *statebus.Bus
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bus = statebus.New(mqttClient, log.Component("statebus"))
		if err := bus.Start(); err != nil {
			return fmt.Errorf("starting state bus: %w", err)
		}
		defer bus.Stop() //nolint:errcheck // Best effort on shutdown
	}

	// InfluxDB (optional)
	var sink *telemetry.Sink
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB, log.Component("influxdb"))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			st := influxClient.Stats()
			log.Info("InfluxDB closed",
				"queued", st.Queued,
				"dropped", st.Dropped,
				"failed_batches", st.FailedBatches,
			)
		}()
		health["influxdb"] = influxClient
		sink = telemetry.NewSink(influxClient, cfg.Engine.FrameRate)
		onEvent = append(onEvent, sink.RecordEvent)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	eng := newEngine(cfg, log, failures, sink)
	defer func() {
		log.Info("stopping engine")
		eng.Close()
	}()
	if sink != nil {
		go sink.Report(ctx, statsReportInterval, eng.Stats)
	}

	// Diagnostics API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Engine:  eng,
			Health:  health,
			Version: version,
		}
		if jr != nil {
			deps.Journal = jr
		}
		if bus != nil {
			deps.Flags = bus
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		failures.add(srv.Hub())
		onEvent = append(onEvent, srv.Hub().PublishGroupEvent)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	groups, err := buildGroups(cfg, groupDeps{
		logger:  log,
		mqtt:    mqttClient,
		onEvent: telemetry.MultiEvent(onEvent...),
	})
	if err != nil {
		return fmt.Errorf("building device groups: %w", err)
	}
	for _, g := range groups {
		eng.AddDeviceGroup(g.Name(), g)
	}

	if cfg.Rules.Path != "" {
		closeRules, err := startRules(cfg, eng, log.Component("rules"))
		if err != nil {
			return fmt.Errorf("loading special rules: %w", err)
		}
		defer closeRules()
	}

	registerScene(eng, bus)
	eng.EnableAllDeviceGroups()
	for _, name := range eng.DeviceGroupNames() {
		log.Info("device group", "name", name, "enabled", eng.IsDeviceGroupEnabled(name))
	}

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, rendering", "frame_rate", cfg.Engine.FrameRate)

	drive(ctx, eng, eng.FrameTime())

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CHROMA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CHROMA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newEngine(cfg *config.Config, log *logging.Logger, failures engine.FailureRecorder, sink *telemetry.Sink) *engine.Engine {
	opts := engine.Options{
		FrameTime: cfg.FrameTime(),
		Pipeline:  pipeline.NewCompositor(pipeline.Options{PresentConcurrency: cfg.Engine.PresentConcurrency}),
		Logger:    log.Component("engine"),
		Failures:  failures,
	}
	if sink != nil {
		opts.Stats = sink
	}
	return engine.New(opts)
}

// drive calls Update on every tick until ctx is cancelled. The engine drops
// ticks that arrive too early or while a render is in flight.
func drive(ctx context.Context, eng *engine.Engine, frameTime time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			eng.WaitForRender()
			return
		case now := <-ticker.C:
			eng.Update(now.Sub(start).Seconds())
		}
	}
}

// startRules applies the rules file once and, if configured, on every change.
func startRules(cfg *config.Config, eng *engine.Engine, log *logging.Logger) (func(), error) {
	set, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}
	eng.LoadSpecialRules(set)
	log.Info("special rules loaded", "path", cfg.Rules.Path)

	if !cfg.Rules.Watch {
		return func() {}, nil
	}
	w, err := rules.NewWatcher(rules.WatcherOptions{
		Path:     cfg.Rules.Path,
		OnChange: func(s *rules.Set) { eng.LoadSpecialRules(s) },
		Debounce: cfg.RulesDebounce(),
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := w.Close(); err != nil {
			log.Warn("closing rules watcher", "error", err)
		}
	}, nil
}

func pruneJournal(ctx context.Context, jr *journal.Journal, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		if n, err := jr.Prune(ctx, time.Now().Add(-retention)); err != nil {
			log.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			log.Info("journal pruned", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies every optional connection that was configured.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, hc := range checks {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// failureFanout hands render failures to several recorders. Recorders are
// added during startup, before the first Update.
type failureFanout struct {
	mu        sync.RWMutex
	recorders []engine.FailureRecorder
}

func (f *failureFanout) add(r engine.FailureRecorder) {
	f.mu.Lock()
	f.recorders = append(f.recorders, r)
	f.mu.Unlock()
}

func (f *failureFanout) RecordFailure(err error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, r := range f.recorders {
		r.RecordFailure(err)
	}
}
