// SOMA bridge - discovery and connection for SOMA Smart Shades blind controllers.
//
// The bridge scans for "RISE…" blind controllers over Bluetooth LE, connects
// each accepted device exactly once and hands it to the configured outputs:
//   - MQTT with Home Assistant discovery
//   - A read-only dashboard (HTTP + WebSocket)
//   - An optional SQLite sighting history and InfluxDB telemetry
//
// Exit codes: 0 clean shutdown, 1 failure, 2 nothing to do (no MQTT URL and
// no dashboard port), 3 no devices found before the scan timeout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/api"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/ble"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/bridges/hass"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/discovery"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/dispatch"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/database"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/influxdb"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/logging"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/shade"
	"github.com/andersonshatch/soma-btle-blind-controller/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const appName = "somabridge"

// Process exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitNoOutputs = 2
	exitNoDevices = 3
)

// readPassword reads the MQTT password when --mqtt-password-prompt is given.
var readPassword = terminalPassword

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes the bridge and maps the outcome to an exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	err := serve(ctx, args, stderr)
	code := exitCode(err)
	if code != exitOK {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, config.ErrNoOutputs):
		return exitNoOutputs
	case errors.Is(err, discovery.ErrNoDevicesFound):
		return exitNoDevices
	default:
		return exitFailure
	}
}

// serve wires every component, runs discovery and then waits for ctx.
// Deferred cleanup runs in reverse order of construction.
func serve(ctx context.Context, args []string, stderr io.Writer) error { //nolint:gocognit,gocyclo // linear startup sequence
	opts, err := config.ParseArgs(appName, args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Prompt only once the config is known to have something to do.
	if opts.PasswordPrompt {
		password, promptErr := readPassword(stderr)
		if promptErr != nil {
			return fmt.Errorf("reading MQTT password: %w", promptErr)
		}
		opts.SetPassword(password)
		cfg.MQTT.Password = password
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting SOMA bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	logScanPlan(log, cfg)

	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing shades", "error", closeErr)
		}
	}()

	checks := make(map[string]api.HealthChecker)
	var bindings []dispatch.Binding

	// Sighting history (optional)
	var db *database.DB
	var history *device.SQLiteRepository
	if cfg.Database.Enabled {
		db, err = database.OpenAndMigrate(ctx, database.FromConfig(cfg.Database, migrations.FS))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", db.Path())

		history = device.NewSQLiteRepository(db.DB)
		bindings = append(bindings, device.NewHistoryBinding(history))
		checks["database"] = db
	}

	// Discovery telemetry (optional)
	var telemetry discovery.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, connectErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connectErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connectErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		t := influxTelemetry{client: influxClient}
		telemetry = t
		defer registry.Watch(t.recordEvent)()
		checks["influxdb"] = influxClient
	}

	// MQTT publisher (optional)
	if cfg.MQTT.URL != "" {
		binder, binderErr := hass.NewBinder(hass.BinderOptions{
			Config:  cfg.MQTT,
			Source:  registry,
			Version: version,
			Logger:  log.With("component", "mqtt"),
		})
		if binderErr != nil {
			return fmt.Errorf("configuring MQTT: %w", binderErr)
		}
		defer func() {
			if closeErr := binder.Close(); closeErr != nil {
				log.Error("error closing MQTT sessions", "error", closeErr)
			}
		}()
		bindings = append(bindings, binder)
	}

	dispatcher := dispatch.New(bindings...)
	dispatcher.SetLogger(log.With("component", "dispatch"))
	defer dispatcher.Close()
	log.Info("outputs configured", "bindings", strings.Join(dispatcher.Bindings(), ","), "dashboard_port", cfg.Dashboard.Port)

	adapter := ble.NewBlueZ(cfg.Bluetooth)
	adapter.SetLogger(log.With("component", "bluetooth"))

	orchestrator, err := discovery.New(discovery.Options{
		Adapter:       adapter,
		Filter:        discovery.NewFilter(cfg.Discovery.IDs, cfg.Discovery.IgnoreIDs),
		Target:        scanTarget(cfg),
		Registry:      registry,
		NewController: newShadeFactory(adapter, registry, cfg.Shade, log),
		Dispatcher:    dispatcher,
		Telemetry:     telemetry,
		Logger:        log.With("component", "discovery"),
		EventBuffer:   cfg.Bluetooth.EventBuffer,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	// Dashboard (optional)
	if cfg.Dashboard.Port > 0 {
		deps := api.Deps{
			Config:   cfg.Dashboard,
			WS:       cfg.WebSocket,
			Logger:   log.With("component", "dashboard"),
			Registry: registry,
			Scan:     orchestrator,
			Checks:   checks,
			Version:  version,
		}
		if history != nil {
			deps.History = history
			deps.DB = db
		}
		server, serverErr := api.New(deps)
		if serverErr != nil {
			return fmt.Errorf("creating dashboard: %w", serverErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting dashboard: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing dashboard", "error", closeErr)
			}
		}()
	}

	if err := orchestrator.Run(ctx); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if ctx.Err() == nil {
		log.Info("discovery complete, waiting for shutdown signal", "devices", registry.Count())
		<-ctx.Done()
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func scanTarget(cfg *config.Config) discovery.ScanTarget {
	return discovery.NewScanTarget(
		discovery.NewIDSet(cfg.Discovery.IDs),
		cfg.Discovery.ExpectedDevices,
		cfg.DiscoveryTimeout(),
	)
}

// logScanPlan tells the user when scanning will stop.
func logScanPlan(log *logging.Logger, cfg *config.Config) {
	target := scanTarget(cfg)
	switch target.Kind {
	case discovery.TargetExplicit:
		log.Info("scanning for listed devices", "plan", target.Describe())
	case discovery.TargetCount:
		log.Info(fmt.Sprintf("no device names supplied, will stop scanning after %d device(s) connect", target.Count))
	default:
		log.Info(fmt.Sprintf("no device names supplied, will stop scanning after %d seconds", cfg.Discovery.Timeout))
	}
	if len(cfg.Discovery.IgnoreIDs) > 0 {
		log.Info("ignoring devices", "ids", discovery.NewIDSet(cfg.Discovery.IgnoreIDs).String())
	}
}

// newShadeFactory builds one Shade per accepted device and reports its
// first established link back to the registry.
func newShadeFactory(conn shade.Connector, registry *device.Registry, cfg config.ShadeConfig, log *logging.Logger) discovery.ControllerFactory {
	return func(id device.Identity, p ble.Peripheral) device.Controller {
		shadeLog := log.With("component", "shade", "device", id.String())
		s, err := shade.New(shade.Options{
			ID:             id.Value,
			Peripheral:     p,
			Connector:      conn,
			Logger:         shadeLog,
			MaxAttempts:    cfg.MaxAttempts,
			RetryDelay:     time.Duration(cfg.RetryDelay) * time.Second,
			ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		})
		if err != nil {
			shadeLog.Error("creating shade", "error", err)
			return nil
		}

		s.OnStateChange(func(state shade.State) {
			if state != shade.StateConnected {
				return
			}
			if _, err := registry.MarkConnected(id); err != nil {
				shadeLog.Warn("recording connection", "error", err)
			}
		})
		return s
	}
}

// influxTelemetry writes discovery measurements to InfluxDB.
type influxTelemetry struct {
	client *influxdb.Client
}

func (t influxTelemetry) RecordAdvertisement(adv ble.Advertisement, id device.Identity, decision discovery.Decision) {
	t.client.WriteAdvertisement(influxdb.Advertisement{
		ID:       id.Value,
		Kind:     string(id.Kind),
		Name:     adv.LocalName,
		Address:  adv.Address,
		RSSI:     adv.RSSI,
		Decision: decision.String(),
	})
}

func (t influxTelemetry) RecordScanStopped(mode discovery.TargetKind, reason discovery.StopReason, registered int, elapsed time.Duration) {
	t.client.WriteScanSummary(influxdb.ScanSummary{
		Mode:       mode.String(),
		Reason:     string(reason),
		Registered: registered,
		Elapsed:    elapsed,
	})
}

// recordEvent writes every connection state transition.
func (t influxTelemetry) recordEvent(ev device.Event) {
	t.client.WriteConnectionState(ev.Device.ID.Value, string(ev.Device.ID.Kind), string(ev.Device.State))
}

// terminalPassword prompts on out and reads a password from stdin without echo.
func terminalPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(out, "MQTT password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(password), nil
}
