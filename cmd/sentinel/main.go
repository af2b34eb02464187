// Command sentinel boots the decision engine and its collaborators: the
// config/logger stack, the SQLite-backed ledger, the MQTT bus dispatcher,
// the WebSocket push loop, the periodic discovery scheduler, and the
// operator HTTP surface (spec §2, §5). Wiring shape is adapted from the
// teacher's cmd/subnetree/main.go boot sequence, trimmed to this module's
// five core components plus their HTTP/WS/bus shells.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/internal/bus"
	"github.com/coolgrid/sentinel/internal/config"
	"github.com/coolgrid/sentinel/internal/engine"
	"github.com/coolgrid/sentinel/internal/event"
	"github.com/coolgrid/sentinel/internal/httpapi"
	"github.com/coolgrid/sentinel/internal/ledger"
	"github.com/coolgrid/sentinel/internal/ws"
)

// featureWindowSize is the reference RollingWindow length N (spec §3).
const featureWindowSize = 30

// forecastHorizon is the reference forecast horizon H (spec §4.2).
const forecastHorizon = 12

// modelVersion is attached to every emitted Action's model_version field.
const modelVersion = "sentinel-ref-0.1"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file overlaying defaults and environment")
	flag.Parse()

	v, err := config.LoadViper(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load(v)

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("sentinel starting",
		zap.String("site", cfg.Site),
		zap.String("mode", cfg.Mode),
		zap.Bool("auto_enabled", cfg.AutoEnabled),
	)

	led, err := ledger.Open(context.Background(), cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}
	defer led.Close()
	logger.Info("ledger opened", zap.String("db_path", cfg.DBPath))

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		logger.Fatal("failed to load policy", zap.Error(err))
	}
	if policy.Site == "" {
		policy.Site = cfg.Site
	}

	devices, err := config.NewDeviceRegistry(cfg.DevicesPath)
	if err != nil {
		logger.Fatal("failed to load device registry", zap.Error(err))
	}

	busCfg := bus.DefaultConfig()
	busCfg.BrokerURL = cfg.MQTTURL
	busCfg.Username = cfg.MQTTUser
	busCfg.Password = cfg.MQTTPass
	dispatcher := bus.NewDispatcher(busCfg, logger.Named("bus"))

	events := event.NewBus(logger.Named("event"))
	events.SubscribeAll(func(_ context.Context, evt event.Event) {
		logger.Debug("engine event", zap.String("topic", evt.Topic))
	})

	eng := engine.New(engine.Config{
		Logger:       logger.Named("engine"),
		Ledger:       led,
		Dispatcher:   dispatcher,
		Events:       events,
		Policy:       policy,
		Devices:      devices,
		WindowSize:   featureWindowSize,
		Horizon:      forecastHorizon,
		Mode:         cfg.Mode,
		AutoEnabled:  cfg.AutoEnabled,
		ModelVersion: modelVersion,
	})
	eng.RegisterHandlers(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal("failed to start bus dispatcher", zap.Error(err))
	}
	defer dispatcher.Stop()

	wsHandler := ws.NewHandler(logger.Named("ws"))
	go wsHandler.Hub().Run(ctx, ws.PushInterval, func() ws.Snapshot { return eng.Snapshot(ctx) })

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := httpapi.New(addr, eng, led, eng.Metrics().Registry, logger.Named("http"),
		func(mux *http.ServeMux) { wsHandler.RegisterRoutes(mux) },
		httpapi.RegisterValidate,
	)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()
	logger.Info("http server ready", zap.String("addr", addr))

	stopScheduler := startDiscoveryScheduler(ctx, eng, policy, cfg, logger.Named("scheduler"))
	defer stopScheduler()

	stopDevicesPoll := startDevicesReloadPoller(ctx, devices, logger.Named("devices"))
	defer stopDevicesPoll()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("sentinel stopped")
}

// startDiscoveryScheduler fires a discovery scan every
// discovery_interval_hours (spec §5 "one scheduler task fires periodic
// discovery"). Returns a stop func.
func startDiscoveryScheduler(ctx context.Context, eng *engine.Engine, policy config.Policy, cfg config.Config, logger *zap.Logger) func() {
	interval := cfg.DiscoveryInterval()
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	subnet := cfg.DiscoverySubnet
	if subnet == "" {
		subnet = policy.Site
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				logger.Info("scheduled discovery scan firing", zap.String("subnet", subnet))
				eng.StartDiscovery(ctx, subnet, "scheduler", cfg.DiscoveryTimeoutS)
			}
		}
	}()
	return func() { close(done) }
}

// startDevicesReloadPoller polls the device registry's backing file for an
// mtime change every few seconds (spec §4.5 "Device resolution": "reloaded
// on file-mtime change"), covering out-of-band edits to devices.yaml that
// no discover/approved|removed event was published for. Returns a stop func.
func startDevicesReloadPoller(ctx context.Context, devices *config.DeviceRegistry, logger *zap.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := devices.ReloadIfChanged(); err != nil {
					logger.Error("device registry reload failed", zap.Error(err))
				}
			}
		}
	}()
	return func() { close(done) }
}
