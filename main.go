package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/labstreaminglayer/App-PSMove/cmd"
	"github.com/labstreaminglayer/App-PSMove/internal/api"
	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/config"
	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/led"
	"github.com/labstreaminglayer/App-PSMove/internal/logging"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics/exporters"
	"github.com/labstreaminglayer/App-PSMove/internal/nats"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove/sim"
	"github.com/labstreaminglayer/App-PSMove/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Controller service settings
	ServiceDriver  string `help:"Controller service driver (sim)" default:"sim" toml:"service.driver" env:"SERVICE_DRIVER"`
	ServiceAddress string `help:"Controller service address" default:"localhost" toml:"service.address" env:"SERVICE_ADDRESS"`
	ServicePort    int    `help:"Controller service port" default:"9512" toml:"service.port" env:"SERVICE_PORT"`
	ServiceTimeout string `help:"Controller service request timeout" default:"1s" toml:"service.timeout" env:"SERVICE_TIMEOUT"`

	// Simulator settings
	SimControllers int `help:"Simulated controllers" default:"2" toml:"sim.controllers" env:"SIM_CONTROLLERS"`
	SimRateHz      int `help:"Simulated update rate per controller in Hz" default:"120" toml:"sim.rate_hz" env:"SIM_RATE_HZ"`

	// Bridge settings
	BridgeSampleRate     string `help:"Nominal outlet rate in Hz (0 = irregular)" default:"0" toml:"bridge.sample_rate" env:"BRIDGE_SAMPLE_RATE"`
	BridgeScanInterval   string `help:"Controller scan interval (100ms-250ms)" default:"100ms" toml:"bridge.scan_interval" env:"BRIDGE_SCAN_INTERVAL"`
	BridgeIdleYield      string `help:"Pause between forwarding passes" default:"500us" toml:"bridge.idle_yield" env:"BRIDGE_IDLE_YIELD"`
	BridgeAcquireTimeout string `help:"How long to wait for subscriptions" default:"5s" toml:"bridge.acquire_timeout" env:"BRIDGE_ACQUIRE_TIMEOUT"`
	BridgeAutostart      bool   `help:"Start the bridge at boot" default:"false" toml:"bridge.autostart" env:"BRIDGE_AUTOSTART"`
	AcquirePolicy        string `help:"Subscription wait policy (any, all)" default:"any" toml:"acquire.policy" env:"ACQUIRE_POLICY"`

	// NATS settings
	NATSURL      string `help:"NATS server URL (ignored when embedded)" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`
	NATSEmbedded bool   `help:"Run an embedded NATS server" default:"true" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSPort     int    `help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`

	// Features settings
	FeaturesLEDStatus bool `help:"Mirror bridge state on the board status LED" default:"false" toml:"features.led_status" env:"FEATURES_LED_STATUS"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBridge   string `help:"Bridge worker logging level" default:"info" toml:"logging.bridge" env:"LOGGING_BRIDGE"`
	LoggingRegistry string `help:"Controller registry logging level" default:"info" toml:"logging.registry" env:"LOGGING_REGISTRY"`
	LoggingOutlet   string `help:"Outlet logging level" default:"info" toml:"logging.outlet" env:"LOGGING_OUTLET"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingNATS     string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
}

func main() {
	var cli humacli.CLI

	// Create Huma CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Error("Invalid configuration", "error", loadErr)
			os.Exit(1)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"bridge":   opts.LoggingBridge,
				"registry": opts.LoggingRegistry,
				"outlet":   opts.LoggingOutlet,
				"api":      opts.LoggingAPI,
				"nats":     opts.LoggingNATS,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		settings, err := parseBridgeSettings(opts)
		if err != nil {
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		var ledManager *led.Manager
		if opts.FeaturesLEDStatus {
			logger.Info("LED status enabled, initializing")
			ledManager = led.NewManager(led.New(logger), eventBus, logger)
		}

		client, err := newControllerClient(opts)
		if err != nil {
			logger.Error("Failed to create controller client", "error", err)
			os.Exit(1)
		}

		natsLogger := logging.GetLogger("nats")
		var natsServer *nats.Server
		natsURL := opts.NATSURL
		if opts.NATSEmbedded {
			serverOpts := nats.DefaultServerOptions()
			serverOpts.Port = opts.NATSPort
			serverOpts.Logger = natsLogger
			natsServer = nats.NewServer(serverOpts)
			if startErr := natsServer.Start(); startErr != nil {
				logger.Error("Failed to start embedded NATS server", "error", startErr)
				os.Exit(1)
			}
			natsURL = natsServer.ClientURL()
		}

		outletLogger := logging.GetLogger("outlet")
		conn, err := outlet.Dial(natsURL, version.ClientName("outlets"), outletLogger)
		if err != nil {
			logger.Error("Failed to connect outlet transport", "url", natsURL, "error", err)
			os.Exit(1)
		}
		provider := outlet.NewNATSProvider(conn, outletLogger)

		service, err := bridge.New(bridge.Options{
			Client:         client,
			Outlets:        provider,
			Events:         eventBus,
			Logger:         logging.GetLogger("bridge"),
			RegistryLogger: logging.GetLogger("registry"),
			Address:        opts.ServiceAddress,
			Port:           opts.ServicePort,
			Timeout:        settings.serviceTimeout,
			ScanInterval:   settings.scanInterval,
			IdleYield:      settings.idleYield,
			AcquireTimeout: settings.acquireTimeout,
			Policy:         settings.policy,
		})
		if err != nil {
			logger.Error("Failed to create bridge", "error", err)
			os.Exit(1)
		}

		control := nats.NewBridge(natsURL, service, eventBus, settings.sampleRate, natsLogger)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Bridge:            service,
			EventBus:          eventBus,
			SampleRate:        settings.sampleRate,
			CORSOrigin:        opts.CORSOrigin,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		sseExporter := exporters.NewSSEExporter(eventBus)

		var watcher *config.Watcher[logging.Config]

		hooks.OnStart(func() {
			sseExporter.Start(context.Background())

			// Start LED manager before the bridge so it sees the first link result
			if ledManager != nil {
				ledManager.Start()
			}

			var watchErr error
			watcher, watchErr = config.WatchLogging(opts.Config, logger)
			if watchErr != nil {
				logger.Warn("Config file not watched, log levels will not reload", "path", opts.Config, "error", watchErr)
			}

			if startErr := control.Start(); startErr != nil {
				logger.Warn("NATS control surface unavailable", "error", startErr)
			}

			if opts.BridgeAutostart {
				logger.Info("Autostarting bridge", "sample_rate", settings.sampleRate)
				if startErr := service.Start(settings.sampleRate); startErr != nil {
					logger.Error("Failed to autostart bridge", "error", startErr)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Release outlets and subscriptions before the transport goes away
			service.Stop()
			control.Stop()
			sseExporter.Stop()
			if ledManager != nil {
				ledManager.Stop()
			}

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}

			conn.Close()
			if natsServer != nil {
				natsServer.Stop()
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateListDevicesCmd())
	cli.Root().AddCommand(cmd.CreateMonitorCmd())
	cli.Root().AddCommand(cmd.CreateCtlCmd())

	// Run the CLI
	cli.Run()
}

type bridgeSettings struct {
	sampleRate     float64
	serviceTimeout time.Duration
	scanInterval   time.Duration
	idleYield      time.Duration
	acquireTimeout time.Duration
	policy         bridge.AcquirePolicy
}

func parseBridgeSettings(opts *Options) (bridgeSettings, error) {
	var s bridgeSettings
	var err error

	if s.sampleRate, err = strconv.ParseFloat(opts.BridgeSampleRate, 64); err != nil {
		return s, fmt.Errorf("bridge.sample_rate: %w", err)
	}
	if s.sampleRate < 0 {
		return s, fmt.Errorf("bridge.sample_rate: must not be negative")
	}
	if s.serviceTimeout, err = time.ParseDuration(opts.ServiceTimeout); err != nil {
		return s, fmt.Errorf("service.timeout: %w", err)
	}
	scan, err := time.ParseDuration(opts.BridgeScanInterval)
	if err != nil {
		return s, fmt.Errorf("bridge.scan_interval: %w", err)
	}
	s.scanInterval = bridge.ClampScanInterval(scan)
	if s.idleYield, err = time.ParseDuration(opts.BridgeIdleYield); err != nil {
		return s, fmt.Errorf("bridge.idle_yield: %w", err)
	}
	if s.acquireTimeout, err = time.ParseDuration(opts.BridgeAcquireTimeout); err != nil {
		return s, fmt.Errorf("bridge.acquire_timeout: %w", err)
	}
	if s.policy, err = bridge.ParseAcquirePolicy(opts.AcquirePolicy); err != nil {
		return s, err
	}
	return s, nil
}

// newControllerClient builds the controller service client for the
// configured driver.
func newControllerClient(opts *Options) (psmove.Client, error) {
	switch opts.ServiceDriver {
	case "sim", "":
		return sim.New(sim.Options{
			Controllers: opts.SimControllers,
			RateHz:      float64(opts.SimRateHz),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported controller service driver %q", opts.ServiceDriver)
	}
}
