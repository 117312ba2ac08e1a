package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/hostlink"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/ota"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/platform"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node supervisor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(cmd))
		},
	}
}

// run is the node main loop, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration
//
// Returns:
//   - error: nil on clean shutdown, *platform.ExitError when the service
//     manager should restart the process, or an error describing the failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ver := cfg.Node.Version
	if ver == "" {
		ver = version
	}
	log = logging.New(cfg.Logging, ver)
	log.Info("starting Gray Logic node",
		"version", ver,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	id, err := newIdentity(cfg.Node, ver)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "capacity", cfg.Store.Capacity)

	radio, err := hostlink.New(hostlink.Options{
		Interface:        cfg.Link.Interface,
		AssociateTimeout: cfg.Link.AssociateTimeout,
		Logger:           log.With("component", "hostlink"),
	})
	if err != nil {
		return err
	}
	go radio.Watch(ctx)

	transport := mqtt.New(mqtt.Options{
		KeepAlive:      cfg.Session.KeepAlive,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		Logger:         log.With("component", "mqtt"),
	})

	fetcher, err := ota.New(ota.Options{
		ImagePath: cfg.Update.ImagePath,
		MaxSize:   cfg.Update.MaxImageSize,
		Logger:    log.With("component", "ota"),
	})
	if err != nil {
		return err
	}

	host := platform.New(platform.Options{
		RestartCommand:  cfg.Host.RestartCommand,
		RestartExitCode: cfg.Host.RestartExitCode,
		SleepCommand:    cfg.Host.SleepCommand,
		Logger:          log.With("component", "platform"),
	})

	var telemetry supervisor.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			// Telemetry is optional; the node runs without it.
			log.Warn("InfluxDB unavailable, telemetry disabled", "error", influxErr)
		} else {
			influxClient.SetBootID(id.BootID())
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write failed", "error", err)
			})
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			telemetry = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	sup, err := supervisor.New(supervisor.Options{
		Identity:         id,
		NVRAM:            store,
		Radio:            radio,
		Transport:        transport,
		Fetcher:          fetcher,
		Platform:         host,
		Telemetry:        telemetry,
		Defaults:         cfg.Defaults.Map(),
		PlatformName:     cfg.Node.Platform,
		ScanInterval:     cfg.Link.ScanInterval,
		RoamMargin:       cfg.Link.RoamMargin,
		AssociateTimeout: cfg.Link.AssociateTimeout,
		QoS:              byte(cfg.Session.QoS), //nolint:gosec // Validated to 0..2
		BackoffFloor:     cfg.Session.BackoffFloor,
		BackoffCap:       cfg.Session.BackoffCap,
		FailoverAfter:    cfg.Session.FailoverAfter,
		ConnectTimeout:   cfg.Session.ConnectTimeout,
		TeardownDelay:    cfg.Session.TeardownDelay,
		FetchTimeout:     cfg.Update.Timeout,
		TickInterval:     cfg.TickInterval,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}

	err = sup.Run(ctx)
	log.Info("Gray Logic node stopped", "error", err)
	return err
}

// newIdentity builds the node identity, deriving the device id from the
// hardware unless the configuration overrides it.
func newIdentity(cfg config.NodeConfig, ver string) (*identity.Identity, error) {
	deviceID := cfg.DeviceID
	if deviceID == "" {
		hw, err := identity.HardwareID()
		if err != nil {
			return nil, fmt.Errorf("deriving device id (set node.device_id): %w", err)
		}
		deviceID = hw
	}
	return identity.New(cfg.App, ver, deviceID)
}
