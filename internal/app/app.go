// Package app assembles the connectivity monitor service.
package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"netmonitor/internal/assets"
	"netmonitor/internal/config"
	"netmonitor/internal/logger"
	"netmonitor/internal/metrics"
	"netmonitor/internal/monitor"
	"netmonitor/internal/notify"
	"netmonitor/internal/platform"
	"netmonitor/internal/server"
	"netmonitor/internal/storage"
)

// Options returns the fx options for the whole service built from cfg.
// log may be nil, in which case logging is built from cfg.
func Options(cfg config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, cfg.Resolved),
		loggerOption(cfg, log),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		fx.Provide(
			func() clock.Clock { return clock.New() },
			ProvidePlatform,
			ProvideRegistry,
			ProvideCollector,
			func(c *metrics.Collector) monitor.Metrics { return c },
			ProvideStorage,
			ProvideServer,
		),
		monitor.Module(),
		fx.Invoke(
			requireRemoteTarget,
			ensurePingAsset,
			registerRecorders,
			registerServer,
			registerMQTT,
		),
	)
}

func loggerOption(cfg config.Config, log *zap.Logger) fx.Option {
	if log != nil {
		return fx.Supply(log)
	}
	return fx.Provide(func(lc fx.Lifecycle) (*zap.Logger, error) {
		var file *logger.FileSyncer
		if cfg.LogFile != "" {
			f, err := logger.OpenFile(cfg.LogFile)
			if err != nil {
				return nil, err
			}
			file = f
		}
		l := logger.New(cfg.LogLevel, file)
		lc.Append(fx.StopHook(func() {
			_ = l.Sync()
			if file != nil {
				_ = file.Close()
			}
		}))
		return l, nil
	})
}

type platformParams struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Logger *zap.Logger
	Lister platform.InterfaceLister `optional:"true"`
}

// ProvidePlatform selects the platform signal source named in cfg.
func ProvidePlatform(p platformParams) platform.Platform {
	if p.Config.Platform == config.PlatformNone {
		p.Logger.Info("platform signals disabled by configuration")
		return platform.None{}
	}
	return platform.NewSystem(
		platform.WithPollInterval(time.Duration(p.Config.InterfacePollIntervalMs)*time.Millisecond),
		platform.WithInterfaceLister(p.Lister),
		platform.WithClock(p.Clock),
		platform.WithLogger(p.Logger),
	)
}

// ProvideRegistry creates the metrics registry exposed on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideCollector registers the connectivity collectors.
func ProvideCollector(reg *prometheus.Registry) (*metrics.Collector, error) {
	return metrics.NewCollector(reg)
}

// ProvideStorage opens the connectivity history and flushes it on stop.
func ProvideStorage(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) (*storage.ConnectivityStorage, error) {
	store, err := storage.NewConnectivityStorage(
		filepath.Join(cfg.DataDirectory, storage.HistoryFile),
		cfg.HistoryLimit,
		storage.WithClock(clk),
		storage.WithLogger(log.Named("storage")),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

// ProvideServer builds the HTTP server.
func ProvideServer(cfg config.Config, mon *monitor.Monitor, store *storage.ConnectivityStorage, reg *prometheus.Registry, clk clock.Clock, log *zap.Logger) *server.Server {
	return server.New(cfg.ListenAddress, mon, store,
		server.WithGatherer(reg),
		server.WithAssetsDir(assets.Dir(cfg.DataDirectory)),
		server.WithHistoryLimit(cfg.HistoryLimit),
		server.WithClock(clk),
		server.WithLogger(log),
	)
}

// requireRemoteTarget refuses to probe this host, whose own listener would
// keep answering while the network is down.
func requireRemoteTarget(cfg config.MonitorConfig) error {
	return cfg.RequireRemoteTarget()
}

func ensurePingAsset(cfg config.Config, log *zap.Logger) error {
	_, err := assets.EnsurePingAsset(assets.Dir(cfg.DataDirectory), cfg.Resolved.ProbeTarget, log)
	return err
}

// registerRecorders feeds every published status to history and metrics.
func registerRecorders(lc fx.Lifecycle, mon *monitor.Monitor, store *storage.ConnectivityStorage, collector *metrics.Collector) {
	var unsubscribe []func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			unsubscribe = append(unsubscribe,
				mon.Subscribe(store.Observe),
				mon.Subscribe(collector.ObserveStatus),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			for _, fn := range unsubscribe {
				fn()
			}
			return nil
		},
	})
}

func registerServer(lc fx.Lifecycle, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func registerMQTT(lc fx.Lifecycle, cfg config.Config, mon *monitor.Monitor, log *zap.Logger) error {
	if !cfg.MQTT.Enabled {
		log.Debug("mqtt publishing disabled")
		return nil
	}
	pub, err := notify.NewPublisher(cfg.MQTT, notify.WithLogger(log))
	if err != nil {
		return err
	}

	var unsubscribe func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// the client keeps retrying in the background
			if err := pub.Connect(); err != nil {
				log.Warn("mqtt broker unavailable", zap.Error(err))
			}
			unsubscribe = mon.Subscribe(pub.Observe)
			return nil
		},
		OnStop: func(context.Context) error {
			if unsubscribe != nil {
				unsubscribe()
			}
			pub.Close()
			return nil
		},
	})
	return nil
}
