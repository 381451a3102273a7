package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"netmonitor/internal/app"
	"netmonitor/internal/assets"
	"netmonitor/internal/config"
	"netmonitor/internal/logger"
)

const (
	startTimeout = 15 * time.Second
	stopTimeout  = 10 * time.Second
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "address for the web server (overrides listen_address)")
		initOnly   = flag.Bool("init", false, "create the data directory and ping asset, then exit")
	)
	flag.Parse()

	if err := run(*configPath, *addr, *initOnly); err != nil {
		fmt.Fprintf(os.Stderr, "netmonitor: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, initOnly bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.ListenAddress = addr
	}

	var file *logger.FileSyncer
	if cfg.LogFile != "" {
		file, err = logger.OpenFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer file.Close()
	}
	log := logger.New(cfg.LogLevel, file)
	defer func() { _ = log.Sync() }()

	if initOnly {
		path, err := assets.EnsurePingAsset(assets.Dir(cfg.DataDirectory), cfg.Resolved.ProbeTarget, log)
		if err != nil {
			return err
		}
		log.Info("initialised", zap.String("data_directory", cfg.DataDirectory), zap.String("ping_asset", path))
		return nil
	}

	log.Info("configuration loaded",
		zap.String("config", configPath),
		zap.String("listen", cfg.ListenAddress),
		zap.String("platform", cfg.Platform),
		zap.String("probe_target", resolvedTarget(cfg.Resolved)),
		zap.Bool("mqtt", cfg.MQTT.Enabled))

	application := fx.New(
		app.Options(cfg, log),
		fx.StartTimeout(startTimeout),
		fx.StopTimeout(stopTimeout),
	)
	if err := application.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := application.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for sig := range signals {
		if sig != syscall.SIGHUP {
			log.Info("shutting down", zap.String("signal", sig.String()))
			break
		}
		if file == nil {
			continue
		}
		if err := file.Reload(); err != nil {
			log.Error("reopen log file", zap.Error(err))
		} else {
			log.Info("log file reopened")
		}
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	return application.Stop(stopCtx)
}

func resolvedTarget(cfg config.MonitorConfig) string {
	target, err := cfg.Target()
	if err != nil {
		return cfg.ProbeTarget
	}
	return target
}
