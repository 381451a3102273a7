package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "NETMONITOR"

const (
	PlatformSystem = "system"
	PlatformNone   = "none"
)

// Config represents configuration data for the monitoring service.
type Config struct {
	ListenAddress           string           `yaml:"listen_address" split_words:"true"`
	DataDirectory           string           `yaml:"data_directory" split_words:"true"`
	LogLevel                string           `yaml:"log_level" split_words:"true"`
	LogFile                 string           `yaml:"log_file" split_words:"true"`
	Platform                string           `yaml:"platform" split_words:"true"`
	InterfacePollIntervalMs int              `yaml:"interface_poll_interval_ms" split_words:"true"`
	HistoryLimit            int              `yaml:"history_limit" split_words:"true"`
	Monitor                 MonitorOverrides `yaml:"monitor" ignored:"true"`
	MQTT                    MQTTConfig       `yaml:"mqtt"`

	// Resolved is filled by Load from Monitor.
	Resolved MonitorConfig `yaml:"-" ignored:"true"`
}

// MQTTConfig controls publishing of status changes to a broker.
type MQTTConfig struct {
	Enabled               bool   `yaml:"enabled" split_words:"true"`
	Broker                string `yaml:"broker" split_words:"true"`
	Topic                 string `yaml:"topic" split_words:"true"`
	ClientID              string `yaml:"client_id" split_words:"true"`
	Username              string `yaml:"username" split_words:"true"`
	Password              string `yaml:"password" split_words:"true"`
	QoS                   byte   `yaml:"qos"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" split_words:"true"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddress:           ":8080",
		DataDirectory:           filepath.Join(".dist", "data"),
		LogLevel:                "info",
		Platform:                PlatformSystem,
		InterfacePollIntervalMs: 2000,
		HistoryLimit:            10000,
		MQTT: MQTTConfig{
			Broker:                "tcp://127.0.0.1:1883",
			Topic:                 "netmonitor/status",
			QoS:                   1,
			ConnectTimeoutSeconds: 10,
		},
		Resolved: DefaultMonitorConfig(),
	}
}

// Load reads configuration from a yaml file, then applies .env and
// NETMONITOR_* environment overrides. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	_ = godotenv.Load()
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg.Monitor); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	return cfg.finalise()
}

func (cfg Config) finalise() (Config, error) {
	defaults := DefaultConfig()
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = defaults.DataDirectory
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	if cfg.Platform == "" {
		cfg.Platform = defaults.Platform
	}
	if cfg.Platform != PlatformSystem && cfg.Platform != PlatformNone {
		return Config{}, fmt.Errorf("%w: unknown platform %q", ErrInvalidConfig, cfg.Platform)
	}
	if cfg.InterfacePollIntervalMs <= 0 {
		cfg.InterfacePollIntervalMs = defaults.InterfacePollIntervalMs
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("%w: mqtt broker is required", ErrInvalidConfig)
		}
		if cfg.MQTT.Topic == "" {
			return Config{}, fmt.Errorf("%w: mqtt topic is required", ErrInvalidConfig)
		}
		if cfg.MQTT.QoS > 2 {
			return Config{}, fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", ErrInvalidConfig)
		}
		if cfg.MQTT.ConnectTimeoutSeconds <= 0 {
			cfg.MQTT.ConnectTimeoutSeconds = defaults.MQTT.ConnectTimeoutSeconds
		}
	}

	resolved, err := Resolve(cfg.Monitor)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.RequireRemoteTarget(); err != nil {
		return Config{}, err
	}
	cfg.Resolved = resolved
	return cfg, nil
}
