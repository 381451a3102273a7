package monitor

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netmonitor/internal/config"
	"netmonitor/internal/platform"
)

// Module provides the HTTP prober and the Monitor, and ties the monitor to
// the application lifecycle.
func Module() fx.Option {
	return fx.Module("monitor",
		fx.Provide(
			fx.Annotate(ProvideProber, fx.As(new(Prober))),
			ProvideMonitor,
		),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideProber builds the HTTP prober for the resolved configuration.
func ProvideProber(cfg config.MonitorConfig, log *zap.Logger) (*HTTPProber, error) {
	return NewHTTPProber(cfg, WithProberLogger(log))
}

type monitorParams struct {
	fx.In

	Config   config.MonitorConfig
	Prober   Prober
	Platform platform.Platform
	Logger   *zap.Logger
	Clock    clock.Clock `optional:"true"`
	Metrics  Metrics     `optional:"true"`
}

// ProvideMonitor creates the monitor from its dependencies.
func ProvideMonitor(p monitorParams) (*Monitor, error) {
	return New(p.Config, p.Prober, p.Platform,
		WithLogger(p.Logger),
		WithClock(p.Clock),
		WithMetrics(p.Metrics),
	)
}

func registerLifecycle(lc fx.Lifecycle, m *Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return m.Stop()
		},
	})
}
