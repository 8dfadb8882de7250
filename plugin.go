package airbrake

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// Plugin exposes a Notifier to RoadRunner: other plugins receive it as a
// Reporter and PHP workers reach it over RPC.
type Plugin struct {
	config   *Config
	logger   *zap.Logger
	notifier *Notifier
}

// Configurer interface for config plugin
type Configurer interface {
	UnmarshalKey(name string, out any) error
	Has(name string) bool
}

// Logger interface for logger plugin
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Init initializes the plugin
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("airbrake_plugin_init")

	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	config := &Config{}
	if err := cfg.UnmarshalKey(PluginName, config); err != nil {
		return errors.E(op, err)
	}

	config.InitDefaults()
	if err := config.Validate(); err != nil {
		return errors.E(op, err)
	}

	p.config = config
	p.logger = log.NamedLogger(PluginName)

	opts := []Option{WithLogger(p.logger)}
	if config.LogFile == "" {
		opts = append(opts, WithOutcomeLogger(NewZapOutcomeLogger(p.logger)))
	}

	notifier, err := New(config, opts...)
	if err != nil {
		return errors.E(op, err)
	}
	p.notifier = notifier

	if config.ProjectID == "" || config.ProjectKey == "" {
		p.logger.Warn("Project id or key is not configured, notices will be rejected")
	}

	p.logger.Info("Airbrake plugin initialized",
		zap.String("environment", config.Environment),
		zap.String("host", config.Host),
		zap.String("format", config.Format),
		zap.Int("max_in_flight", config.MaxInFlight))

	return nil
}

// Serve has nothing to run; deliveries are started per notice
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	if p.notifier == nil {
		errCh <- errors.E(errors.Op("airbrake_plugin_serve"), errors.Str("plugin not initialized"))
	}

	return errCh
}

// Stop waits for running deliveries
func (p *Plugin) Stop(ctx context.Context) error {
	if p.notifier == nil {
		return nil
	}

	if err := p.notifier.Close(ctx); err != nil {
		p.logger.Warn("Plugin stop timed out", zap.Error(err))
		return err
	}

	p.logger.Info("Airbrake plugin stopped")
	return nil
}

// Name returns the plugin name
func (p *Plugin) Name() string {
	return PluginName
}

// RPC returns the RPC interface
func (p *Plugin) RPC() any {
	return NewRPC(p.notifier, p.logger)
}

// Provides returns the dependencies this plugin provides
func (p *Plugin) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*Reporter)(nil), p.Reporter),
	}
}

// Reporter returns the notifier for other plugins
func (p *Plugin) Reporter() Reporter {
	return p.notifier
}

// Notifier returns the underlying notifier, e.g. to register filters
func (p *Plugin) Notifier() *Notifier {
	return p.notifier
}

// MetricsCollector implements the metrics plugin StatProvider
func (p *Plugin) MetricsCollector() []prometheus.Collector {
	return []prometheus.Collector{p.notifier.Collector()}
}
