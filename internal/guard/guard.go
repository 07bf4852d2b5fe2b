// Package guard assembles a ready-to-use validation pipeline from
// configuration: builtin and directory contracts, the pipeline itself and
// the log, metrics and store sinks.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/aiguard/internal/builtin"
	"github.com/roach88/aiguard/internal/compiler"
	"github.com/roach88/aiguard/internal/config"
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/logging"
	"github.com/roach88/aiguard/internal/metrics"
	"github.com/roach88/aiguard/internal/parse"
	"github.com/roach88/aiguard/internal/pipeline"
	"github.com/roach88/aiguard/internal/registry"
	"github.com/roach88/aiguard/internal/store"
)

// Guard is a configured pipeline plus the resources its sinks hold.
type Guard struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *registry.Registry
	pipeline *pipeline.Pipeline

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics
	store        *store.Store
}

// Option configures New.
type Option func(*options)

type options struct {
	log          *logging.Logger
	promRegistry *prometheus.Registry
	ids          pipeline.IDGenerator
	observers    []pipeline.Observer
}

// WithLogger sets the logger used by the log sink and for store errors.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithPrometheusRegistry registers the collectors on r instead of a
// private registry.
func WithPrometheusRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.promRegistry = r }
}

// WithIDGenerator sets the pipeline's run id generator.
func WithIDGenerator(g pipeline.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithObservers adds observers after the configured sinks.
func WithObservers(obs ...pipeline.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs...) }
}

// New builds a Guard from cfg. The registry is sealed before New returns.
func New(cfg *config.Config, opts ...Option) (*Guard, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.NewNop()
	}

	g := &Guard{cfg: cfg, log: o.log, registry: registry.New()}

	if err := builtin.Register(g.registry); err != nil {
		return nil, err
	}
	if cfg.Contracts.Dir != "" {
		if err := registerDir(g.registry, cfg.Contracts.Dir); err != nil {
			return nil, err
		}
	}
	g.registry.Seal()

	var observers []pipeline.Observer
	if cfg.Events.Enabled {
		if cfg.Events.Log {
			observers = append(observers, logging.NewSink(o.log))
		}
		if cfg.Metrics.Enabled {
			g.promRegistry = o.promRegistry
			if g.promRegistry == nil {
				g.promRegistry = prometheus.NewRegistry()
			}
			g.metrics = metrics.New(g.promRegistry, cfg.Metrics.Namespace)
			observers = append(observers, g.metrics)
		}
		if cfg.Events.StorePath != "" {
			s, err := store.Open(cfg.Events.StorePath)
			if err != nil {
				return nil, fmt.Errorf("open store: %w", err)
			}
			g.store = s
			observers = append(observers, store.NewSink(s, o.log))
		}
	}
	observers = append(observers, o.observers...)

	popts := []pipeline.Option{
		pipeline.WithParser(parse.New(cfg.Validation.MaxInputBytes)),
		pipeline.WithObservers(observers...),
	}
	if o.ids != nil {
		popts = append(popts, pipeline.WithIDGenerator(o.ids))
	}
	g.pipeline = pipeline.New(g.registry, popts...)

	o.log.Debug(context.Background(), "guard ready",
		zap.Strings("contracts", g.registry.IDs()),
		zap.Int("observers", len(observers)),
	)
	return g, nil
}

// registerDir loads every contract under dir into r.
func registerDir(r *registry.Registry, dir string) error {
	result, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return fmt.Errorf("load contracts from %s: %w", dir, errors.Join(errs...))
	}
	for _, c := range result.Contracts {
		if err := r.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.ID, err)
		}
	}
	return nil
}

// Validate runs raw through the pipeline. An empty strictness uses the
// configured one.
func (g *Guard) Validate(ctx context.Context, contractID string, raw []byte, strictness contract.Strictness) (pipeline.Result, error) {
	return g.pipeline.Validate(ctx, contractID, raw, g.strictness(strictness))
}

// ValidateValue is Validate for an already-decoded payload.
func (g *Guard) ValidateValue(ctx context.Context, contractID string, v ir.Value, strictness contract.Strictness) (pipeline.Result, error) {
	return g.pipeline.ValidateValue(ctx, contractID, v, g.strictness(strictness))
}

func (g *Guard) strictness(s contract.Strictness) contract.Strictness {
	if s == "" {
		return g.cfg.Validation.Strictness
	}
	return s
}

// Registry returns the sealed contract registry.
func (g *Guard) Registry() *registry.Registry { return g.registry }

// Pipeline returns the underlying pipeline.
func (g *Guard) Pipeline() *pipeline.Pipeline { return g.pipeline }

// Store returns the audit store, or nil when none is configured.
func (g *Guard) Store() *store.Store { return g.store }

// Gatherer returns the metrics registry, or nil when metrics are off.
func (g *Guard) Gatherer() prometheus.Gatherer {
	if g.promRegistry == nil {
		return nil
	}
	return g.promRegistry
}

// Close releases the store.
func (g *Guard) Close() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}
