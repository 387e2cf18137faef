// Package app wires configuration, logging, the learning memory and the
// conversion engine into the pieces the executables share.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kanaime/internal/config"
	"kanaime/internal/ime"
	"kanaime/internal/ipc"
	"kanaime/internal/logging"
	"kanaime/internal/metrics"
	"kanaime/internal/store"
)

// Runtime owns the long-lived components of a running input method.
type Runtime struct {
	Logger    *logging.Logger
	Memory    *store.Store
	Engine    ime.ConversionEngine
	Converter *ime.ConverterClient
	Metrics   *metrics.IMEMetrics

	ownsLogger bool

	mu  sync.Mutex
	cfg *config.Config
}

// Option customises New.
type Option func(*options)

type options struct {
	logger *logging.Logger
	engine ime.ConversionEngine
	now    func() time.Time
}

// WithLogger uses l instead of building one from the config.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEngine uses engine instead of the IPC client for Engine.SocketPath.
func WithEngine(engine ime.ConversionEngine) Option {
	return func(o *options) { o.engine = engine }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds a Runtime from cfg. The engine is configured but initialised
// lazily by the first candidate request.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{cfg: cfg.Clone(), Metrics: metrics.NewIMEMetrics(nil)}

	if o.logger != nil {
		rt.Logger = o.logger
	} else {
		lc, err := cfg.LoggingConfig()
		if err != nil {
			return nil, fmt.Errorf("logging config: %w", err)
		}
		l, err := logging.New(lc)
		if err != nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
		rt.Logger = l
		rt.ownsLogger = true
	}

	if cfg.Memory.Enabled {
		mem, err := store.Open(cfg.Memory.Path)
		if err != nil {
			rt.closeLogger()
			return nil, fmt.Errorf("open learning memory: %w", err)
		}
		rt.Memory = mem
		if cfg.Memory.RetentionDays > 0 {
			cutoff := o.now().AddDate(0, 0, -cfg.Memory.RetentionDays)
			n, err := mem.Prune(ctx, cutoff)
			if err != nil {
				rt.Logger.Warn("learning memory prune failed", "err", err)
			} else if n > 0 {
				rt.Logger.Info("pruned learning memory", "removed", n, "retention_days", cfg.Memory.RetentionDays)
			}
		}
	}

	rt.Engine = o.engine
	if rt.Engine == nil {
		rt.Engine = ipc.NewClient(cfg.Engine.SocketPath, cfg.EngineTimeout())
	}

	convOpts := []ime.ConverterOption{
		ime.WithConverterLogger(rt.Logger),
		ime.WithCache(cfg.CacheTTL(), cfg.Cache.Capacity),
	}
	if rt.Memory != nil {
		convOpts = append(convOpts, ime.WithRanker(rt.Memory))
	}
	rt.Converter = ime.NewConverterClient(&meteredEngine{next: rt.Engine, m: rt.Metrics}, convOpts...)
	rt.Converter.Configure(ctx, cfg.EngineSettings())

	return rt, nil
}

// Config returns the configuration in effect.
func (rt *Runtime) Config() *config.Config {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cfg
}

// NewSession creates a composition session for host.
func (rt *Runtime) NewSession(host ime.HostEditingSession, opts ...ime.SessionOption) *ime.Session {
	cfg := rt.Config()
	base := []ime.SessionOption{
		ime.WithSessionLogger(rt.Logger),
		ime.WithSessionConfig(cfg.SessionConfig()),
		ime.WithKeyObserver(func(eaten bool, intent ime.IntentKind) {
			rt.Metrics.RecordKey(eaten, intent.String())
		}),
	}
	return ime.NewSession(host, rt.Converter, append(base, opts...)...)
}

// Apply switches to cfg. A changed engine section reconfigures the
// converter; every session in manager gets the new session settings on its
// next key.
func (rt *Runtime) Apply(ctx context.Context, cfg *config.Config, manager *ime.Manager) {
	rt.mu.Lock()
	old := rt.cfg
	rt.cfg = cfg.Clone()
	rt.mu.Unlock()

	if old.EngineSettings() != cfg.EngineSettings() {
		rt.Converter.Configure(ctx, cfg.EngineSettings())
		rt.Logger.Info("engine reconfigured")
	}
	if manager != nil {
		sc := cfg.SessionConfig()
		manager.Each(func(_ string, s *ime.Session) { s.UpdateConfig(sc) })
	}
}

// Close shuts the engine down and closes the memory and the log.
func (rt *Runtime) Close(ctx context.Context) error {
	var firstErr error
	if err := rt.Converter.Close(ctx); err != nil {
		firstErr = err
	}
	if rt.Memory != nil {
		if err := rt.Memory.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.closeLogger()
	return firstErr
}

func (rt *Runtime) closeLogger() {
	if rt.ownsLogger {
		rt.Logger.Close()
	}
}
