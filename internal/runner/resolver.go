package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelier/syncdeck/internal/model"
)

// Resolver defaults. Local runners boot in seconds; hosted runners may need
// to be scheduled onto fleet capacity first, hence the larger budget.
const (
	DefaultPollInterval  = 1 * time.Second
	DefaultLocalTimeout  = 10 * time.Second
	DefaultRemoteTimeout = 90 * time.Second
)

// Config controls resolver behavior. Mode is required; zero durations fall
// back to the package defaults.
type Config struct {
	Mode          string
	PollInterval  time.Duration
	LocalTimeout  time.Duration
	RemoteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LocalTimeout <= 0 {
		c.LocalTimeout = DefaultLocalTimeout
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	return c
}

// Resolver obtains runner handles and blocks callers until the runner
// reports healthy or the deployment-mode timeout elapses.
type Resolver struct {
	cfg    Config
	local  Factory
	remote Factory
	logger *slog.Logger
}

// NewResolver creates a resolver that selects between the two factories by
// the configured deployment mode.
func NewResolver(cfg Config, local, remote Factory, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg.withDefaults(),
		local:  local,
		remote: remote,
		logger: logger,
	}
}

// Resolve obtains a handle for the given runner identifier and polls its
// health at a fixed interval until it succeeds or the mode's timeout
// elapses. Acquisition failures propagate immediately; individual health
// failures are swallowed and retried. On timeout the handle is neither
// returned nor torn down, and the error is a *NotHealthyError carrying the
// identifier and the timeout budget.
func (r *Resolver) Resolve(ctx context.Context, id string) (Runner, error) {
	factory, timeout, err := r.pick()
	if err != nil {
		return nil, err
	}

	h, err := factory.Get(ctx, id)
	if err != nil {
		resolvesTotal.WithLabelValues(r.cfg.Mode, outcomeAcquireError).Inc()
		return nil, fmt.Errorf("get runner %s: %w", id, err)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		err := h.Health(pollCtx)
		if err == nil {
			resolvesTotal.WithLabelValues(r.cfg.Mode, outcomeHealthy).Inc()
			r.logger.Debug("runner healthy",
				"runner_id", id,
				"mode", r.cfg.Mode,
				"waited_ms", time.Since(start).Milliseconds(),
			)
			return h, nil
		}
		healthFailuresTotal.WithLabelValues(r.cfg.Mode).Inc()
		r.logger.Debug("runner not yet healthy", "runner_id", id, "error", err)

		select {
		case <-ticker.C:
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				resolvesTotal.WithLabelValues(r.cfg.Mode, outcomeCancelled).Inc()
				return nil, fmt.Errorf("resolve runner %s: %w", id, ctx.Err())
			}
			resolvesTotal.WithLabelValues(r.cfg.Mode, outcomeTimeout).Inc()
			return nil, &NotHealthyError{ID: id, Timeout: timeout}
		}
	}
}

// Teardown acquires the handle for the given runner identifier and releases
// it. No health polling happens here: an unhealthy runner can still be torn
// down.
func (r *Resolver) Teardown(ctx context.Context, id string) error {
	factory, _, err := r.pick()
	if err != nil {
		return err
	}

	h, err := factory.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get runner %s: %w", id, err)
	}

	if err := h.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown runner %s: %w", id, err)
	}
	return nil
}

// pick returns the factory and timeout budget for the configured mode.
// Exactly one factory is ever consulted per call.
func (r *Resolver) pick() (Factory, time.Duration, error) {
	switch r.cfg.Mode {
	case model.ModeLocal:
		return r.local, r.cfg.LocalTimeout, nil
	case model.ModeRemote:
		return r.remote, r.cfg.RemoteTimeout, nil
	default:
		return nil, 0, fmt.Errorf("unknown deployment mode %q", r.cfg.Mode)
	}
}
