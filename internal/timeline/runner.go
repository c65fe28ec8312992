package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luftuj/hru-core/internal/hru"
)

// Default loop timings, overridable via configuration.
const (
	DefaultTickInterval   = 10 * time.Second
	DefaultKeepAliveRetry = 10 * time.Second
)

// infiniteEndTime is the pinned far-future end for infinite boosts; the
// duration sentinel, not this timestamp, is what exempts them from expiry.
var infiniteEndTime = time.Date(2999, 12, 31, 23, 59, 59, 0, time.UTC)

// DeviceWriter is the device controller surface the runner drives.
type DeviceWriter interface {
	WriteValues(ctx context.Context, req hru.WriteRequest) error
	KeepAlive(ctx context.Context) (time.Duration, error)
}

// ValveDriver applies damper/valve openings. Implementations must treat the
// call as best-effort; the runner logs failures and carries on.
type ValveDriver interface {
	Apply(ctx context.Context, openings map[string]float64) error
}

// Runner owns the timeline control loop: a fixed tick plus immediate runs on
// Trigger, and an independent keep-alive loop. Stopping is idempotent and
// lets an in-flight tick finish.
type Runner struct {
	store          *Store
	device         DeviceWriter
	valves         ValveDriver
	tickInterval   time.Duration
	keepAliveRetry time.Duration
	logger         *slog.Logger
	now            func() time.Time

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.RWMutex
	active ActiveState
	onTick func(ActiveState)
}

// NewRunner creates a timeline runner. valves may be nil when no valve
// collaborator is configured. Zero intervals fall back to defaults.
func NewRunner(store *Store, device DeviceWriter, valves ValveDriver, tickInterval, keepAliveRetry time.Duration, logger *slog.Logger) *Runner {
	if tickInterval == 0 {
		tickInterval = DefaultTickInterval
	}
	if keepAliveRetry == 0 {
		keepAliveRetry = DefaultKeepAliveRetry
	}
	return &Runner{
		store:          store,
		device:         device,
		valves:         valves,
		tickInterval:   tickInterval,
		keepAliveRetry: keepAliveRetry,
		logger:         logger,
		now:            time.Now,
		trigger:        make(chan struct{}, 1),
		stop:           make(chan struct{}),
		active:         ActiveState{Source: SourceManual},
	}
}

// SetOnTick registers a callback invoked after every tick with the recorded
// state. Must be called before Start.
func (r *Runner) SetOnTick(fn func(ActiveState)) {
	r.onTick = fn
}

// Start launches the tick and keep-alive loops.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(2)
	go r.tickLoop(ctx)
	go r.keepAliveLoop(ctx)
	r.logger.Info("timeline runner started", "tick", r.tickInterval.String())
}

// Stop halts both loops and waits for an in-flight tick to finish.
// Safe to call multiple times.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	r.logger.Info("timeline runner stopped")
}

// Trigger requests an immediate tick (incoming MQTT command, boost change).
// Coalesces: multiple triggers before the tick runs collapse into one.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// ActiveState returns the last recorded per-tick state.
func (r *Runner) ActiveState() ActiveState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// StartBoost activates a boost override for the given mode. The infinite
// sentinel pins the end time far in the future.
func (r *Runner) StartBoost(ctx context.Context, modeID string, durationMinutes int) error {
	if _, err := r.store.Mode(ctx, modeID); err != nil {
		return err
	}

	endTime := r.now().Add(time.Duration(durationMinutes) * time.Minute)
	if durationMinutes == InfiniteDurationMinutes {
		endTime = infiniteEndTime
	}

	err := r.store.SetOverride(ctx, Override{
		ModeID:          modeID,
		EndTime:         endTime,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return fmt.Errorf("starting boost: %w", err)
	}

	r.logger.Info("boost started", "mode", modeID, "minutes", durationMinutes)
	r.Trigger()
	return nil
}

// CancelBoost removes any active boost override.
func (r *Runner) CancelBoost(ctx context.Context) error {
	if err := r.store.ClearOverride(ctx); err != nil {
		return fmt.Errorf("cancelling boost: %w", err)
	}
	r.logger.Info("boost cancelled")
	r.Trigger()
	return nil
}

// tickLoop runs one tick immediately, then on every interval or trigger.
func (r *Runner) tickLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	r.safeTick(ctx)

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.safeTick(ctx)
		case <-r.trigger:
			r.safeTick(ctx)
		}
	}
}

// safeTick wraps the tick body so one bad cycle can never stop the loop.
func (r *Runner) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("timeline tick panicked", "panic", rec)
		}
	}()
	r.runTick(ctx)
}

// runTick is one resolution cycle: decide the intent, apply valves and HRU
// setpoints independently, and record the decided state regardless of apply
// failures so status always reflects the decision.
func (r *Runner) runTick(ctx context.Context) {
	events, err := r.store.Events(ctx)
	if err != nil {
		r.logger.Error("loading events failed", "error", err)
		return
	}
	modes, err := r.store.Modes(ctx)
	if err != nil {
		r.logger.Error("loading modes failed", "error", err)
		return
	}
	override, err := r.store.Override(ctx)
	if err != nil {
		r.logger.Error("loading override failed", "error", err)
		return
	}

	intent := Resolve(r.now(), events, modes, override)

	defer r.record(intent.State())

	if intent.ClearOverride {
		if err := r.store.ClearOverride(ctx); err != nil {
			r.logger.Error("clearing stale override failed", "error", err)
		} else {
			r.logger.Info("stale override cleared")
		}
	}

	// Valve and HRU applies are independent: neither failure aborts the
	// other or the tick.
	if len(intent.Luftator) > 0 && r.valves != nil {
		if err := r.valves.Apply(ctx, intent.Luftator); err != nil {
			r.logger.Warn("valve apply failed", "error", err)
		}
	}

	if intent.Config != nil {
		req := hru.WriteRequest{
			Power:       intent.Config.Power,
			Temperature: intent.Config.Temperature,
			Mode:        intent.Config.Mode,
			Variables:   intent.Config.Variables,
		}
		if err := r.device.WriteValues(ctx, req); err != nil {
			if errors.Is(err, hru.ErrNotConfigured) {
				r.logger.Debug("tick skipped, no unit configured")
			} else {
				r.logger.Warn("setpoint apply failed", "error", err, "source", intent.Source)
			}
		}
	}
}

// record stores the decided state and notifies the tick callback.
func (r *Runner) record(state ActiveState) {
	r.mu.Lock()
	r.active = state
	r.mu.Unlock()
	if r.onTick != nil {
		r.onTick(state)
	}
}

// keepAliveLoop re-issues the strategy's keep-alive at its declared period,
// retrying at the fixed fallback interval while none is configured or the
// device is unreachable.
func (r *Runner) keepAliveLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		wait := r.keepAliveRetry

		period, err := r.device.KeepAlive(ctx)
		switch {
		case errors.Is(err, hru.ErrNotConfigured):
			// Nothing to keep alive yet.
		case err != nil:
			r.logger.Warn("keep-alive failed", "error", err)
		case period > 0:
			wait = period
		}

		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
