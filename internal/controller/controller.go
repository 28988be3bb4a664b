// Package controller owns the subsystems and drives them from a fixed-step
// frame loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Fullex26/framecore/internal/eventbus"
	"github.com/Fullex26/framecore/internal/logging"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/pkg/models"
)

// DefaultTickRate is the simulation rate in substeps per second
const DefaultTickRate = 60

// Name is the source name on events the controller publishes
const Name = "controller"

var (
	ErrStarted    = errors.New("controller: already started")
	ErrNotStarted = errors.New("controller: not started")
)

// StartupError reports the subsystem that aborted startup
type StartupError struct {
	Subsystem string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Subsystem, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Presenter runs once per tick after the simulation substeps. alpha is the
// fraction of a quantum left in the accumulator, for interpolation.
type Presenter interface {
	Present(alpha float64)
}

// PresenterFunc adapts a function to Presenter
type PresenterFunc func(alpha float64)

func (f PresenterFunc) Present(alpha float64) { f(alpha) }

// Stats is a snapshot of loop counters
type Stats struct {
	Ticks    uint64
	Substeps uint64
	MaxBurst int
	SimTime  time.Duration
}

// Controller owns an ordered list of subsystems. Startup, Advance, Run and
// Shutdown must be called from one goroutine.
type Controller struct {
	quantum     time.Duration
	frame       time.Duration
	maxSubsteps int
	presenter   Presenter
	log         *slog.Logger
	throttle    *logging.Throttle
	now         func() time.Time

	bus        *eventbus.Bus
	iface      *eventbus.Interface
	subsystems []*subsystem.Subsystem
	attempted  int
	started    bool

	acc     time.Duration
	simTime atomic.Int64

	ticks    atomic.Uint64
	substeps atomic.Uint64
	maxBurst atomic.Int64
}

// Option configures a Controller
type Option func(*Controller)

// WithTickRate sets the number of fixed substeps per simulated second
func WithTickRate(hz float64) Option {
	return func(c *Controller) {
		if hz > 0 {
			c.quantum = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithMaxFPS paces Run to at most fps ticks per wall-clock second
func WithMaxFPS(fps float64) Option {
	return func(c *Controller) {
		if fps > 0 {
			c.frame = time.Duration(float64(time.Second) / fps)
		}
	}
}

// WithMaxSubsteps caps substeps per tick. Time beyond the cap is discarded.
// Zero, the default, leaves catch-up unbounded.
func WithMaxSubsteps(n int) Option {
	return func(c *Controller) {
		c.maxSubsteps = max(n, 0)
	}
}

// WithPresenter sets the once-per-tick presentation step
func WithPresenter(p Presenter) Option {
	return func(c *Controller) {
		c.presenter = p
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBus routes through an existing bus instead of a private one
func WithBus(b *eventbus.Bus) Option {
	return func(c *Controller) {
		if b != nil {
			c.bus = b
		}
	}
}

// WithClock replaces the wall clock used by Run
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a controller with no subsystems
func New(opts ...Option) *Controller {
	c := &Controller{
		quantum:  time.Second / DefaultTickRate,
		log:      logging.Discard(),
		throttle: logging.NewThrottle(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = eventbus.New(eventbus.WithLogger(c.log))
	}
	if c.frame <= 0 {
		c.frame = c.quantum
	}
	return c
}

// Quantum returns the fixed simulation step
func (c *Controller) Quantum() time.Duration { return c.quantum }

// Bus returns the bus the subsystems are registered with
func (c *Controller) Bus() *eventbus.Bus { return c.bus }

// Subsystems returns the subsystems in update order
func (c *Controller) Subsystems() []*subsystem.Subsystem {
	return c.subsystems
}

// Add appends s to the update order. Order is also startup order.
func (c *Controller) Add(s *subsystem.Subsystem) error {
	if c.started {
		return ErrStarted
	}
	for _, existing := range c.subsystems {
		if existing.Name() == s.Name() {
			return fmt.Errorf("controller: duplicate subsystem %q", s.Name())
		}
	}
	c.subsystems = append(c.subsystems, s)
	return nil
}

// Startup initializes subsystems strictly in order and stops at the first
// failure. Whatever was attempted, including the failed one, is torn down by
// Shutdown.
func (c *Controller) Startup() error {
	if c.started {
		return ErrStarted
	}
	c.started = true

	c.iface = eventbus.NewInterface(Name)
	if err := c.bus.Register(c.iface); err != nil {
		return fmt.Errorf("registering controller: %w", err)
	}

	for _, s := range c.subsystems {
		c.attempted++
		if err := s.Initialize(c.bus); err != nil {
			c.log.Error("subsystem failed to start", "subsystem", s.Name(), "error", err)
			return &StartupError{Subsystem: s.Name(), Err: err}
		}
		c.notify(models.EventSubsystemStarted, s.Name())
		c.log.Info("subsystem started", "subsystem", s.Name(), "hz", s.Hz())
	}

	c.log.Info("controller started",
		"subsystems", len(c.subsystems),
		"quantum", c.quantum,
		"frame", c.frame,
		"max_substeps", c.maxSubsteps,
	)
	return nil
}

// Advance runs one tick for a wall-clock delta: route pending events, run
// every whole quantum of accumulated time through all subsystems in order,
// then present once. It returns the number of substeps run. A subsystem
// error ends the tick immediately and is returned wrapped.
func (c *Controller) Advance(delta time.Duration) (int, error) {
	if !c.started {
		return 0, ErrNotStarted
	}
	c.ticks.Add(1)
	c.route()

	c.acc += max(delta, 0)
	steps := 0
	for c.acc >= c.quantum {
		if c.maxSubsteps > 0 && steps >= c.maxSubsteps {
			skipped := c.acc - c.acc%c.quantum
			c.acc %= c.quantum
			if c.throttle.Allow("substep-cap") {
				c.log.Warn("frame loop falling behind, discarding time",
					"substeps", steps,
					"skipped", skipped,
				)
			}
			break
		}

		now := time.Duration(c.simTime.Load())
		for _, s := range c.subsystems {
			if err := s.Update(now, c.quantum); err != nil {
				c.recordBurst(steps)
				return steps, fmt.Errorf("updating %s: %w", s.Name(), err)
			}
		}
		c.simTime.Add(int64(c.quantum))
		c.acc -= c.quantum
		c.substeps.Add(1)
		steps++
	}
	c.recordBurst(steps)

	if c.maxSubsteps == 0 && steps > int(time.Second/c.quantum) && c.throttle.Allow("catch-up") {
		c.log.Warn("large catch-up burst", "substeps", steps)
	}

	if c.presenter != nil {
		c.presenter.Present(float64(c.acc) / float64(c.quantum))
	}
	return steps, nil
}

// Run ticks at the configured frame rate until ctx is done or a subsystem
// fails. subsystem.ErrStop ends the loop without error.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started {
		return ErrNotStarted
	}

	ticker := time.NewTicker(c.frame)
	defer ticker.Stop()

	last := c.now()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("frame loop stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}

		now := c.now()
		delta := now.Sub(last)
		last = now

		if _, err := c.Advance(delta); err != nil {
			if errors.Is(err, subsystem.ErrStop) {
				c.log.Info("frame loop stopped", "reason", err)
				return nil
			}
			c.log.Error("frame loop halted", "error", err)
			return err
		}
	}
}

// Shutdown tears subsystems down in reverse creation order. Subsystems that
// were never initialized are skipped; teardown errors are collected and
// joined.
func (c *Controller) Shutdown() error {
	if !c.started {
		return ErrNotStarted
	}

	var errs []error
	for i := c.attempted - 1; i >= 0; i-- {
		s := c.subsystems[i]
		if err := s.Shutdown(c.bus); err != nil {
			c.log.Error("subsystem teardown failed", "subsystem", s.Name(), "error", err)
			errs = append(errs, err)
		}
		// Subsystems still up see the notice in their mailbox
		c.notify(models.EventSubsystemStopped, s.Name())
		c.route()
		c.log.Info("subsystem stopped", "subsystem", s.Name())
	}
	c.attempted = 0

	c.bus.Unregister(c.iface)
	c.started = false

	s := c.Stats()
	c.log.Info("controller stopped", "ticks", s.Ticks, "substeps", s.Substeps, "max_burst", s.MaxBurst)
	return errors.Join(errs...)
}

// Stats returns loop counters. Safe from any goroutine.
func (c *Controller) Stats() Stats {
	return Stats{
		Ticks:    c.ticks.Load(),
		Substeps: c.substeps.Load(),
		MaxBurst: int(c.maxBurst.Load()),
		SimTime:  time.Duration(c.simTime.Load()),
	}
}

// route runs a routing pass. The controller only publishes, so whatever the
// bus delivers to its own mailbox is discarded.
func (c *Controller) route() {
	c.bus.Route()
	for {
		if _, ok := c.iface.NextIncoming(); !ok {
			return
		}
	}
}

// Pending returns events delivered to the controller's mailbox and not yet
// discarded
func (c *Controller) Pending() int {
	if c.iface == nil {
		return 0
	}
	return c.iface.Pending()
}

func (c *Controller) notify(t models.EventType, name string) {
	ev := models.NewEvent(t, Name)
	ev.Message = name
	c.iface.Publish(ev)
}

func (c *Controller) recordBurst(steps int) {
	for {
		old := c.maxBurst.Load()
		if int64(steps) <= old || c.maxBurst.CompareAndSwap(old, int64(steps)) {
			return
		}
	}
}
