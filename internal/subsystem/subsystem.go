// Package subsystem wraps a concrete subsystem with throttled fixed-step
// updates and a per-event-type handler table.
package subsystem

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Fullex26/framecore/internal/eventbus"
	"github.com/Fullex26/framecore/internal/logging"
	"github.com/Fullex26/framecore/pkg/models"
)

var (
	// ErrStop is returned by an update hook to end the loop cleanly
	ErrStop = errors.New("subsystem: stop requested")
	// ErrNotInitialized is returned when the mailbox does not exist yet
	ErrNotInitialized = errors.New("subsystem: not initialized")
)

// Handler reacts to one delivered event. It must not keep ev beyond the call.
type Handler func(ev models.Event)

// Hooks is the contract a concrete subsystem implements
type Hooks interface {
	// Setup runs once, after the mailbox is registered with the bus
	Setup(s *Subsystem) error
	// Update advances the subsystem by exactly dt. A non-nil error stops the loop.
	Update(now, dt time.Duration) error
	// Teardown runs once, before the mailbox is removed
	Teardown(s *Subsystem) error
}

// HookFuncs builds Hooks from optional functions
type HookFuncs struct {
	SetupFn    func(s *Subsystem) error
	UpdateFn   func(now, dt time.Duration) error
	TeardownFn func(s *Subsystem) error
}

func (h HookFuncs) Setup(s *Subsystem) error {
	if h.SetupFn == nil {
		return nil
	}
	return h.SetupFn(s)
}

func (h HookFuncs) Update(now, dt time.Duration) error {
	if h.UpdateFn == nil {
		return nil
	}
	return h.UpdateFn(now, dt)
}

func (h HookFuncs) Teardown(s *Subsystem) error {
	if h.TeardownFn == nil {
		return nil
	}
	return h.TeardownFn(s)
}

// Subsystem throttles its hooks to a fixed frequency. All methods except
// Publish run on the loop goroutine.
type Subsystem struct {
	name   string
	hz     float64
	period time.Duration
	acc    time.Duration

	hooks    Hooks
	iface    atomic.Pointer[eventbus.Interface]
	handlers map[models.EventType]Handler
	log      *slog.Logger

	updates uint64
	handled uint64
	dropped uint64
}

// New creates a subsystem that updates hz times per simulated second
func New(name string, hz float64, hooks Hooks, log *slog.Logger) (*Subsystem, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("subsystem %s: frequency must be positive, got %v", name, hz)
	}
	if hooks == nil {
		return nil, fmt.Errorf("subsystem %s: hooks are required", name)
	}
	period := time.Duration(float64(time.Second) / hz)
	if period <= 0 {
		return nil, fmt.Errorf("subsystem %s: frequency %v too high", name, hz)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Subsystem{
		name:     name,
		hz:       hz,
		period:   period,
		hooks:    hooks,
		handlers: make(map[models.EventType]Handler),
		log:      log.With("subsystem", name),
	}, nil
}

func (s *Subsystem) Name() string          { return s.name }
func (s *Subsystem) Hz() float64           { return s.hz }
func (s *Subsystem) Period() time.Duration { return s.period }

// Accumulated returns simulated time not yet consumed by an update
func (s *Subsystem) Accumulated() time.Duration { return s.acc }

// Updates returns how many times the update hook has completed
func (s *Subsystem) Updates() uint64 { return s.updates }

// Dropped returns how many delivered events had no handler
func (s *Subsystem) Dropped() uint64 { return s.dropped }

// Handled returns how many delivered events reached a handler
func (s *Subsystem) Handled() uint64 { return s.handled }

// Logger returns the subsystem-scoped logger
func (s *Subsystem) Logger() *slog.Logger { return s.log }

// Interface returns the mailbox, nil before Initialize
func (s *Subsystem) Interface() *eventbus.Interface { return s.iface.Load() }

// Initialize creates the mailbox, registers it, then runs Setup. If Setup
// fails the mailbox stays registered; Shutdown removes it.
func (s *Subsystem) Initialize(bus *eventbus.Bus) error {
	if s.iface.Load() != nil {
		return fmt.Errorf("subsystem %s: already initialized", s.name)
	}
	iface := eventbus.NewInterface(s.name)
	if err := bus.Register(iface); err != nil {
		return fmt.Errorf("registering %s: %w", s.name, err)
	}
	s.iface.Store(iface)
	if err := s.hooks.Setup(s); err != nil {
		return fmt.Errorf("setting up %s: %w", s.name, err)
	}
	s.log.Debug("subsystem initialized", "hz", s.hz, "period", s.period)
	return nil
}

// Shutdown runs Teardown, then unregisters and drops the mailbox whatever
// Teardown returned. A subsystem that never initialized is left alone.
func (s *Subsystem) Shutdown(bus *eventbus.Bus) error {
	iface := s.iface.Load()
	if iface == nil {
		return nil
	}
	err := s.hooks.Teardown(s)
	bus.Unregister(iface)
	s.iface.Store(nil)
	s.acc = 0
	if err != nil {
		return fmt.Errorf("tearing down %s: %w", s.name, err)
	}
	return nil
}

// Update adds elapsed to the accumulator and runs one fixed step per whole
// period: deliver pending events, then call the update hook with the period.
// A hook error is returned at once and the remaining steps are skipped.
func (s *Subsystem) Update(now, elapsed time.Duration) error {
	iface := s.iface.Load()
	if iface == nil {
		return ErrNotInitialized
	}
	s.acc += elapsed
	for s.acc >= s.period {
		s.dispatch(iface)
		if err := s.hooks.Update(now, s.period); err != nil {
			return err
		}
		s.acc -= s.period
		s.updates++
	}
	return nil
}

func (s *Subsystem) dispatch(iface *eventbus.Interface) {
	for {
		ev, ok := iface.NextIncoming()
		if !ok {
			return
		}
		h, found := s.handlers[ev.Type]
		if !found {
			s.dropped++
			continue
		}
		h(ev)
		s.handled++
	}
}

// Publish sends ev to the other subsystems on the next routing pass. Safe
// from any goroutine once initialized.
func (s *Subsystem) Publish(ev models.Event) error {
	iface := s.iface.Load()
	if iface == nil {
		return ErrNotInitialized
	}
	if ev.Source == "" {
		ev.Source = s.name
	}
	iface.Publish(ev)
	return nil
}

// AddHandler installs h for events of type t, replacing any previous handler
func (s *Subsystem) AddHandler(t models.EventType, h Handler) {
	s.handlers[t] = h
}

// RemoveHandler drops the handler for t, if any
func (s *Subsystem) RemoveHandler(t models.EventType) {
	delete(s.handlers, t)
}

// HasHandler reports whether t has a handler
func (s *Subsystem) HasHandler(t models.EventType) bool {
	_, ok := s.handlers[t]
	return ok
}
