package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Fullex26/framecore/internal/logging"
)

// ErrAlreadyRegistered is returned when an interface is registered twice
var ErrAlreadyRegistered = errors.New("eventbus: interface already registered")

// Bus is a routing registry of mailboxes. It does not own the interfaces
// registered with it.
type Bus struct {
	mu     sync.RWMutex
	ifaces []*Interface

	// routing passes never overlap, which keeps per-publisher order
	routeMu sync.Mutex

	routed    atomic.Uint64
	delivered atomic.Uint64

	log *slog.Logger
}

// Option configures a Bus
type Option func(*Bus)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates a new event bus
func New(opts ...Option) *Bus {
	b := &Bus{
		ifaces: make([]*Interface, 0),
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds i to the routing set. Registering the same interface twice
// is rejected and leaves the bus unchanged.
func (b *Bus) Register(i *Interface) error {
	if i == nil {
		return errors.New("eventbus: nil interface")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.Contains(b.ifaces, i) {
		return ErrAlreadyRegistered
	}
	b.ifaces = append(b.ifaces, i)
	b.log.Debug("interface registered", "interface", i.Name())
	return nil
}

// Unregister removes i. Removing a non-member is a no-op and reports false.
func (b *Bus) Unregister(i *Interface) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := slices.Index(b.ifaces, i)
	if idx < 0 {
		return false
	}
	b.ifaces = slices.Delete(b.ifaces, idx, idx+1)
	b.log.Debug("interface unregistered", "interface", i.Name())
	return true
}

// Registered reports whether i is currently registered
func (b *Bus) Registered(i *Interface) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.ifaces, i)
}

// Len returns the number of registered interfaces
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ifaces)
}

// Route drains every registered interface's outgoing queue and delivers an
// independent clone of each event to every other registered interface. The
// publisher never receives its own events. Returns the number of events
// drained.
func (b *Bus) Route() int {
	b.routeMu.Lock()
	defer b.routeMu.Unlock()

	b.mu.RLock()
	targets := slices.Clone(b.ifaces)
	b.mu.RUnlock()

	routed := 0
	for _, src := range targets {
		for {
			ev, ok := src.outgoing.TryPop()
			if !ok {
				break
			}
			routed++
			for _, dst := range targets {
				if dst == src {
					continue
				}
				dst.incoming.Push(ev.Clone())
				b.delivered.Add(1)
			}
		}
	}

	b.routed.Add(uint64(routed))
	return routed
}

// Run routes on its own cadence until ctx is cancelled. It is an alternative
// to calling Route from a frame loop.
func (b *Bus) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Route()
			return
		case <-ticker.C:
			b.Route()
		}
	}
}

// Stats reports how many events were routed and how many copies delivered
func (b *Bus) Stats() (routed, delivered uint64) {
	return b.routed.Load(), b.delivered.Load()
}
