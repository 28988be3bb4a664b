package systems

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Fullex26/framecore/internal/eventbus"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/pkg/models"
)

// collector is a bare subsystem that keeps whatever it receives
type collector struct {
	sub    *subsystem.Subsystem
	bus    *eventbus.Bus
	events []models.Event
}

func newCollector(t *testing.T, bus *eventbus.Bus, name string, types ...models.EventType) *collector {
	t.Helper()
	c := &collector{bus: bus}
	sub, err := subsystem.New(name, 60, subsystem.HookFuncs{}, nil)
	require.NoError(t, err)
	require.NoError(t, sub.Initialize(bus))
	for _, typ := range types {
		sub.AddHandler(typ, func(ev models.Event) { c.events = append(c.events, ev) })
	}
	c.sub = sub
	t.Cleanup(func() { sub.Shutdown(bus) })
	return c
}

// pump routes and runs exactly one step so queued events are dispatched
func (c *collector) pump(t *testing.T) {
	t.Helper()
	c.bus.Route()
	require.NoError(t, c.sub.Update(0, c.sub.Period()))
}

func (c *collector) ofType(typ models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// runClaimed claims and runs every task collected so far, inline
func (c *collector) runClaimed() int {
	n := 0
	for _, ev := range c.ofType(models.EventTaskCreated) {
		if task, ok := ev.Task.Claim(); ok {
			task.Execute()
			n++
		}
	}
	return n
}

// step runs exactly one update of s
func step(t *testing.T, s *subsystem.Subsystem) {
	t.Helper()
	require.NoError(t, s.Update(0, s.Period()))
}
