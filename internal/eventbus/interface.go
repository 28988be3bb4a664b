// Package eventbus routes events between per-subsystem mailboxes.
package eventbus

import (
	"github.com/Fullex26/framecore/internal/queue"
	"github.com/Fullex26/framecore/pkg/models"
)

// Interface is one subsystem's mailbox: events it publishes wait in
// outgoing until the next routing pass, and routed events wait in incoming
// until the owner drains them.
type Interface struct {
	name     string
	incoming *queue.Queue[models.Event]
	outgoing *queue.Queue[models.Event]
}

// NewInterface creates an empty mailbox
func NewInterface(name string) *Interface {
	return &Interface{
		name:     name,
		incoming: queue.New[models.Event](),
		outgoing: queue.New[models.Event](),
	}
}

// Name returns the owner's name
func (i *Interface) Name() string { return i.name }

// Publish queues ev for the next routing pass. Safe from any goroutine.
func (i *Interface) Publish(ev models.Event) {
	i.outgoing.Push(ev)
}

// NextIncoming pops the oldest delivered event without blocking
func (i *Interface) NextIncoming() (models.Event, bool) {
	return i.incoming.TryPop()
}

// Pending returns the number of delivered events not yet consumed
func (i *Interface) Pending() int {
	return i.incoming.Len()
}

// Outstanding returns the number of published events not yet routed
func (i *Interface) Outstanding() int {
	return i.outgoing.Len()
}
