package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the stable identifier used to route events to handlers.
// Values are persisted by the journal, so append only.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventTaskCreated
	EventTaskCompleted
	EventSubsystemStarted
	EventSubsystemStopped
	EventHostSample
	EventStats
	EventNotice

	eventTypeCount
)

var eventTypeNames = [...]string{
	EventUnknown:          "unknown",
	EventTaskCreated:      "task.created",
	EventTaskCompleted:    "task.completed",
	EventSubsystemStarted: "subsystem.started",
	EventSubsystemStopped: "subsystem.stopped",
	EventHostSample:       "host.sample",
	EventStats:            "stats",
	EventNotice:           "notice",
}

func (t EventType) String() string {
	if t < eventTypeCount {
		return eventTypeNames[t]
	}
	return "unknown"
}

// Valid reports whether t is a known, non-zero event type.
func (t EventType) Valid() bool {
	return t > EventUnknown && t < eventTypeCount
}

// EventTypes lists every valid event type in declaration order
func EventTypes() []EventType {
	types := make([]EventType, 0, eventTypeCount-1)
	for t := EventUnknown + 1; t < eventTypeCount; t++ {
		types = append(types, t)
	}
	return types
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, bool) {
	for i, name := range eventTypeNames {
		if name == s && EventType(i) != EventUnknown {
			return EventType(i), true
		}
	}
	return EventUnknown, false
}

// TaskResult describes a finished task
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// HostSample holds host load metrics collected off the loop thread
type HostSample struct {
	Load1             float64 `json:"load1"`
	Load5             float64 `json:"load5"`
	Load15            float64 `json:"load15"`
	MemoryUsedPercent int     `json:"memory_used_percent"`
	DiskUsagePercent  int     `json:"disk_usage_percent"`
	Goroutines        int     `json:"goroutines"`
}

// Stats is a point-in-time snapshot of the scheduler and its pool
type Stats struct {
	Ticks           uint64 `json:"ticks"`
	Substeps        uint64 `json:"substeps"`
	MaxBurst        int    `json:"max_burst"`
	EventsRouted    uint64 `json:"events_routed"`
	EventsDelivered uint64 `json:"events_delivered"`
	TasksQueued     uint64 `json:"tasks_queued"`
	TasksExecuted   uint64 `json:"tasks_executed"`
	TasksPanicked   uint64 `json:"tasks_panicked"`
	QueueDepth      int    `json:"queue_depth"`
}

// Event is an immutable message exchanged between subsystems.
// At most one of the typed payloads is set, selected by Type.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message,omitempty"`

	// Optional typed payloads
	Task   *TaskHandle `json:"-"`
	Result *TaskResult `json:"result,omitempty"`
	Sample *HostSample `json:"sample,omitempty"`
	Stats  *Stats      `json:"stats,omitempty"`
}

// NewEvent stamps a fresh event of the given type
func NewEvent(t EventType, source string) Event {
	return Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      t,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// Clone returns a copy that shares no mutable payload with e, so each
// recipient can consume its copy independently. The task handle is the one
// exception: it is the ownership token and is shared on purpose.
func (e Event) Clone() Event {
	c := e
	if e.Result != nil {
		r := *e.Result
		c.Result = &r
	}
	if e.Sample != nil {
		s := *e.Sample
		c.Sample = &s
	}
	if e.Stats != nil {
		s := *e.Stats
		c.Stats = &s
	}
	return c
}
