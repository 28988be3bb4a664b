package models

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Task is an opaque unit of background work. Execute is called at most once,
// by whichever worker popped it.
type Task interface {
	Execute()
}

// TaskFunc adapts a plain function to Task
type TaskFunc func()

func (f TaskFunc) Execute() { f() }

// TaskHandle carries a Task inside an event. Every clone of a TaskCreated
// event points at the same handle, and Claim hands the task out once.
type TaskHandle struct {
	ID   string
	Name string

	task    Task
	claimed atomic.Bool
}

// NewTaskHandle wraps t for publication
func NewTaskHandle(name string, t Task) *TaskHandle {
	return &TaskHandle{
		ID:   uuid.Must(uuid.NewV7()).String(),
		Name: name,
		task: t,
	}
}

// Claim transfers ownership of the task to the caller. Only the first call
// returns ok; later calls (from other recipients of the broadcast) get nil.
func (h *TaskHandle) Claim() (Task, bool) {
	if h == nil || !h.claimed.CompareAndSwap(false, true) {
		return nil, false
	}
	t := h.task
	h.task = nil
	return t, true
}

// Claimed reports whether the task has already been taken
func (h *TaskHandle) Claimed() bool {
	return h != nil && h.claimed.Load()
}

// NewTaskCreated builds the event a producer publishes to hand t to the pool
func NewTaskCreated(source, name string, t Task) Event {
	e := NewEvent(EventTaskCreated, source)
	e.Task = NewTaskHandle(name, t)
	e.Message = name
	return e
}
