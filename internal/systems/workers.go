// Package systems holds the built-in subsystems the CLI runs on the frame
// loop. None of them reference each other; they meet only on the bus.
package systems

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/pool"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/pkg/models"
)

const WorkersName = "workers"

// Workers owns the task pool. It claims every TaskCreated it receives,
// queues the task, and reports each finished task as a TaskCompleted event.
type Workers struct {
	sub  *subsystem.Subsystem
	pool *pool.Pool
	log  *slog.Logger

	claimed  uint64
	rejected uint64
}

// NewWorkers wraps p in a subsystem. The pool is started in Setup and shut
// down in Teardown.
func NewWorkers(cfg config.WorkersConfig, p *pool.Pool, log *slog.Logger) (*Workers, error) {
	return newWorkers(WorkersName, cfg.Hz, p, log)
}

func newWorkers(name string, hz float64, p *pool.Pool, log *slog.Logger) (*Workers, error) {
	if p == nil {
		return nil, fmt.Errorf("workers: pool is required")
	}
	w := &Workers{pool: p}
	sub, err := subsystem.New(name, hz, w, log)
	if err != nil {
		return nil, err
	}
	w.sub = sub
	w.log = sub.Logger()
	return w, nil
}

func (w *Workers) Subsystem() *subsystem.Subsystem { return w.sub }
func (w *Workers) Pool() *pool.Pool                { return w.pool }

// Claimed returns how many tasks this subsystem took ownership of
func (w *Workers) Claimed() uint64 { return w.claimed }

func (w *Workers) Setup(s *subsystem.Subsystem) error {
	if err := w.pool.Initialize(); err != nil {
		return fmt.Errorf("starting pool: %w", err)
	}
	s.AddHandler(models.EventTaskCreated, w.onTaskCreated)
	return nil
}

func (w *Workers) Update(_, _ time.Duration) error { return nil }

func (w *Workers) Teardown(s *subsystem.Subsystem) error {
	s.RemoveHandler(models.EventTaskCreated)
	if !w.pool.Running() {
		return nil
	}
	return w.pool.Shutdown()
}

func (w *Workers) onTaskCreated(ev models.Event) {
	t, ok := ev.Task.Claim()
	if !ok {
		return
	}
	w.claimed++
	if err := w.pool.QueueTask(w.report(ev.Task, t)); err != nil {
		w.rejected++
		w.log.Warn("task rejected", "task", ev.Task.Name, "error", err)
		w.publishResult(&models.TaskResult{
			TaskID: ev.Task.ID,
			Name:   ev.Task.Name,
			Error:  err.Error(),
		})
	}
}

// Rejected returns how many claimed tasks the pool refused
func (w *Workers) Rejected() uint64 { return w.rejected }

func (w *Workers) publishResult(res *models.TaskResult) {
	ev := models.NewEvent(models.EventTaskCompleted, WorkersName)
	ev.Message = res.Name
	ev.Result = res
	// After teardown there is no mailbox; the result is dropped
	_ = w.sub.Publish(ev)
}

// report wraps t so its outcome is published once it finishes. A panic is
// recorded and re-raised for the pool to contain.
func (w *Workers) report(h *models.TaskHandle, t models.Task) models.Task {
	id, name := h.ID, h.Name
	return models.TaskFunc(func() {
		start := time.Now()
		defer func() {
			r := recover()
			res := &models.TaskResult{
				TaskID:   id,
				Name:     name,
				Duration: time.Since(start),
			}
			if r != nil {
				res.Error = fmt.Sprint(r)
			}
			w.publishResult(res)
			if r != nil {
				panic(r)
			}
		}()
		t.Execute()
	})
}
