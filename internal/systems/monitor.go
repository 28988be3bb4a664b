package systems

import (
	"log/slog"
	"time"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/controller"
	"github.com/Fullex26/framecore/internal/eventbus"
	"github.com/Fullex26/framecore/internal/logging"
	"github.com/Fullex26/framecore/internal/pool"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/pkg/models"
)

const MonitorName = "monitor"

// LoopStats is satisfied by *controller.Controller
type LoopStats interface {
	Stats() controller.Stats
}

// Monitor reports loop, bus and pool counters at its frequency and
// publishes them as a Stats event. It also follows host samples and task
// failures reported by the other subsystems.
type Monitor struct {
	sub       *subsystem.Subsystem
	log       *slog.Logger
	throttle  *logging.Throttle
	queueWarn int

	loop LoopStats
	bus  *eventbus.Bus
	pool *pool.Pool

	last     *models.HostSample
	failures uint64
}

// NewMonitor reports on the given sources; any of them may be nil
func NewMonitor(cfg config.MonitorConfig, queueWarn int, loop LoopStats, bus *eventbus.Bus, p *pool.Pool, log *slog.Logger) (*Monitor, error) {
	m := &Monitor{
		throttle:  logging.NewThrottle(),
		queueWarn: queueWarn,
		loop:      loop,
		bus:       bus,
		pool:      p,
	}
	sub, err := subsystem.New(MonitorName, cfg.Hz, m, log)
	if err != nil {
		return nil, err
	}
	m.sub = sub
	m.log = sub.Logger()
	return m, nil
}

func (m *Monitor) Subsystem() *subsystem.Subsystem { return m.sub }

// Failures returns how many failed tasks have been reported
func (m *Monitor) Failures() uint64 { return m.failures }

// LastSample returns the most recent host sample, nil before the first one
func (m *Monitor) LastSample() *models.HostSample { return m.last }

func (m *Monitor) Setup(s *subsystem.Subsystem) error {
	s.AddHandler(models.EventHostSample, m.onHostSample)
	s.AddHandler(models.EventTaskCompleted, m.onTaskCompleted)
	return nil
}

func (m *Monitor) Update(_, _ time.Duration) error {
	stats := m.Snapshot()

	if m.queueWarn > 0 && stats.QueueDepth > m.queueWarn && m.throttle.Allow("queue-depth") {
		m.log.Warn("task queue above high-water mark",
			"depth", stats.QueueDepth,
			"queue_warn", m.queueWarn,
		)
	}

	attrs := []any{
		"ticks", stats.Ticks,
		"substeps", stats.Substeps,
		"max_burst", stats.MaxBurst,
		"routed", stats.EventsRouted,
		"delivered", stats.EventsDelivered,
		"tasks_executed", stats.TasksExecuted,
		"tasks_panicked", stats.TasksPanicked,
		"queue_depth", stats.QueueDepth,
	}
	if m.last != nil {
		attrs = append(attrs,
			"load1", m.last.Load1,
			"mem_percent", m.last.MemoryUsedPercent,
			"disk_percent", m.last.DiskUsagePercent,
		)
	}
	m.log.Info("stats", attrs...)

	ev := models.NewEvent(models.EventStats, MonitorName)
	ev.Stats = &stats
	return m.sub.Publish(ev)
}

func (m *Monitor) Teardown(*subsystem.Subsystem) error { return nil }

// Snapshot gathers the current counters from every source
func (m *Monitor) Snapshot() models.Stats {
	var s models.Stats
	if m.loop != nil {
		ls := m.loop.Stats()
		s.Ticks = ls.Ticks
		s.Substeps = ls.Substeps
		s.MaxBurst = ls.MaxBurst
	}
	if m.bus != nil {
		s.EventsRouted, s.EventsDelivered = m.bus.Stats()
	}
	if m.pool != nil {
		ps := m.pool.Stats()
		s.TasksQueued = ps.Queued
		s.TasksExecuted = ps.Executed
		s.TasksPanicked = ps.Panicked
		s.QueueDepth = ps.Depth
	}
	return s
}

func (m *Monitor) onHostSample(ev models.Event) {
	if ev.Sample == nil {
		return
	}
	s := *ev.Sample
	m.last = &s
}

func (m *Monitor) onTaskCompleted(ev models.Event) {
	if ev.Result == nil || ev.Result.Error == "" {
		return
	}
	m.failures++
	if m.throttle.Allow("task-failed:" + ev.Result.Name) {
		m.log.Warn("task failed",
			"task", ev.Result.Name,
			"duration", ev.Result.Duration,
			"error", ev.Result.Error,
		)
	}
}
