package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/controller"
	"github.com/Fullex26/framecore/internal/logging"
	"github.com/Fullex26/framecore/internal/pool"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/internal/systems"
)

// Version is set at build time via ldflags: -X github.com/Fullex26/framecore/internal/daemon.Version=<tag>
var Version = "dev"

// Daemon wires the frame loop, the task pool and the built-in subsystems
type Daemon struct {
	cfg  *config.Config
	log  *slog.Logger
	ctrl *controller.Controller
	pool *pool.Pool
}

// New builds every enabled subsystem in update order: workers, probe,
// journal, monitor. Nothing is started until Run.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.Discard()
	}

	policy, err := pool.ParseShutdownPolicy(cfg.Pool.Shutdown)
	if err != nil {
		return nil, err
	}
	p := pool.New(
		pool.WithWorkers(cfg.Pool.Workers),
		pool.WithBackoff(cfg.Backoff()),
		pool.WithShutdownPolicy(policy),
		pool.WithLogger(log.With("component", "pool")),
	)

	ctrl := controller.New(
		controller.WithTickRate(cfg.Loop.TickRate),
		controller.WithMaxFPS(cfg.Loop.MaxFPS),
		controller.WithMaxSubsteps(cfg.Loop.MaxSubsteps),
		controller.WithLogger(log.With("component", "controller")),
	)

	d := &Daemon{cfg: cfg, log: log, ctrl: ctrl, pool: p}

	var subs []*subsystem.Subsystem

	workers, err := systems.NewWorkers(cfg.Subsystems.Workers, p, log)
	if err != nil {
		return nil, err
	}
	subs = append(subs, workers.Subsystem())

	if cfg.Subsystems.Probe.Enabled {
		probe, err := systems.NewProbe(cfg.Subsystems.Probe, log)
		if err != nil {
			return nil, err
		}
		subs = append(subs, probe.Subsystem())
	}

	if cfg.Subsystems.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Subsystems.Journal.Path), 0750); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
		journal, err := systems.NewJournal(cfg.Subsystems.Journal, log)
		if err != nil {
			return nil, err
		}
		subs = append(subs, journal.Subsystem())
	}

	if cfg.Subsystems.Monitor.Enabled {
		monitor, err := systems.NewMonitor(cfg.Subsystems.Monitor, cfg.Pool.QueueWarn, ctrl, ctrl.Bus(), p, log)
		if err != nil {
			return nil, err
		}
		subs = append(subs, monitor.Subsystem())
	}

	for _, s := range subs {
		if err := ctrl.Add(s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Controller exposes the frame loop
func (d *Daemon) Controller() *controller.Controller { return d.ctrl }

// Pool exposes the task pool
func (d *Daemon) Pool() *pool.Pool { return d.pool }

// Run starts every subsystem, runs the loop until ctx is done or a
// subsystem stops it, then shuts everything down in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.ctrl.Startup(); err != nil {
		return errors.Join(err, d.ctrl.Shutdown())
	}

	hostname, _ := os.Hostname()
	d.log.Info("framecore started",
		"version", Version,
		"hostname", hostname,
		"subsystems", len(d.ctrl.Subsystems()),
		"workers", d.pool.Workers(),
	)

	start := time.Now()
	runErr := d.ctrl.Run(ctx)
	if err := d.ctrl.Shutdown(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	ps := d.pool.Stats()
	d.log.Info("framecore stopped",
		"uptime", time.Since(start).Round(time.Second),
		"tasks_executed", ps.Executed,
		"tasks_panicked", ps.Panicked,
		"tasks_abandoned", ps.Abandoned,
		"tasks_drained", ps.Drained,
	)
	return runErr
}

// ScheduleEntry describes one subsystem's update cadence
type ScheduleEntry struct {
	Name    string
	Hz      float64
	Period  time.Duration
	Enabled bool
}

// Schedule resolves the update order and cadence the config would run
func Schedule(cfg *config.Config) []ScheduleEntry {
	entry := func(name string, hz float64, enabled bool) ScheduleEntry {
		e := ScheduleEntry{Name: name, Hz: hz, Enabled: enabled}
		if hz > 0 {
			e.Period = time.Duration(float64(time.Second) / hz)
		}
		return e
	}
	s := cfg.Subsystems
	return []ScheduleEntry{
		entry(systems.WorkersName, s.Workers.Hz, true),
		entry(systems.ProbeName, s.Probe.Hz, s.Probe.Enabled),
		entry(systems.JournalName, s.Journal.Hz, s.Journal.Enabled),
		entry(systems.MonitorName, s.Monitor.Hz, s.Monitor.Enabled),
	}
}
