package systems

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/pkg/models"
)

const (
	ProbeName = "probe"
	// SampleTask names the task the probe hands to the workers
	SampleTask = "probe.sample"
	// reclaimAfter is how long a published sample may sit unclaimed before
	// the probe takes it back
	reclaimAfter = 5 * time.Second
)

// Probe samples host load at its frequency. Sampling is published as a task
// so the I/O happens on a worker; the result comes back as a HostSample event.
type Probe struct {
	sub      *subsystem.Subsystem
	sampler  *HostSampler
	inflight atomic.Bool
	pending  *models.TaskHandle
	waited   time.Duration

	published uint64
	skipped   uint64
	reclaimed uint64
}

func NewProbe(cfg config.ProbeConfig, log *slog.Logger) (*Probe, error) {
	p := &Probe{sampler: NewHostSampler(cfg.Path)}
	sub, err := subsystem.New(ProbeName, cfg.Hz, p, log)
	if err != nil {
		return nil, err
	}
	p.sub = sub
	return p, nil
}

func (p *Probe) Subsystem() *subsystem.Subsystem { return p.sub }

// Skipped returns how many updates found the previous sample still running
func (p *Probe) Skipped() uint64 { return p.skipped }

// Reclaimed returns how many samples were taken back because nothing
// claimed them
func (p *Probe) Reclaimed() uint64 { return p.reclaimed }

func (p *Probe) Setup(s *subsystem.Subsystem) error {
	s.AddHandler(models.EventTaskCompleted, p.onTaskCompleted)
	return nil
}

func (p *Probe) Update(_, period time.Duration) error {
	// One sample at a time; a slow disk must not pile up tasks
	if p.inflight.Load() {
		p.waited += period
		if p.pending.Claimed() || p.waited < reclaimAfter {
			p.skipped++
			return nil
		}
		if _, ok := p.pending.Claim(); !ok {
			p.skipped++
			return nil
		}
		p.reclaimed++
		p.sub.Logger().Warn("sample task never claimed, republishing",
			"task", p.pending.ID,
			"waited", p.waited,
		)
		p.inflight.Store(false)
	}

	ev := models.NewTaskCreated(ProbeName, SampleTask, models.TaskFunc(p.sample))
	p.inflight.Store(true)
	if err := p.sub.Publish(ev); err != nil {
		p.inflight.Store(false)
		return err
	}
	p.pending = ev.Task
	p.waited = 0
	p.published++
	return nil
}

func (p *Probe) Teardown(s *subsystem.Subsystem) error {
	s.RemoveHandler(models.EventTaskCompleted)
	return nil
}

// onTaskCompleted frees the slot when the pending sample was claimed but
// never ran, e.g. the pool refused it
func (p *Probe) onTaskCompleted(ev models.Event) {
	if ev.Result == nil || p.pending == nil || ev.Result.TaskID != p.pending.ID {
		return
	}
	p.inflight.Store(false)
}

func (p *Probe) sample() {
	defer p.inflight.Store(false)
	s := p.sampler.Sample()
	ev := models.NewEvent(models.EventHostSample, ProbeName)
	ev.Sample = &s
	_ = p.sub.Publish(ev)
}
