// Package pool runs Tasks on a fixed set of worker goroutines fed from one
// shared queue.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Fullex26/framecore/internal/logging"
	"github.com/Fullex26/framecore/internal/queue"
	"github.com/Fullex26/framecore/pkg/models"
)

// DefaultBackoff is how long an idle worker sleeps before polling again when
// no wakeup arrives. It is the upper bound on pickup latency.
const DefaultBackoff = time.Second

var (
	ErrAlreadyRunning = errors.New("pool: already running")
	ErrNotRunning     = errors.New("pool: not running")
)

// ShutdownPolicy decides what happens to tasks still queued at shutdown
type ShutdownPolicy int

const (
	// Abandon discards queued tasks without running them
	Abandon ShutdownPolicy = iota
	// Drain runs queued tasks on the goroutine calling Shutdown, after the
	// workers have exited
	Drain
)

func (s ShutdownPolicy) String() string {
	switch s {
	case Abandon:
		return "abandon"
	case Drain:
		return "drain"
	}
	return "unknown"
}

// ParseShutdownPolicy accepts "abandon" or "drain"
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch strings.ToLower(s) {
	case "", "abandon":
		return Abandon, nil
	case "drain":
		return Drain, nil
	}
	return Abandon, fmt.Errorf("unknown shutdown policy %q (must be abandon or drain)", s)
}

// PanicHandler observes a task that panicked. The worker survives.
type PanicHandler func(task models.Task, recovered any, stack []byte)

// Option configures a Pool
type Option func(*Pool)

// WithWorkers fixes the worker count. Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBackoff sets the idle polling interval
func WithBackoff(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.backoff = d
		}
	}
}

// WithShutdownPolicy selects abandon or drain
func WithShutdownPolicy(s ShutdownPolicy) Option {
	return func(p *Pool) {
		p.policy = s
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithPanicHandler installs a hook called after a task panics
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.panicHandler = h
	}
}

// Stats is a snapshot of pool counters
type Stats struct {
	Workers   int
	Depth     int
	Queued    uint64
	Executed  uint64
	Panicked  uint64
	Abandoned uint64
	Drained   uint64
}

// Pool is a fixed-size set of workers consuming one shared task queue
type Pool struct {
	workers      int
	backoff      time.Duration
	policy       ShutdownPolicy
	log          *slog.Logger
	panicHandler PanicHandler
	noWake       bool // polling only, for latency tests

	// lifecycle guards running transitions against QueueTask
	lifecycle sync.RWMutex
	running   atomic.Bool
	tasks     *queue.Queue[models.Task]
	wake      chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup

	queued    atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
	abandoned atomic.Uint64
	drained   atomic.Uint64
}

// New creates a stopped pool
func New(opts ...Option) *Pool {
	p := &Pool{
		backoff: DefaultBackoff,
		policy:  Abandon,
		log:     logging.Discard(),
		tasks:   queue.New[models.Task](),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = max(runtime.GOMAXPROCS(0), 1)
	}
	return p
}

// Initialize spawns the workers
func (p *Pool) Initialize() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.wake = make(chan struct{}, p.workers)
	p.stop = make(chan struct{})
	p.running.Store(true)

	for i := range p.workers {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.Info("worker pool started", "workers", p.workers, "backoff", p.backoff, "shutdown", p.policy)
	return nil
}

// QueueTask hands t to the pool. Safe from any goroutine. The caller must
// not touch t afterwards.
func (p *Pool) QueueTask(t models.Task) error {
	if t == nil {
		return errors.New("pool: nil task")
	}

	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()

	if !p.running.Load() {
		return ErrNotRunning
	}
	p.tasks.Push(t)
	p.queued.Add(1)

	if !p.noWake {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Shutdown clears the running flag, joins every worker, then applies the
// shutdown policy to whatever is still queued. It returns only after all
// workers have exited.
func (p *Pool) Shutdown() error {
	p.lifecycle.Lock()
	if !p.running.Load() {
		p.lifecycle.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.stop)
	p.lifecycle.Unlock()

	p.wg.Wait()

	left := p.tasks.Drain()
	switch p.policy {
	case Drain:
		for _, t := range left {
			p.execute(-1, t)
			p.drained.Add(1)
		}
		if len(left) > 0 {
			p.log.Info("drained queued tasks", "count", len(left))
		}
	default:
		p.abandoned.Add(uint64(len(left)))
		if len(left) > 0 {
			p.log.Warn("abandoned queued tasks", "count", len(left))
		}
	}

	p.log.Info("worker pool stopped")
	return nil
}

// Running reports whether workers are active
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Workers returns the configured worker count
func (p *Pool) Workers() int {
	return p.workers
}

// Len returns the number of tasks waiting in the queue
func (p *Pool) Len() int {
	return p.tasks.Len()
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Depth:     p.tasks.Len(),
		Queued:    p.queued.Load(),
		Executed:  p.executed.Load(),
		Panicked:  p.panicked.Load(),
		Abandoned: p.abandoned.Load(),
		Drained:   p.drained.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	idle := time.NewTimer(p.backoff)
	defer idle.Stop()

	for p.running.Load() {
		if t, ok := p.tasks.TryPop(); ok {
			p.execute(id, t)
			continue
		}

		idle.Reset(p.backoff)
		select {
		case <-p.wake:
		case <-p.stop:
		case <-idle.C:
		}
	}
}

// execute runs one task and disposes of it. A panic is contained to the task.
func (p *Pool) execute(worker int, t models.Task) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := debug.Stack()
		p.panicked.Add(1)
		p.log.Error("task panicked", "worker", worker, "panic", r, "stack", string(stack))

		if p.panicHandler != nil {
			func() {
				defer func() { _ = recover() }()
				p.panicHandler(t, r, stack)
			}()
		}
	}()

	t.Execute()
	p.executed.Add(1)
}
