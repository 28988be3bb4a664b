package systems

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/store"
	"github.com/Fullex26/framecore/internal/subsystem"
	"github.com/Fullex26/framecore/pkg/models"
)

const (
	JournalName = "journal"
	// FlushTask names the batch write the journal hands to the workers
	FlushTask = "journal.flush"
	// PruneTask names the retention sweep
	PruneTask = "journal.prune"

	// State keys written to the store
	StateStarted = "journal.started"
	StateStopped = "journal.stopped"
)

// pruneEvery is the simulated time between retention sweeps
const pruneEvery = time.Hour

// Journal records every event it receives. Each update moves the buffered
// events into a numbered batch and publishes the write as a task. Batches a
// worker has not taken yet are written by Teardown, so nothing received
// before shutdown is lost.
type Journal struct {
	sub       *subsystem.Subsystem
	log       *slog.Logger
	path      string
	retention int

	buf        []models.Event
	sincePrune time.Duration

	mu      sync.Mutex // guards st and pending
	st      *store.Store
	pending map[uint64][]models.Event
	seq     uint64
	written uint64
}

func NewJournal(cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	j := &Journal{
		path:      cfg.Path,
		retention: cfg.RetentionDays,
		pending:   make(map[uint64][]models.Event),
	}
	sub, err := subsystem.New(JournalName, cfg.Hz, j, log)
	if err != nil {
		return nil, err
	}
	j.sub = sub
	j.log = sub.Logger()
	return j, nil
}

func (j *Journal) Subsystem() *subsystem.Subsystem { return j.sub }

// Written returns how many events have been committed to the store
func (j *Journal) Written() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

func (j *Journal) Setup(s *subsystem.Subsystem) error {
	st, err := store.Open(j.path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if err := st.SetState(StateStarted, time.Now().UTC().Format(time.RFC3339)); err != nil {
		st.Close()
		return fmt.Errorf("recording start: %w", err)
	}
	j.mu.Lock()
	j.st = st
	j.mu.Unlock()

	j.prune()
	for _, t := range models.EventTypes() {
		s.AddHandler(t, j.record)
	}
	j.log.Info("journal opened", "path", j.path, "retention_days", j.retention)
	return nil
}

func (j *Journal) Update(_, dt time.Duration) error {
	j.sincePrune += dt
	if j.retention > 0 && j.sincePrune >= pruneEvery {
		j.sincePrune = 0
		if err := j.sub.Publish(models.NewTaskCreated(JournalName, PruneTask, models.TaskFunc(j.prune))); err != nil {
			return err
		}
	}

	if len(j.buf) == 0 {
		return nil
	}
	batch := j.buf
	j.buf = nil

	j.mu.Lock()
	j.seq++
	seq := j.seq
	j.pending[seq] = batch
	j.mu.Unlock()

	return j.sub.Publish(models.NewTaskCreated(JournalName, FlushTask, models.TaskFunc(func() {
		j.flush(seq)
	})))
}

// Teardown drains the mailbox and writes every outstanding batch on the
// calling goroutine before closing the store.
func (j *Journal) Teardown(s *subsystem.Subsystem) error {
	if iface := s.Interface(); iface != nil {
		for {
			ev, ok := iface.NextIncoming()
			if !ok {
				break
			}
			j.record(ev)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.st == nil {
		return nil
	}

	var events []models.Event
	for _, seq := range slices.Sorted(maps.Keys(j.pending)) {
		events = append(events, j.pending[seq]...)
		delete(j.pending, seq)
	}
	events = append(events, j.buf...)
	j.buf = nil

	var errs []error
	if err := j.st.SaveEvents(events); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	} else {
		j.written += uint64(len(events))
	}
	if err := j.st.SetState(StateStopped, time.Now().UTC().Format(time.RFC3339)); err != nil {
		errs = append(errs, fmt.Errorf("recording stop: %w", err))
	}
	if err := j.st.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing journal: %w", err))
	}
	j.st = nil
	j.log.Info("journal closed", "final_batch", len(events), "written", j.written)

	return errors.Join(errs...)
}

func (j *Journal) record(ev models.Event) {
	// Successful completions of the journal's own tasks are not recorded
	if ev.Type == models.EventTaskCompleted && ev.Result != nil &&
		(ev.Result.Name == FlushTask || ev.Result.Name == PruneTask) && ev.Result.Error == "" {
		return
	}
	j.buf = append(j.buf, ev)
}

// flush writes batch seq unless Teardown already took it
func (j *Journal) flush(seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	batch, ok := j.pending[seq]
	if !ok || j.st == nil {
		return
	}
	delete(j.pending, seq)
	if err := j.st.SaveEvents(batch); err != nil {
		j.log.Error("journal write failed", "events", len(batch), "error", err)
		return
	}
	j.written += uint64(len(batch))
}

func (j *Journal) prune() {
	if j.retention <= 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.st == nil {
		return
	}
	n, err := j.st.Prune(j.retention)
	if err != nil {
		j.log.Error("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("journal pruned", "events", n, "retention_days", j.retention)
	}
}
