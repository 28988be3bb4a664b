package systems

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fullex26/framecore/internal/config"
	"github.com/Fullex26/framecore/internal/eventbus"
	"github.com/Fullex26/framecore/internal/pool"
	"github.com/Fullex26/framecore/pkg/models"
)

func startWorkers(t *testing.T, bus *eventbus.Bus, name string) *Workers {
	t.Helper()
	p := pool.New(pool.WithWorkers(2), pool.WithBackoff(10*time.Millisecond))
	w, err := newWorkers(name, 60, p, nil)
	require.NoError(t, err)
	require.NoError(t, w.Subsystem().Initialize(bus))
	t.Cleanup(func() { w.Subsystem().Shutdown(bus) })
	return w
}

func TestNewWorkers_RequiresPool(t *testing.T) {
	_, err := NewWorkers(config.WorkersConfig{Hz: 60}, nil, nil)
	assert.Error(t, err)
}

func TestWorkers_RunsTaskAndReportsCompletion(t *testing.T) {
	bus := eventbus.New()
	producer := newCollector(t, bus, "producer", models.EventTaskCompleted)
	w := startWorkers(t, bus, WorkersName)

	var ran atomic.Int32
	ev := models.NewTaskCreated("producer", "count", models.TaskFunc(func() { ran.Add(1) }))
	require.NoError(t, producer.sub.Publish(ev))
	bus.Route()
	step(t, w.Subsystem())

	require.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), w.Claimed())

	require.Eventually(t, func() bool {
		return w.Subsystem().Interface().Outstanding() == 1
	}, time.Second, 5*time.Millisecond)
	producer.pump(t)

	done := producer.ofType(models.EventTaskCompleted)
	require.Len(t, done, 1)
	require.NotNil(t, done[0].Result)
	assert.Equal(t, ev.Task.ID, done[0].Result.TaskID)
	assert.Equal(t, "count", done[0].Result.Name)
	assert.Empty(t, done[0].Result.Error)
	assert.Equal(t, WorkersName, done[0].Source)
}

func TestWorkers_BroadcastTaskRunsOnce(t *testing.T) {
	bus := eventbus.New()
	producer := newCollector(t, bus, "producer")
	a := startWorkers(t, bus, "workers-a")
	b := startWorkers(t, bus, "workers-b")

	var ran atomic.Int32
	for range 20 {
		require.NoError(t, producer.sub.Publish(
			models.NewTaskCreated("producer", "once", models.TaskFunc(func() { ran.Add(1) }))))
	}
	bus.Route()
	step(t, a.Subsystem())
	step(t, b.Subsystem())

	assert.Equal(t, uint64(20), a.Claimed()+b.Claimed())
	require.Eventually(t, func() bool { return ran.Load() == 20 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(20), ran.Load())
}

func TestWorkers_PanicReportedAndContained(t *testing.T) {
	bus := eventbus.New()
	producer := newCollector(t, bus, "producer", models.EventTaskCompleted)
	w := startWorkers(t, bus, WorkersName)

	require.NoError(t, producer.sub.Publish(
		models.NewTaskCreated("producer", "explode", models.TaskFunc(func() { panic("kaboom") }))))
	bus.Route()
	step(t, w.Subsystem())

	require.Eventually(t, func() bool { return w.Pool().Stats().Panicked == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return w.Subsystem().Interface().Outstanding() == 1
	}, time.Second, 5*time.Millisecond)
	producer.pump(t)

	done := producer.ofType(models.EventTaskCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, "kaboom", done[0].Result.Error)
	assert.True(t, w.Pool().Running(), "pool survives a panicking task")
}

func TestWorkers_TeardownStopsPool(t *testing.T) {
	bus := eventbus.New()
	p := pool.New(pool.WithWorkers(1))
	w, err := NewWorkers(config.WorkersConfig{Hz: 60}, p, nil)
	require.NoError(t, err)

	require.NoError(t, w.Subsystem().Initialize(bus))
	assert.True(t, p.Running())
	assert.True(t, w.Subsystem().HasHandler(models.EventTaskCreated))

	require.NoError(t, w.Subsystem().Shutdown(bus))
	assert.False(t, p.Running())
	assert.Equal(t, 0, bus.Len())
}

func TestWorkers_SetupFailsWhenPoolAlreadyRunning(t *testing.T) {
	bus := eventbus.New()
	p := pool.New(pool.WithWorkers(1))
	require.NoError(t, p.Initialize())
	t.Cleanup(func() { p.Shutdown() })

	w, err := NewWorkers(config.WorkersConfig{Hz: 60}, p, nil)
	require.NoError(t, err)
	err = w.Subsystem().Initialize(bus)
	assert.ErrorIs(t, err, pool.ErrAlreadyRunning)
}
