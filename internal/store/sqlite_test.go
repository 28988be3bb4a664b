package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Fullex26/framecore/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEvent(id string, typ models.EventType, ts time.Time) models.Event {
	return models.Event{
		ID:        id,
		Type:      typ,
		Timestamp: ts,
		Message:   "test event " + id,
		Source:    "test",
	}
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	// Re-opening runs the migration again and must be idempotent
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	s2.Close()
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestSaveEvents_Batch(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	batch := []models.Event{
		makeEvent("a", models.EventNotice, now),
		makeEvent("b", models.EventHostSample, now),
		makeEvent("c", models.EventNotice, now),
	}
	if err := s.SaveEvents(batch); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}

	count, err := s.GetEventCount(1)
	if err != nil {
		t.Fatalf("GetEventCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestSaveEvents_Empty(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveEvents(nil); err != nil {
		t.Errorf("SaveEvents(nil) = %v", err)
	}
}

func TestSaveEvent_Duplicate(t *testing.T) {
	s := openTestStore(t)
	e := makeEvent("dup", models.EventNotice, time.Now())

	if err := s.SaveEvent(e); err != nil {
		t.Fatalf("first save: %v", err)
	}
	e.Message = "replaced"
	if err := s.SaveEvent(e); err != nil {
		t.Fatalf("second save: %v", err)
	}

	events, err := s.GetRecentEvents(1, 10)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Message != "replaced" {
		t.Errorf("Message = %q, want %q", events[0].Message, "replaced")
	}
}

func TestGetRecentEvents_WindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.SaveEvent(makeEvent("old", models.EventNotice, now.Add(-2*time.Hour)))
	s.SaveEvent(makeEvent("first", models.EventNotice, now.Add(-10*time.Minute)))
	s.SaveEvent(makeEvent("second", models.EventNotice, now.Add(-time.Minute)))

	events, err := s.GetRecentEvents(1, 10)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "second" || events[1].ID != "first" {
		t.Errorf("order = [%s %s], want newest first", events[0].ID, events[1].ID)
	}
}

func TestGetRecentEvents_Limit(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for i := range 5 {
		s.SaveEvent(makeEvent("e"+string(rune('0'+i)), models.EventNotice, now.Add(-time.Duration(i)*time.Second)))
	}

	events, err := s.GetRecentEvents(1, 2)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "e0" {
		t.Errorf("first = %q, want e0", events[0].ID)
	}
}

func TestGetRecentEvents_Empty(t *testing.T) {
	s := openTestStore(t)
	events, err := s.GetRecentEvents(1, 10)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty slice, got %d events", len(events))
	}
}

func TestSaveEvent_PayloadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sample := makeEvent("sample", models.EventHostSample, time.Now().Truncate(time.Second))
	sample.Sample = &models.HostSample{
		Load1:             0.5,
		MemoryUsedPercent: 60,
		DiskUsagePercent:  50,
		Goroutines:        12,
	}
	done := makeEvent("done", models.EventTaskCompleted, time.Now().Add(-time.Second).Truncate(time.Second))
	done.Result = &models.TaskResult{
		TaskID:   "t1",
		Name:     "journal.flush",
		Duration: 3 * time.Millisecond,
		Error:    "disk full",
	}
	created := models.NewTaskCreated("probe", "probe.sample", models.TaskFunc(func() {}))
	created.Timestamp = time.Now().Add(-2 * time.Second)

	if err := s.SaveEvents([]models.Event{sample, done, created}); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}

	events, err := s.GetRecentEvents(24, 10)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	got := events[0]
	if got.Type != models.EventHostSample || got.Sample == nil || got.Sample.DiskUsagePercent != 50 {
		t.Errorf("sample payload lost in round trip: %+v", got)
	}
	got = events[1]
	if got.Result == nil || got.Result.Name != "journal.flush" || got.Result.Duration != 3*time.Millisecond {
		t.Errorf("result payload lost in round trip: %+v", got)
	}
	got = events[2]
	if got.Type != models.EventTaskCreated || got.Task != nil {
		t.Errorf("task handle must not be persisted: %+v", got)
	}
	if got.Message != "probe.sample" {
		t.Errorf("Message = %q, want %q", got.Message, "probe.sample")
	}
}

func TestGetEventCount(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// 3 recent events
	for i := range 3 {
		s.SaveEvent(makeEvent("r"+string(rune('0'+i)), models.EventNotice, now.Add(-time.Duration(i)*time.Minute)))
	}
	// 2 old events
	for i := range 2 {
		s.SaveEvent(makeEvent("o"+string(rune('0'+i)), models.EventNotice, now.Add(-25*time.Hour-time.Duration(i)*time.Minute)))
	}

	count, err := s.GetEventCount(24)
	if err != nil {
		t.Fatalf("GetEventCount: %v", err)
	}
	if count != 3 {
		t.Errorf("got count %d, want 3", count)
	}
}

func TestCountByType(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	s.SaveEvents([]models.Event{
		makeEvent("n1", models.EventNotice, now),
		makeEvent("n2", models.EventNotice, now),
		makeEvent("h1", models.EventHostSample, now),
		makeEvent("old", models.EventStats, now.Add(-48*time.Hour)),
	})

	counts, err := s.CountByType(24)
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if counts["notice"] != 2 {
		t.Errorf("notice = %d, want 2", counts["notice"])
	}
	if counts["host.sample"] != 1 {
		t.Errorf("host.sample = %d, want 1", counts["host.sample"])
	}
	if _, ok := counts["stats"]; ok {
		t.Error("events outside the window should not be counted")
	}
}

func TestSetState_GetState(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetState("key1", "value1"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, err := s.GetState("key1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got != "value1" {
		t.Errorf("got %q, want %q", got, "value1")
	}
}

func TestSetState_Overwrite(t *testing.T) {
	s := openTestStore(t)

	s.SetState("key1", "a")
	s.SetState("key1", "b")

	got, err := s.GetState("key1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got != "b" {
		t.Errorf("got %q, want %q", got, "b")
	}
}

func TestGetState_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetState("nonexistent")
	if err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// 2 old events (60 days ago)
	for i := range 2 {
		s.SaveEvent(makeEvent("old"+string(rune('0'+i)), models.EventNotice, now.AddDate(0, 0, -60)))
	}
	// 3 recent events
	for i := range 3 {
		s.SaveEvent(makeEvent("new"+string(rune('0'+i)), models.EventNotice, now))
	}

	affected, err := s.Prune(30)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if affected != 2 {
		t.Errorf("affected = %d, want 2", affected)
	}

	count, _ := s.GetEventCount(24 * 365)
	if count != 3 {
		t.Errorf("remaining events = %d, want 3", count)
	}
}

func TestPrune_NothingToDelete(t *testing.T) {
	s := openTestStore(t)
	s.SaveEvent(makeEvent("recent", models.EventNotice, time.Now()))

	affected, err := s.Prune(30)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if affected != 0 {
		t.Errorf("affected = %d, want 0", affected)
	}
}
