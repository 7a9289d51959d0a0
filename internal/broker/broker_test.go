package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryBrokerExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	b := NewMemoryBroker()
	b.SetClock(clock.now)

	if err := b.Put(ctx, "emlak:task:a", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b.Put(ctx, "emlak:task:b", []byte("y"), 0)
	b.Put(ctx, "other", []byte("z"), time.Minute)

	keys, _ := b.Scan(ctx, "emlak:task:")
	if len(keys) != 2 || keys[0] != "emlak:task:a" {
		t.Errorf("Scan = %v", keys)
	}

	clock.advance(59 * time.Second)
	if err := b.Touch(ctx, "emlak:task:a", time.Minute); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	clock.advance(59 * time.Second)
	if v, err := b.Get(ctx, "emlak:task:a"); err != nil || string(v) != "x" {
		t.Errorf("touched key = %q %v", v, err)
	}

	clock.advance(time.Second)
	if _, err := b.Get(ctx, "emlak:task:a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key err = %v", err)
	}
	if err := b.Touch(ctx, "other", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Errorf("touch expired err = %v", err)
	}
	if _, err := b.Get(ctx, "emlak:task:b"); err != nil {
		t.Errorf("key without ttl expired: %v", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	b := NewMemoryBroker()
	b.SetClock(clock.now)
	s := NewStatusStore(b, time.Hour)
	s.now = clock.now

	if err := s.Save(ctx, &StatusRecord{TaskID: "t1", Status: TaskPending, Message: "queued"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tests := []struct {
		msg     string
		percent int
		want    int
	}{
		{"Istanbul 1/3", 10, 10},
		{"Istanbul 2/3", 40, 40},
		{"late update", 30, 40},
		{"overshoot", 130, 100},
	}
	for _, tt := range tests {
		clock.advance(time.Second)
		if err := s.Progress(ctx, "t1", tt.msg, 1, 3, tt.percent); err != nil {
			t.Fatalf("Progress: %v", err)
		}
		rec, _ := s.Load(ctx, "t1")
		if rec.Progress != tt.want || rec.Status != TaskRunning || rec.Message != tt.msg {
			t.Errorf("after %q: %+v", tt.msg, rec)
		}
	}

	rec, _ := s.Update(ctx, "t1", func(r *StatusRecord) { r.Status = TaskCompleted })
	if !rec.UpdatedAt.After(rec.StartedAt) {
		t.Errorf("updated_at %v not after started_at %v", rec.UpdatedAt, rec.StartedAt)
	}
	s.Progress(ctx, "t1", "ignored", 0, 0, 100)
	rec, _ = s.Load(ctx, "t1")
	if rec.Status != TaskCompleted || rec.Message == "ignored" {
		t.Errorf("terminal record changed: %+v", rec)
	}

	clock.advance(2 * time.Hour)
	if _, err := s.Load(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record outlived its ttl: %v", err)
	}
}

func TestStopSurvivesProgressWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStatusStore(NewMemoryBroker(), time.Hour)

	if err := s.RequestStop(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stop of unknown task err = %v", err)
	}

	s.Save(ctx, &StatusRecord{TaskID: "t1", Status: TaskRunning})
	stale, _ := s.Load(ctx, "t1")

	if err := s.RequestStop(ctx, "t1"); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	// a worker writing back a copy read before the stop
	stale.Message = "page 4"
	if err := s.Save(ctx, stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stop, err := s.StopRequested(ctx, "t1")
	if err != nil || !stop {
		t.Errorf("StopRequested = %v %v; want true", stop, err)
	}
	rec, _ := s.Load(ctx, "t1")
	if !rec.ShouldStop {
		t.Errorf("loaded record lost should_stop")
	}
}

func TestActive(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStatusStore(NewMemoryBroker(), time.Hour)
	s.now = clock.now

	if _, err := s.Active(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty Active err = %v", err)
	}

	s.Save(ctx, &StatusRecord{TaskID: "done", Status: TaskCompleted})
	clock.advance(time.Minute)
	s.Save(ctx, &StatusRecord{TaskID: "older", Status: TaskRunning})
	clock.advance(time.Minute)
	s.Save(ctx, &StatusRecord{TaskID: "newer", Status: TaskPending})
	s.RequestStop(ctx, "newer")

	rec, err := s.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if rec.TaskID != "older" {
		t.Errorf("Active = %s; want older", rec.TaskID)
	}
}
