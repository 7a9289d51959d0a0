package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"emlak-aggregator/internal/cleanup"
)

type countingTask struct {
	runs atomic.Int32
}

func (c *countingTask) Run(context.Context) (*cleanup.Result, error) {
	c.runs.Add(1)
	return &cleanup.Result{}, nil
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	task := &countingTask{}
	s := NewScheduler("@every 1s", task, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for task.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()
	if task.runs.Load() == 0 {
		t.Errorf("maintenance never ran")
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler("every now and then", &countingTask{}, nil)
	if err := s.Start(); err == nil {
		t.Errorf("bad schedule accepted")
	}
}

func TestSchedulerDisabled(t *testing.T) {
	task := &countingTask{}
	s := NewScheduler("", task, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	if _, err := s.RunNow(context.Background()); err != nil || task.runs.Load() != 1 {
		t.Errorf("RunNow = %v, runs %d", err, task.runs.Load())
	}
}
