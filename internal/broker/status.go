package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// TaskStatus is the lifecycle state of a submitted task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskStopped   TaskStatus = "stopped"
	TaskTimeout   TaskStatus = "timeout"
)

// IsTerminal reports whether the task has finished
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskStopped, TaskTimeout:
		return true
	}
	return false
}

// StatusRecord is the shared state of one task
type StatusRecord struct {
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Message      string     `json:"message"`
	Progress     int        `json:"progress"`
	Current      int        `json:"current"`
	Total        int        `json:"total"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ShouldStop   bool       `json:"should_stop"`
	StoppedEarly bool       `json:"stopped_early"`
	SessionID    uint       `json:"session_id,omitempty"`
	Error        string     `json:"error,omitempty"`
}

const (
	keyPrefix = "emlak:task:"
	stopKey   = ":stop"
)

// Key returns the broker key of a task's status record
func Key(taskID string) string {
	return keyPrefix + taskID
}

// StatusStore reads and writes status records. Stop requests live under
// their own key so a worker's progress write never clears one.
type StatusStore struct {
	b   Broker
	ttl time.Duration
	now func() time.Time

	// serializes read-modify-write within this process
	mu sync.Mutex
}

// NewStatusStore creates a store whose records expire ttl after their last write
func NewStatusStore(b Broker, ttl time.Duration) *StatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusStore{b: b, ttl: ttl, now: time.Now}
}

// Save writes rec, stamping UpdatedAt
func (s *StatusStore) Save(ctx context.Context, rec *StatusRecord) error {
	rec.UpdatedAt = s.now().UTC()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.UpdatedAt
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.b.Put(ctx, Key(rec.TaskID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to save status of %s: %w", rec.TaskID, err)
	}
	if err := s.b.Touch(ctx, Key(rec.TaskID)+stopKey, s.ttl); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Load returns the record of a task
func (s *StatusStore) Load(ctx context.Context, taskID string) (*StatusRecord, error) {
	data, err := s.b.Get(ctx, Key(taskID))
	if err != nil {
		return nil, err
	}
	var rec StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt status record %s: %w", taskID, err)
	}
	if !rec.ShouldStop {
		stop, err := s.StopRequested(ctx, taskID)
		if err != nil {
			return nil, err
		}
		rec.ShouldStop = stop
	}
	return &rec, nil
}

// Update applies fn to the stored record and writes it back
func (s *StatusStore) Update(ctx context.Context, taskID string, fn func(*StatusRecord)) (*StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	fn(rec)
	if err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Progress records a progress update of a running task. Percent never
// moves backwards.
func (s *StatusStore) Progress(ctx context.Context, taskID, message string, current, total, percent int) error {
	_, err := s.Update(ctx, taskID, func(r *StatusRecord) {
		if r.Status.IsTerminal() {
			return
		}
		r.Status = TaskRunning
		r.Message = message
		r.Current = current
		r.Total = total
		r.Progress = max(r.Progress, min(percent, 100))
	})
	return err
}

// RequestStop asks the worker running taskID to stop at the next page
// boundary
func (s *StatusStore) RequestStop(ctx context.Context, taskID string) error {
	if _, err := s.b.Get(ctx, Key(taskID)); err != nil {
		return err
	}
	return s.b.Put(ctx, Key(taskID)+stopKey, []byte("1"), s.ttl)
}

// StopRequested reports whether a stop was requested for taskID
func (s *StatusStore) StopRequested(ctx context.Context, taskID string) (bool, error) {
	_, err := s.b.Get(ctx, Key(taskID)+stopKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Active returns the oldest pending or running task
func (s *StatusStore) Active(ctx context.Context) (*StatusRecord, error) {
	keys, err := s.b.Scan(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	var active []*StatusRecord
	for _, k := range keys {
		if strings.HasSuffix(k, stopKey) {
			continue
		}
		rec, err := s.Load(ctx, strings.TrimPrefix(k, keyPrefix))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !rec.Status.IsTerminal() {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.Before(active[j].StartedAt)
	})
	return active[0], nil
}
