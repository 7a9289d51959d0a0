package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"emlak-aggregator/internal/broker"
	"emlak-aggregator/internal/logging"
)

// ErrNoActiveTask is returned when a status or stop request names no task
// and none is pending or running
var ErrNoActiveTask = errors.New("no active task")

// Dispatcher accepts job submissions and serves the control plane's status
// and stop requests
type Dispatcher struct {
	queue  Queue
	status *broker.StatusStore
	log    *slog.Logger
	newID  func() string
}

// NewDispatcher creates a dispatcher
func NewDispatcher(queue Queue, status *broker.StatusStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		queue:  queue,
		status: status,
		log:    logger.With("component", "dispatcher"),
		newID:  uuid.NewString,
	}
}

// Submit validates a raw JSON request and queues it
func (d *Dispatcher) Submit(ctx context.Context, raw []byte) (string, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		return "", err
	}
	return d.enqueue(ctx, req)
}

// SubmitRequest validates and queues a request built in code
func (d *Dispatcher) SubmitRequest(ctx context.Context, req Request) (string, error) {
	req, err := req.Normalize()
	if err != nil {
		return "", err
	}
	return d.enqueue(ctx, req)
}

func (d *Dispatcher) enqueue(ctx context.Context, req Request) (string, error) {
	id := d.newID()
	rec := &broker.StatusRecord{
		TaskID:  id,
		Status:  broker.TaskPending,
		Message: fmt.Sprintf("Queued: %d cities on %s", len(req.Cities), req.Platform),
	}
	if err := d.status.Save(ctx, rec); err != nil {
		return "", err
	}
	if err := d.queue.Enqueue(ctx, Job{ID: id, Request: req}); err != nil {
		if _, uerr := d.status.Update(ctx, id, func(r *broker.StatusRecord) {
			r.Status = broker.TaskFailed
			r.Error = err.Error()
		}); uerr != nil {
			d.log.Warn("failed to mark unqueued task failed", "task_id", id, "error", uerr)
		}
		return "", fmt.Errorf("failed to enqueue: %w", err)
	}
	d.log.Info("job submitted",
		"task_id", id,
		"platform", req.Platform,
		"category", req.Category,
		"listing_type", req.ListingType,
		"cities", len(req.Cities))
	return id, nil
}

// Status returns the record of taskID, or of the active task when taskID
// is empty
func (d *Dispatcher) Status(ctx context.Context, taskID string) (*broker.StatusRecord, error) {
	if taskID == "" {
		rec, err := d.status.Active(ctx)
		if errors.Is(err, broker.ErrNotFound) {
			return nil, ErrNoActiveTask
		}
		return rec, err
	}
	return d.status.Load(ctx, taskID)
}

// Stop asks taskID, or the active task when taskID is empty, to stop. It
// returns the id of the task asked.
func (d *Dispatcher) Stop(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		rec, err := d.status.Active(ctx)
		if errors.Is(err, broker.ErrNotFound) {
			return "", ErrNoActiveTask
		}
		if err != nil {
			return "", err
		}
		taskID = rec.TaskID
	}
	if err := d.status.RequestStop(ctx, taskID); err != nil {
		return "", err
	}
	d.log.Info("stop requested", "task_id", taskID)
	return taskID, nil
}
