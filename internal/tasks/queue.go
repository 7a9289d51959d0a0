package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/models"
)

// ErrEmpty is returned by Claim when no job is ready
var ErrEmpty = errors.New("no job available")

// ErrUnknownJob is returned for an id the queue does not hold
var ErrUnknownJob = errors.New("unknown job")

// Job is a queued request
type Job struct {
	ID       string
	Request  Request
	Attempts int
}

// Queue hands jobs to workers under a lease. A job whose lease runs out is
// claimable again, so a crashed worker's job is redelivered.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Claim(ctx context.Context, workerID string, lease time.Duration) (*Job, error)
	Extend(ctx context.Context, id string, lease time.Duration) error
	Complete(ctx context.Context, id, errMsg string) error
	RequeueExpired(ctx context.Context, now time.Time) (int, error)
}

type memJob struct {
	job        Job
	status     string
	workerID   string
	leaseUntil time.Time
	lastError  string
	seq        int
}

// MemoryQueue is an in-process Queue
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	seq  int
	now  func() time.Time
}

// NewMemoryQueue creates an empty queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: map[string]*memJob{}, now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already queued", job.ID)
	}
	q.seq++
	q.jobs[job.ID] = &memJob{job: job, status: models.JobStatusPending, seq: q.seq}
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context, workerID string, lease time.Duration) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	var ready []*memJob
	for _, j := range q.jobs {
		if j.status == models.JobStatusPending || (j.status == models.JobStatusRunning && now.After(j.leaseUntil)) {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return nil, ErrEmpty
	}
	sort.Slice(ready, func(a, b int) bool { return ready[a].seq < ready[b].seq })

	j := ready[0]
	j.status = models.JobStatusRunning
	j.workerID = workerID
	j.leaseUntil = now.Add(lease)
	j.job.Attempts++
	job := j.job
	return &job, nil
}

func (q *MemoryQueue) Extend(_ context.Context, id string, lease time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.status != models.JobStatusRunning {
		return ErrUnknownJob
	}
	j.leaseUntil = q.now().Add(lease)
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, id, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return ErrUnknownJob
	}
	j.status = models.JobStatusDone
	j.lastError = errMsg
	j.leaseUntil = time.Time{}
	return nil
}

func (q *MemoryQueue) RequeueExpired(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.status == models.JobStatusRunning && now.After(j.leaseUntil) {
			j.status = models.JobStatusPending
			j.workerID = ""
			n++
		}
	}
	return n, nil
}

// Status returns the queue state and last error of a job
func (q *MemoryQueue) Status(id string) (string, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return "", "", false
	}
	return j.status, j.lastError, true
}

// GormQueue is the durable Queue over the scrape_jobs table. Claims are
// optimistic: a conditional update on the row's status and attempt count
// lets exactly one worker win a row.
type GormQueue struct {
	db  *gorm.DB
	now func() time.Time
	log *slog.Logger
}

// NewGormQueue creates a queue over db
func NewGormQueue(db *gorm.DB, logger *slog.Logger) *GormQueue {
	if logger == nil {
		logger = logging.Discard()
	}
	return &GormQueue{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: logger.With("component", "queue"),
	}
}

func (q *GormQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job.Request)
	if err != nil {
		return err
	}
	row := &models.ScrapeJob{
		ID:      job.ID,
		Payload: payload,
		Status:  models.JobStatusPending,
	}
	if err := q.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *GormQueue) Claim(ctx context.Context, workerID string, lease time.Duration) (*Job, error) {
	db := q.db.WithContext(ctx)
	for attempt := 0; attempt < 5; attempt++ {
		now := q.now()
		var row models.ScrapeJob
		err := db.Where("status = ? OR (status = ? AND lease_until < ?)", models.JobStatusPending, models.JobStatusRunning, now).
			Order("created_at, id").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch next job: %w", err)
		}

		until := now.Add(lease)
		res := db.Model(&models.ScrapeJob{}).
			Where("id = ? AND status = ? AND attempts = ?", row.ID, row.Status, row.Attempts).
			UpdateColumns(map[string]interface{}{
				"status":      models.JobStatusRunning,
				"worker_id":   workerID,
				"lease_until": until,
				"attempts":    row.Attempts + 1,
				"updated_at":  now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", row.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// another worker won the row
			continue
		}

		var req Request
		if err := json.Unmarshal(row.Payload, &req); err != nil {
			if cerr := q.Complete(ctx, row.ID, "corrupt payload: "+err.Error()); cerr != nil {
				q.log.Error("failed to retire corrupt job", "job_id", row.ID, "error", cerr)
			}
			return nil, fmt.Errorf("corrupt payload in job %s: %w", row.ID, err)
		}
		return &Job{ID: row.ID, Request: req, Attempts: row.Attempts + 1}, nil
	}
	return nil, ErrEmpty
}

func (q *GormQueue) Extend(ctx context.Context, id string, lease time.Duration) error {
	now := q.now()
	res := q.db.WithContext(ctx).Model(&models.ScrapeJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusRunning).
		UpdateColumns(map[string]interface{}{"lease_until": now.Add(lease), "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownJob
	}
	return nil
}

func (q *GormQueue) Complete(ctx context.Context, id, errMsg string) error {
	now := q.now()
	res := q.db.WithContext(ctx).Model(&models.ScrapeJob{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"status":       models.JobStatusDone,
			"last_error":   errMsg,
			"lease_until":  nil,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownJob
	}
	return nil
}

func (q *GormQueue) RequeueExpired(ctx context.Context, now time.Time) (int, error) {
	res := q.db.WithContext(ctx).Model(&models.ScrapeJob{}).
		Where("status = ? AND lease_until < ?", models.JobStatusRunning, now).
		UpdateColumns(map[string]interface{}{
			"status":     models.JobStatusPending,
			"worker_id":  "",
			"updated_at": q.now(),
		})
	return int(res.RowsAffected), res.Error
}

// Stats counts jobs by status
func (q *GormQueue) Stats(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := q.db.WithContext(ctx).Model(&models.ScrapeJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := map[string]int64{
		models.JobStatusPending: 0,
		models.JobStatusRunning: 0,
		models.JobStatusDone:    0,
	}
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}
