package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"emlak-aggregator/internal/broker"
	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/models"
	"emlak-aggregator/internal/parser"
	"emlak-aggregator/internal/sites"
	"emlak-aggregator/internal/sites/sitetest"
)

func fieldSet(err error) map[string]bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	out := map[string]bool{}
	for _, f := range ve.Fields {
		out[f.Field] = true
	}
	return out
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		fields []string
	}{
		{"malformed", `{"cities":`, []string{"body"}},
		{"empty cities", `{"listing_type":"for-sale","category":"residence","cities":[]}`, []string{"cities"}},
		{"bad listing type", `{"listing_type":"lease","category":"residence","cities":["Ankara"]}`, []string{"listing_type"}},
		{"negative cap", `{"listing_type":"for-sale","category":"land","cities":["Ankara"],"max_pages":-1}`, []string{"max_pages"}},
		{"unknown city", `{"listing_type":"for-rent","category":"land","cities":["Ankara","Atlantis"]}`, []string{"cities.1"}},
		{"unknown category", `{"listing_type":"for-rent","category":"castle","cities":["Ankara"]}`, []string{"category"}},
		{"district city not listed", `{"listing_type":"for-sale","category":"residence","cities":["Ankara"],"districts":{"izmir":["Karşıyaka"]}}`, []string{"districts.izmir"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.raw))
			got := fieldSet(err)
			if got == nil {
				t.Fatalf("err = %v; want *ValidationError", err)
			}
			for _, f := range tt.fields {
				if !got[f] {
					t.Errorf("fields %v missing %q", got, f)
				}
			}
		})
	}
}

func TestParseRequestNormalizes(t *testing.T) {
	raw := `{
		"platform": "secondary",
		"listing_type": "satilik",
		"category": "konut",
		"cities": ["istanbul", "İSTANBUL", "izmir"],
		"districts": {"Istanbul": ["Kadıköy", " "]},
		"max_listings": 500
	}`
	req, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Platform != "emlakjet" || req.ListingType != "for-sale" || req.Category != "residence" {
		t.Errorf("aliases not resolved: %+v", req)
	}
	if len(req.Cities) != 2 || req.Cities[0] != "İstanbul" || req.Cities[1] != "İzmir" {
		t.Errorf("cities = %v", req.Cities)
	}
	if d := req.Districts["İstanbul"]; len(d) != 1 || d[0] != "Kadıköy" {
		t.Errorf("districts = %v", req.Districts)
	}
	job := req.ScrapeJob()
	if job.MaxListings != 500 || job.Query.Category != parser.CategoryResidence || req.Portal() != parser.PortalSecondary {
		t.Errorf("job = %+v", job)
	}
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	status := broker.NewStatusStore(broker.NewMemoryBroker(), time.Hour)
	queue := NewMemoryQueue()
	d := NewDispatcher(queue, status, nil)

	if _, err := d.Status(ctx, ""); !errors.Is(err, ErrNoActiveTask) {
		t.Errorf("empty Status err = %v", err)
	}
	if _, err := d.Stop(ctx, ""); !errors.Is(err, ErrNoActiveTask) {
		t.Errorf("empty Stop err = %v", err)
	}
	if _, err := d.Submit(ctx, []byte(`{"listing_type":"for-sale","category":"residence","cities":[]}`)); fieldSet(err) == nil {
		t.Errorf("invalid submission err = %v", err)
	}

	id, err := d.Submit(ctx, []byte(`{"listing_type":"for-sale","category":"residence","cities":["Ankara"]}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec, err := d.Status(ctx, id)
	if err != nil || rec.Status != broker.TaskPending {
		t.Fatalf("Status = %+v %v", rec, err)
	}
	active, err := d.Status(ctx, "")
	if err != nil || active.TaskID != id {
		t.Errorf("active = %+v %v", active, err)
	}
	if st, _, ok := queue.Status(id); !ok || st != models.JobStatusPending {
		t.Errorf("queue status = %q %v", st, ok)
	}

	stopped, err := d.Stop(ctx, "")
	if err != nil || stopped != id {
		t.Fatalf("Stop = %q %v", stopped, err)
	}
	if stop, _ := status.StopRequested(ctx, id); !stop {
		t.Errorf("stop flag not set")
	}
}

type refusingQueue struct{ *MemoryQueue }

func (refusingQueue) Enqueue(context.Context, Job) error { return errors.New("queue unavailable") }

func TestDispatcherEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	status := broker.NewStatusStore(broker.NewMemoryBroker(), time.Hour)
	d := NewDispatcher(refusingQueue{NewMemoryQueue()}, status, nil)
	d.newID = func() string { return "task-1" }

	if _, err := d.SubmitRequest(ctx, Request{ListingType: "for-sale", Category: "residence", Cities: []string{"Ankara"}}); err == nil {
		t.Fatal("Submit succeeded on a refusing queue")
	}
	rec, err := status.Load(ctx, "task-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Status != broker.TaskFailed || rec.Error != "queue unavailable" {
		t.Errorf("record = %+v; want failed with the queue error", rec)
	}
}

func TestMemoryQueueLease(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	q := NewMemoryQueue()
	q.now = func() time.Time { return clock }
	exerciseQueue(t, ctx, q, func(d time.Duration) { clock = clock.Add(d) }, func() time.Time { return clock })
}

func TestGormQueueLease(t *testing.T) {
	ctx := context.Background()
	store, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()
	clock := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	q := NewGormQueue(store.DB(), nil)
	q.now = func() time.Time { return clock }
	exerciseQueue(t, ctx, q, func(d time.Duration) { clock = clock.Add(d) }, func() time.Time { return clock })

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[models.JobStatusDone] != 1 || stats[models.JobStatusPending] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestGormQueueRetiresCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()
	row := &models.ScrapeJob{ID: "bad", Payload: []byte(`[1, 2]`), Status: models.JobStatusPending}
	if err := store.DB().Create(row).Error; err != nil {
		t.Fatal(err)
	}

	q := NewGormQueue(store.DB(), nil)
	if _, err := q.Claim(ctx, "w1", time.Minute); err == nil || errors.Is(err, ErrEmpty) {
		t.Fatalf("Claim err = %v; want corrupt payload", err)
	}
	var got models.ScrapeJob
	if err := store.DB().First(&got, "id = ?", "bad").Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobStatusDone || got.LastError == "" {
		t.Errorf("job = %s %q; want done with an error", got.Status, got.LastError)
	}
	if _, err := q.Claim(ctx, "w1", time.Minute); !errors.Is(err, ErrEmpty) {
		t.Errorf("corrupt job claimed again: %v", err)
	}
}

func exerciseQueue(t *testing.T, ctx context.Context, q Queue, advance func(time.Duration), now func() time.Time) {
	t.Helper()
	req := Request{Platform: "hepsiemlak", ListingType: "for-sale", Category: "residence", Cities: []string{"Ankara"}}

	if _, err := q.Claim(ctx, "w1", time.Minute); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty Claim err = %v", err)
	}
	if err := q.Enqueue(ctx, Job{ID: "job-1", Request: req}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	advance(time.Second)
	q.Enqueue(ctx, Job{ID: "job-2", Request: req})

	job, err := q.Claim(ctx, "w1", time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job.ID != "job-1" || job.Attempts != 1 || job.Request.Cities[0] != "Ankara" {
		t.Fatalf("claimed %+v", job)
	}

	// w2 gets the next job, not the leased one
	other, err := q.Claim(ctx, "w2", time.Minute)
	if err != nil || other.ID != "job-2" {
		t.Fatalf("second claim = %+v %v", other, err)
	}
	if _, err := q.Claim(ctx, "w3", time.Minute); !errors.Is(err, ErrEmpty) {
		t.Fatalf("third claim err = %v", err)
	}

	advance(50 * time.Second)
	if err := q.Extend(ctx, "job-1", time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	advance(30 * time.Second)
	// job-2's lease ran out, job-1's was extended
	again, err := q.Claim(ctx, "w3", time.Minute)
	if err != nil || again.ID != "job-2" || again.Attempts != 2 {
		t.Fatalf("redelivery = %+v %v", again, err)
	}

	if err := q.Complete(ctx, "job-1", ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := q.Extend(ctx, "job-1", time.Minute); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("extend of completed job err = %v", err)
	}

	advance(2 * time.Minute)
	n, err := q.RequeueExpired(ctx, now())
	if err != nil || n != 1 {
		t.Fatalf("RequeueExpired = %d %v; want 1", n, err)
	}
}

type fakeRunner struct {
	mu   sync.Mutex
	jobs []Job
	err  error
	soft time.Time
}

func (f *fakeRunner) Run(_ context.Context, job Job, soft time.Time) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	f.soft = soft
	return Outcome{}, f.err
}

func TestWorkerRunOnce(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	runner := &fakeRunner{err: errors.New("browser gone")}
	w := NewWorker(q, runner, config.DefaultConfig().Tasks, nil)

	if ran, err := w.RunOnce(ctx); ran || err != nil {
		t.Fatalf("RunOnce on empty queue = %v %v", ran, err)
	}
	q.Enqueue(ctx, Job{ID: "job-1"})
	ran, err := w.RunOnce(ctx)
	if !ran || err != nil {
		t.Fatalf("RunOnce = %v %v", ran, err)
	}
	if len(runner.jobs) != 1 || runner.jobs[0].ID != "job-1" {
		t.Errorf("runner saw %+v", runner.jobs)
	}
	if runner.soft.IsZero() {
		t.Errorf("soft deadline not set")
	}
	st, lastErr, _ := q.Status("job-1")
	if st != models.JobStatusDone || lastErr != "browser gone" {
		t.Errorf("queue status = %q %q", st, lastErr)
	}
}

func TestWorkerLoopDrainsQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	runner := &fakeRunner{}
	cfg := config.DefaultConfig().Tasks
	cfg.PollInterval = time.Millisecond
	w := NewWorker(q, runner, cfg, nil)
	for i := 1; i <= 3; i++ {
		q.Enqueue(ctx, Job{ID: fmt.Sprintf("job-%d", i)})
	}

	w.Start(ctx)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, _, _ := q.Status("job-3"); st == models.JobStatusDone {
			break
		}
		time.Sleep(time.Millisecond)
	}
	w.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.jobs) != 3 || runner.jobs[0].ID != "job-1" {
		t.Errorf("ran %+v; want three jobs in order", runner.jobs)
	}
}

// runtime wires a runner over an in-memory store and replayed pages
type runtime struct {
	store  *database.Store
	status *broker.StatusStore
	pages  map[string]string
	runner *Runner
}

func newRuntime(t *testing.T) *runtime {
	t.Helper()
	store, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig().Scraper
	cfg.WaitBetweenPages = 0
	cfg.RetryDelay = 0
	cfg.RandomWait = config.RandomWaitConfig{}

	rt := &runtime{
		store:  store,
		status: broker.NewStatusStore(broker.NewMemoryBroker(), time.Hour),
		pages:  map[string]string{},
	}
	rt.runner = NewRunner(RunnerOptions{
		Store:  store,
		Status: rt.status,
		Factory: func(context.Context) (dom.Driver, error) {
			return dom.NewReplayDriver(rt.pages), nil
		},
		Config: cfg,
	})
	return rt
}

func (rt *runtime) job(t *testing.T, id string) Job {
	t.Helper()
	req, err := Request{ListingType: "for-sale", Category: "residence", Cities: []string{"Rize"}}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	rt.status.Save(context.Background(), &broker.StatusRecord{TaskID: id, Status: broker.TaskPending})
	return Job{ID: id, Request: req, Attempts: 1}
}

func (rt *runtime) serveRize(t *testing.T) {
	t.Helper()
	a, err := sites.ForPortal(parser.PortalPrimary)
	if err != nil {
		t.Fatal(err)
	}
	q := sites.Query{ListingType: parser.ListingForSale, Category: parser.CategoryResidence}
	u := a.CityURL(q, "Rize")
	for n := 1; n <= 2; n++ {
		rt.pages[a.PageURL(u, n)] = sitetest.Render(parser.PortalPrimary, sitetest.Page{
			Count:    60,
			Pages:    2,
			Listings: sitetest.Listings(30, fmt.Sprintf("rize%d", n), "Rize / Merkez / Yeni"),
		})
	}
}

func TestRunnerCompletesJob(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.serveRize(t)
	job := rt.job(t, "task-complete")

	out, err := rt.runner.Run(ctx, job, time.Time{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != models.SessionStatusCompleted || out.Traversal.Records != 60 {
		t.Fatalf("outcome = %+v", out)
	}

	session, err := rt.store.GetSessionByTask(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetSessionByTask: %v", err)
	}
	if session.Status != models.SessionStatusCompleted || session.TotalListings != 60 || session.NewListings != 60 || session.SuccessfulPages != 2 {
		t.Errorf("session = %+v", session)
	}
	rec, _ := rt.status.Load(ctx, job.ID)
	if rec.Status != broker.TaskCompleted || rec.Progress != 100 || rec.SessionID != session.ID {
		t.Errorf("status = %+v", rec)
	}

	// a redelivered copy of the finished job does nothing
	again, err := rt.runner.Run(ctx, job, time.Time{})
	if err != nil || again.Status != models.SessionStatusCompleted || again.Traversal.Pages != 0 {
		t.Errorf("redelivery = %+v %v", again, err)
	}
}

func TestRunnerRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.serveRize(t)

	if _, err := rt.runner.Run(ctx, rt.job(t, "task-a"), time.Time{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := rt.runner.Run(ctx, rt.job(t, "task-b"), time.Time{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := rt.store.GetSessionByTask(ctx, "task-b")
	if second.NewListings != 0 || second.DuplicateListings != 60 {
		t.Errorf("second session new %d dup %d; want 0 and 60", second.NewListings, second.DuplicateListings)
	}
	_, total, _ := rt.store.ListListings(ctx, database.ListingFilter{}, 10, 0)
	if total != 60 {
		t.Errorf("listings = %d; want 60", total)
	}
}

func TestRunnerHonoursStopRequest(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.serveRize(t)
	job := rt.job(t, "task-stop")
	if err := rt.status.RequestStop(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	out, err := rt.runner.Run(ctx, job, time.Time{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != models.SessionStatusStopped {
		t.Errorf("status = %s; want stopped", out.Status)
	}
	rec, _ := rt.status.Load(ctx, job.ID)
	if rec.Status != broker.TaskStopped || !rec.StoppedEarly {
		t.Errorf("status record = %+v", rec)
	}
}

func TestRunnerSoftLimitTimesOut(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.serveRize(t)
	job := rt.job(t, "task-soft")

	out, err := rt.runner.Run(ctx, job, time.Now().Add(-time.Second))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != models.SessionStatusTimeout {
		t.Errorf("status = %s; want timeout", out.Status)
	}
	session, _ := rt.store.GetSessionByTask(ctx, job.ID)
	if session.Status != models.SessionStatusTimeout || session.CompletedAt == nil {
		t.Errorf("session = %+v", session)
	}
}

func TestRunnerDriverFailure(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	rt.runner.factory = func(context.Context) (dom.Driver, error) {
		return nil, fmt.Errorf("%w: chrome not found", dom.ErrDriverFailed)
	}
	job := rt.job(t, "task-fail")

	out, err := rt.runner.Run(ctx, job, time.Time{})
	if !errors.Is(err, dom.ErrDriverFailed) {
		t.Fatalf("err = %v; want driver failure", err)
	}
	if out.Status != models.SessionStatusFailed {
		t.Errorf("status = %s", out.Status)
	}
	rec, _ := rt.status.Load(ctx, job.ID)
	if rec.Status != broker.TaskFailed || rec.Error == "" {
		t.Errorf("status record = %+v", rec)
	}
}
