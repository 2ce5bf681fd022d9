package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) Store {
			s := NewMemoryStore(context.Background())
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "reports.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func testJob(id, session string, created time.Time) model.PipelineJob {
	return model.NewPipelineJob(id, session, "basic", created)
}

func TestStore_PutGet(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			job := testJob("job-1", "s-1", time.Now())
			job.Enter(model.StageExecuting, time.Now())
			job.AddWarning("short recording")
			if err := s.Put(ctx, job); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, err := s.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Stage != model.StageExecuting {
				t.Errorf("stage = %s, want EXECUTING", got.Stage)
			}
			if got.ProgressPct != model.ProgressExecStart {
				t.Errorf("progress = %v, want %v", got.ProgressPct, model.ProgressExecStart)
			}
			if len(got.Warnings) != 1 || got.Warnings[0] != "short recording" {
				t.Errorf("warnings = %v", got.Warnings)
			}

			_, err = s.Get(ctx, "missing")
			if !errors.Is(err, pipeline.ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}
			if err := s.Put(ctx, model.PipelineJob{}); !errors.Is(err, ErrEmptyID) {
				t.Errorf("Put(empty) error = %v, want ErrEmptyID", err)
			}
		})
	}
}

func TestStore_NoDoublePersistence(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			job := testJob("job-1", "s-1", time.Now())
			for _, stage := range model.Stages {
				job.Enter(stage, time.Now())
				if err := s.Put(ctx, job); err != nil {
					t.Fatalf("Put(%s) error = %v", stage, err)
				}
			}
			if err := s.Put(ctx, job); err != nil {
				t.Fatalf("repeated Put() error = %v", err)
			}

			jobs, _ := s.Count(ctx)
			if jobs != 1 {
				t.Errorf("job count = %d, want 1", jobs)
			}
			got, err := s.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Stage != model.StageCompleted || got.ProgressPct != 100 {
				t.Errorf("got stage %s progress %v", got.Stage, got.ProgressPct)
			}
		})
	}
}

func TestStore_Sessions(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			open := model.MeasurementSession{
				SessionID:   "s-1",
				OwnerUserID: "u-1",
				StartedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
				EEGSummary:  model.Summary{"alphaPower": 0.5},
			}
			if err := s.PutSession(ctx, open); err != nil {
				t.Fatalf("PutSession(open) error = %v", err)
			}
			open.EEGSummary["alphaPower"] = 0.6
			if err := s.PutSession(ctx, open); err != nil {
				t.Fatalf("updating an open session error = %v", err)
			}

			sealed := open.Seal(time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC))
			if err := s.PutSession(ctx, sealed); err != nil {
				t.Fatalf("PutSession(sealed) error = %v", err)
			}
			if err := s.PutSession(ctx, sealed); err != nil {
				t.Errorf("re-storing identical sealed session error = %v", err)
			}

			changed := sealed.Clone()
			changed.EEGSummary["alphaPower"] = 0.9
			if err := s.PutSession(ctx, changed); !errors.Is(err, model.ErrSessionSealed) {
				t.Errorf("overwriting sealed session error = %v, want ErrSessionSealed", err)
			}

			got, err := s.GetSession(ctx, "s-1")
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if !got.IsSealed() || got.EEGSummary["alphaPower"] != 0.6 {
				t.Errorf("stored session = %+v", got)
			}
			if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, pipeline.ErrSessionNotFound) {
				t.Errorf("GetSession(missing) error = %v", err)
			}
		})
	}
}

func TestStore_List(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
			for i, id := range []string{"a", "b", "c", "d"} {
				session := "s-1"
				if i%2 == 1 {
					session = "s-2"
				}
				if err := s.Put(ctx, testJob(id, session, base.Add(time.Duration(i)*time.Second))); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			}

			all, err := s.List(ctx, Filter{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 4 || all[0].JobID != "d" || all[3].JobID != "a" {
				t.Errorf("List() order = %v", ids(all))
			}

			bySession, _ := s.List(ctx, Filter{SessionID: "s-2"})
			if len(bySession) != 2 || bySession[0].JobID != "d" {
				t.Errorf("List(s-2) = %v", ids(bySession))
			}

			limited, _ := s.List(ctx, Filter{Limit: 1})
			if len(limited) != 1 {
				t.Errorf("List(limit 1) = %v", ids(limited))
			}

			queued, _ := s.List(ctx, Filter{Stage: model.StageCompleted})
			if len(queued) != 0 {
				t.Errorf("List(COMPLETED) = %v", ids(queued))
			}

			if _, err := s.List(ctx, Filter{Limit: -1}); !errors.Is(err, ErrInvalidLimit) {
				t.Errorf("List(limit -1) error = %v", err)
			}
		})
	}
}

func TestStore_Subscribe(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			var (
				mu     sync.Mutex
				stages []model.Stage
			)
			cancel := s.Subscribe("job-1", func(j model.PipelineJob) {
				mu.Lock()
				stages = append(stages, j.Stage)
				mu.Unlock()
			})

			job := testJob("job-1", "s-1", time.Now())
			_ = s.Put(ctx, job)
			_ = s.Put(ctx, testJob("job-2", "s-1", time.Now()))
			job.Enter(model.StageValidating, time.Now())
			_ = s.Put(ctx, job)
			cancel()
			cancel()
			job.Enter(model.StageReservingCost, time.Now())
			_ = s.Put(ctx, job)

			mu.Lock()
			defer mu.Unlock()
			if len(stages) != 2 || stages[0] != model.StageQueued || stages[1] != model.StageValidating {
				t.Errorf("delivered stages = %v", stages)
			}
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	job := testJob("job-1", "s-1", time.Now())
	job.Enter(model.StagePersisting, time.Now())
	if err := s.Put(ctx, job); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening error = %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.Stage != model.StagePersisting {
		t.Errorf("stage after reopen = %s", got.Stage)
	}
}

func TestMemoryStore_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(ctx, WithMetricsUpdateInterval(10*time.Millisecond))
	defer s.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				job := testJob("shared", "s-1", time.Now())
				job.SetProgress(float64(i))
				_ = s.Put(ctx, job)
				_, _ = s.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	if jobs, _ := s.Count(ctx); jobs != 1 {
		t.Errorf("job count = %d, want 1", jobs)
	}
}

func ids(jobs []model.PipelineJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.JobID
	}
	return out
}
