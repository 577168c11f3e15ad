// internal/api/job/store_test.go
package job

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/presetd/internal/core"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(100, time.Hour)

	job := store.Create("backtest", "session-1")
	if job.ID == "" {
		t.Error("expected job ID")
	}
	if job.Status != StatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}

	retrieved, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != job.ID || retrieved.SessionID != "session-1" {
		t.Errorf("unexpected job %+v", retrieved)
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("backtest", "")

	err := store.Update(job.ID, func(j *Job) {
		j.Status = StatusRunning
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retrieved, _ := store.Get(job.ID)
	if retrieved.Status != StatusRunning {
		t.Errorf("expected running, got %s", retrieved.Status)
	}
	if store.Active("backtest") != 1 {
		t.Errorf("expected 1 active job, got %d", store.Active("backtest"))
	}

	if err := store.Update("missing", func(*Job) {}); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected JOB_NOT_FOUND, got %v", err)
	}
}

func TestStore_MaxSize(t *testing.T) {
	store := NewStore(2, time.Hour)

	job1 := store.Create("backtest", "")
	store.Create("backtest", "")
	store.Create("backtest", "") // Should evict job1

	_, err := store.Get(job1.ID)
	if !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected job1 to be evicted, got %v", err)
	}
}

func TestStore_PrunesFinishedJobsAfterTTL(t *testing.T) {
	store := NewStore(100, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	done := store.Create("backtest", "")
	store.Update(done.ID, func(j *Job) { j.Status = StatusComplete })
	running := store.Create("backtest", "")

	now = now.Add(2 * time.Minute)
	store.Create("backtest", "")

	if _, err := store.Get(done.ID); err == nil {
		t.Error("expected finished job to expire")
	}
	if _, err := store.Get(running.ID); err != nil {
		t.Error("unfinished jobs never expire")
	}
}

func TestStore_ListKeepsOrder(t *testing.T) {
	store := NewStore(100, time.Hour)
	first := store.Create("backtest", "")
	second := store.Create("backtest", "")

	jobs := store.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("expected creation order")
	}
}
