package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRepo(t *testing.T, retention time.Duration) (RunRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRunRepository(rdb, "test", retention), mr
}

func record(id string, outcome domain.Outcome, finished time.Time) domain.RunRecord {
	return domain.RunRecord{RunID: id, ProjectID: "p1", SuiteID: "s1", Outcome: outcome, Executions: 2, FinishedAt: finished}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t, 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.SaveRun(ctx, record("r1", domain.OutcomeFailed, now)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := repo.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Outcome != domain.OutcomeFailed || !got.FinishedAt.Equal(now) {
		t.Errorf("unexpected record: %+v", got)
	}
	if !mr.Exists("test:runs") || !mr.Exists("test:runs:index") {
		t.Error("expected hash and index keys")
	}
	if _, err := repo.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunRepository_ListRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		if err := repo.SaveRun(ctx, record(id, domain.OutcomePassed, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recs) != 2 || recs[0].RunID != "r3" || recs[1].RunID != "r2" {
		t.Fatalf("unexpected order: %+v", recs)
	}
}

func TestRunRepository_PrunesOldRuns(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.SaveRun(ctx, record("old", domain.OutcomePassed, now.Add(-2*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveRun(ctx, record("new", domain.OutcomePassed, now)); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetRun(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old run should be pruned, got %v", err)
	}
	recs, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RunID != "new" {
		t.Errorf("unexpected records: %+v", recs)
	}
}
