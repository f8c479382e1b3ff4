package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/repository"
)

func report(id string, started time.Time) *domain.CycleReport {
	return &domain.CycleReport{ID: id, StartedAt: started, FinishedAt: started.Add(time.Second)}
}

func TestMemoryCycleRepository_ListRecentNewestFirst(t *testing.T) {
	repo := repository.NewMemoryCycleRepository(10)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// Saved out of order, as overlapping cycles may finish.
	_ = repo.Save(ctx, report("b", base.Add(time.Minute)))
	_ = repo.Save(ctx, report("a", base))
	_ = repo.Save(ctx, report("c", base.Add(2*time.Minute)))

	got, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestMemoryCycleRepository_EvictsOldest(t *testing.T) {
	repo := repository.NewMemoryCycleRepository(2)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		_ = repo.Save(ctx, report(id, base.Add(time.Duration(i)*time.Minute)))
	}

	if _, err := repo.Get(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected a evicted, got %v", err)
	}
	if r, err := repo.Get(ctx, "c"); err != nil || r.ID != "c" {
		t.Fatalf("expected c, got %v %v", r, err)
	}
}

func TestMemoryCycleRepository_SaveErr(t *testing.T) {
	repo := repository.NewMemoryCycleRepository(0)
	repo.SaveErr = errors.New("disk full")

	if err := repo.Save(context.Background(), report("x", time.Now())); err == nil {
		t.Fatal("expected error")
	}
}
