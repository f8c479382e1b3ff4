package repository

import (
	"context"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// CycleRepository keeps the reports of finished scheduling cycles for
// operators. The pgx implementation is in pg_cycle_repo.go; the in-memory
// one in memory_cycle_repo.go is used when no database is configured and in
// tests.
type CycleRepository interface {
	Save(ctx context.Context, r *domain.CycleReport) error
	Get(ctx context.Context, id string) (*domain.CycleReport, error)
	// ListRecent returns up to limit reports, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.CycleReport, error)
}
