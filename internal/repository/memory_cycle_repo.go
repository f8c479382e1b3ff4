package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// DefaultMemoryCapacity bounds MemoryCycleRepository when no capacity is given.
const DefaultMemoryCapacity = 500

// MemoryCycleRepository keeps the most recent reports in memory. The oldest
// report is evicted once capacity is reached.
type MemoryCycleRepository struct {
	mu       sync.RWMutex
	capacity int
	reports  []domain.CycleReport

	// Optional error overrides; set in tests to simulate failure paths.
	SaveErr error
	ListErr error
}

func NewMemoryCycleRepository(capacity int) *MemoryCycleRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryCycleRepository{capacity: capacity}
}

func (m *MemoryCycleRepository) Save(_ context.Context, r *domain.CycleReport) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *r)
	if len(m.reports) > m.capacity {
		m.reports = m.reports[len(m.reports)-m.capacity:]
	}
	return nil
}

func (m *MemoryCycleRepository) Get(_ context.Context, id string) (*domain.CycleReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.reports {
		if m.reports[i].ID == id {
			clone := m.reports[i]
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryCycleRepository) ListRecent(_ context.Context, limit int) ([]domain.CycleReport, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	out := append([]domain.CycleReport(nil), m.reports...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ CycleRepository = (*MemoryCycleRepository)(nil)
