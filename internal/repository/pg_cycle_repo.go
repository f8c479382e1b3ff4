package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

type pgCycleRepository struct {
	pool *pgxpool.Pool
}

// NewPgCycleRepository returns a CycleRepository backed by PostgreSQL.
func NewPgCycleRepository(pool *pgxpool.Pool) CycleRepository {
	return &pgCycleRepository{pool: pool}
}

// Save writes the cycle summary and one row per phase in a single transaction.
func (r *pgCycleRepository) Save(ctx context.Context, c *domain.CycleReport) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cycle report: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO scheduler_cycles
			(id, started_at, finished_at, dispatched, deferred, requeued, lost, failed, report)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.StartedAt, c.FinishedAt, c.Dispatched, c.Deferred, c.Requeued, c.Lost, c.Failed(), body,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, p := range c.Phases {
		_, err = tx.Exec(ctx, `
			INSERT INTO scheduler_cycle_phases (cycle_id, phase, succeeded, failed, error)
			VALUES ($1,$2,$3,$4,NULLIF($5,''))
			ON CONFLICT (cycle_id, phase) DO NOTHING`,
			c.ID, p.Phase, p.Succeeded, p.Failed, p.Error,
		)
		if err != nil {
			return fmt.Errorf("insert cycle phase: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}

func (r *pgCycleRepository) Get(ctx context.Context, id string) (*domain.CycleReport, error) {
	var body []byte
	err := r.pool.QueryRow(ctx,
		`SELECT report FROM scheduler_cycles WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cycle: %w", err)
	}

	var c domain.CycleReport
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("decode cycle report: %w", err)
	}
	return &c, nil
}

func (r *pgCycleRepository) ListRecent(ctx context.Context, limit int) ([]domain.CycleReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT report FROM scheduler_cycles
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleReport
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		var c domain.CycleReport
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fmt.Errorf("decode cycle report: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
