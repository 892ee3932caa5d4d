package postgres

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recalldev/recall/internal/domain/models"
)

// MemoryUsageRepository records which memory units were injected into
// prompts. Usage rows feed relevance feedback later; writes are
// best-effort and never block an injection.
type MemoryUsageRepository struct {
	BaseRepository
}

func NewMemoryUsageRepository(pool *pgxpool.Pool) *MemoryUsageRepository {
	return &MemoryUsageRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *MemoryUsageRepository) CreateBatch(ctx context.Context, usages []*models.MemoryUsage) error {
	if len(usages) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO recall_memory_usage (id, memory_unit_id, query_text, score, position_in_results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	for _, u := range usages {
		if _, err := r.conn(ctx).Exec(ctx, query,
			u.ID,
			u.MemoryUnitID,
			nullString(u.QueryText),
			u.Score,
			u.Position,
			u.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryUsageRepository) GetByMemoryUnit(ctx context.Context, memoryUnitID string, limit int) ([]*models.MemoryUsage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, memory_unit_id, query_text, score, position_in_results, created_at
		FROM recall_memory_usage
		WHERE memory_unit_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.conn(ctx).Query(ctx, query, memoryUnitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []*models.MemoryUsage
	for rows.Next() {
		var u models.MemoryUsage
		var queryText sql.NullString
		if err := rows.Scan(&u.ID, &u.MemoryUnitID, &queryText, &u.Score, &u.Position, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.QueryText = getString(queryText)
		usages = append(usages, &u)
	}
	return usages, rows.Err()
}

func (r *MemoryUsageRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM recall_memory_usage`).Scan(&count)
	return count, err
}
