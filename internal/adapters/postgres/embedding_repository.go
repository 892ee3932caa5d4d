package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/ports"
)

// EmbeddingRepository tracks which memory units have a vector in the
// index. Rows here are bookkeeping only; the vectors live in the index.
type EmbeddingRepository struct {
	BaseRepository
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *EmbeddingRepository) Upsert(ctx context.Context, rec *ports.EmbeddingRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO recall_embeddings (memory_unit_id, model_name, dimension, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (memory_unit_id) DO UPDATE
		SET model_name = EXCLUDED.model_name,
			dimension = EXCLUDED.dimension,
			created_at = EXCLUDED.created_at`

	_, err := r.conn(ctx).Exec(ctx, query,
		rec.MemoryUnitID,
		rec.ModelName,
		rec.Dimension,
		rec.CreatedAt,
	)
	return err
}

func (r *EmbeddingRepository) GetByMemoryUnit(ctx context.Context, memoryUnitID string) (*ports.EmbeddingRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT memory_unit_id, model_name, dimension, created_at
		FROM recall_embeddings
		WHERE memory_unit_id = $1`

	var rec ports.EmbeddingRecord
	err := r.conn(ctx).QueryRow(ctx, query, memoryUnitID).Scan(
		&rec.MemoryUnitID,
		&rec.ModelName,
		&rec.Dimension,
		&rec.CreatedAt,
	)
	if checkNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *EmbeddingRepository) Delete(ctx context.Context, memoryUnitID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM recall_embeddings WHERE memory_unit_id = $1`,
		memoryUnitID,
	)
	return err
}
