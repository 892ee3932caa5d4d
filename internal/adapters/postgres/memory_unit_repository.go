package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

type MemoryUnitRepository struct {
	BaseRepository
}

func NewMemoryUnitRepository(pool *pgxpool.Pool) *MemoryUnitRepository {
	return &MemoryUnitRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *MemoryUnitRepository) Create(ctx context.Context, unit *models.MemoryUnit) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metadata, err := marshalMetadata(unit.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recall_memory_units (
			id, conversation_id, project_id, unit_type, title, summary, content,
			keywords, relevance_score, token_count, created_at, updated_at,
			expires_at, is_active, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.conn(ctx).Exec(ctx, query,
		unit.ID,
		unit.ConversationID,
		unit.ProjectID,
		unit.UnitType,
		unit.Title,
		unit.Summary,
		unit.Content,
		unit.Keywords,
		unit.RelevanceScore,
		unit.TokenCount,
		unit.CreatedAt,
		unit.UpdatedAt,
		nullTime(unit.ExpiresAt),
		unit.IsActive,
		metadata,
	)

	return err
}

func (r *MemoryUnitRepository) GetByID(ctx context.Context, id string) (*models.MemoryUnit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectMemoryUnit + ` WHERE id = $1`

	u, err := scanMemoryUnitFields(r.conn(ctx).QueryRow(ctx, query, id))
	if checkNoRows(err) {
		return nil, domain.ErrMemoryUnitNotFound
	}
	return u, err
}

func (r *MemoryUnitRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.MemoryUnit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if len(ids) == 0 {
		return nil, nil
	}

	query := selectMemoryUnit + ` WHERE id = ANY($1)`

	rows, err := r.conn(ctx).Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemoryUnits(rows)
}

func (r *MemoryUnitRepository) GetByConversation(ctx context.Context, conversationID string) ([]*models.MemoryUnit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectMemoryUnit + ` WHERE conversation_id = $1 ORDER BY created_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemoryUnits(rows)
}

func (r *MemoryUnitRepository) List(ctx context.Context, filter ports.MemoryUnitFilter) ([]*models.MemoryUnit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := selectMemoryUnit + `
		WHERE ($1 = '' OR project_id = $1)
		  AND ($2 = '' OR conversation_id = $2)
		  AND (NOT $3 OR is_active)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.conn(ctx).Query(ctx, query,
		filter.ProjectID, filter.ConversationID, filter.ActiveOnly, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemoryUnits(rows)
}

func (r *MemoryUnitRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE recall_memory_units
		SET is_active = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemoryUnitNotFound
	}
	return nil
}

// SearchKeywords runs the keyword leg of hybrid search. Each query
// token is matched case-insensitively against title, summary, content
// and the keyword list; the score is the fraction of tokens that hit.
func (r *MemoryUnitRepository) SearchKeywords(ctx context.Context, projectID string, tokens []string, limit int) ([]*ports.MemoryUnitKeywordMatch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT u.id, u.conversation_id, u.project_id, u.unit_type, u.title, u.summary,
			   u.content, u.keywords, u.relevance_score, u.token_count, u.created_at,
			   u.updated_at, u.expires_at, u.is_active, u.metadata, m.hits
		FROM recall_memory_units u,
		LATERAL (
			SELECT array_agg(t) AS hits
			FROM unnest($2::text[]) AS t
			WHERE u.title ILIKE '%' || t || '%'
			   OR u.summary ILIKE '%' || t || '%'
			   OR u.content ILIKE '%' || t || '%'
			   OR t = ANY(u.keywords)
		) m
		WHERE u.is_active
		  AND ($1 = '' OR u.project_id = $1 OR u.project_id = 'global')
		  AND (u.expires_at IS NULL OR u.expires_at > now())
		  AND m.hits IS NOT NULL
		ORDER BY cardinality(m.hits) DESC, u.relevance_score DESC
		LIMIT $3`

	rows, err := r.conn(ctx).Query(ctx, query, projectID, tokens, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*ports.MemoryUnitKeywordMatch
	for rows.Next() {
		u, hits, err := scanMemoryUnitWithHits(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, &ports.MemoryUnitKeywordMatch{
			Unit:            u,
			Score:           float32(len(hits)) / float32(len(tokens)),
			MatchedKeywords: hits,
		})
	}
	return matches, rows.Err()
}

// ListOrphans returns active units that have no embedding bookkeeping
// row, meaning their vector never made it into the index.
func (r *MemoryUnitRepository) ListOrphans(ctx context.Context, limit int) ([]*models.MemoryUnit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT u.id, u.conversation_id, u.project_id, u.unit_type, u.title, u.summary,
			   u.content, u.keywords, u.relevance_score, u.token_count, u.created_at,
			   u.updated_at, u.expires_at, u.is_active, u.metadata
		FROM recall_memory_units u
		LEFT JOIN recall_embeddings e ON e.memory_unit_id = u.id
		WHERE u.is_active AND e.memory_unit_id IS NULL
		ORDER BY u.created_at ASC
		LIMIT $1`

	rows, err := r.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemoryUnits(rows)
}

// ListStalePayloads returns active units whose row changed after their
// vector was indexed. Their vectors are fine, only the stored payload
// lags behind.
func (r *MemoryUnitRepository) ListStalePayloads(ctx context.Context, limit int) ([]*models.MemoryUnit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT u.id, u.conversation_id, u.project_id, u.unit_type, u.title, u.summary,
			   u.content, u.keywords, u.relevance_score, u.token_count, u.created_at,
			   u.updated_at, u.expires_at, u.is_active, u.metadata
		FROM recall_memory_units u
		JOIN recall_embeddings e ON e.memory_unit_id = u.id
		WHERE u.is_active AND u.updated_at > e.created_at
		ORDER BY u.updated_at ASC
		LIMIT $1`

	rows, err := r.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMemoryUnits(rows)
}

const selectMemoryUnit = `
	SELECT id, conversation_id, project_id, unit_type, title, summary, content,
		   keywords, relevance_score, token_count, created_at, updated_at,
		   expires_at, is_active, metadata
	FROM recall_memory_units`

func collectMemoryUnits(rows pgx.Rows) ([]*models.MemoryUnit, error) {
	var units []*models.MemoryUnit
	for rows.Next() {
		u, err := scanMemoryUnitFields(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func scanMemoryUnitFields(row pgx.Row) (*models.MemoryUnit, error) {
	var u models.MemoryUnit
	var expiresAt sql.NullTime
	var metadata []byte

	err := row.Scan(
		&u.ID,
		&u.ConversationID,
		&u.ProjectID,
		&u.UnitType,
		&u.Title,
		&u.Summary,
		&u.Content,
		&u.Keywords,
		&u.RelevanceScore,
		&u.TokenCount,
		&u.CreatedAt,
		&u.UpdatedAt,
		&expiresAt,
		&u.IsActive,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	u.ExpiresAt = getTimePtr(expiresAt)
	u.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanMemoryUnitWithHits(row pgx.Row) (*models.MemoryUnit, []string, error) {
	var u models.MemoryUnit
	var expiresAt sql.NullTime
	var metadata []byte
	var hits []string

	err := row.Scan(
		&u.ID,
		&u.ConversationID,
		&u.ProjectID,
		&u.UnitType,
		&u.Title,
		&u.Summary,
		&u.Content,
		&u.Keywords,
		&u.RelevanceScore,
		&u.TokenCount,
		&u.CreatedAt,
		&u.UpdatedAt,
		&expiresAt,
		&u.IsActive,
		&metadata,
		&hits,
	)
	if err != nil {
		return nil, nil, err
	}

	u.ExpiresAt = getTimePtr(expiresAt)
	u.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, nil, err
	}
	return &u, hits, nil
}
