package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
)

type ConversationRepository struct {
	BaseRepository
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metadata, err := marshalMetadata(conversation.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recall_conversations (
			id, project_id, session_id, title, started_at, last_activity_at,
			message_count, token_count, status, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.conn(ctx).Exec(ctx, query,
		conversation.ID,
		conversation.ProjectID,
		nullString(conversation.SessionID),
		nullString(conversation.Title),
		conversation.StartedAt,
		conversation.LastActivityAt,
		conversation.MessageCount,
		conversation.TokenCount,
		conversation.Status,
		metadata,
	)

	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectConversation + ` WHERE id = $1`
	return r.scanConversation(r.conn(ctx).QueryRow(ctx, query, id))
}

func (r *ConversationRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectConversation + ` WHERE session_id = $1 ORDER BY started_at DESC LIMIT 1`
	return r.scanConversation(r.conn(ctx).QueryRow(ctx, query, sessionID))
}

func (r *ConversationRepository) Update(ctx context.Context, conversation *models.Conversation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metadata, err := marshalMetadata(conversation.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE recall_conversations
		SET title = $2,
			last_activity_at = $3,
			message_count = $4,
			token_count = $5,
			status = $6,
			metadata = $7
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query,
		conversation.ID,
		nullString(conversation.Title),
		conversation.LastActivityAt,
		conversation.MessageCount,
		conversation.TokenCount,
		conversation.Status,
		metadata,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) UpdateActivity(ctx context.Context, id string, messageCount, tokenCount int, lastActivity time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE recall_conversations
		SET message_count = $2,
			token_count = $3,
			last_activity_at = $4
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query, id, messageCount, tokenCount, lastActivity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) List(ctx context.Context, projectID string, limit, offset int) ([]*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := selectConversation + `
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY last_activity_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.conn(ctx).Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		c, err := r.scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

const selectConversation = `
	SELECT id, project_id, session_id, title, started_at, last_activity_at,
		   message_count, token_count, status, metadata
	FROM recall_conversations`

func (r *ConversationRepository) scanConversation(row pgx.Row) (*models.Conversation, error) {
	c, err := scanConversationFields(row)
	if checkNoRows(err) {
		return nil, domain.ErrConversationNotFound
	}
	return c, err
}

func (r *ConversationRepository) scanConversationRow(rows pgx.Rows) (*models.Conversation, error) {
	return scanConversationFields(rows)
}

func scanConversationFields(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	var sessionID, title sql.NullString
	var metadata []byte

	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&sessionID,
		&title,
		&c.StartedAt,
		&c.LastActivityAt,
		&c.MessageCount,
		&c.TokenCount,
		&c.Status,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	c.SessionID = getString(sessionID)
	c.Title = getString(title)
	c.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
