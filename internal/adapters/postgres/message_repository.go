package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
)

type MessageRepository struct {
	BaseRepository
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metadata, err := marshalMetadata(message.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recall_messages (
			id, conversation_id, message_type, content, timestamp, token_count, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.conn(ctx).Exec(ctx, query,
		message.ID,
		message.ConversationID,
		message.MessageType,
		message.Content,
		message.Timestamp,
		message.TokenCount,
		metadata,
	)

	return err
}

// CreateBatch inserts messages one by one inside the caller's
// transaction. Duplicate IDs are skipped so replays stay idempotent.
func (r *MessageRepository) CreateBatch(ctx context.Context, messages []*models.Message) error {
	for _, m := range messages {
		if err := r.Create(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectMessage + ` WHERE id = $1`

	m, err := scanMessageFields(r.conn(ctx).QueryRow(ctx, query, id))
	if checkNoRows(err) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

func (r *MessageRepository) GetByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectMessage + ` WHERE conversation_id = $1 ORDER BY timestamp ASC, id ASC`

	rows, err := r.conn(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessageFields(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM recall_messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count)
	return count, err
}

const selectMessage = `
	SELECT id, conversation_id, message_type, content, timestamp, token_count, metadata
	FROM recall_messages`

func scanMessageFields(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var metadata []byte

	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.MessageType,
		&m.Content,
		&m.Timestamp,
		&m.TokenCount,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	m.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
