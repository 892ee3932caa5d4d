package ports

import (
	"context"
	"time"

	"github.com/recalldev/recall/internal/domain/models"
)

// ConversationRepository defines operations for conversation persistence
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Conversation, error)
	Update(ctx context.Context, conversation *models.Conversation) error
	UpdateActivity(ctx context.Context, id string, messageCount, tokenCount int, lastActivity time.Time) error
	List(ctx context.Context, projectID string, limit, offset int) ([]*models.Conversation, error)
}

// MessageRepository defines operations for message persistence
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	CreateBatch(ctx context.Context, messages []*models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	GetByConversation(ctx context.Context, conversationID string) ([]*models.Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int, error)
}

// MemoryUnitKeywordMatch holds a keyword-leg hit with its token-overlap score
type MemoryUnitKeywordMatch struct {
	Unit            *models.MemoryUnit
	Score           float32
	MatchedKeywords []string
}

// MemoryUnitFilter narrows memory unit listings
type MemoryUnitFilter struct {
	ProjectID      string
	ConversationID string
	ActiveOnly     bool
	Limit          int
	Offset         int
}

// MemoryUnitRepository defines operations for memory unit persistence
type MemoryUnitRepository interface {
	Create(ctx context.Context, unit *models.MemoryUnit) error
	GetByID(ctx context.Context, id string) (*models.MemoryUnit, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.MemoryUnit, error)
	GetByConversation(ctx context.Context, conversationID string) ([]*models.MemoryUnit, error)
	List(ctx context.Context, filter MemoryUnitFilter) ([]*models.MemoryUnit, error)
	// SetActive flips is_active and bumps updated_at. The caller removes
	// or restores the vector separately.
	SetActive(ctx context.Context, id string, active bool) error
	// SearchKeywords matches query tokens against title, summary and
	// content. Score is the fraction of query tokens matched.
	SearchKeywords(ctx context.Context, projectID string, tokens []string, limit int) ([]*MemoryUnitKeywordMatch, error)
	// ListOrphans returns active units with no embedding row, for the
	// background index repair sweep.
	ListOrphans(ctx context.Context, limit int) ([]*models.MemoryUnit, error)
	// ListStalePayloads returns active units updated after their vector
	// was indexed, so the sweep can push fresh payloads.
	ListStalePayloads(ctx context.Context, limit int) ([]*models.MemoryUnit, error)
}

// EmbeddingRecord notes which vector exists in the index for a unit.
// The vector itself lives only in the vector index.
type EmbeddingRecord struct {
	MemoryUnitID string
	ModelName    string
	Dimension    int
	CreatedAt    time.Time
}

// EmbeddingRepository tracks embedding bookkeeping rows
type EmbeddingRepository interface {
	Upsert(ctx context.Context, rec *EmbeddingRecord) error
	GetByMemoryUnit(ctx context.Context, memoryUnitID string) (*EmbeddingRecord, error)
	Delete(ctx context.Context, memoryUnitID string) error
}

// MemoryUsageRepository records which memories were injected into
// prompts, for relevance feedback and stats.
type MemoryUsageRepository interface {
	// CreateBatch inserts usage rows, best-effort; duplicates are ignored.
	CreateBatch(ctx context.Context, usages []*models.MemoryUsage) error
	GetByMemoryUnit(ctx context.Context, memoryUnitID string, limit int) ([]*models.MemoryUsage, error)
	Count(ctx context.Context) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction executes a function within a database transaction.
	// If the function returns an error, the transaction is rolled back;
	// otherwise it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	// GenerateConversationID generates a new conversation ID (cv_xxx)
	GenerateConversationID() string

	// GenerateMessageID generates a new message ID (msg_xxx)
	GenerateMessageID() string

	// GenerateMemoryUnitID generates a new memory unit ID (mu_xxx)
	GenerateMemoryUnitID() string

	// GenerateMemoryUsageID generates a new usage record ID (use_xxx)
	GenerateMemoryUsageID() string

	// GenerateRequestID generates a new request ID (req_xxx)
	GenerateRequestID() string
}
