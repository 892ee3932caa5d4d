package ports

import (
	"context"

	"github.com/recalldev/recall/internal/domain/models"
)

// Embedder produces dense vectors for text
type Embedder interface {
	// Embed returns one vector per input text, all with the configured
	// dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension the service is pinned to.
	Dimension() int
}

// Reranker scores candidate documents against a query
type Reranker interface {
	// Rerank returns one relevance score in [0, 1] per document, in
	// document order.
	Rerank(ctx context.Context, query string, documents []string) ([]float32, error)
}

// CompletionRequest is a chat completion call routed through the gateway
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
	JSONMode    bool
}

// CompletionResult carries the completion text and token usage
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Provider     string
	Model        string
}

// Completer runs chat completions through the configured model aliases
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// ModelGateway is the single entry point for all model calls. Each
// operation resolves a model alias to a provider chain and falls back
// across providers on retryable failures.
type ModelGateway interface {
	Embedder
	Reranker
	Completer

	// Healthy reports whether at least one provider answered recently.
	Healthy(ctx context.Context) error
}

// VectorPoint is one upsert payload for the vector index
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// VectorHit is one search result from the vector index
type VectorHit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// VectorIndex is the external approximate-nearest-neighbor store.
// Scores are cosine similarity mapped to [0, 1].
type VectorIndex interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, limit int, projectID string, minScore float32) ([]VectorHit, error)
	SetPayload(ctx context.Context, id string, payload map[string]any) error
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Healthy(ctx context.Context) error
}

// CompressionResult is the outcome of compressing one conversation
type CompressionResult struct {
	Units []*models.MemoryUnit
	// Degraded is set when the model output could not be parsed and a
	// mechanical fallback unit was built instead.
	Degraded bool
}

// Compressor distills a conversation transcript into memory units
type Compressor interface {
	Compress(ctx context.Context, conversation *models.Conversation, messages []*models.Message) (*CompressionResult, error)
}

// Retriever runs hybrid memory search
type Retriever interface {
	Search(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error)

	// InvalidateProject drops cached results a write to the project
	// could change.
	InvalidateProject(projectID string)
}

// Fuser folds search results into a single context block
type Fuser interface {
	Fuse(ctx context.Context, query string, results []*models.SearchResult, tokenBudget int) (string, []models.InjectedMemory, error)
}

// Injector enhances a prompt with retrieved memories
type Injector interface {
	Inject(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error)
}

// ComponentStatus is one entry in a health report
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthReport aggregates component health
type HealthReport struct {
	Healthy    bool              `json:"healthy"`
	Components []ComponentStatus `json:"components"`
}

// MemoryService is the orchestrator surface exposed to transports
// (HTTP and MCP).
type MemoryService interface {
	StoreConversation(ctx context.Context, req models.StoreConversationRequest) (*models.StoreConversationResult, error)
	SearchMemories(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error)
	InjectContext(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error)
	Status(ctx context.Context) *models.ServiceStatus
	Health(ctx context.Context) *HealthReport
}
