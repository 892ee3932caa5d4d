package models

// Query types for memory search
const (
	QueryTypeSemantic = "semantic"
	QueryTypeKeyword  = "keyword"
	QueryTypeHybrid   = "hybrid"
)

// Match types recorded on search results
const (
	MatchTypeSemantic = "semantic"
	MatchTypeKeyword  = "keyword"
	MatchTypeHybrid   = "hybrid"
)

// MaxQueryLen bounds the query text; longer queries are truncated and
// flagged with a warning.
const MaxQueryLen = 4096

// SearchQuery describes one retrieval request.
type SearchQuery struct {
	Text      string `json:"text"`
	QueryType string `json:"query_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	MinScore  float32 `json:"min_score,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Context   string `json:"context,omitempty"`
	Rerank    bool   `json:"rerank"`
}

// DefaultSearchLimit is applied by the transports when a request omits
// the limit. A literal zero is honored: it means "no results, no work".
const DefaultSearchLimit = 5

// WithDefaults fills in the documented defaults for unset fields.
// Limit is deliberately left alone so a zero limit stays observable.
func (q SearchQuery) WithDefaults() SearchQuery {
	if q.QueryType == "" {
		q.QueryType = QueryTypeHybrid
	}
	if q.MinScore == 0 {
		q.MinScore = 0.3
	}
	return q
}

// SearchResult is an ephemeral, post-rerank view of a memory unit.
type SearchResult struct {
	MemoryUnit      *MemoryUnit    `json:"memory_unit"`
	RelevanceScore  float32        `json:"relevance_score"`
	RerankScore     *float32       `json:"rerank_score,omitempty"`
	MatchType       string         `json:"match_type"`
	MatchedKeywords []string       `json:"matched_keywords,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SearchTimings reports per-stage latencies of one retrieval, in
// milliseconds.
type SearchTimings struct {
	EmbedMs   int64 `json:"embed_ms"`
	VectorMs  int64 `json:"vector_ms"`
	KeywordMs int64 `json:"keyword_ms"`
	RerankMs  int64 `json:"rerank_ms"`
	TotalMs   int64 `json:"total_ms"`
}

// SearchOutcome bundles the results of one retrieval with its warnings
// and stage timings.
type SearchOutcome struct {
	Results  []*SearchResult `json:"results"`
	Warnings []string        `json:"warnings,omitempty"`
	Timings  SearchTimings   `json:"timings"`
}

// Injection modes
const (
	InjectionModeMinimal       = "minimal"
	InjectionModeBalanced      = "balanced"
	InjectionModeComprehensive = "comprehensive"
)

// ContextInjectionRequest asks the pipeline to enrich a prompt with
// retrieved memories.
type ContextInjectionRequest struct {
	OriginalPrompt string `json:"original_prompt"`
	QueryText      string `json:"query_text,omitempty"`
	InjectionMode  string `json:"injection_mode,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
}

// InjectedMemory is the caller-visible slice of a unit that was folded
// into the enhanced prompt.
type InjectedMemory struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Score   float32 `json:"score,omitempty"`
}

// ContextInjectionResult is the outcome of an injection request.
type ContextInjectionResult struct {
	EnhancedPrompt   string           `json:"enhanced_prompt"`
	InjectedMemories []InjectedMemory `json:"injected_memories"`
	TokensUsed       int              `json:"tokens_used"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Warnings         []string         `json:"warnings,omitempty"`
}
