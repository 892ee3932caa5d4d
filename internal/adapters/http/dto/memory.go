package dto

import (
	"time"

	"github.com/recalldev/recall/internal/domain/models"
)

// SearchRequest represents a memory search request
type SearchRequest struct {
	Query     string  `json:"query"`
	QueryType string  `json:"query_type,omitempty"`
	Limit     *int    `json:"limit,omitempty"`
	MinScore  float32 `json:"min_score,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	Context   string  `json:"context,omitempty"`
	Rerank    *bool   `json:"rerank,omitempty"`
}

// ToQuery converts the request to a domain search query. Rerank
// defaults to on when the field is omitted. An omitted limit gets the
// default; an explicit zero is passed through and yields no results.
func (r *SearchRequest) ToQuery() models.SearchQuery {
	rerank := true
	if r.Rerank != nil {
		rerank = *r.Rerank
	}
	limit := models.DefaultSearchLimit
	if r.Limit != nil {
		limit = *r.Limit
	}
	return models.SearchQuery{
		Text:      r.Query,
		QueryType: r.QueryType,
		Limit:     limit,
		MinScore:  r.MinScore,
		ProjectID: r.ProjectID,
		Context:   r.Context,
		Rerank:    rerank,
	}
}

// SearchResultResponse represents one search hit in API responses
type SearchResultResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Keywords        []string  `json:"keywords"`
	ProjectID       string    `json:"project_id"`
	RelevanceScore  float32   `json:"relevance_score"`
	RerankScore     *float32  `json:"rerank_score,omitempty"`
	MatchType       string    `json:"match_type"`
	MatchedKeywords []string  `json:"matched_keywords,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SearchResponse represents a list of search hits
type SearchResponse struct {
	Results  []*SearchResultResponse `json:"results"`
	Total    int                     `json:"total"`
	Warnings []string                `json:"warnings,omitempty"`
	Timings  models.SearchTimings    `json:"timings"`
	TookMs   int64                   `json:"took_ms"`
}

// FromSearchResults converts domain search results to response DTOs
func FromSearchResults(results []*models.SearchResult) []*SearchResultResponse {
	out := make([]*SearchResultResponse, len(results))
	for i, res := range results {
		out[i] = &SearchResultResponse{
			ID:              res.MemoryUnit.ID,
			Title:           res.MemoryUnit.Title,
			Summary:         res.MemoryUnit.Summary,
			Keywords:        res.MemoryUnit.Keywords,
			ProjectID:       res.MemoryUnit.ProjectID,
			RelevanceScore:  res.RelevanceScore,
			RerankScore:     res.RerankScore,
			MatchType:       res.MatchType,
			MatchedKeywords: res.MatchedKeywords,
			CreatedAt:       res.MemoryUnit.CreatedAt,
		}
	}
	return out
}

// MemoryUnitResponse represents a full memory unit in API responses
type MemoryUnitResponse struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	ProjectID      string         `json:"project_id"`
	UnitType       string         `json:"unit_type"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	Content        string         `json:"content"`
	Keywords       []string       `json:"keywords"`
	RelevanceScore float32        `json:"relevance_score"`
	TokenCount     int            `json:"token_count"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// FromModel converts a domain model to a response DTO
func (r *MemoryUnitResponse) FromModel(u *models.MemoryUnit) *MemoryUnitResponse {
	return &MemoryUnitResponse{
		ID:             u.ID,
		ConversationID: u.ConversationID,
		ProjectID:      u.ProjectID,
		UnitType:       u.UnitType,
		Title:          u.Title,
		Summary:        u.Summary,
		Content:        u.Content,
		Keywords:       u.Keywords,
		RelevanceScore: u.RelevanceScore,
		TokenCount:     u.TokenCount,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
		Metadata:       u.Metadata,
	}
}
