package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recalldev/recall/internal/domain/models"
)

func (s *Server) tools() []Tool {
	return []Tool{
		{
			Name:        "memory_store",
			Description: "Store a conversation transcript as long-term memory. The conversation is compressed into searchable memory units.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{
						"type":        "string",
						"description": "Project the conversation belongs to; omit for global memories",
					},
					"session_id": map[string]any{
						"type":        "string",
						"description": "Stable session identifier; repeated calls with the same session update the same conversation",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Optional conversation title",
					},
					"messages": map[string]any{
						"type":        "array",
						"description": "Conversation turns in order",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"role":    map[string]any{"type": "string"},
								"content": map[string]any{"type": "string"},
							},
							"required": []string{"role", "content"},
						},
					},
				},
				"required": []string{"messages"},
			},
		},
		{
			Name:        "memory_search",
			Description: "Search stored memories by semantic similarity and keywords.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to look for",
					},
					"project_id": map[string]any{
						"type":        "string",
						"description": "Restrict results to a project (global memories are always included)",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 5)",
					},
					"query_type": map[string]any{
						"type":        "string",
						"description": "semantic, keyword or hybrid (default hybrid)",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "memory_inject",
			Description: "Enhance a prompt with relevant stored memories prepended as context.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"original_prompt": map[string]any{
						"type":        "string",
						"description": "The prompt to enhance (alias: prompt)",
					},
					"query_text": map[string]any{
						"type":        "string",
						"description": "Optional retrieval query; defaults to the prompt (alias: query)",
					},
					"injection_mode": map[string]any{
						"type":        "string",
						"description": "minimal, balanced or comprehensive (default balanced; alias: mode)",
					},
					"max_tokens": map[string]any{
						"type":        "integer",
						"description": "Cap on the enhanced prompt size in tokens",
					},
					"project_id": map[string]any{
						"type": "string",
					},
				},
				"required": []string{"original_prompt"},
			},
		},
		{
			Name:        "memory_status",
			Description: "Service counters: conversations stored, units created, searches, injections.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "memory_health",
			Description: "Component health of the memory service.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// callTool dispatches one tool invocation. The bool reports whether
// the tool name is known.
func (s *Server) callTool(ctx context.Context, name string, args map[string]any) (ToolCallResult, bool) {
	switch name {
	case "memory_store":
		return s.memoryStore(ctx, args), true
	case "memory_search":
		return s.memorySearch(ctx, args), true
	case "memory_inject":
		return s.memoryInject(ctx, args), true
	case "memory_status":
		return s.memoryStatus(ctx), true
	case "memory_health":
		return s.memoryHealth(ctx), true
	default:
		return ToolCallResult{}, false
	}
}

func (s *Server) memoryStore(ctx context.Context, args map[string]any) ToolCallResult {
	var req models.StoreConversationRequest
	if err := mapToStruct(args, &req); err != nil {
		return NewToolError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if len(req.Messages) == 0 {
		return NewToolError("at least one message is required")
	}

	result, err := s.service.StoreConversation(ctx, req)
	if err != nil {
		return NewToolError(fmt.Sprintf("store failed: %v", err))
	}
	return jsonResult(result)
}

func (s *Server) memorySearch(ctx context.Context, args map[string]any) ToolCallResult {
	var params struct {
		Query     string  `json:"query"`
		ProjectID string  `json:"project_id"`
		Limit     *int    `json:"limit"`
		QueryType string  `json:"query_type"`
		MinScore  float32 `json:"min_score"`
	}
	if err := mapToStruct(args, &params); err != nil {
		return NewToolError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if strings.TrimSpace(params.Query) == "" {
		return NewToolError("query is required")
	}
	limit := models.DefaultSearchLimit
	if params.Limit != nil {
		limit = *params.Limit
	}

	outcome, err := s.service.SearchMemories(ctx, models.SearchQuery{
		Text:      params.Query,
		ProjectID: params.ProjectID,
		Limit:     limit,
		QueryType: params.QueryType,
		MinScore:  params.MinScore,
		Rerank:    true,
	})
	if err != nil {
		return NewToolError(fmt.Sprintf("search failed: %v", err))
	}

	type hit struct {
		ID       string   `json:"id"`
		Title    string   `json:"title"`
		Summary  string   `json:"summary"`
		Score    float32  `json:"score"`
		Keywords []string `json:"keywords,omitempty"`
	}
	out := struct {
		Results  []hit                `json:"results"`
		Warnings []string             `json:"warnings,omitempty"`
		Timings  models.SearchTimings `json:"timings"`
	}{Results: make([]hit, len(outcome.Results)), Warnings: outcome.Warnings, Timings: outcome.Timings}
	for i, r := range outcome.Results {
		out.Results[i] = hit{
			ID:       r.MemoryUnit.ID,
			Title:    r.MemoryUnit.Title,
			Summary:  r.MemoryUnit.Summary,
			Score:    r.RelevanceScore,
			Keywords: r.MemoryUnit.Keywords,
		}
	}
	return jsonResult(out)
}

func (s *Server) memoryInject(ctx context.Context, args map[string]any) ToolCallResult {
	var params struct {
		OriginalPrompt string `json:"original_prompt"`
		QueryText      string `json:"query_text"`
		InjectionMode  string `json:"injection_mode"`
		MaxTokens      int    `json:"max_tokens"`
		ProjectID      string `json:"project_id"`

		// Short aliases accepted from older clients.
		Prompt string `json:"prompt"`
		Query  string `json:"query"`
		Mode   string `json:"mode"`
	}
	if err := mapToStruct(args, &params); err != nil {
		return NewToolError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if params.OriginalPrompt == "" {
		params.OriginalPrompt = params.Prompt
	}
	if params.QueryText == "" {
		params.QueryText = params.Query
	}
	if params.InjectionMode == "" {
		params.InjectionMode = params.Mode
	}
	if strings.TrimSpace(params.OriginalPrompt) == "" {
		return NewToolError("original_prompt is required")
	}

	result, err := s.service.InjectContext(ctx, models.ContextInjectionRequest{
		OriginalPrompt: params.OriginalPrompt,
		QueryText:      params.QueryText,
		InjectionMode:  params.InjectionMode,
		MaxTokens:      params.MaxTokens,
		ProjectID:      params.ProjectID,
	})
	if err != nil {
		return NewToolError(fmt.Sprintf("injection failed: %v", err))
	}
	return jsonResult(result)
}

func (s *Server) memoryStatus(ctx context.Context) ToolCallResult {
	return jsonResult(s.service.Status(ctx))
}

func (s *Server) memoryHealth(ctx context.Context) ToolCallResult {
	report := s.service.Health(ctx)
	res := jsonResult(report)
	res.IsError = !report.Healthy
	return res
}

func jsonResult(v any) ToolCallResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return NewToolError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return NewToolResult(string(data))
}

func mapToStruct(m any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
