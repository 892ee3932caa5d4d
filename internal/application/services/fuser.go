package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/llm"
	"github.com/recalldev/recall/internal/ports"
)

// Fusion modes
const (
	FusionModeDirect = "direct"
	FusionModeLLM    = "llm"
)

// FuserService folds ranked search results into one context block that
// fits a token budget. Direct mode concatenates blank-line-separated
// title and summary entries; llm mode asks the light model to
// synthesize them and falls back to direct on failure.
type FuserService struct {
	completer ports.Completer
	mode      string
}

func NewFuser(completer ports.Completer, mode string) *FuserService {
	if mode != FusionModeLLM {
		mode = FusionModeDirect
	}
	return &FuserService{
		completer: completer,
		mode:      mode,
	}
}

func (s *FuserService) Fuse(ctx context.Context, query string, results []*models.SearchResult, tokenBudget int) (string, []models.InjectedMemory, error) {
	if len(results) == 0 {
		return "", nil, nil
	}

	fused, injected := s.fuseDirect(results, tokenBudget)

	if s.mode == FusionModeLLM && len(injected) > 1 {
		synthesized, err := s.fuseLLM(ctx, query, fused, tokenBudget)
		if err != nil {
			log.Printf("[Fuser] llm fusion failed, using direct output: %v", err)
			return fused, injected, nil
		}
		if EstimateTokens(synthesized) <= tokenBudget {
			return synthesized, injected, nil
		}
	}

	return fused, injected, nil
}

// fuseDirect emits one "[i] title — summary" entry per result, blank-line
// separated, in rank order. It stops before the entry that would blow
// the budget; injected is exactly the consumed prefix.
func (s *FuserService) fuseDirect(results []*models.SearchResult, tokenBudget int) (string, []models.InjectedMemory) {
	var lines []string
	var injected []models.InjectedMemory
	used := 0

	for _, r := range results {
		u := r.MemoryUnit
		line := fmt.Sprintf("[%d] %s — %s", len(lines)+1, u.Title, u.Summary)
		cost := EstimateTokens(line)
		if used+cost > tokenBudget {
			break
		}
		lines = append(lines, line)
		injected = append(injected, models.InjectedMemory{ID: u.ID, Title: u.Title, Summary: u.Summary, Score: r.RelevanceScore})
		used += cost
	}

	return strings.Join(lines, "\n\n"), injected
}

func (s *FuserService) fuseLLM(ctx context.Context, query, memories string, tokenBudget int) (string, error) {
	system := "You merge memory snippets from past coding sessions into one brief context note. " +
		"Keep every concrete fact, drop duplication, and stay under " +
		fmt.Sprintf("%d", tokenBudget) + " tokens. Respond with the note only."

	prompt := "Current task:\n" + query + "\n\nMemories:\n" + memories

	res, err := s.completer.Complete(ctx, ports.CompletionRequest{
		Model:       llm.AliasLight,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   tokenBudget,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(res.Text)
	if out == "" {
		return "", fmt.Errorf("empty fusion output")
	}
	return out, nil
}
