package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/recalldev/recall/internal/adapters/metrics"
	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

// injectionPolicy fixes retrieval breadth and budget per mode.
type injectionPolicy struct {
	limit       int
	minScore    float32
	tokenBudget int
}

// Warnings attached to injection results
const (
	WarningBudgetExceeded   = "token_budget_exceeded"
	WarningContextTruncated = "context_truncated"
	WarningRetrievalFailed  = "retrieval_failed"
)

const promptSeparator = "\n\n---\n\n"

var injectionPolicies = map[string]injectionPolicy{
	models.InjectionModeMinimal:       {limit: 3, minScore: 0.6, tokenBudget: 400},
	models.InjectionModeBalanced:      {limit: 5, minScore: 0.4, tokenBudget: 1500},
	models.InjectionModeComprehensive: {limit: 10, minScore: 0.2, tokenBudget: 4000},
}

// InjectorService enhances prompts with fused memories retrieved for
// the prompt's content.
type InjectorService struct {
	retriever ports.Retriever
	fuser     ports.Fuser

	// fuserBudget caps the fused block across all modes; zero means no
	// cap beyond the mode policy.
	fuserBudget int
}

func NewInjector(retriever ports.Retriever, fuser ports.Fuser, fuserBudget int) *InjectorService {
	return &InjectorService{
		retriever:   retriever,
		fuser:       fuser,
		fuserBudget: fuserBudget,
	}
}

func (s *InjectorService) Inject(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error) {
	if req.OriginalPrompt == "" {
		return nil, domain.ErrEmptyContent
	}

	mode := req.InjectionMode
	if mode == "" {
		mode = models.InjectionModeBalanced
	}
	policy, ok := injectionPolicies[mode]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "unknown injection mode "+mode)
	}

	budget := policy.tokenBudget
	if s.fuserBudget > 0 && s.fuserBudget < budget {
		budget = s.fuserBudget
	}
	if req.MaxTokens > 0 && req.MaxTokens < budget {
		budget = req.MaxTokens
	}

	queryText := req.QueryText
	if queryText == "" {
		queryText = req.OriginalPrompt
	}

	start := time.Now()

	result := &models.ContextInjectionResult{
		EnhancedPrompt:   req.OriginalPrompt,
		InjectedMemories: []models.InjectedMemory{},
	}

	var results []*models.SearchResult
	outcome, err := s.retriever.Search(ctx, models.SearchQuery{
		Text:      queryText,
		QueryType: models.QueryTypeHybrid,
		Limit:     policy.limit,
		MinScore:  policy.minScore,
		ProjectID: req.ProjectID,
		Rerank:    true,
	})
	switch {
	case err == nil:
		results = outcome.Results
		result.Warnings = outcome.Warnings
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		// Injection degrades to the bare prompt instead of failing.
		log.Printf("[Injector] retrieval failed, returning original prompt: %v", err)
		result.Warnings = append(result.Warnings, WarningRetrievalFailed)
	}

	if len(results) > 0 {
		fused, injected, err := s.fuser.Fuse(ctx, queryText, results, budget)
		if err != nil {
			return nil, err
		}
		if fused != "" && req.MaxTokens > 0 {
			var warning string
			fused, injected, warning = fitTokenBudget(fused, injected, req.OriginalPrompt, req.MaxTokens)
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
			}
		}
		if fused != "" {
			result.EnhancedPrompt = fused + promptSeparator + req.OriginalPrompt
			result.InjectedMemories = injected
			result.TokensUsed = EstimateTokens(fused)
		}
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	metrics.InjectionsTotal.WithLabelValues(mode).Inc()
	metrics.InjectedTokens.Observe(float64(result.TokensUsed))
	return result, nil
}

// fitTokenBudget caps the assembled prompt at maxTokens by trimming the
// fused block from the tail, whole lines at a time. A budget the
// original prompt alone already exceeds leaves no room for memories.
func fitTokenBudget(fused string, injected []models.InjectedMemory, prompt string, maxTokens int) (string, []models.InjectedMemory, string) {
	if maxTokens < EstimateTokens(prompt) {
		return "", nil, WarningBudgetExceeded
	}

	if EstimateTokens(fused+promptSeparator+prompt) <= maxTokens {
		return fused, injected, ""
	}

	lines := strings.Split(fused, "\n")
	for len(lines) > 0 {
		lines = lines[:len(lines)-1]
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		candidate := strings.Join(lines, "\n")
		if EstimateTokens(candidate+promptSeparator+prompt) <= maxTokens {
			if candidate == "" {
				return "", nil, WarningContextTruncated
			}
			// Direct-mode fusion maps one non-blank line to one memory,
			// so the surviving entries bound the injected list.
			if n := countNonBlank(lines); n < len(injected) {
				injected = injected[:n]
			}
			return candidate, injected, WarningContextTruncated
		}
	}
	return "", nil, WarningContextTruncated
}

func countNonBlank(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}
