package models

import (
	"strings"
	"time"
	"unicode"
)

// Memory unit types
const (
	UnitTypeConversation  = "conversation"
	UnitTypeDocumentation = "documentation"
	UnitTypeArchive       = "archive"
	UnitTypeSynthetic     = "synthetic"
)

const (
	MaxTitleLen    = 200
	MaxSummaryLen  = 2000
	MaxKeywords    = 32
	MaxKeywordLen  = 64
)

// MemoryUnit is the atomic record the service stores, retrieves and
// injects: one conversation distilled into title, summary, content and
// keywords, with an LLM-assigned importance.
type MemoryUnit struct {
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
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	IsActive       bool           `json:"is_active"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func NewMemoryUnit(id, conversationID, projectID string) *MemoryUnit {
	now := time.Now().UTC()
	if projectID == "" {
		projectID = ProjectGlobal
	}
	return &MemoryUnit{
		ID:             id,
		ConversationID: conversationID,
		ProjectID:      projectID,
		UnitType:       UnitTypeConversation,
		Keywords:       []string{},
		RelevanceScore: 0.5,
		CreatedAt:      now,
		UpdatedAt:      now,
		IsActive:       true,
		Metadata:       map[string]any{},
	}
}

// SetTitle stores the title truncated to MaxTitleLen characters.
func (u *MemoryUnit) SetTitle(title string) {
	u.Title = truncateRunes(strings.TrimSpace(title), MaxTitleLen)
	u.UpdatedAt = time.Now().UTC()
}

// SetSummary stores the summary truncated to MaxSummaryLen characters.
func (u *MemoryUnit) SetSummary(summary string) {
	u.Summary = truncateRunes(strings.TrimSpace(summary), MaxSummaryLen)
	u.UpdatedAt = time.Now().UTC()
}

// SetImportance clamps the LLM-assigned importance to [0, 1].
func (u *MemoryUnit) SetImportance(score float32) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	u.RelevanceScore = score
	u.UpdatedAt = time.Now().UTC()
}

// SetKeywords normalizes and stores keywords: lowercased, punctuation
// stripped, deduplicated, capped at MaxKeywords.
func (u *MemoryUnit) SetKeywords(keywords []string) {
	u.Keywords = NormalizeKeywords(keywords)
	u.UpdatedAt = time.Now().UTC()
}

// Deactivate soft-deletes the unit. The caller is responsible for
// removing the matching vector from the index.
func (u *MemoryUnit) Deactivate() {
	u.IsActive = false
	u.UpdatedAt = time.Now().UTC()
}

// NormalizeKeywords lowercases, strips punctuation, deduplicates and
// caps a keyword list. Order of first occurrence is preserved.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		kw = strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) {
				return -1
			}
			return r
		}, kw)
		kw = strings.Join(strings.Fields(kw), " ")
		if kw == "" || len(kw) > MaxKeywordLen {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) >= MaxKeywords {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
