package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/recalldev/recall/internal/adapters/metrics"
	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/llm"
	"github.com/recalldev/recall/internal/ports"
)

const (
	// degradedTitleChars is how much of the transcript seeds the title
	// when the model output cannot be parsed.
	degradedTitleChars   = 40
	degradedSummaryChars = 500
	degradedImportance   = 0.3

	compressionMaxTokens = 1500

	// documentationTokenFloor is the reply length past which a single
	// question-and-answer exchange reads as reference material.
	documentationTokenFloor = 400
	// documentationMaxQuestionDensity is questions per word in the
	// reply; above it the exchange is still a dialogue.
	documentationMaxQuestionDensity = 0.01
)

// truncationMarker stands in for the messages dropped from the middle
// of an over-budget transcript.
const truncationMarker = "[... conversation truncated ...]"

const compressionSystemPrompt = `You distill coding-assistant conversations into searchable memory records.
Respond with a single JSON object and nothing else:
{
  "title": "short descriptive title",
  "summary": "2-4 sentence summary of what was discussed and decided",
  "keywords": ["lowercase", "search", "terms"],
  "importance": 0.0,
  "segments": [
    {"title": "...", "summary": "...", "keywords": ["..."], "importance": 0.0, "first_message": 1, "last_message": 3}
  ]
}
"importance" is how valuable this memory is for future sessions, between 0 and 1.
"segments" is optional; use it only when the conversation covers clearly distinct topics.
"first_message" and "last_message" are the 1-based positions of the turns a segment covers.`

// CompressorService distills a conversation transcript into one or
// more memory units via the light model, with a single corrective
// retry and a mechanical degraded fallback.
type CompressorService struct {
	completer   ports.Completer
	ids         ports.IDGenerator
	tokenBudget int
}

func NewCompressor(completer ports.Completer, ids ports.IDGenerator, tokenBudget int) *CompressorService {
	return &CompressorService{
		completer:   completer,
		ids:         ids,
		tokenBudget: tokenBudget,
	}
}

type compressionPayload struct {
	Title      string               `json:"title"`
	Summary    string               `json:"summary"`
	Keywords   []string             `json:"keywords"`
	Importance float64              `json:"importance"`
	Segments   []compressionSegment `json:"segments"`
}

type compressionSegment struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Importance float64  `json:"importance"`

	// 1-based inclusive positions of the turns the segment covers.
	FirstMessage int `json:"first_message"`
	LastMessage  int `json:"last_message"`
}

func (s *CompressorService) Compress(ctx context.Context, conversation *models.Conversation, messages []*models.Message) (*ports.CompressionResult, error) {
	if len(messages) == 0 {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "conversation has no messages")
	}

	transcript := buildTranscript(messages, s.tokenBudget)

	payload, err := s.compressWithRetry(ctx, transcript)
	if err != nil {
		log.Printf("[Compressor] degrading conversation %s: %v", conversation.ID, err)
		metrics.CompressionsTotal.WithLabelValues("degraded").Inc()
		return &ports.CompressionResult{
			Units:    []*models.MemoryUnit{s.degradedUnit(conversation, transcript)},
			Degraded: true,
		}, nil
	}

	metrics.CompressionsTotal.WithLabelValues("parsed").Inc()
	return &ports.CompressionResult{
		Units: s.buildUnits(conversation, transcript, messages, payload),
	}, nil
}

// compressWithRetry calls the model once and, if the output cannot be
// parsed as the expected JSON, retries once with the parse error
// appended.
func (s *CompressorService) compressWithRetry(ctx context.Context, transcript string) (*compressionPayload, error) {
	prompt := "Conversation transcript:\n\n" + transcript

	text, err := s.complete(ctx, compressionSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	payload, parseErr := parseCompression(text)
	if parseErr == nil {
		return payload, nil
	}

	metrics.CompressionsTotal.WithLabelValues("retried").Inc()
	retrySystem := compressionSystemPrompt +
		"\n\nYour previous response was rejected: " + parseErr.Error() +
		"\nRespond with valid JSON matching the schema exactly."
	text, err = s.complete(ctx, retrySystem, prompt)
	if err != nil {
		return nil, err
	}
	return parseCompression(text)
}

func (s *CompressorService) complete(ctx context.Context, system, prompt string) (string, error) {
	res, err := s.completer.Complete(ctx, ports.CompletionRequest{
		Model:       llm.AliasLight,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   compressionMaxTokens,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCompressionFailed, err)
	}
	return res.Text, nil
}

// parseCompression parses the model output, tolerating markdown fences
// around the JSON object.
func parseCompression(text string) (*compressionPayload, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload compressionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, fmt.Errorf("missing title")
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, fmt.Errorf("missing summary")
	}
	for i, seg := range payload.Segments {
		if strings.TrimSpace(seg.Title) == "" || strings.TrimSpace(seg.Summary) == "" {
			return nil, fmt.Errorf("segment %d missing title or summary", i)
		}
	}
	return &payload, nil
}

func (s *CompressorService) buildUnits(conversation *models.Conversation, transcript string, messages []*models.Message, payload *compressionPayload) []*models.MemoryUnit {
	if len(payload.Segments) > 0 {
		units := make([]*models.MemoryUnit, 0, len(payload.Segments))
		for _, seg := range payload.Segments {
			unit := models.NewMemoryUnit(s.ids.GenerateMemoryUnitID(), conversation.ID, conversation.ProjectID)
			unit.SetTitle(seg.Title)
			unit.SetSummary(seg.Summary)
			unit.SetKeywords(seg.Keywords)
			unit.SetImportance(float32(seg.Importance))
			unit.Content = segmentContent(messages, seg, transcript)
			unit.TokenCount = EstimateTokens(unit.Title + " " + unit.Summary)
			units = append(units, unit)
		}
		return units
	}

	unit := models.NewMemoryUnit(s.ids.GenerateMemoryUnitID(), conversation.ID, conversation.ProjectID)
	unit.SetTitle(payload.Title)
	unit.SetSummary(payload.Summary)
	unit.SetKeywords(payload.Keywords)
	unit.SetImportance(float32(payload.Importance))
	unit.UnitType = classifyUnitType(messages)
	unit.Content = transcript
	unit.TokenCount = EstimateTokens(unit.Title + " " + unit.Summary)
	return []*models.MemoryUnit{unit}
}

// segmentContent renders the message slice a segment reported covering.
// Missing or out-of-range positions fall back to the full transcript.
func segmentContent(messages []*models.Message, seg compressionSegment, fallback string) string {
	first, last := seg.FirstMessage, seg.LastMessage
	if first < 1 || last < first || first > len(messages) {
		return fallback
	}
	if last > len(messages) {
		last = len(messages)
	}
	lines := make([]string, 0, last-first+1)
	for _, m := range messages[first-1 : last] {
		lines = append(lines, messageLine(m))
	}
	return strings.Join(lines, "\n")
}

// classifyUnitType marks a single question-and-answer exchange with a
// long, declarative reply as documentation.
func classifyUnitType(messages []*models.Message) string {
	humans, assistants := 0, 0
	reply := ""
	for _, m := range messages {
		switch m.MessageType {
		case models.MessageTypeHuman:
			humans++
		case models.MessageTypeAssistant:
			assistants++
			reply = m.Content
		}
	}
	if humans != 1 || assistants != 1 {
		return models.UnitTypeConversation
	}
	if EstimateTokens(reply) <= documentationTokenFloor {
		return models.UnitTypeConversation
	}
	words := len(strings.Fields(reply))
	questions := strings.Count(reply, "?")
	if float64(questions) > documentationMaxQuestionDensity*float64(words) {
		return models.UnitTypeConversation
	}
	return models.UnitTypeDocumentation
}

// degradedUnit builds a mechanical fallback when the model output
// never parsed. It is still stored and searchable by keyword.
func (s *CompressorService) degradedUnit(conversation *models.Conversation, transcript string) *models.MemoryUnit {
	seed := firstContentLine(transcript)

	unit := models.NewMemoryUnit(s.ids.GenerateMemoryUnitID(), conversation.ID, conversation.ProjectID)
	unit.SetTitle("Conversation " + truncateChars(seed, degradedTitleChars))
	unit.SetSummary(truncateChars(transcript, degradedSummaryChars))
	unit.SetKeywords(strings.Fields(seed))
	unit.SetImportance(degradedImportance)
	unit.Content = transcript
	unit.TokenCount = EstimateTokens(unit.Title + " " + unit.Summary)
	unit.Metadata["degraded"] = true
	return unit
}

// buildTranscript renders messages into the token budget. When the
// conversation is too large it keeps the opening and the most recent
// turns and marks the dropped middle.
func buildTranscript(messages []*models.Message, tokenBudget int) string {
	lines := make([]string, len(messages))
	costs := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		lines[i] = messageLine(m)
		costs[i] = EstimateTokens(lines[i])
		total += costs[i]
	}
	if total <= tokenBudget {
		return strings.Join(lines, "\n")
	}

	// Recent turns carry the decisions, so the tail gets the larger
	// share of the budget.
	tailBudget := tokenBudget * 2 / 3
	tail, used := 0, 0
	for i := len(lines) - 1; i >= 0; i-- {
		if used+costs[i] > tailBudget {
			if tail > 0 {
				break
			}
			// A single oversized message still has to fit something.
			if costs[i] > tokenBudget {
				lines[i] = truncateToTokens(lines[i], tokenBudget)
				costs[i] = EstimateTokens(lines[i])
			}
			if costs[i] > tokenBudget {
				break
			}
		}
		used += costs[i]
		tail++
	}

	head := 0
	for i := 0; i < len(lines)-tail; i++ {
		if used+costs[i] > tokenBudget {
			break
		}
		used += costs[i]
		head++
	}

	if head+tail >= len(lines) {
		return strings.Join(lines, "\n")
	}
	parts := make([]string, 0, head+tail+1)
	parts = append(parts, lines[:head]...)
	parts = append(parts, truncationMarker)
	parts = append(parts, lines[len(lines)-tail:]...)
	return strings.Join(parts, "\n")
}

func messageLine(m *models.Message) string {
	return m.MessageType + ": " + m.Content
}

// truncateToTokens drops trailing words until the text fits the budget.
func truncateToTokens(s string, tokenBudget int) string {
	words := strings.Fields(s)
	maxWords := int(float64(tokenBudget) / 1.3)
	if maxWords < 1 {
		maxWords = 1
	}
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}

func firstContentLine(transcript string) string {
	for _, line := range strings.Split(transcript, "\n") {
		for _, prefix := range []string{"human: ", "assistant: ", "system: ", "tool: "} {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimPrefix(line, prefix)
				break
			}
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return transcript
}

func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
