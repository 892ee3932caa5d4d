package services

import (
	"context"
	"fmt"
	"time"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

type mockGateway struct {
	dimension int

	embedFn    func(ctx context.Context, texts []string) ([][]float32, error)
	rerankFn   func(ctx context.Context, query string, documents []string) ([]float32, error)
	completeFn func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResult, error)

	embedCalls    int
	rerankCalls   int
	completeCalls int
}

func (m *mockGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedCalls++
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.Dimension())
	}
	return out, nil
}

func (m *mockGateway) Rerank(ctx context.Context, query string, documents []string) ([]float32, error) {
	m.rerankCalls++
	if m.rerankFn != nil {
		return m.rerankFn(ctx, query, documents)
	}
	scores := make([]float32, len(documents))
	return scores, nil
}

func (m *mockGateway) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResult, error) {
	m.completeCalls++
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return &ports.CompletionResult{Text: "{}"}, nil
}

func (m *mockGateway) Dimension() int {
	if m.dimension == 0 {
		return 8
	}
	return m.dimension
}

func (m *mockGateway) Healthy(ctx context.Context) error { return nil }

type mockUnitRepo struct {
	units map[string]*models.MemoryUnit

	searchKeywordsFn    func(ctx context.Context, projectID string, tokens []string, limit int) ([]*ports.MemoryUnitKeywordMatch, error)
	listOrphansFn       func(ctx context.Context, limit int) ([]*models.MemoryUnit, error)
	listStalePayloadsFn func(ctx context.Context, limit int) ([]*models.MemoryUnit, error)

	searchKeywordCalls int
}

func newMockUnitRepo(units ...*models.MemoryUnit) *mockUnitRepo {
	m := &mockUnitRepo{units: make(map[string]*models.MemoryUnit)}
	for _, u := range units {
		m.units[u.ID] = u
	}
	return m
}

func (m *mockUnitRepo) Create(ctx context.Context, unit *models.MemoryUnit) error {
	if _, exists := m.units[unit.ID]; exists {
		return nil
	}
	m.units[unit.ID] = unit
	return nil
}

func (m *mockUnitRepo) GetByID(ctx context.Context, id string) (*models.MemoryUnit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, domain.ErrMemoryUnitNotFound
	}
	return u, nil
}

func (m *mockUnitRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.MemoryUnit, error) {
	var out []*models.MemoryUnit
	for _, id := range ids {
		if u, ok := m.units[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUnitRepo) GetByConversation(ctx context.Context, conversationID string) ([]*models.MemoryUnit, error) {
	var out []*models.MemoryUnit
	for _, u := range m.units {
		if u.ConversationID == conversationID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUnitRepo) List(ctx context.Context, filter ports.MemoryUnitFilter) ([]*models.MemoryUnit, error) {
	var out []*models.MemoryUnit
	for _, u := range m.units {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockUnitRepo) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := m.units[id]
	if !ok {
		return domain.ErrMemoryUnitNotFound
	}
	u.IsActive = active
	return nil
}

func (m *mockUnitRepo) SearchKeywords(ctx context.Context, projectID string, tokens []string, limit int) ([]*ports.MemoryUnitKeywordMatch, error) {
	m.searchKeywordCalls++
	if m.searchKeywordsFn != nil {
		return m.searchKeywordsFn(ctx, projectID, tokens, limit)
	}
	return nil, nil
}

func (m *mockUnitRepo) ListOrphans(ctx context.Context, limit int) ([]*models.MemoryUnit, error) {
	if m.listOrphansFn != nil {
		return m.listOrphansFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockUnitRepo) ListStalePayloads(ctx context.Context, limit int) ([]*models.MemoryUnit, error) {
	if m.listStalePayloadsFn != nil {
		return m.listStalePayloadsFn(ctx, limit)
	}
	return nil, nil
}

type mockIndex struct {
	searchFn func(ctx context.Context, vector []float32, limit int, projectID string, minScore float32) ([]ports.VectorHit, error)

	upserted [][]ports.VectorPoint
	deleted  [][]string
	payloads map[string]map[string]any

	searchCalls int
}

func (m *mockIndex) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (m *mockIndex) Upsert(ctx context.Context, points []ports.VectorPoint) error {
	m.upserted = append(m.upserted, points)
	return nil
}

func (m *mockIndex) Search(ctx context.Context, vector []float32, limit int, projectID string, minScore float32) ([]ports.VectorHit, error) {
	m.searchCalls++
	if m.searchFn != nil {
		return m.searchFn(ctx, vector, limit, projectID, minScore)
	}
	return nil, nil
}

func (m *mockIndex) SetPayload(ctx context.Context, id string, payload map[string]any) error {
	if m.payloads == nil {
		m.payloads = make(map[string]map[string]any)
	}
	m.payloads[id] = payload
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, ids []string) error {
	m.deleted = append(m.deleted, ids)
	return nil
}

func (m *mockIndex) Count(ctx context.Context) (int, error) { return len(m.upserted), nil }

func (m *mockIndex) Healthy(ctx context.Context) error { return nil }

type mockConversationRepo struct {
	conversations map[string]*models.Conversation
	bySession     map[string]*models.Conversation
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{
		conversations: make(map[string]*models.Conversation),
		bySession:     make(map[string]*models.Conversation),
	}
}

func (m *mockConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	m.conversations[c.ID] = c
	if c.SessionID != "" {
		m.bySession[c.SessionID] = c
	}
	return nil
}

func (m *mockConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (m *mockConversationRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Conversation, error) {
	c, ok := m.bySession[sessionID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (m *mockConversationRepo) Update(ctx context.Context, c *models.Conversation) error {
	m.conversations[c.ID] = c
	return nil
}

func (m *mockConversationRepo) UpdateActivity(ctx context.Context, id string, messageCount, tokenCount int, lastActivity time.Time) error {
	c, ok := m.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.MessageCount = messageCount
	c.TokenCount = tokenCount
	c.LastActivityAt = lastActivity
	return nil
}

func (m *mockConversationRepo) List(ctx context.Context, projectID string, limit, offset int) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, c := range m.conversations {
		out = append(out, c)
	}
	return out, nil
}

type mockMessageRepo struct {
	messages map[string][]*models.Message
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: make(map[string][]*models.Message)}
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *mockMessageRepo) CreateBatch(ctx context.Context, msgs []*models.Message) error {
	for _, msg := range msgs {
		if err := m.Create(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == id {
				return msg, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockMessageRepo) GetByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	return m.messages[conversationID], nil
}

func (m *mockMessageRepo) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	return len(m.messages[conversationID]), nil
}

type mockEmbeddingRepo struct {
	records map[string]*ports.EmbeddingRecord
}

func newMockEmbeddingRepo() *mockEmbeddingRepo {
	return &mockEmbeddingRepo{records: make(map[string]*ports.EmbeddingRecord)}
}

func (m *mockEmbeddingRepo) Upsert(ctx context.Context, rec *ports.EmbeddingRecord) error {
	m.records[rec.MemoryUnitID] = rec
	return nil
}

func (m *mockEmbeddingRepo) GetByMemoryUnit(ctx context.Context, memoryUnitID string) (*ports.EmbeddingRecord, error) {
	rec, ok := m.records[memoryUnitID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (m *mockEmbeddingRepo) Delete(ctx context.Context, memoryUnitID string) error {
	delete(m.records, memoryUnitID)
	return nil
}

// mockTx runs the function directly, no real transaction.
type mockTx struct{}

func (mockTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockIDs struct {
	n int
}

func (m *mockIDs) next(prefix string) string {
	m.n++
	return fmt.Sprintf("%s_%04d", prefix, m.n)
}

func (m *mockIDs) GenerateConversationID() string { return m.next("cv") }
func (m *mockIDs) GenerateMessageID() string      { return m.next("msg") }
func (m *mockIDs) GenerateMemoryUnitID() string   { return m.next("mu") }
func (m *mockIDs) GenerateMemoryUsageID() string  { return m.next("use") }
func (m *mockIDs) GenerateRequestID() string      { return m.next("req") }

type mockUsageRepo struct {
	created [][]*models.MemoryUsage
	err     error
}

func (m *mockUsageRepo) CreateBatch(ctx context.Context, usages []*models.MemoryUsage) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, usages)
	return nil
}

func (m *mockUsageRepo) GetByMemoryUnit(ctx context.Context, memoryUnitID string, limit int) ([]*models.MemoryUsage, error) {
	var out []*models.MemoryUsage
	for _, batch := range m.created {
		for _, u := range batch {
			if u.MemoryUnitID == memoryUnitID {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (m *mockUsageRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	for _, batch := range m.created {
		n += int64(len(batch))
	}
	return n, nil
}

type mockRetriever struct {
	results  []*models.SearchResult
	warnings []string
	timings  models.SearchTimings
	err      error

	lastQuery   models.SearchQuery
	invalidated []string
}

func (m *mockRetriever) Search(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return &models.SearchOutcome{Results: m.results, Warnings: m.warnings, Timings: m.timings}, nil
}

func (m *mockRetriever) InvalidateProject(projectID string) {
	m.invalidated = append(m.invalidated, projectID)
}

type mockFuser struct {
	fused string
	err   error

	lastBudget int
}

func (m *mockFuser) Fuse(ctx context.Context, query string, results []*models.SearchResult, tokenBudget int) (string, []models.InjectedMemory, error) {
	m.lastBudget = tokenBudget
	if m.err != nil {
		return "", nil, m.err
	}
	injected := make([]models.InjectedMemory, len(results))
	for i, r := range results {
		injected[i] = models.InjectedMemory{ID: r.MemoryUnit.ID, Title: r.MemoryUnit.Title, Summary: r.MemoryUnit.Summary}
	}
	return m.fused, injected, nil
}

type mockCompressor struct {
	result *ports.CompressionResult
	err    error
}

func (m *mockCompressor) Compress(ctx context.Context, conversation *models.Conversation, messages []*models.Message) (*ports.CompressionResult, error) {
	return m.result, m.err
}

func testUnit(id, title string, score float32, age time.Duration) *models.MemoryUnit {
	u := models.NewMemoryUnit(id, "cv_0001", "proj")
	u.Title = title
	u.Summary = "summary of " + title
	u.RelevanceScore = score
	u.CreatedAt = time.Now().Add(-age)
	return u
}
