package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

// setURLParam adds a URL parameter to the request context (chi router style)
func setURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func sampleUnit(id string) *models.MemoryUnit {
	u := models.NewMemoryUnit(id, "cv_1", "proj")
	u.Title = "Sample memory"
	u.Summary = "A summary."
	u.Keywords = []string{"sample"}
	u.RelevanceScore = 0.7
	u.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return u
}

type mockMemoryService struct {
	storeFn  func(ctx context.Context, req models.StoreConversationRequest) (*models.StoreConversationResult, error)
	searchFn func(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error)
	injectFn func(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error)
	healthy  bool

	lastQuery models.SearchQuery
}

func (m *mockMemoryService) StoreConversation(ctx context.Context, req models.StoreConversationRequest) (*models.StoreConversationResult, error) {
	if m.storeFn != nil {
		return m.storeFn(ctx, req)
	}
	return &models.StoreConversationResult{
		ConversationID: "cv_1",
		MemoryUnitIDs:  []string{"mu_1"},
		MessagesStored: len(req.Messages),
	}, nil
}

func (m *mockMemoryService) SearchMemories(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	m.lastQuery = query
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return &models.SearchOutcome{}, nil
}

func (m *mockMemoryService) InjectContext(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error) {
	if m.injectFn != nil {
		return m.injectFn(ctx, req)
	}
	return &models.ContextInjectionResult{EnhancedPrompt: req.OriginalPrompt}, nil
}

func (m *mockMemoryService) Status(ctx context.Context) *models.ServiceStatus {
	return &models.ServiceStatus{Started: true, Searches: 3}
}

func (m *mockMemoryService) Health(ctx context.Context) *ports.HealthReport {
	return &ports.HealthReport{
		Healthy: m.healthy,
		Components: []ports.ComponentStatus{
			{Name: "store", Healthy: m.healthy},
		},
	}
}

type mockUnitStore struct {
	units   map[string]*models.MemoryUnit
	flipped []string
}

func newMockUnitStore(units ...*models.MemoryUnit) *mockUnitStore {
	s := &mockUnitStore{units: map[string]*models.MemoryUnit{}}
	for _, u := range units {
		s.units[u.ID] = u
	}
	return s
}

func (s *mockUnitStore) Create(ctx context.Context, unit *models.MemoryUnit) error {
	s.units[unit.ID] = unit
	return nil
}

func (s *mockUnitStore) GetByID(ctx context.Context, id string) (*models.MemoryUnit, error) {
	u, ok := s.units[id]
	if !ok {
		return nil, domain.ErrMemoryUnitNotFound
	}
	return u, nil
}

func (s *mockUnitStore) GetByIDs(ctx context.Context, ids []string) ([]*models.MemoryUnit, error) {
	var out []*models.MemoryUnit
	for _, id := range ids {
		if u, ok := s.units[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *mockUnitStore) GetByConversation(ctx context.Context, conversationID string) ([]*models.MemoryUnit, error) {
	return nil, nil
}

func (s *mockUnitStore) List(ctx context.Context, filter ports.MemoryUnitFilter) ([]*models.MemoryUnit, error) {
	var out []*models.MemoryUnit
	for _, u := range s.units {
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *mockUnitStore) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := s.units[id]
	if !ok {
		return domain.ErrMemoryUnitNotFound
	}
	u.IsActive = active
	s.flipped = append(s.flipped, id)
	return nil
}

func (s *mockUnitStore) SearchKeywords(ctx context.Context, projectID string, tokens []string, limit int) ([]*ports.MemoryUnitKeywordMatch, error) {
	return nil, nil
}

func (s *mockUnitStore) ListOrphans(ctx context.Context, limit int) ([]*models.MemoryUnit, error) {
	return nil, nil
}

func (s *mockUnitStore) ListStalePayloads(ctx context.Context, limit int) ([]*models.MemoryUnit, error) {
	return nil, nil
}

type mockRetriever struct {
	invalidated []string
}

func (m *mockRetriever) Search(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	return &models.SearchOutcome{}, nil
}

func (m *mockRetriever) InvalidateProject(projectID string) {
	m.invalidated = append(m.invalidated, projectID)
}

type mockVectorIndex struct {
	deleted [][]string
	err     error
}

func (m *mockVectorIndex) EnsureCollection(ctx context.Context, dimension int) error { return m.err }
func (m *mockVectorIndex) Upsert(ctx context.Context, points []ports.VectorPoint) error {
	return m.err
}

func (m *mockVectorIndex) Search(ctx context.Context, vector []float32, limit int, projectID string, minScore float32) ([]ports.VectorHit, error) {
	return nil, m.err
}

func (m *mockVectorIndex) SetPayload(ctx context.Context, id string, payload map[string]any) error {
	return m.err
}

func (m *mockVectorIndex) Delete(ctx context.Context, ids []string) error {
	m.deleted = append(m.deleted, ids)
	return m.err
}

func (m *mockVectorIndex) Count(ctx context.Context) (int, error) { return 0, m.err }
func (m *mockVectorIndex) Healthy(ctx context.Context) error      { return m.err }
