package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/recalldev/recall/internal/adapters/metrics"
	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

const (
	// hybridBonus rewards units found by both retrieval legs.
	hybridBonus = 0.1

	// candidateMultiplier oversamples each leg before merge and rerank.
	candidateMultiplier = 4

	// Rule-based fallback ranking weights, used when the reranker is
	// unavailable.
	fallbackScoreWeight      = 0.6
	fallbackImportanceWeight = 0.2
	fallbackRecencyWeight    = 0.2
	recencyHalfLifeDays      = 30.0

	WarningQueryTruncated = "query_truncated"
	WarningRerankDegraded = "rerank_degraded"
)

// RetrieverService runs hybrid memory search: a dense vector leg and a
// keyword leg, merged, then reranked by the rerank model with a
// rule-based fallback. Identical queries within the TTL are served
// from cache and deduplicated in flight.
type RetrieverService struct {
	gateway ports.ModelGateway
	units   ports.MemoryUnitRepository
	index   ports.VectorIndex

	cacheEnabled bool
	cache        *searchCache
	group        singleflight.Group

	now func() time.Time
}

func NewRetriever(gateway ports.ModelGateway, units ports.MemoryUnitRepository, index ports.VectorIndex, cacheTTL time.Duration, cacheEnabled bool) *RetrieverService {
	return &RetrieverService{
		gateway:      gateway,
		units:        units,
		index:        index,
		cacheEnabled: cacheEnabled && cacheTTL > 0,
		cache:        newSearchCache(cacheTTL),
		now:          time.Now,
	}
}

func (s *RetrieverService) Search(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	if query.Text == "" {
		return nil, domain.ErrEmptyQuery
	}
	if query.Limit < 0 {
		return nil, domain.ErrNegativeLimit
	}
	if query.Limit == 0 {
		// A zero limit asks for nothing; no provider or store calls.
		return &models.SearchOutcome{Results: []*models.SearchResult{}}, nil
	}

	var warnings []string
	if len(query.Text) > models.MaxQueryLen {
		query.Text = query.Text[:models.MaxQueryLen]
		warnings = append(warnings, WarningQueryTruncated)
	}
	query = query.WithDefaults()

	metrics.SearchesTotal.WithLabelValues(query.QueryType).Inc()

	key := fingerprint(query)
	if s.cacheEnabled {
		if outcome, ok := s.cache.get(key, s.now()); ok {
			metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
			return withRequestWarnings(outcome, warnings), nil
		}
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		outcome, err := s.search(ctx, query)
		if err != nil {
			return nil, err
		}
		if s.cacheEnabled {
			s.cache.set(key, query.ProjectID, outcome, s.now())
		}
		return outcome, nil
	})
	if err != nil {
		return nil, err
	}

	return withRequestWarnings(v.(*models.SearchOutcome), warnings), nil
}

// InvalidateProject drops cached results a write to the project could
// change. The orchestrator calls this after every store or index write.
func (s *RetrieverService) InvalidateProject(projectID string) {
	if !s.cacheEnabled {
		return
	}
	s.cache.invalidateProject(projectID)
}

// withRequestWarnings prepends per-request warnings without mutating a
// possibly shared cached outcome.
func withRequestWarnings(o *models.SearchOutcome, warnings []string) *models.SearchOutcome {
	if len(warnings) == 0 {
		return o
	}
	return &models.SearchOutcome{
		Results:  o.Results,
		Warnings: append(warnings, o.Warnings...),
		Timings:  o.Timings,
	}
}

func (s *RetrieverService) search(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	started := time.Now()
	candidates := query.Limit * candidateMultiplier

	outcome := &models.SearchOutcome{}
	merged := make(map[string]*models.SearchResult)

	if query.QueryType == models.QueryTypeSemantic || query.QueryType == models.QueryTypeHybrid {
		if err := s.denseLeg(ctx, query, candidates, merged, &outcome.Timings); err != nil {
			if query.QueryType == models.QueryTypeSemantic {
				return nil, fmt.Errorf("%w: %v", domain.ErrSearchFailed, err)
			}
			// Hybrid search survives on the keyword leg alone.
			log.Printf("[Retriever] dense leg failed, continuing keyword-only: %v", err)
		}
	}

	if query.QueryType == models.QueryTypeKeyword || query.QueryType == models.QueryTypeHybrid {
		kwStart := time.Now()
		err := s.keywordLeg(ctx, query, candidates, merged)
		outcome.Timings.KeywordMs = time.Since(kwStart).Milliseconds()
		if err != nil {
			if query.QueryType == models.QueryTypeKeyword || len(merged) == 0 {
				return nil, fmt.Errorf("%w: %v", domain.ErrSearchFailed, err)
			}
			log.Printf("[Retriever] keyword leg failed, continuing with dense results: %v", err)
		}
	}

	results := make([]*models.SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}

	// Rerank wants at least two candidates to order; anything less
	// keeps its merged score.
	if query.Rerank && len(results) >= 2 {
		rerankStart := time.Now()
		err := s.rerank(ctx, query, results)
		outcome.Timings.RerankMs = time.Since(rerankStart).Milliseconds()
		if err != nil {
			log.Printf("[Retriever] rerank failed, using rule-based ranking: %v", err)
			outcome.Warnings = append(outcome.Warnings, WarningRerankDegraded)
			s.fallbackRank(results)
		}
	} else {
		s.fallbackRank(results)
	}

	// The min-score filter runs after ranking so it applies to the
	// rerank-replaced scores.
	kept := results[:0]
	for _, r := range results {
		if r.RelevanceScore >= query.MinScore {
			kept = append(kept, r)
		}
	}
	if len(kept) > query.Limit {
		kept = kept[:query.Limit]
	}
	outcome.Results = kept
	outcome.Timings.TotalMs = time.Since(started).Milliseconds()
	return outcome, nil
}

// denseLeg embeds the query and searches the vector index, hydrating
// hits from the store.
func (s *RetrieverService) denseLeg(ctx context.Context, query models.SearchQuery, candidates int, merged map[string]*models.SearchResult, timings *models.SearchTimings) error {
	embedStart := time.Now()
	vectors, err := s.gateway.Embed(ctx, []string{query.Text})
	timings.EmbedMs = time.Since(embedStart).Milliseconds()
	if err != nil {
		return err
	}

	vectorStart := time.Now()
	hits, err := s.index.Search(ctx, vectors[0], candidates, query.ProjectID, query.MinScore)
	timings.VectorMs = time.Since(vectorStart).Milliseconds()
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}

	units, err := s.units.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	now := s.now()
	for _, u := range units {
		if !u.IsActive {
			continue
		}
		if u.ExpiresAt != nil && u.ExpiresAt.Before(now) {
			continue
		}
		merged[u.ID] = &models.SearchResult{
			MemoryUnit:     u,
			RelevanceScore: scores[u.ID],
			MatchType:      models.MatchTypeSemantic,
		}
	}
	return nil
}

// keywordLeg tokenizes the query and matches against the store,
// merging with any dense hits. Units found by both legs get a bonus.
func (s *RetrieverService) keywordLeg(ctx context.Context, query models.SearchQuery, candidates int, merged map[string]*models.SearchResult) error {
	tokens := models.NormalizeKeywords(strings.Fields(query.Text))
	if len(tokens) == 0 {
		return nil
	}

	matches, err := s.units.SearchKeywords(ctx, query.ProjectID, tokens, candidates)
	if err != nil {
		return err
	}

	for _, m := range matches {
		if existing, ok := merged[m.Unit.ID]; ok {
			score := existing.RelevanceScore
			if m.Score > score {
				score = m.Score
			}
			score += hybridBonus
			if score > 1 {
				score = 1
			}
			existing.RelevanceScore = score
			existing.MatchType = models.MatchTypeHybrid
			existing.MatchedKeywords = m.MatchedKeywords
			continue
		}
		merged[m.Unit.ID] = &models.SearchResult{
			MemoryUnit:      m.Unit,
			RelevanceScore:  m.Score,
			MatchType:       models.MatchTypeKeyword,
			MatchedKeywords: m.MatchedKeywords,
		}
	}
	return nil
}

// rerank scores each candidate's summary against the query with the
// rerank model, replaces the relevance score with the rerank score and
// reorders. Score ties go to the fresher unit.
func (s *RetrieverService) rerank(ctx context.Context, query models.SearchQuery, results []*models.SearchResult) error {
	docs := make([]string, len(results))
	for i, r := range results {
		doc := r.MemoryUnit.Summary
		if doc == "" {
			doc = r.MemoryUnit.Title
		}
		docs[i] = doc
	}

	queryText := query.Text
	if query.Context != "" {
		queryText = query.Context + "\n" + queryText
	}

	scores, err := s.gateway.Rerank(ctx, queryText, docs)
	if err != nil {
		return err
	}

	for i, r := range results {
		score := scores[i]
		r.RerankScore = &score
		r.RelevanceScore = score
	}
	sort.SliceStable(results, func(i, j int) bool {
		if *results[i].RerankScore == *results[j].RerankScore {
			return results[i].MemoryUnit.CreatedAt.After(results[j].MemoryUnit.CreatedAt)
		}
		return *results[i].RerankScore > *results[j].RerankScore
	})
	return nil
}

// fallbackRank reorders by a weighted blend of retrieval score, stored
// importance and recency.
func (s *RetrieverService) fallbackRank(results []*models.SearchResult) {
	now := s.now()
	ranked := make(map[string]float64, len(results))
	for _, r := range results {
		ageDays := now.Sub(r.MemoryUnit.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		ranked[r.MemoryUnit.ID] = fallbackScoreWeight*float64(r.RelevanceScore) +
			fallbackImportanceWeight*float64(r.MemoryUnit.RelevanceScore) +
			fallbackRecencyWeight*math.Exp(-ageDays/recencyHalfLifeDays)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return ranked[results[i].MemoryUnit.ID] > ranked[results[j].MemoryUnit.ID]
	})
}

func fingerprint(q models.SearchQuery) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%g|%s|%s|%t",
		q.Text, q.QueryType, q.Limit, q.MinScore, q.ProjectID, q.Context, q.Rerank)))
	return hex.EncodeToString(h[:])
}

// searchCache is a small TTL cache keyed by query fingerprint.
type searchCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	outcome *models.SearchOutcome
	project string
	expires time.Time
}

func newSearchCache(ttl time.Duration) *searchCache {
	return &searchCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *searchCache) get(key string, now time.Time) (*models.SearchOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.outcome, true
}

func (c *searchCache) set(key, project string, outcome *models.SearchOutcome, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistically drop expired entries so the map stays bounded.
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{outcome: outcome, project: project, expires: now.Add(c.ttl)}
}

// invalidateProject removes entries a write to project could change:
// queries filtered to that project and unfiltered queries. Global
// writes are visible everywhere, so they clear the whole cache.
func (c *searchCache) invalidateProject(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if project == "" || project == models.ProjectGlobal {
		c.entries = make(map[string]cacheEntry)
		return
	}
	for k, e := range c.entries {
		if e.project == project || e.project == "" {
			delete(c.entries, k)
		}
	}
}
