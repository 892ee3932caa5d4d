package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/recalldev/recall/internal/adapters/metrics"
	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/llm"
	"github.com/recalldev/recall/internal/ports"
)

const (
	orphanSweepInterval = 5 * time.Minute
	orphanSweepBatch    = 100
)

// OrchestratorDeps bundles everything the orchestrator wires together.
type OrchestratorDeps struct {
	Conversations ports.ConversationRepository
	Messages      ports.MessageRepository
	Units         ports.MemoryUnitRepository
	Embeddings    ports.EmbeddingRepository
	Usages        ports.MemoryUsageRepository
	Tx            ports.TransactionManager
	IDs           ports.IDGenerator
	Gateway       ports.ModelGateway
	Index         ports.VectorIndex
	Compressor    ports.Compressor
	Retriever     ports.Retriever
	Injector      ports.Injector
	// StoreHealth pings the persistent store, typically pool.Ping.
	StoreHealth func(ctx context.Context) error
	// Usage exposes gateway usage totals for status reports.
	Usage func() map[string]llm.UsageTotals
}

// Orchestrator owns the service lifecycle and the top-level
// operations: store, search, inject and status.
type Orchestrator struct {
	deps OrchestratorDeps

	compressSem *semaphore.Weighted

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	conversationsStored atomic.Int64
	memoryUnitsCreated  atomic.Int64
	searches            atomic.Int64
	injections          atomic.Int64
	memoriesInjected    atomic.Int64
}

func NewOrchestrator(deps OrchestratorDeps, compressorInflight int) *Orchestrator {
	if compressorInflight < 1 {
		compressorInflight = 1
	}
	return &Orchestrator{
		deps:        deps,
		compressSem: semaphore.NewWeighted(int64(compressorInflight)),
	}
}

// Start prepares the vector collection and launches the background
// index repair sweep.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return domain.ErrAlreadyStarted
	}

	// A missing vector store is not fatal: units stay keyword-searchable
	// and the sweep re-indexes once it comes back.
	if err := o.deps.Index.EnsureCollection(ctx, o.deps.Gateway.Dimension()); err != nil {
		log.Printf("[Orchestrator] vector collection not ready: %v", err)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.sweepLoop(sweepCtx)

	o.started = true
	o.startedAt = time.Now()
	log.Printf("[Orchestrator] started")
	return nil
}

// Stop halts background work. In-flight requests finish on their own
// contexts.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return domain.ErrNotStarted
	}
	o.cancel()
	<-o.done
	o.started = false
	log.Printf("[Orchestrator] stopped")
	return nil
}

// Health reports per-component health.
func (o *Orchestrator) Health(ctx context.Context) *ports.HealthReport {
	report := &ports.HealthReport{Healthy: true}

	add := func(name string, err error) {
		status := ports.ComponentStatus{Name: name, Healthy: err == nil}
		if err != nil {
			status.Detail = err.Error()
			report.Healthy = false
		}
		report.Components = append(report.Components, status)
	}

	add("store", o.deps.StoreHealth(ctx))
	add("vector_index", o.deps.Index.Healthy(ctx))
	add("model_gateway", o.deps.Gateway.Healthy(ctx))
	return report
}

// StoreConversation persists a conversation and compresses it into
// memory units. Replays of an already-stored conversation return the
// existing units without writing anything.
func (o *Orchestrator) StoreConversation(ctx context.Context, req models.StoreConversationRequest) (*models.StoreConversationResult, error) {
	if len(req.Messages) == 0 {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "no messages to store")
	}

	conversation, appended, replayed, err := o.persistConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	if replayed {
		existing, err := o.deps.Units.GetByConversation(ctx, conversation.ID)
		if err != nil {
			return nil, err
		}
		return &models.StoreConversationResult{
			ConversationID: conversation.ID,
			MemoryUnitIDs:  unitIDs(existing),
			Replayed:       true,
		}, nil
	}

	// Backpressure: only a bounded number of conversations compress
	// concurrently.
	if err := o.compressSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.compressSem.Release(1)

	allMessages, err := o.deps.Messages.GetByConversation(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}

	compressed, err := o.deps.Compressor.Compress(ctx, conversation, allMessages)
	if err != nil {
		metrics.CompressionsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := o.replaceUnits(ctx, conversation.ID, compressed.Units); err != nil {
		return nil, err
	}

	o.indexUnits(ctx, compressed.Units)
	o.deps.Retriever.InvalidateProject(conversation.ProjectID)

	o.conversationsStored.Add(1)
	o.memoryUnitsCreated.Add(int64(len(compressed.Units)))

	return &models.StoreConversationResult{
		ConversationID: conversation.ID,
		MemoryUnitIDs:  unitIDs(compressed.Units),
		MessagesStored: appended,
		Degraded:       compressed.Degraded,
	}, nil
}

// persistConversation writes the conversation and its messages in one
// transaction. It returns the conversation, how many messages were
// appended, and whether the request was a pure replay.
func (o *Orchestrator) persistConversation(ctx context.Context, req models.StoreConversationRequest) (*models.Conversation, int, bool, error) {
	var conversation *models.Conversation
	var appended int
	var replayed bool

	err := o.deps.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var existing *models.Conversation
		if req.SessionID != "" {
			c, err := o.deps.Conversations.GetBySessionID(txCtx, req.SessionID)
			if err != nil && !errors.Is(err, domain.ErrConversationNotFound) {
				return err
			}
			existing = c
		}

		offset := 0
		if existing != nil {
			if len(req.Messages) <= existing.MessageCount {
				conversation = existing
				replayed = true
				return nil
			}
			conversation = existing
			offset = existing.MessageCount
		} else {
			conversation = models.NewConversation(o.deps.IDs.GenerateConversationID(), req.ProjectID, req.Title)
			conversation.SessionID = req.SessionID
			if req.Metadata != nil {
				conversation.Metadata = req.Metadata
			}
			if err := o.deps.Conversations.Create(txCtx, conversation); err != nil {
				return err
			}
		}

		tokens := 0
		msgs := make([]*models.Message, 0, len(req.Messages)-offset)
		for _, im := range req.Messages[offset:] {
			m := models.NewMessage(o.deps.IDs.GenerateMessageID(), conversation.ID,
				models.NormalizeRole(im.Role), im.Content)
			if im.Timestamp != nil {
				m.Timestamp = *im.Timestamp
			}
			m.Metadata = im.Metadata
			m.TokenCount = EstimateTokens(im.Content)
			tokens += m.TokenCount
			msgs = append(msgs, m)
		}
		if err := o.deps.Messages.CreateBatch(txCtx, msgs); err != nil {
			return err
		}
		appended = len(msgs)

		conversation.Touch(appended, tokens)
		return o.deps.Conversations.UpdateActivity(txCtx, conversation.ID,
			conversation.MessageCount, conversation.TokenCount, conversation.LastActivityAt)
	})
	if err != nil {
		return nil, 0, false, err
	}
	return conversation, appended, replayed, nil
}

// replaceUnits deactivates any previous units for the conversation and
// stores the new generation, all in one transaction.
func (o *Orchestrator) replaceUnits(ctx context.Context, conversationID string, units []*models.MemoryUnit) error {
	var stale []string
	err := o.deps.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		previous, err := o.deps.Units.GetByConversation(txCtx, conversationID)
		if err != nil {
			return err
		}
		for _, p := range previous {
			if !p.IsActive {
				continue
			}
			if err := o.deps.Units.SetActive(txCtx, p.ID, false); err != nil {
				return err
			}
			if err := o.deps.Embeddings.Delete(txCtx, p.ID); err != nil {
				return err
			}
			stale = append(stale, p.ID)
		}
		for _, u := range units {
			if err := o.deps.Units.Create(txCtx, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(stale) > 0 {
		if err := o.deps.Index.Delete(ctx, stale); err != nil {
			log.Printf("[Orchestrator] failed to delete stale vectors: %v", err)
		}
	}
	return nil
}

// indexUnits embeds and upserts the units' vectors. Failures are
// logged and left for the repair sweep; the stored units are already
// keyword-searchable.
func (o *Orchestrator) indexUnits(ctx context.Context, units []*models.MemoryUnit) {
	if len(units) == 0 {
		return
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = embeddingText(u)
	}

	vectors, err := o.deps.Gateway.Embed(ctx, texts)
	if err != nil {
		log.Printf("[Orchestrator] embedding failed, units left for repair sweep: %v", err)
		return
	}

	points := make([]ports.VectorPoint, len(units))
	for i, u := range units {
		points[i] = ports.VectorPoint{
			ID:      u.ID,
			Vector:  vectors[i],
			Payload: vectorPayload(u),
		}
	}
	if err := o.deps.Index.Upsert(ctx, points); err != nil {
		log.Printf("[Orchestrator] vector upsert failed, units left for repair sweep: %v", err)
		return
	}

	now := time.Now().UTC()
	for _, u := range units {
		rec := &ports.EmbeddingRecord{
			MemoryUnitID: u.ID,
			ModelName:    "embed",
			Dimension:    o.deps.Gateway.Dimension(),
			CreatedAt:    now,
		}
		if err := o.deps.Embeddings.Upsert(ctx, rec); err != nil {
			log.Printf("[Orchestrator] embedding record upsert failed for %s: %v", u.ID, err)
		}
	}
}

// vectorPayload is the filterable metadata stored alongside a unit's
// vector in the index.
func vectorPayload(u *models.MemoryUnit) map[string]any {
	return map[string]any{
		"project_id":      u.ProjectID,
		"conversation_id": u.ConversationID,
		"unit_type":       u.UnitType,
		"title":           u.Title,
		"summary":         u.Summary,
		"keywords":        u.Keywords,
		"created_at":      u.CreatedAt.Format(time.RFC3339),
		"relevance_score": u.RelevanceScore,
	}
}

// SearchMemories runs hybrid search through the retriever.
func (o *Orchestrator) SearchMemories(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	outcome, err := o.deps.Retriever.Search(ctx, query)
	if err == nil {
		o.searches.Add(1)
	}
	return outcome, err
}

// InjectContext enhances a prompt through the injector and records
// which memories were used.
func (o *Orchestrator) InjectContext(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error) {
	result, err := o.deps.Injector.Inject(ctx, req)
	if err != nil {
		return nil, err
	}

	o.injections.Add(1)
	o.memoriesInjected.Add(int64(len(result.InjectedMemories)))
	o.recordUsage(ctx, req, result.InjectedMemories)
	return result, nil
}

// recordUsage writes usage rows best-effort; a failed write never
// fails the injection.
func (o *Orchestrator) recordUsage(ctx context.Context, req models.ContextInjectionRequest, injected []models.InjectedMemory) {
	if o.deps.Usages == nil || len(injected) == 0 {
		return
	}

	queryText := req.QueryText
	if queryText == "" {
		queryText = req.OriginalPrompt
	}
	if len(queryText) > 500 {
		queryText = queryText[:500]
	}

	now := time.Now().UTC()
	usages := make([]*models.MemoryUsage, len(injected))
	for i, m := range injected {
		usages[i] = &models.MemoryUsage{
			ID:           o.deps.IDs.GenerateMemoryUsageID(),
			MemoryUnitID: m.ID,
			QueryText:    queryText,
			Score:        m.Score,
			Position:     i + 1,
			CreatedAt:    now,
		}
	}
	if err := o.deps.Usages.CreateBatch(ctx, usages); err != nil {
		log.Printf("[Orchestrator] failed to record memory usage: %v", err)
	}
}

// Status reports counters and gateway usage.
func (o *Orchestrator) Status(ctx context.Context) *models.ServiceStatus {
	o.mu.Lock()
	started := o.started
	startedAt := o.startedAt
	o.mu.Unlock()

	status := &models.ServiceStatus{
		Started:             started,
		ConversationsStored: o.conversationsStored.Load(),
		MemoryUnitsCreated:  o.memoryUnitsCreated.Load(),
		Searches:            o.searches.Load(),
		Injections:          o.injections.Load(),
		MemoriesInjected:    o.memoriesInjected.Load(),
	}
	if started {
		status.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	if count, err := o.deps.Index.Count(ctx); err == nil {
		status.IndexedVectors = count
	}

	if o.deps.Usage != nil {
		usage := make(map[string]any)
		for model, totals := range o.deps.Usage() {
			usage[model] = totals
		}
		status.ModelUsage = usage
	}
	return status
}

// sweepLoop periodically re-embeds units whose vectors never reached
// the index.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(orphanSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOrphans(ctx)
		}
	}
}

func (o *Orchestrator) sweepOrphans(ctx context.Context) {
	orphans, err := o.deps.Units.ListOrphans(ctx, orphanSweepBatch)
	if err != nil {
		log.Printf("[Orchestrator] orphan scan failed: %v", err)
		return
	}

	if len(orphans) > 0 {
		log.Printf("[Orchestrator] repairing %d unindexed memory units", len(orphans))
		o.indexUnits(ctx, orphans)
		metrics.OrphanRepairsTotal.Add(float64(len(orphans)))
		o.invalidateProjects(orphans)
	}

	o.refreshPayloads(ctx)
}

// refreshPayloads pushes current unit metadata to vectors indexed
// before the unit row last changed, without re-embedding.
func (o *Orchestrator) refreshPayloads(ctx context.Context) {
	stale, err := o.deps.Units.ListStalePayloads(ctx, orphanSweepBatch)
	if err != nil {
		log.Printf("[Orchestrator] stale payload scan failed: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	refreshed := stale[:0]
	now := time.Now().UTC()
	for _, u := range stale {
		if err := o.deps.Index.SetPayload(ctx, u.ID, vectorPayload(u)); err != nil {
			log.Printf("[Orchestrator] payload refresh failed for %s: %v", u.ID, err)
			continue
		}
		rec := &ports.EmbeddingRecord{
			MemoryUnitID: u.ID,
			ModelName:    "embed",
			Dimension:    o.deps.Gateway.Dimension(),
			CreatedAt:    now,
		}
		if err := o.deps.Embeddings.Upsert(ctx, rec); err != nil {
			log.Printf("[Orchestrator] embedding record upsert failed for %s: %v", u.ID, err)
		}
		refreshed = append(refreshed, u)
	}
	if len(refreshed) > 0 {
		log.Printf("[Orchestrator] refreshed %d vector payloads", len(refreshed))
		o.invalidateProjects(refreshed)
	}
}

// invalidateProjects drops cached search results for every project the
// units touch.
func (o *Orchestrator) invalidateProjects(units []*models.MemoryUnit) {
	seen := make(map[string]struct{}, 1)
	for _, u := range units {
		if _, ok := seen[u.ProjectID]; ok {
			continue
		}
		seen[u.ProjectID] = struct{}{}
		o.deps.Retriever.InvalidateProject(u.ProjectID)
	}
}

func unitIDs(units []*models.MemoryUnit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

func embeddingText(u *models.MemoryUnit) string {
	text := u.Title + "\n" + u.Summary
	if len(u.Keywords) > 0 {
		text += "\n" + strings.Join(u.Keywords, ", ")
	}
	return text
}
