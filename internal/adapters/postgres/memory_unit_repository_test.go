package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
)

func memoryUnitColumns() []string {
	return []string{
		"id", "conversation_id", "project_id", "unit_type", "title", "summary",
		"content", "keywords", "relevance_score", "token_count", "created_at",
		"updated_at", "expires_at", "is_active", "metadata",
	}
}

func TestMemoryUnitRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	unit := models.NewMemoryUnit("mu_1", "cv_1", "myproject")
	unit.SetTitle("Fix race in watcher startup")
	unit.SetSummary("Diagnosed a startup race and serialized initialization.")
	unit.SetKeywords([]string{"race", "watcher"})

	mock.ExpectExec("INSERT INTO recall_memory_units").
		WithArgs(unit.ID, unit.ConversationID, unit.ProjectID, unit.UnitType,
			unit.Title, unit.Summary, unit.Content, pgxmock.AnyArg(),
			unit.RelevanceScore, unit.TokenCount, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := repo.Create(ctx, unit); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMemoryUnitRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	mock.ExpectQuery("SELECT (.+) FROM recall_memory_units").
		WithArgs("mu_missing").
		WillReturnError(pgx.ErrNoRows)

	ctx := setupMockContext(mock)
	_, err = repo.GetByID(ctx, "mu_missing")
	if !errors.Is(err, domain.ErrMemoryUnitNotFound) {
		t.Errorf("expected ErrMemoryUnitNotFound, got %v", err)
	}
}

func TestMemoryUnitRepository_GetByConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	rows := pgxmock.NewRows(memoryUnitColumns()).
		AddRow("mu_1", "cv_1", "myproject", models.UnitTypeConversation,
			"Title A", "Summary A", "", []string{"alpha"}, float32(0.7), 120,
			now, now, nullTime(nil), true, []byte(nil)).
		AddRow("mu_2", "cv_1", "myproject", models.UnitTypeConversation,
			"Title B", "Summary B", "", []string{"beta"}, float32(0.4), 90,
			now, now, nullTime(nil), true, []byte(nil))

	mock.ExpectQuery("SELECT (.+) FROM recall_memory_units").
		WithArgs("cv_1").
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	units, err := repo.GetByConversation(ctx, "cv_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].ID != "mu_1" || units[1].ID != "mu_2" {
		t.Errorf("unexpected unit order: %s, %s", units[0].ID, units[1].ID)
	}
	if units[0].Metadata == nil {
		t.Error("expected NULL metadata to scan as empty map")
	}
}

func TestMemoryUnitRepository_SetActive_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	mock.ExpectExec("UPDATE recall_memory_units").
		WithArgs("mu_missing", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := setupMockContext(mock)
	err = repo.SetActive(ctx, "mu_missing", false)
	if !errors.Is(err, domain.ErrMemoryUnitNotFound) {
		t.Errorf("expected ErrMemoryUnitNotFound, got %v", err)
	}
}

func TestMemoryUnitRepository_SearchKeywords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	cols := append(memoryUnitColumns(), "hits")
	rows := pgxmock.NewRows(cols).
		AddRow("mu_1", "cv_1", "myproject", models.UnitTypeConversation,
			"Race condition fix", "Summary", "", []string{"race"}, float32(0.8), 100,
			now, now, nullTime(nil), true, []byte(nil), []string{"race", "watcher"})

	mock.ExpectQuery("SELECT (.+) FROM recall_memory_units u").
		WithArgs("myproject", []string{"race", "watcher", "startup"}, 10).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	matches, err := repo.SearchKeywords(ctx, "myproject", []string{"race", "watcher", "startup"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	// 2 of 3 tokens hit.
	if got := matches[0].Score; got < 0.66 || got > 0.67 {
		t.Errorf("expected score 2/3, got %f", got)
	}
	if len(matches[0].MatchedKeywords) != 2 {
		t.Errorf("expected 2 matched keywords, got %v", matches[0].MatchedKeywords)
	}
}

func TestMemoryUnitRepository_SearchKeywords_NoTokens(t *testing.T) {
	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	matches, err := repo.SearchKeywords(context.Background(), "p", nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches for empty token list")
	}
}

func TestMemoryUnitRepository_ListOrphans(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	rows := pgxmock.NewRows(memoryUnitColumns()).
		AddRow("mu_orphan", "cv_1", "myproject", models.UnitTypeConversation,
			"Orphan", "Never indexed", "", []string{}, float32(0.5), 50,
			now, now, nullTime(nil), true, []byte(nil))

	mock.ExpectQuery("SELECT (.+) LEFT JOIN recall_embeddings").
		WithArgs(100).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	units, err := repo.ListOrphans(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 || units[0].ID != "mu_orphan" {
		t.Errorf("unexpected orphan result: %+v", units)
	}
}

func TestMemoryUnitRepository_ListStalePayloads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUnitRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	rows := pgxmock.NewRows(memoryUnitColumns()).
		AddRow("mu_stale", "cv_1", "myproject", models.UnitTypeConversation,
			"Stale", "Row changed after indexing", "", []string{}, float32(0.5), 50,
			now, now, nullTime(nil), true, []byte(nil))

	mock.ExpectQuery("SELECT (.+) JOIN recall_embeddings (.+) u.updated_at > e.created_at").
		WithArgs(50).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	units, err := repo.ListStalePayloads(ctx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 || units[0].ID != "mu_stale" {
		t.Errorf("unexpected stale payload result: %+v", units)
	}
}
