package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"

	"github.com/recalldev/recall/internal/domain/models"
)

func TestMemoryUsageRepository_CreateBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUsageRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now().UTC()
	usages := []*models.MemoryUsage{
		{ID: "use_1", MemoryUnitID: "mu_1", QueryText: "flaky migration", Score: 0.9, Position: 1, CreatedAt: now},
		{ID: "use_2", MemoryUnitID: "mu_2", Score: 0.7, Position: 2, CreatedAt: now},
	}

	mock.ExpectExec("INSERT INTO recall_memory_usage").
		WithArgs("use_1", "mu_1", nullString("flaky migration"), float32(0.9), 1, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO recall_memory_usage").
		WithArgs("use_2", "mu_2", nullString(""), float32(0.7), 2, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := repo.CreateBatch(ctx, usages); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMemoryUsageRepository_CreateBatch_Empty(t *testing.T) {
	repo := &MemoryUsageRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	if err := repo.CreateBatch(context.Background(), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMemoryUsageRepository_GetByMemoryUnit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUsageRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "memory_unit_id", "query_text", "score", "position_in_results", "created_at",
	}).AddRow(
		"use_1", "mu_1", nullString("flaky migration"), float32(0.9), 1, now,
	).AddRow(
		"use_2", "mu_1", nullString(""), float32(0.5), 3, now.Add(-time.Hour),
	)

	mock.ExpectQuery("SELECT (.+) FROM recall_memory_usage").
		WithArgs("mu_1", 50).
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	usages, err := repo.GetByMemoryUnit(ctx, "mu_1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(usages) != 2 {
		t.Fatalf("expected 2 usages, got %d", len(usages))
	}
	if usages[0].QueryText != "flaky migration" {
		t.Errorf("expected query text to round-trip, got %q", usages[0].QueryText)
	}
	if usages[1].QueryText != "" {
		t.Errorf("expected empty query text for NULL, got %q", usages[1].QueryText)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMemoryUsageRepository_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := &MemoryUsageRepository{
		BaseRepository: BaseRepository{pool: nil},
	}

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	ctx := setupMockContext(mock)
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 7 {
		t.Errorf("expected count 7, got %d", count)
	}
}
