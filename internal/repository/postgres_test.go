package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardhptr21/myits-lapor/internal/config"
	"github.com/ardhptr21/myits-lapor/internal/database"
	"github.com/ardhptr21/myits-lapor/internal/ids"
	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository"
)

// These tests run the SQL against a real server. Point
// LAPOR_TEST_POSTGRES_DSN at a disposable database to enable them.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("LAPOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LAPOR_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, config.PostgresConfig{DSN: dsn}, "myits-lapor-test")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool, name string) models.User {
	t.Helper()
	ctx := context.Background()
	id := ids.New()
	user, err := repository.NewUserRepository(pool).Create(ctx, models.User{
		ID:           id,
		Name:         name,
		Email:        id + "@test.local",
		PasswordHash: []byte("hash"),
		Role:         models.RoleUser,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DELETE FROM reports WHERE reporter_id = $1", id)
		_, _ = pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	})
	return user
}

func seedReport(t *testing.T, pool *pgxpool.Pool, reporterID string, photos ...string) models.Report {
	t.Helper()
	report, err := repository.NewReportRepository(pool).Create(context.Background(), models.Report{
		ID:         ids.New(),
		ReporterID: reporterID,
		Title:      "Broken AC",
		Location:   "Lib 3F",
		Priority:   models.PriorityHigh,
		Status:     models.StatusPending,
		Photos:     photos,
	})
	require.NoError(t, err)
	return report
}

func TestUserRepositoryPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)

	alice := seedUser(t, pool, "Alice")
	got, err := users.FindByEmail(ctx, alice.Email)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = users.Create(ctx, models.User{ID: ids.New(), Name: "Dup", Email: alice.Email, PasswordHash: []byte("x"), Role: models.RoleUser})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestReportRepositoryPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	reports := repository.NewReportRepository(pool)

	alice := seedUser(t, pool, "Alice")
	report := seedReport(t, pool, alice.ID, "uploads/reports/old1.jpg", "uploads/reports/old2.jpg")

	got, err := reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Reporter.Name)
	assert.Equal(t, []string{"uploads/reports/old1.jpg", "uploads/reports/old2.jpg"}, got.Photos)

	title := "AC still broken"
	require.NoError(t, reports.Update(ctx, report.ID, models.ReportPatch{Title: &title}))
	got, err = reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, "Lib 3F", got.Location)
	assert.Len(t, got.Photos, 2, "photos untouched when not patched")

	require.NoError(t, reports.Update(ctx, report.ID, models.ReportPatch{Photos: []string{"uploads/reports/new.jpg"}}))
	got, err = reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/reports/new.jpg"}, got.Photos)
	assert.Equal(t, title, got.Title)

	assert.ErrorIs(t, reports.Update(ctx, "missing", models.ReportPatch{Title: &title}), repository.ErrReportNotFound)

	refs, err := reports.ReferencedPhotos(ctx, []string{"uploads/reports/new.jpg", "uploads/reports/old1.jpg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"uploads/reports/new.jpg": true}, refs)

	seedReport(t, pool, alice.ID)
	items, total, err := reports.List(ctx, alice.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.NotEqual(t, report.ID, items[0].ID, "newest first")

	items, _, err = reports.List(ctx, alice.ID, 10, 1<<62)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUpdateStatusCompareAndSetPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	reports := repository.NewReportRepository(pool)

	alice := seedUser(t, pool, "Alice")
	report := seedReport(t, pool, alice.ID, "uploads/reports/p.jpg")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reports.UpdateStatus(ctx, report.ID, models.StatusPending, models.StatusInProgress)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrStatusConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := reports.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestCreateIfInProgressPostgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	reports := repository.NewReportRepository(pool)
	progresses := repository.NewProgressRepository(pool)

	alice := seedUser(t, pool, "Alice")
	report := seedReport(t, pool, alice.ID, "uploads/reports/p.jpg")

	entry := models.Progress{ID: ids.New(), ReportID: report.ID, Description: "dispatched", Photos: []string{"uploads/progresses/g.jpg"}}
	_, err := progresses.CreateIfInProgress(ctx, entry)
	assert.ErrorIs(t, err, repository.ErrReportNotInProgress)

	require.NoError(t, reports.UpdateStatus(ctx, report.ID, models.StatusPending, models.StatusInProgress))
	created, err := progresses.CreateIfInProgress(ctx, entry)
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	second, err := progresses.CreateIfInProgress(ctx, models.Progress{ID: ids.New(), ReportID: report.ID})
	require.NoError(t, err)
	assert.Empty(t, second.Photos)

	list, err := progresses.ListByReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	refs, err := reports.ReferencedPhotos(ctx, []string{"uploads/progresses/g.jpg"})
	require.NoError(t, err)
	assert.True(t, refs["uploads/progresses/g.jpg"])

	require.NoError(t, reports.Delete(ctx, report.ID))
	list, err = progresses.ListByReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "progress rows cascade")
	assert.ErrorIs(t, reports.Delete(ctx, report.ID), repository.ErrReportNotFound)
}
