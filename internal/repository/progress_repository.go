package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ardhptr21/myits-lapor/internal/models"
)

type ProgressRepository struct {
	pool *pgxpool.Pool
}

func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// CreateIfInProgress inserts progress only while its report is still
// in-progress. The check and the insert are one statement.
func (r *ProgressRepository) CreateIfInProgress(ctx context.Context, progress models.Progress) (models.Progress, error) {
	const query = `
		INSERT INTO progresses (id, report_id, description, photos, created_at)
		SELECT $1::text, $2::text, $3::text, $4::text[], NOW()
		WHERE EXISTS (
			SELECT 1 FROM reports WHERE id = $2::text AND status = 'in-progress'
		)
		RETURNING created_at
	`

	photos := progress.Photos
	if photos == nil {
		photos = []string{}
	}

	rows, err := r.pool.Query(ctx, query, progress.ID, progress.ReportID, progress.Description, photos)
	if err != nil {
		return models.Progress{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Progress{}, err
		}
		return models.Progress{}, ErrReportNotInProgress
	}
	if err := rows.Scan(&progress.CreatedAt); err != nil {
		return models.Progress{}, err
	}
	progress.Photos = photos
	return progress, rows.Err()
}

// ListByReport returns the report's progress entries newest first.
func (r *ProgressRepository) ListByReport(ctx context.Context, reportID string) ([]models.Progress, error) {
	const query = `
		SELECT id, report_id, description, photos, created_at
		FROM progresses
		WHERE report_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progresses := make([]models.Progress, 0)
	for rows.Next() {
		var p models.Progress
		if err := rows.Scan(&p.ID, &p.ReportID, &p.Description, &p.Photos, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Photos == nil {
			p.Photos = []string{}
		}
		progresses = append(progresses, p)
	}
	return progresses, rows.Err()
}
