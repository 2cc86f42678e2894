package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ardhptr21/myits-lapor/internal/models"
)

type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

const reportColumns = `
	r.id, r.reporter_id, u.name, r.title, r.location, r.priority, r.status,
	r.photos, r.created_at, r.updated_at
`

func (r *ReportRepository) Create(ctx context.Context, report models.Report) (models.Report, error) {
	const query = `
		INSERT INTO reports (id, reporter_id, title, location, priority, status, photos, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	photos := report.Photos
	if photos == nil {
		photos = []string{}
	}

	err := r.pool.QueryRow(ctx, query,
		report.ID,
		report.ReporterID,
		report.Title,
		report.Location,
		string(report.Priority),
		string(report.Status),
		photos,
	).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return models.Report{}, err
	}
	report.Photos = photos
	return report, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (models.Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports r
		JOIN users u ON u.id = r.reporter_id
		WHERE r.id = $1
	`

	report, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Report{}, ErrReportNotFound
		}
		return models.Report{}, err
	}
	return report, nil
}

// List returns one page of reports newest first together with the total
// number of matching rows. An empty reporterID lists every report.
func (r *ReportRepository) List(ctx context.Context, reporterID string, limit, offset int) ([]models.Report, int, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports r
		JOIN users u ON u.id = r.reporter_id
		WHERE ($1 = '' OR r.reporter_id = $1)
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, reporterID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := make([]models.Report, 0, limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	const countQuery = `SELECT COUNT(*) FROM reports WHERE ($1 = '' OR reporter_id = $1)`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, reporterID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return reports, total, nil
}

// Update applies the non-nil fields of patch.
func (r *ReportRepository) Update(ctx context.Context, id string, patch models.ReportPatch) error {
	const query = `
		UPDATE reports
		SET title = COALESCE($2, title),
		    location = COALESCE($3, location),
		    priority = COALESCE($4, priority),
		    photos = COALESCE($5, photos),
		    updated_at = NOW()
		WHERE id = $1
	`

	var priority *string
	if patch.Priority != nil {
		p := string(*patch.Priority)
		priority = &p
	}
	var photos any
	if patch.Photos != nil {
		photos = patch.Photos
	}

	cmd, err := r.pool.Exec(ctx, query, id, patch.Title, patch.Location, priority, photos)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// UpdateStatus moves the report from one status to another only if it is
// still in the expected status, so concurrent advances cannot skip a state.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, from, to models.ReportStatus) error {
	const query = `
		UPDATE reports SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	cmd, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM reports WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// ReferencedPhotos returns the subset of paths still referenced by a report
// or a progress entry.
func (r *ReportRepository) ReferencedPhotos(ctx context.Context, paths []string) (map[string]bool, error) {
	const query = `
		SELECT DISTINCT p FROM (
			SELECT unnest(photos) AS p FROM reports
			UNION ALL
			SELECT unnest(photos) AS p FROM progresses
		) refs
		WHERE p = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, paths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	referenced := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		referenced[p] = true
	}
	return referenced, rows.Err()
}

func scanReport(row pgx.Row) (models.Report, error) {
	var report models.Report
	err := row.Scan(
		&report.ID,
		&report.ReporterID,
		&report.Reporter.Name,
		&report.Title,
		&report.Location,
		&report.Priority,
		&report.Status,
		&report.Photos,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return models.Report{}, err
	}
	report.Reporter.ID = report.ReporterID
	if report.Photos == nil {
		report.Photos = []string{}
	}
	return report, nil
}
