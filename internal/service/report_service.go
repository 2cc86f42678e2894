package service

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/ids"
	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository"
)

type ReportStore interface {
	Create(ctx context.Context, report models.Report) (models.Report, error)
	GetByID(ctx context.Context, id string) (models.Report, error)
	List(ctx context.Context, reporterID string, limit, offset int) ([]models.Report, int, error)
	Update(ctx context.Context, id string, patch models.ReportPatch) error
	UpdateStatus(ctx context.Context, id string, from, to models.ReportStatus) error
	Delete(ctx context.Context, id string) error
}

type ProgressStore interface {
	CreateIfInProgress(ctx context.Context, progress models.Progress) (models.Progress, error)
	ListByReport(ctx context.Context, reportID string) ([]models.Progress, error)
}

// PhotoRemover deletes stored photos by record path.
type PhotoRemover interface {
	Remove(ctx context.Context, paths ...string) error
}

// CleanupQueue hands photo paths to the background worker for removal.
type CleanupQueue interface {
	EnqueueRemove(ctx context.Context, paths []string) error
}

type ReportService struct {
	reports    ReportStore
	progresses ProgressStore
	photos     PhotoRemover
	cleanup    CleanupQueue
	log        zerolog.Logger
}

func NewReportService(reports ReportStore, progresses ProgressStore, photos PhotoRemover, cleanup CleanupQueue, log zerolog.Logger) *ReportService {
	return &ReportService{
		reports:    reports,
		progresses: progresses,
		photos:     photos,
		cleanup:    cleanup,
		log:        log,
	}
}

type CreateReportInput struct {
	ReporterID string
	Title      string
	Location   string
	Priority   models.Priority
	Photos     []string
}

type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// offset is the number of rows before the page. Pages past the largest
// representable offset saturate, which yields an empty page.
func (p Page) offset() int {
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

type ReportPage struct {
	Items []models.Report
	Page  int
	Limit int
	Total int
}

type ReportDetail struct {
	Report     models.Report
	Progresses []models.Progress
}

type AddProgressInput struct {
	ReportID    string
	Description string
	Photos      []string
}

// Create stores a new pending report. Photos must already be stored; they
// are discarded if the report cannot be saved.
func (s *ReportService) Create(ctx context.Context, input CreateReportInput) (models.Report, error) {
	report, err := s.reports.Create(ctx, models.Report{
		ID:         ids.New(),
		ReporterID: input.ReporterID,
		Title:      input.Title,
		Location:   input.Location,
		Priority:   input.Priority,
		Status:     models.StatusPending,
		Photos:     input.Photos,
	})
	if err != nil {
		s.discard(ctx, input.Photos)
		return models.Report{}, Internal(err)
	}

	s.log.Info().Str("report_id", report.ID).Str("reporter_id", report.ReporterID).Msg("report created")
	return report, nil
}

func (s *ReportService) List(ctx context.Context, page Page) (ReportPage, error) {
	return s.list(ctx, "", page)
}

func (s *ReportService) ListByReporter(ctx context.Context, reporterID string, page Page) (ReportPage, error) {
	return s.list(ctx, reporterID, page)
}

func (s *ReportService) list(ctx context.Context, reporterID string, page Page) (ReportPage, error) {
	page = page.normalize()
	items, total, err := s.reports.List(ctx, reporterID, page.Limit, page.offset())
	if err != nil {
		return ReportPage{}, Internal(err)
	}
	return ReportPage{Items: items, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

// Get returns the report and its progress history newest first. Any
// authenticated caller may read any report.
func (s *ReportService) Get(ctx context.Context, id string) (ReportDetail, error) {
	report, err := s.get(ctx, id)
	if err != nil {
		return ReportDetail{}, err
	}
	progresses, err := s.progresses.ListByReport(ctx, id)
	if err != nil {
		return ReportDetail{}, Internal(err)
	}
	return ReportDetail{Report: report, Progresses: progresses}, nil
}

// Authorize checks that requesterID owns the report before any payload is
// read, so a non-owner is refused whatever they sent.
func (s *ReportService) Authorize(ctx context.Context, id, requesterID string) error {
	report, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if report.ReporterID != requesterID {
		return Forbidden(msgAccessDenied)
	}
	return nil
}

// Update applies patch on behalf of requesterID, who must own the report.
// Replaced photos are removed once the new set is saved; newly uploaded
// photos are discarded when the update is refused.
func (s *ReportService) Update(ctx context.Context, id string, patch models.ReportPatch, requesterID string) error {
	report, err := s.get(ctx, id)
	if err != nil {
		s.discard(ctx, patch.Photos)
		return err
	}
	if report.ReporterID != requesterID {
		s.discard(ctx, patch.Photos)
		return Forbidden(msgAccessDenied)
	}
	if patch.Empty() {
		return nil
	}

	if err := s.reports.Update(ctx, id, patch); err != nil {
		s.discard(ctx, patch.Photos)
		if errors.Is(err, repository.ErrReportNotFound) {
			return NotFound(msgReportNotFound)
		}
		return Internal(err)
	}

	if patch.Photos != nil {
		s.discard(ctx, replaced(report.Photos, patch.Photos))
	}
	return nil
}

// Delete removes the report and its progress history, then removes their
// photos best-effort. File failures never undo the delete.
func (s *ReportService) Delete(ctx context.Context, id string) error {
	report, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	progresses, err := s.progresses.ListByReport(ctx, id)
	if err != nil {
		return Internal(err)
	}

	if err := s.reports.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			return NotFound(msgReportNotFound)
		}
		return Internal(err)
	}

	photos := append([]string{}, report.Photos...)
	for _, p := range progresses {
		photos = append(photos, p.Photos...)
	}
	s.discard(ctx, photos)

	s.log.Info().Str("report_id", id).Int("photos", len(photos)).Msg("report deleted")
	return nil
}

// ToggleStatus advances the report one step. The write only lands if the
// status is still the one that was read.
func (s *ReportService) ToggleStatus(ctx context.Context, id string) (models.ReportStatus, error) {
	report, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}

	next, err := report.Status.Next()
	if err != nil {
		if errors.Is(err, models.ErrAlreadyDone) {
			return "", newError(KindInvalidTransition, msgAlreadyDone)
		}
		return "", Internal(err)
	}

	if err := s.reports.UpdateStatus(ctx, id, report.Status, next); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return "", s.transitionConflict(ctx, id)
		}
		return "", Internal(err)
	}

	s.log.Info().Str("report_id", id).Str("from", string(report.Status)).Str("to", string(next)).Msg("report status updated")
	return next, nil
}

// transitionConflict explains why a compare-and-set lost.
func (s *ReportService) transitionConflict(ctx context.Context, id string) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	return &Error{Kind: KindInvalidTransition, Message: "Report status was changed by another request"}
}

// AddProgress appends a progress entry while the report is in-progress.
// Photos are discarded when the entry is refused.
func (s *ReportService) AddProgress(ctx context.Context, input AddProgressInput) (models.Progress, error) {
	report, err := s.get(ctx, input.ReportID)
	if err != nil {
		s.discard(ctx, input.Photos)
		return models.Progress{}, err
	}
	if report.Status != models.StatusInProgress {
		s.discard(ctx, input.Photos)
		return models.Progress{}, newError(KindInvalidState, msgNotInProgress)
	}

	photos := input.Photos
	if photos == nil {
		photos = []string{}
	}

	progress, err := s.progresses.CreateIfInProgress(ctx, models.Progress{
		ID:          ids.New(),
		ReportID:    input.ReportID,
		Description: input.Description,
		Photos:      photos,
	})
	if err != nil {
		s.discard(ctx, input.Photos)
		if errors.Is(err, repository.ErrReportNotInProgress) {
			return models.Progress{}, newError(KindInvalidState, msgNotInProgress)
		}
		return models.Progress{}, Internal(err)
	}

	s.log.Info().Str("report_id", input.ReportID).Str("progress_id", progress.ID).Msg("progress added")
	return progress, nil
}

func (s *ReportService) get(ctx context.Context, id string) (models.Report, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			return models.Report{}, NotFound(msgReportNotFound)
		}
		return models.Report{}, Internal(err)
	}
	return report, nil
}

// discard removes photos that no record will reference. When removal fails
// the paths go to the cleanup queue; failures there are only logged.
func (s *ReportService) discard(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	err := s.photos.Remove(ctx, paths...)
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Strs("paths", paths).Msg("photo removal failed, queueing cleanup")

	if s.cleanup == nil {
		return
	}
	if err := s.cleanup.EnqueueRemove(ctx, paths); err != nil {
		s.log.Error().Err(err).Strs("paths", paths).Msg("enqueue photo cleanup failed")
	}
}

// replaced returns the paths in old that are absent from current.
func replaced(old, current []string) []string {
	keep := make(map[string]struct{}, len(current))
	for _, p := range current {
		keep[p] = struct{}{}
	}
	var gone []string
	for _, p := range old {
		if _, ok := keep[p]; !ok {
			gone = append(gone, p)
		}
	}
	return gone
}
