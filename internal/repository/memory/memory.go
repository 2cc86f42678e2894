// Package memory keeps users, reports and progresses in process with the
// same semantics as the Postgres repositories. It backs service and handler
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository"
)

type db struct {
	mu         sync.RWMutex
	clock      time.Time
	users      map[string]models.User
	reports    map[string]models.Report
	progresses map[string]models.Progress
}

// now advances a private clock one millisecond per call so records always
// have distinct, ordered timestamps.
func (d *db) now() time.Time {
	d.clock = d.clock.Add(time.Millisecond)
	return d.clock
}

type Store struct {
	Users      *Users
	Reports    *Reports
	Progresses *Progresses
}

func New() *Store {
	d := &db{
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		users:      make(map[string]models.User),
		reports:    make(map[string]models.Report),
		progresses: make(map[string]models.Progress),
	}
	return &Store{
		Users:      &Users{db: d},
		Reports:    &Reports{db: d},
		Progresses: &Progresses{db: d},
	}
}

type Users struct{ db *db }

func (u *Users) Create(_ context.Context, user models.User) (models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	for _, existing := range u.db.users {
		if existing.Email == user.Email {
			return models.User{}, repository.ErrEmailTaken
		}
	}
	user.CreatedAt = u.db.now()
	user.UpdatedAt = user.CreatedAt
	u.db.users[user.ID] = user
	return user, nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (models.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	for _, user := range u.db.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (u *Users) GetByID(_ context.Context, id string) (models.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	user, ok := u.db.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

// SetRole promotes or demotes a user; there is no API for it.
func (u *Users) SetRole(id string, role models.Role) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	if user, ok := u.db.users[id]; ok {
		user.Role = role
		u.db.users[id] = user
	}
}

// Delete drops a user without touching their reports.
func (u *Users) Delete(id string) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	delete(u.db.users, id)
}

type Reports struct{ db *db }

func (r *Reports) Create(_ context.Context, report models.Report) (models.Report, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if report.Photos == nil {
		report.Photos = []string{}
	}
	report.Photos = append([]string(nil), report.Photos...)
	report.CreatedAt = r.db.now()
	report.UpdatedAt = report.CreatedAt
	r.db.reports[report.ID] = report
	return report, nil
}

func (r *Reports) withReporter(report models.Report) models.Report {
	report.Reporter = models.Reporter{ID: report.ReporterID, Name: r.db.users[report.ReporterID].Name}
	report.Photos = append([]string{}, report.Photos...)
	return report
}

func (r *Reports) GetByID(_ context.Context, id string) (models.Report, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	report, ok := r.db.reports[id]
	if !ok {
		return models.Report{}, repository.ErrReportNotFound
	}
	return r.withReporter(report), nil
}

func (r *Reports) List(_ context.Context, reporterID string, limit, offset int) ([]models.Report, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	matched := make([]models.Report, 0, len(r.db.reports))
	for _, report := range r.db.reports {
		if reporterID == "" || report.ReporterID == reporterID {
			matched = append(matched, report)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []models.Report{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]models.Report, 0, end-offset)
	for _, report := range matched[offset:end] {
		page = append(page, r.withReporter(report))
	}
	return page, total, nil
}

func (r *Reports) Update(_ context.Context, id string, patch models.ReportPatch) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	report, ok := r.db.reports[id]
	if !ok {
		return repository.ErrReportNotFound
	}
	if patch.Title != nil {
		report.Title = *patch.Title
	}
	if patch.Location != nil {
		report.Location = *patch.Location
	}
	if patch.Priority != nil {
		report.Priority = *patch.Priority
	}
	if patch.Photos != nil {
		report.Photos = append([]string(nil), patch.Photos...)
	}
	report.UpdatedAt = r.db.now()
	r.db.reports[id] = report
	return nil
}

func (r *Reports) UpdateStatus(_ context.Context, id string, from, to models.ReportStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	report, ok := r.db.reports[id]
	if !ok || report.Status != from {
		return repository.ErrStatusConflict
	}
	report.Status = to
	report.UpdatedAt = r.db.now()
	r.db.reports[id] = report
	return nil
}

// Delete removes the report and cascades to its progresses.
func (r *Reports) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.reports[id]; !ok {
		return repository.ErrReportNotFound
	}
	delete(r.db.reports, id)
	for pid, p := range r.db.progresses {
		if p.ReportID == id {
			delete(r.db.progresses, pid)
		}
	}
	return nil
}

func (r *Reports) ReferencedPhotos(_ context.Context, paths []string) (map[string]bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}
	referenced := make(map[string]bool)
	mark := func(photos []string) {
		for _, p := range photos {
			if want[p] {
				referenced[p] = true
			}
		}
	}
	for _, report := range r.db.reports {
		mark(report.Photos)
	}
	for _, progress := range r.db.progresses {
		mark(progress.Photos)
	}
	return referenced, nil
}

type Progresses struct{ db *db }

func (p *Progresses) CreateIfInProgress(_ context.Context, progress models.Progress) (models.Progress, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	report, ok := p.db.reports[progress.ReportID]
	if !ok || report.Status != models.StatusInProgress {
		return models.Progress{}, repository.ErrReportNotInProgress
	}
	if progress.Photos == nil {
		progress.Photos = []string{}
	}
	progress.Photos = append([]string(nil), progress.Photos...)
	progress.CreatedAt = p.db.now()
	p.db.progresses[progress.ID] = progress
	return progress, nil
}

func (p *Progresses) ListByReport(_ context.Context, reportID string) ([]models.Progress, error) {
	p.db.mu.RLock()
	defer p.db.mu.RUnlock()
	out := make([]models.Progress, 0)
	for _, progress := range p.db.progresses {
		if progress.ReportID == reportID {
			progress.Photos = append([]string{}, progress.Photos...)
			out = append(out, progress)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
