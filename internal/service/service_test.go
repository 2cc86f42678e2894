package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository/memory"
	"github.com/ardhptr21/myits-lapor/internal/security"
)

type fakePhotos struct {
	mu      sync.Mutex
	removed []string
	fail    bool
}

func (f *fakePhotos) Remove(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk on fire")
	}
	f.removed = append(f.removed, paths...)
	return nil
}

type fakeCleanup struct {
	queued [][]string
}

func (f *fakeCleanup) EnqueueRemove(_ context.Context, paths []string) error {
	f.queued = append(f.queued, paths)
	return nil
}

type fixture struct {
	store   *memory.Store
	auth    *AuthService
	reports *ReportService
	photos  *fakePhotos
	cleanup *fakeCleanup
	tokens  *security.TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	tokens := security.NewTokenManager("secret", "myits-lapor", time.Hour)
	photos := &fakePhotos{}
	cleanup := &fakeCleanup{}

	auth := NewAuthService(store.Users, tokens, zerolog.Nop())
	auth.hashPassword = func(p string) ([]byte, error) {
		return security.HashPasswordWithParams(p, security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	}

	return &fixture{
		store:   store,
		auth:    auth,
		reports: NewReportService(store.Reports, store.Progresses, photos, cleanup, zerolog.Nop()),
		photos:  photos,
		cleanup: cleanup,
		tokens:  tokens,
	}
}

func (f *fixture) register(t *testing.T, name, email string, role models.Role) models.User {
	t.Helper()
	user, err := f.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "secret1"})
	require.NoError(t, err)
	if role != models.RoleUser {
		f.store.Users.SetRole(user.ID, role)
		user.Role = role
	}
	return user
}

func (f *fixture) createReport(t *testing.T, reporterID string, photos ...string) models.Report {
	t.Helper()
	report, err := f.reports.Create(context.Background(), CreateReportInput{
		ReporterID: reporterID,
		Title:      "Broken AC",
		Location:   "Lib 3F",
		Priority:   models.PriorityHigh,
		Photos:     photos,
	})
	require.NoError(t, err)
	return report
}

func kindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return -1
}

func TestRegisterNormalizesEmailAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, RegisterInput{Name: "Alice", Email: "  Alice@X.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "secret1", string(user.PasswordHash))

	_, err = f.auth.Register(ctx, RegisterInput{Name: "Alice 2", Email: "alice@x.com", Password: "secret2"})
	require.Error(t, err)
	assert.Equal(t, KindConflict, kindOf(err))
	assert.Equal(t, "User with this email already exists", err.(*Error).Message)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Alice", "alice@x.com", models.RoleUser)
	ctx := context.Background()

	_, unknown := f.auth.Login(ctx, "nobody@x.com", "secret1")
	_, wrong := f.auth.Login(ctx, "alice@x.com", "wrong-password")
	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, KindUnauthorized, kindOf(unknown))
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.Equal(t, "Invalid email or password", wrong.(*Error).Message)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	store := memory.New()
	tokens := security.NewTokenManager("secret", "myits-lapor", time.Hour)
	auth := NewAuthService(store.Users, tokens, zerolog.Nop())
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	result, err := auth.Login(ctx, "ALICE@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := tokens.Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "alice@x.com", claims.Email)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "Alice", "alice@x.com", models.RoleUser)

	got, err := f.auth.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = f.auth.Me(context.Background(), "missing")
	assert.Equal(t, KindNotFound, kindOf(err))
}

func TestReportLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	bob := f.register(t, "Bob", "bob@x.com", models.RoleUser)

	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")
	assert.Equal(t, models.StatusPending, report.Status)

	next, err := f.reports.ToggleStatus(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, next)

	_, err = f.reports.AddProgress(ctx, AddProgressInput{ReportID: report.ID, Description: "technician dispatched"})
	require.NoError(t, err)

	next, err = f.reports.ToggleStatus(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, next)

	_, err = f.reports.ToggleStatus(ctx, report.ID)
	assert.Equal(t, KindInvalidTransition, kindOf(err))
	assert.Equal(t, "Report is already done", err.(*Error).Message)

	title := "Hacked"
	err = f.reports.Update(ctx, report.ID, models.ReportPatch{Title: &title}, bob.ID)
	assert.Equal(t, KindForbidden, kindOf(err))

	detail, err := f.reports.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "Broken AC", detail.Report.Title)
	assert.Equal(t, "Alice", detail.Report.Reporter.Name)
	assert.Equal(t, []string{"uploads/reports/p1.jpg"}, detail.Report.Photos)
	require.Len(t, detail.Progresses, 1)
	assert.Equal(t, "technician dispatched", detail.Progresses[0].Description)
}

func TestAddProgressRequiresInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")

	_, err := f.reports.AddProgress(ctx, AddProgressInput{ReportID: report.ID, Photos: []string{"uploads/progresses/x.jpg"}})
	assert.Equal(t, KindInvalidState, kindOf(err))
	assert.Equal(t, []string{"uploads/progresses/x.jpg"}, f.photos.removed, "refused photos are discarded")

	_, err = f.reports.AddProgress(ctx, AddProgressInput{ReportID: "missing"})
	assert.Equal(t, KindNotFound, kindOf(err))

	_, _ = f.reports.ToggleStatus(ctx, report.ID)
	_, _ = f.reports.ToggleStatus(ctx, report.ID)
	_, err = f.reports.AddProgress(ctx, AddProgressInput{ReportID: report.ID})
	assert.Equal(t, KindInvalidState, kindOf(err))
}

func TestToggleStatusMissingReport(t *testing.T) {
	f := newFixture(t)
	_, err := f.reports.ToggleStatus(context.Background(), "missing")
	assert.Equal(t, KindNotFound, kindOf(err))
}

func TestConcurrentTogglesNeverSkipAState(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reports.ToggleStatus(context.Background(), report.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, KindInvalidTransition, kindOf(err))
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.LessOrEqual(t, succeeded, 2)

	detail, err := f.reports.Get(context.Background(), report.ID)
	require.NoError(t, err)
	want := models.StatusInProgress
	if succeeded == 2 {
		want = models.StatusDone
	}
	assert.Equal(t, want, detail.Report.Status)
}

func TestUpdateReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/old1.jpg", "uploads/reports/old2.jpg")

	title := "AC still broken"
	priority := models.PriorityMedium
	require.NoError(t, f.reports.Update(ctx, report.ID, models.ReportPatch{Title: &title, Priority: &priority}, alice.ID))

	detail, err := f.reports.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "AC still broken", detail.Report.Title)
	assert.Equal(t, "Lib 3F", detail.Report.Location)
	assert.Equal(t, models.PriorityMedium, detail.Report.Priority)
	assert.Empty(t, f.photos.removed)

	require.NoError(t, f.reports.Update(ctx, report.ID, models.ReportPatch{
		Photos: []string{"uploads/reports/new.jpg", "uploads/reports/old2.jpg"},
	}, alice.ID))
	assert.Equal(t, []string{"uploads/reports/old1.jpg"}, f.photos.removed)

	err = f.reports.Update(ctx, "missing", models.ReportPatch{Title: &title}, alice.ID)
	assert.Equal(t, KindNotFound, kindOf(err))

	require.NoError(t, f.reports.Update(ctx, report.ID, models.ReportPatch{}, alice.ID))
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	bob := f.register(t, "Bob", "bob@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")

	assert.NoError(t, f.reports.Authorize(ctx, report.ID, alice.ID))
	assert.Equal(t, KindForbidden, kindOf(f.reports.Authorize(ctx, report.ID, bob.ID)))
	assert.Equal(t, KindNotFound, kindOf(f.reports.Authorize(ctx, "missing", alice.ID)))
}

func TestUpdateByNonOwnerDiscardsUploadedPhotos(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	bob := f.register(t, "Bob", "bob@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")

	err := f.reports.Update(context.Background(), report.ID, models.ReportPatch{Photos: []string{"uploads/reports/bob.jpg"}}, bob.ID)
	assert.Equal(t, KindForbidden, kindOf(err))
	assert.Equal(t, "Access denied", err.(*Error).Message)
	assert.Equal(t, []string{"uploads/reports/bob.jpg"}, f.photos.removed)
}

func TestDeleteCascadesAndRemovesPhotos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")
	_, _ = f.reports.ToggleStatus(ctx, report.ID)
	_, err := f.reports.AddProgress(ctx, AddProgressInput{ReportID: report.ID, Photos: []string{"uploads/progresses/g1.jpg"}})
	require.NoError(t, err)

	require.NoError(t, f.reports.Delete(ctx, report.ID))
	assert.ElementsMatch(t, []string{"uploads/reports/p1.jpg", "uploads/progresses/g1.jpg"}, f.photos.removed)

	_, err = f.reports.Get(ctx, report.ID)
	assert.Equal(t, KindNotFound, kindOf(err))
	progresses, err := f.store.Progresses.ListByReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, progresses)

	assert.Equal(t, KindNotFound, kindOf(f.reports.Delete(ctx, report.ID)))
}

func TestDeleteQueuesCleanupWhenRemovalFails(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	report := f.createReport(t, alice.ID, "uploads/reports/p1.jpg")
	f.photos.fail = true

	require.NoError(t, f.reports.Delete(context.Background(), report.ID))
	assert.Equal(t, [][]string{{"uploads/reports/p1.jpg"}}, f.cleanup.queued)
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "Alice", "alice@x.com", models.RoleUser)
	bob := f.register(t, "Bob", "bob@x.com", models.RoleUser)

	var created []string
	for i := 0; i < 5; i++ {
		created = append(created, f.createReport(t, alice.ID, "uploads/reports/a.jpg").ID)
	}
	for i := 0; i < 2; i++ {
		created = append(created, f.createReport(t, bob.ID, "uploads/reports/b.jpg").ID)
	}

	seen := map[string]bool{}
	var order []string
	for page := 1; page <= 3; page++ {
		res, err := f.reports.List(ctx, Page{Page: page, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, res.Total)
		assert.LessOrEqual(t, len(res.Items), 3)
		for _, r := range res.Items {
			assert.False(t, seen[r.ID], "report repeated across pages")
			seen[r.ID] = true
			order = append(order, r.ID)
		}
	}
	assert.Len(t, seen, 7)
	// newest first
	for i := range order {
		assert.Equal(t, created[len(created)-1-i], order[i])
	}

	mine, err := f.reports.ListByReporter(ctx, bob.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total)
	assert.Equal(t, DefaultPage, mine.Page)
	assert.Equal(t, DefaultLimit, mine.Limit)
	for _, r := range mine.Items {
		assert.Equal(t, "Bob", r.Reporter.Name)
	}

	beyond, err := f.reports.List(ctx, Page{Page: 10, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 7, beyond.Total)

	huge, err := f.reports.List(ctx, Page{Page: math.MaxInt, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, huge.Items)
	assert.Equal(t, 7, huge.Total)
	assert.Equal(t, math.MaxInt, huge.Page)
}

func TestPageOffsetSaturates(t *testing.T) {
	assert.Equal(t, 0, Page{Page: 1, Limit: 10}.offset())
	assert.Equal(t, 20, Page{Page: 3, Limit: 10}.offset())
	assert.Equal(t, math.MaxInt, Page{Page: math.MaxInt, Limit: 10}.offset())
	assert.Equal(t, math.MaxInt, Page{Page: math.MaxInt/100 + 2, Limit: 100}.offset())
	assert.Equal(t, (math.MaxInt/100)*100, Page{Page: math.MaxInt/100 + 1, Limit: 100}.offset())
}

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:        400,
		KindInvalidState:      400,
		KindInvalidTransition: 400,
		KindUnauthorized:      401,
		KindForbidden:         403,
		KindNotFound:          404,
		KindConflict:          409,
		KindTooManyRequests:   429,
		KindInternal:          500,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status())
	}
}

func TestAsErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")
	se := AsError(cause)
	assert.Equal(t, KindInternal, se.Kind)
	assert.Equal(t, "Internal server error", se.Message)
	assert.ErrorIs(t, se, cause)
}
