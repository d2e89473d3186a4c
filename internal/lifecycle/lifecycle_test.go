package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobhub/internal/errors"
	"jobhub/internal/media"
	"jobhub/internal/notify"
	"jobhub/internal/storage"
	jobhubtest "jobhub/internal/testing"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(e notify.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return true
}

func (n *recordingNotifier) For(userID string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.RecipientUserID == userID {
			out = append(out, e)
		}
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingInvalidator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	store     *jobhubtest.MemStore
	notifier  *recordingNotifier
	listing   *countingInvalidator
	engine    *Engine
	reader    *Reader
	job       *storage.Job
	employer  *storage.EmployerProfile
	candidate *storage.CandidateProfile
	now       time.Time
}

const (
	employerUser  = "emp-1"
	candidateUser = "cand-1"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := jobhubtest.NewMemStore()
	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		listing:  &countingInvalidator{},
		now:      time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC),
	}
	f.employer = store.AddEmployer(storage.EmployerProfile{UserID: employerUser, ContactName: "Chị Hoa"}, &storage.Company{Name: "Acme"})
	f.job = store.AddJob(storage.Job{
		Title: "Backend Go", PositionsNeeded: 2, IsActive: true,
		PostedByUserID: employerUser, EmployerProfileID: &f.employer.ID, CompanyID: f.employer.CompanyID,
	})
	f.candidate = store.AddCandidate(storage.CandidateProfile{
		UserID: candidateUser, FullName: "Nguyễn Lan", Title: "Go developer",
		Skills: []string{"Go", "SQL"}, Experience: "2 năm", Education: "ĐHQG",
		AvatarPath: "avatars/lan.png", PortfolioImages: []string{"p/1.png"},
	})
	f.engine = NewEngine(store, f.notifier, f.listing, log).WithClock(func() time.Time { return f.now })
	f.reader = NewReader(store, media.Static{BaseURL: "https://cdn.jobhub.vn"}, log)
	f.reader.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) apply(t *testing.T, userID string) int64 {
	t.Helper()
	res, err := f.engine.Apply(context.Background(), f.job.GUID, userID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome, res.Message)
	require.NotNil(t, res.ApplicationID)
	return *res.ApplicationID
}

func (f *fixture) addCandidate(userID string) {
	f.store.AddCandidate(storage.CandidateProfile{UserID: userID, FullName: userID})
}

func TestPositionsDelta(t *testing.T) {
	all := []storage.ApplicationStatus{storage.StatusApplied, storage.StatusReviewed, storage.StatusInterviewing, storage.StatusAccepted, storage.StatusRejected}
	for _, from := range all {
		for _, to := range all {
			want := 0
			if from != storage.StatusAccepted && to == storage.StatusAccepted {
				want = 1
			}
			if from == storage.StatusAccepted && to != storage.StatusAccepted {
				want = -1
			}
			assert.Equal(t, want, PositionsDelta(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApplySuccess(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Apply(context.Background(), f.job.GUID, candidateUser)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, SeveritySuccess, res.Severity)
	assert.NotEmpty(t, res.Message)
	require.NotNil(t, res.ApplicationID)

	app := f.store.Application(*res.ApplicationID)
	assert.Equal(t, storage.StatusApplied, app.Status)
	assert.Equal(t, f.now, app.AppliedAt)
	assert.False(t, app.IsViewedByEmployer)

	cv, err := f.store.GetResumeByCandidate(context.Background(), f.candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, cv.ID, app.ResumeID)
	assert.Equal(t, "Go developer", cv.Title)
	assert.Equal(t, []string{"Go", "SQL"}, cv.Skills)

	events := f.notifier.For(employerUser)
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindNewApplication, events[0].Kind)
	assert.Equal(t, "Nguyễn Lan", events[0].CandidateName)
	assert.Equal(t, *res.ApplicationID, events[0].ApplicationID)
}

func TestApplyTwiceReturnsAlreadyApplied(t *testing.T) {
	f := newFixture(t)
	f.apply(t, candidateUser)

	res, err := f.engine.Apply(context.Background(), f.job.GUID, candidateUser)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, res.Outcome)
	assert.Equal(t, SeverityWarning, res.Severity)
	assert.Nil(t, res.ApplicationID)
	assert.Equal(t, 1, f.store.ApplicationCount())
	assert.Len(t, f.notifier.For(employerUser), 1)
}

func TestApplyReusesResume(t *testing.T) {
	f := newFixture(t)
	existing := f.store.AddResume(storage.Resume{CandidateProfileID: f.candidate.ID, Title: "Imported"})
	id := f.apply(t, candidateUser)

	other := f.store.AddJob(storage.Job{Title: "QA", IsActive: true, PostedByUserID: "emp-2"})
	res, err := f.engine.Apply(context.Background(), other.GUID, candidateUser)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	assert.Equal(t, existing.ID, f.store.Application(id).ResumeID)
	assert.Equal(t, existing.ID, f.store.Application(*res.ApplicationID).ResumeID)
	assert.Equal(t, 1, f.store.ResumeCount())
}

func TestApplyPreconditions(t *testing.T) {
	f := newFixture(t)
	inactive := f.store.AddJob(storage.Job{Title: "Gone", IsActive: false, PostedByUserID: employerUser})

	tests := []struct {
		name     string
		guid     string
		user     string
		outcome  Outcome
		severity Severity
	}{
		{"unknown job", "5f0c4a4e-0000-4000-8000-000000000000", candidateUser, OutcomeNotFound, SeverityError},
		{"inactive job", inactive.GUID, candidateUser, OutcomeNotFound, SeverityError},
		{"poster applies to own job", f.job.GUID, employerUser, OutcomeSelfApplication, SeverityError},
		{"no candidate profile", f.job.GUID, "stranger", OutcomeProfileRequired, SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.engine.Apply(context.Background(), tt.guid, tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.severity, res.Severity)
			assert.NotEmpty(t, res.Message)
			assert.Nil(t, res.ApplicationID)
		})
	}
	assert.Equal(t, 0, f.store.ApplicationCount())
	assert.Equal(t, 0, f.store.ResumeCount())
	assert.Empty(t, f.notifier.events)
}

func TestSelfApplicationCheckedBeforeProfile(t *testing.T) {
	f := newFixture(t)
	// the poster also has a candidate profile
	f.addCandidate(employerUser)

	res, err := f.engine.Apply(context.Background(), f.job.GUID, employerUser)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelfApplication, res.Outcome)
}

func TestConcurrentApplyCreatesOneApplication(t *testing.T) {
	f := newFixture(t)

	const n = 20
	var wg sync.WaitGroup
	results := make(chan ApplyResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Apply(context.Background(), f.job.GUID, candidateUser)
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for res := range results {
		if res.Outcome == OutcomeSuccess {
			success++
		} else {
			assert.Equal(t, OutcomeAlreadyApplied, res.Outcome)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, f.store.ApplicationCount())
	assert.Equal(t, 1, f.store.ResumeCount())
}

type failingStore struct {
	*jobhubtest.MemStore
}

func (failingStore) GetCandidateProfileByUserID(ctx context.Context, userID string) (*storage.CandidateProfile, error) {
	return nil, errors.New("connection refused")
}

func TestApplyPropagatesStoreFailure(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(failingStore{f.store}, f.notifier, nil, zaptest.NewLogger(t).Sugar())

	_, err := e.Apply(context.Background(), f.job.GUID, candidateUser)
	assert.Error(t, err)
}

func TestUpdateStatusAcceptAndRevert(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t, candidateUser)
	f.now = f.now.Add(time.Hour)

	res, err := f.engine.UpdateStatus(context.Background(), employerUser, id, "accepted")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, storage.StatusAccepted, res.NewStatus)
	assert.Equal(t, "Đã trúng tuyển", res.StatusLabel)
	require.NotNil(t, res.UpdatedAt)
	assert.Equal(t, f.now, *res.UpdatedAt)
	assert.Equal(t, 1, f.store.Job(f.job.ID).PositionsFilled)
	assert.Equal(t, 1, f.listing.Calls())

	app := f.store.Application(id)
	assert.True(t, app.IsViewedByEmployer)
	require.NotNil(t, app.EmployerViewedAt)
	assert.Equal(t, f.now, *app.EmployerViewedAt)

	events := f.notifier.For(candidateUser)
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindStatusChanged, events[0].Kind)
	assert.Equal(t, storage.StatusApplied, events[0].OldStatus)
	assert.Equal(t, storage.StatusAccepted, events[0].NewStatus)
	assert.Equal(t, "Acme", events[0].CompanyName)

	viewedAt := *app.EmployerViewedAt
	f.now = f.now.Add(time.Hour)
	res, err = f.engine.UpdateStatus(context.Background(), employerUser, id, "REJECTED")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, f.store.Job(f.job.ID).PositionsFilled)
	assert.Equal(t, 2, f.listing.Calls())
	assert.Equal(t, viewedAt, *f.store.Application(id).EmployerViewedAt, "first view time is kept")
}

func TestUpdateStatusWithoutCounterChangeKeepsCache(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t, candidateUser)

	res, err := f.engine.UpdateStatus(context.Background(), employerUser, id, "INTERVIEWING")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, f.store.Job(f.job.ID).PositionsFilled)
	assert.Equal(t, 0, f.listing.Calls())
}

func TestUpdateStatusFloorsCounterAtZero(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t, candidateUser)
	_, err := f.engine.UpdateStatus(context.Background(), employerUser, id, "ACCEPTED")
	require.NoError(t, err)
	// drift: counter lost by an out-of-band repair
	require.NoError(t, f.store.SetPositionsFilled(context.Background(), f.job.ID, 0))

	res, err := f.engine.UpdateStatus(context.Background(), employerUser, id, "REVIEWED")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, f.store.Job(f.job.ID).PositionsFilled)
}

func TestUpdateStatusRejections(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t, candidateUser)
	f.store.AddEmployer(storage.EmployerProfile{UserID: "emp-2"}, nil)
	before := f.store.Application(id)

	tests := []struct {
		name    string
		user    string
		appID   int64
		status  string
		outcome Outcome
	}{
		{"unknown application", employerUser, 9999, "REVIEWED", OutcomeNotFound},
		{"other employer", "emp-2", id, "ACCEPTED", OutcomeForbidden},
		{"candidate", candidateUser, id, "ACCEPTED", OutcomeForbidden},
		{"anonymous", "", id, "ACCEPTED", OutcomeForbidden},
		{"unknown status", employerUser, id, "HIRED", OutcomeInvalidStatus},
		{"empty status", employerUser, id, "", OutcomeInvalidStatus},
		{"invalid status before ownership", "emp-2", id, "HIRED", OutcomeInvalidStatus},
		{"invalid status before lookup", employerUser, 9999, "HIRED", OutcomeInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.engine.UpdateStatus(context.Background(), tt.user, tt.appID, tt.status)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.NotEmpty(t, res.Message)
			assert.Empty(t, res.NewStatus)
			assert.Nil(t, res.UpdatedAt)
		})
	}

	assert.Equal(t, before, f.store.Application(id))
	assert.Equal(t, 0, f.store.Job(f.job.ID).PositionsFilled)
	assert.Empty(t, f.notifier.For(candidateUser))
}

func TestUpdateStatusOwnershipByPosterWithoutProfile(t *testing.T) {
	f := newFixture(t)
	job := f.store.AddJob(storage.Job{Title: "Intern", IsActive: true, PostedByUserID: "solo"})
	res, err := f.engine.Apply(context.Background(), job.GUID, candidateUser)
	require.NoError(t, err)

	out, err := f.engine.UpdateStatus(context.Background(), "solo", *res.ApplicationID, "REVIEWED")
	require.NoError(t, err)
	assert.True(t, out.Success)

	out, err = f.engine.UpdateStatus(context.Background(), employerUser, *res.ApplicationID, "REVIEWED")
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbidden, out.Outcome)
}

func TestConcurrentTransitionsKeepCounterExact(t *testing.T) {
	f := newFixture(t)

	const n = 25
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("cand-%d", i+100)
		f.addCandidate(user)
		ids[i] = f.apply(t, user)
	}

	run := func(status string) {
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				res, err := f.engine.UpdateStatus(context.Background(), employerUser, id, status)
				assert.NoError(t, err)
				assert.True(t, res.Success)
			}(id)
		}
		wg.Wait()
	}

	run("ACCEPTED")
	assert.Equal(t, n, f.store.Job(f.job.ID).PositionsFilled)

	run("ACCEPTED")
	assert.Equal(t, n, f.store.Job(f.job.ID).PositionsFilled, "re-accepting is not a new acceptance")

	run("REJECTED")
	assert.Equal(t, 0, f.store.Job(f.job.ID).PositionsFilled)
}

func TestConcurrentTogglesOnOneApplication(t *testing.T) {
	f := newFixture(t)
	id := f.apply(t, candidateUser)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		status := "ACCEPTED"
		if i%2 == 1 {
			status = "REVIEWED"
		}
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			_, err := f.engine.UpdateStatus(context.Background(), employerUser, id, s)
			assert.NoError(t, err)
		}(status)
	}
	wg.Wait()

	want := 0
	if f.store.Application(id).Status == storage.StatusAccepted {
		want = 1
	}
	assert.Equal(t, want, f.store.Job(f.job.ID).PositionsFilled)
}

// Candidate applies, employer sees it pending, accepts and then rejects.
func TestEndToEndApplyAcceptReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.reader.EmployerStats(ctx, employerUser)
	require.NoError(t, err)
	require.Len(t, stats.Jobs, 1)
	pendingBefore := stats.Jobs[0].Pending

	id := f.apply(t, candidateUser)

	stats, err = f.reader.EmployerStats(ctx, employerUser)
	require.NoError(t, err)
	assert.Equal(t, pendingBefore+1, stats.Jobs[0].Pending)
	assert.Equal(t, 1, stats.TotalUnread)
	require.Len(t, f.notifier.For(employerUser), 1)
	assert.Equal(t, notify.KindNewApplication, f.notifier.For(employerUser)[0].Kind)

	res, err := f.engine.UpdateStatus(ctx, employerUser, id, "ACCEPTED")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, storage.StatusAccepted, res.NewStatus)
	assert.Equal(t, 1, f.store.Job(f.job.ID).PositionsFilled)
	require.Len(t, f.notifier.For(candidateUser), 1)
	assert.Equal(t, notify.KindStatusChanged, f.notifier.For(candidateUser)[0].Kind)

	_, err = f.engine.UpdateStatus(ctx, employerUser, id, "REJECTED")
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.Job(f.job.ID).PositionsFilled)

	stats, err = f.reader.EmployerStats(ctx, employerUser)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalUnread)
}

// Same flow through the real dispatcher: both sides end up with ledger records.
func TestEndToEndLedgerRecords(t *testing.T) {
	f := newFixture(t)
	d := notify.NewDispatcher(f.store, nil, notify.Options{QueueSize: 16, Workers: 2, Timeout: time.Second}, zaptest.NewLogger(t).Sugar())
	f.engine.notifier = d

	id := f.apply(t, candidateUser)
	_, err := f.engine.UpdateStatus(context.Background(), employerUser, id, "INTERVIEWING")
	require.NoError(t, err)
	d.Close()

	emp := f.store.Notifications(employerUser)
	require.Len(t, emp, 1)
	assert.Equal(t, storage.CategoryNewApplication, emp[0].Category)

	cand := f.store.Notifications(candidateUser)
	require.Len(t, cand, 1)
	assert.Equal(t, "Hồ sơ của bạn: Mời phỏng vấn", cand[0].Title)
}

func TestLedgerFailureDoesNotFailOperations(t *testing.T) {
	f := newFixture(t)
	f.store.NotificationErr = errors.New("ledger down")
	d := notify.NewDispatcher(f.store, nil, notify.Options{Workers: 1}, zaptest.NewLogger(t).Sugar())
	f.engine.notifier = d

	id := f.apply(t, candidateUser)
	res, err := f.engine.UpdateStatus(context.Background(), employerUser, id, "ACCEPTED")
	require.NoError(t, err)
	assert.True(t, res.Success)
	d.Close()
	assert.Equal(t, int64(2), d.Stats().LedgerFailures)
}

func TestApplyTwiceScenario(t *testing.T) {
	f := newFixture(t)
	first, err := f.engine.Apply(context.Background(), f.job.GUID, candidateUser)
	require.NoError(t, err)
	assert.Equal(t, SeveritySuccess, first.Severity)
	assert.NotNil(t, first.ApplicationID)

	second, err := f.engine.Apply(context.Background(), f.job.GUID, candidateUser)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, second.Outcome)
	assert.Nil(t, second.ApplicationID)
}
