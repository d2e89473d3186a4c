package testing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobhub/internal/errors"
	"jobhub/internal/storage"
)

// MemStore is an in-memory stand-in for storage.DB. It enforces the same
// uniqueness rules and runs TransitionApplication under one lock, so engine
// tests observe the same atomicity as the Postgres store.
type MemStore struct {
	mu            sync.Mutex
	nextID        int64
	jobs          map[int64]*storage.Job
	candidates    map[int64]*storage.CandidateProfile
	employers     map[int64]*storage.EmployerProfile
	companies     map[int64]*storage.Company
	resumes       map[int64]*storage.Resume
	applications  map[int64]*storage.Application
	notifications []*storage.Notification

	// NotificationErr, when set, is returned by CreateNotification.
	NotificationErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		jobs:         make(map[int64]*storage.Job),
		candidates:   make(map[int64]*storage.CandidateProfile),
		employers:    make(map[int64]*storage.EmployerProfile),
		companies:    make(map[int64]*storage.Company),
		resumes:      make(map[int64]*storage.Resume),
		applications: make(map[int64]*storage.Application),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

// Seed helpers

// AddJob stores a copy of job, filling ID, GUID, timestamps and defaults.
func (m *MemStore) AddJob(job storage.Job) *storage.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = m.id()
	if job.GUID == "" {
		job.GUID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.HiringStatus == "" {
		job.HiringStatus = storage.HiringOpen
	}
	m.jobs[job.ID] = &job
	cp := job
	return &cp
}

func (m *MemStore) AddCandidate(p storage.CandidateProfile) *storage.CandidateProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	m.candidates[p.ID] = &p
	cp := p
	return &cp
}

// AddEmployer stores an employer profile and, when given, its company.
func (m *MemStore) AddEmployer(e storage.EmployerProfile, company *storage.Company) *storage.EmployerProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if company != nil {
		c := *company
		c.ID = m.id()
		m.companies[c.ID] = &c
		e.CompanyID = &c.ID
	}
	e.ID = m.id()
	m.employers[e.ID] = &e
	cp := e
	return &cp
}

func (m *MemStore) AddResume(r storage.Resume) *storage.Resume {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.id()
	m.resumes[r.ID] = &r
	cp := r
	return &cp
}

// Inspection helpers

func (m *MemStore) Job(id int64) storage.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return *j
	}
	return storage.Job{}
}

func (m *MemStore) Application(id int64) storage.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.applications[id]; ok {
		return *a
	}
	return storage.Application{}
}

func (m *MemStore) ApplicationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applications)
}

func (m *MemStore) ResumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resumes)
}

// Notifications returns a copy of the ledger records of userID, oldest first.
func (m *MemStore) Notifications(userID string) []storage.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

// Jobs

func (m *MemStore) CreateJob(ctx context.Context, job *storage.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.GUID == job.GUID {
			return errors.Wrapf(errors.ErrConflict, "job %s", job.GUID)
		}
	}
	job.ID = m.id()
	job.PositionsFilled = 0
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemStore) UpdateJob(ctx context.Context, job *storage.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[job.ID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "job %d", job.ID)
	}
	next := *job
	next.GUID = cur.GUID
	next.PositionsFilled = cur.PositionsFilled
	next.PostedByUserID = cur.PostedByUserID
	next.EmployerProfileID = cur.EmployerProfileID
	next.CompanyID = cur.CompanyID
	next.IsActive = cur.IsActive
	next.CreatedAt = cur.CreatedAt
	m.jobs[job.ID] = &next
	return nil
}

func (m *MemStore) GetJobByGUID(ctx context.Context, guid string) (*storage.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.GUID == guid && j.IsActive {
			cp := *j
			return &cp, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "job %q", guid)
}

func (m *MemStore) GetJobByID(ctx context.Context, id int64) (*storage.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "job %d", id)
}

func (m *MemStore) DeleteJob(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "job %d", id)
	}
	j.IsActive = false
	j.UpdatedAt = at
	return nil
}

func (m *MemStore) HardDeleteJob(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "job %d", id)
	}
	delete(m.jobs, id)
	for aid, a := range m.applications {
		if a.JobID == id {
			delete(m.applications, aid)
		}
	}
	return nil
}

func (m *MemStore) SetHiringStatus(ctx context.Context, id int64, status storage.HiringStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "job %d", id)
	}
	j.HiringStatus = status
	j.UpdatedAt = at
	return nil
}

func (m *MemStore) ListActiveJobs(ctx context.Context, f storage.ListingFilter) ([]storage.JobSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*storage.Job
	for _, j := range m.jobs {
		if !j.IsActive {
			continue
		}
		company := m.companyName(j.CompanyID)
		if f.Search != "" {
			s := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(j.Title), s) &&
				!strings.Contains(strings.ToLower(j.Description), s) &&
				!strings.Contains(strings.ToLower(company), s) {
				continue
			}
		}
		if f.Category != "" && strings.ToLower(j.Category) != f.Category {
			continue
		}
		matched = append(matched, j)
	}
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID > matched[b].ID
		}
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	res := []storage.JobSummary{}
	for i := f.Offset; i < total && (f.Limit <= 0 || i < f.Offset+f.Limit); i++ {
		j := matched[i]
		s := storage.JobSummary{
			GUID: j.GUID, Title: j.Title, Location: j.Location, Category: j.Category,
			EmploymentType: j.EmploymentType, SalaryMin: j.SalaryMin, SalaryMax: j.SalaryMax,
			Currency: j.Currency, PositionsNeeded: j.PositionsNeeded, PositionsFilled: j.PositionsFilled,
			HiringStatus: j.HiringStatus, CompanyName: m.companyName(j.CompanyID), CreatedAt: j.CreatedAt,
		}
		if j.CompanyID != nil {
			if c, ok := m.companies[*j.CompanyID]; ok {
				s.CompanyLogo = c.LogoPath
			}
		}
		res = append(res, s)
	}
	return res, total, nil
}

func (m *MemStore) companyName(id *int64) string {
	if id == nil {
		return ""
	}
	if c, ok := m.companies[*id]; ok {
		return c.Name
	}
	return ""
}

func (m *MemStore) ListPositionDrift(ctx context.Context, limit int) ([]storage.PositionDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accepted := make(map[int64]int)
	for _, a := range m.applications {
		if a.Status == storage.StatusAccepted {
			accepted[a.JobID]++
		}
	}
	var res []storage.PositionDrift
	for _, j := range m.jobs {
		if j.PositionsFilled != accepted[j.ID] {
			res = append(res, storage.PositionDrift{JobID: j.ID, JobGUID: j.GUID, Stored: j.PositionsFilled, Accepted: accepted[j.ID]})
		}
	}
	sort.Slice(res, func(a, b int) bool { return res[a].JobID < res[b].JobID })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemStore) RecountPositions(ctx context.Context, jobID int64) (storage.PositionDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return storage.PositionDrift{}, errors.Wrapf(errors.ErrNotFound, "job %d", jobID)
	}
	d := storage.PositionDrift{JobID: j.ID, JobGUID: j.GUID, Stored: j.PositionsFilled}
	for _, a := range m.applications {
		if a.JobID == jobID && a.Status == storage.StatusAccepted {
			d.Accepted++
		}
	}
	j.PositionsFilled = d.Accepted
	return d, nil
}

// SetPositionsFilled seeds a drifted counter.
func (m *MemStore) SetPositionsFilled(ctx context.Context, jobID int64, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "job %d", jobID)
	}
	j.PositionsFilled = n
	return nil
}

// Profiles

func (m *MemStore) GetCandidateProfileByUserID(ctx context.Context, userID string) (*storage.CandidateProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.candidates {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "candidate profile of %s", userID)
}

func (m *MemStore) GetCandidateProfile(ctx context.Context, id int64) (*storage.CandidateProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.candidates[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "candidate profile %d", id)
}

func (m *MemStore) UpsertCandidateProfile(ctx context.Context, p *storage.CandidateProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.candidates {
		if cur.UserID == p.UserID {
			p.ID = id
			cp := *p
			m.candidates[id] = &cp
			return nil
		}
	}
	p.ID = m.id()
	cp := *p
	m.candidates[p.ID] = &cp
	return nil
}

func (m *MemStore) GetEmployerProfileByUserID(ctx context.Context, userID string) (*storage.EmployerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.employers {
		if e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "employer profile of %s", userID)
}

func (m *MemStore) SaveEmployerProfile(ctx context.Context, e *storage.EmployerProfile, company *storage.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if company != nil {
		if company.ID == 0 {
			company.ID = m.id()
		}
		c := *company
		m.companies[c.ID] = &c
		id := c.ID
		e.CompanyID = &id
	}
	for id, cur := range m.employers {
		if cur.UserID == e.UserID {
			e.ID = id
			cp := *e
			m.employers[id] = &cp
			return nil
		}
	}
	e.ID = m.id()
	cp := *e
	m.employers[e.ID] = &cp
	return nil
}

func (m *MemStore) GetCompany(ctx context.Context, id int64) (*storage.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "company %d", id)
}

func (m *MemStore) GetResumeByCandidate(ctx context.Context, candidateProfileID int64) (*storage.Resume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeOf(candidateProfileID)
}

func (m *MemStore) resumeOf(candidateProfileID int64) (*storage.Resume, error) {
	for _, r := range m.resumes {
		if r.CandidateProfileID == candidateProfileID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "resume of candidate %d", candidateProfileID)
}

func (m *MemStore) CreateResume(ctx context.Context, r *storage.Resume) (*storage.Resume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, err := m.resumeOf(r.CandidateProfileID); err == nil {
		return existing, nil
	}
	r.ID = m.id()
	cp := *r
	m.resumes[r.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemStore) ReplaceResume(ctx context.Context, r *storage.Resume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.resumes {
		if cur.CandidateProfileID == r.CandidateProfileID {
			r.ID = id
			r.CreatedAt = cur.CreatedAt
			cp := *r
			m.resumes[id] = &cp
			return nil
		}
	}
	r.ID = m.id()
	r.CreatedAt = r.UpdatedAt
	cp := *r
	m.resumes[r.ID] = &cp
	return nil
}

// Applications

func (m *MemStore) ApplicationExists(ctx context.Context, jobID, candidateProfileID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.applications {
		if a.JobID == jobID && a.CandidateProfileID == candidateProfileID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) CreateApplication(ctx context.Context, app *storage.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.applications {
		if a.JobID == app.JobID && a.CandidateProfileID == app.CandidateProfileID {
			return errors.Wrapf(errors.ErrConflict, "application job=%d candidate=%d", app.JobID, app.CandidateProfileID)
		}
	}
	app.ID = m.id()
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

func (m *MemStore) GetApplication(ctx context.Context, id int64) (*storage.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.applications[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "application %d", id)
}

func (m *MemStore) TransitionApplication(ctx context.Context, id int64, fn storage.TransitionFunc) (*storage.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.applications[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "application %d", id)
	}
	next := *cur
	delta, err := fn(&next)
	if err != nil {
		return nil, err
	}
	if delta != 0 {
		if j, ok := m.jobs[next.JobID]; ok {
			j.PositionsFilled += delta
			if j.PositionsFilled < 0 {
				j.PositionsFilled = 0
			}
		}
	}
	m.applications[id] = &next
	out := next
	return &out, nil
}

func (m *MemStore) summaries(match func(a *storage.Application, j *storage.Job) bool) []storage.ApplicationSummary {
	res := []storage.ApplicationSummary{}
	for _, a := range m.applications {
		j := m.jobs[a.JobID]
		c := m.candidates[a.CandidateProfileID]
		if j == nil || c == nil || !match(a, j) {
			continue
		}
		res = append(res, storage.ApplicationSummary{
			ApplicationID: a.ID, Status: a.Status, StatusLabel: a.Status.Label(),
			AppliedAt: a.AppliedAt, UpdatedAt: a.UpdatedAt, IsViewedByEmployer: a.IsViewedByEmployer,
			JobID: j.ID, JobGUID: j.GUID, JobTitle: j.Title,
			CandidateID: c.ID, CandidateName: c.FullName, Email: c.Email, Phone: c.Phone,
			Headline: c.Title, Skills: c.Skills, Experience: c.Experience, Location: c.Location,
			AvatarPath: c.AvatarPath, PortfolioImages: c.PortfolioImages, ResumeID: a.ResumeID,
		})
	}
	sort.Slice(res, func(x, y int) bool {
		if res[x].AppliedAt.Equal(res[y].AppliedAt) {
			return res[x].ApplicationID > res[y].ApplicationID
		}
		return res[x].AppliedAt.After(res[y].AppliedAt)
	})
	return res
}

func (m *MemStore) ListApplicationsForJob(ctx context.Context, jobID int64) ([]storage.ApplicationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries(func(a *storage.Application, _ *storage.Job) bool { return a.JobID == jobID }), nil
}

func (m *MemStore) ListApplicationsForEmployer(ctx context.Context, userID string) ([]storage.ApplicationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries(func(_ *storage.Application, j *storage.Job) bool {
		return j.PostedByUserID == userID && j.IsActive
	}), nil
}

func (m *MemStore) ApplicationCountsForEmployer(ctx context.Context, userID string) ([]storage.JobApplicationCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*storage.Job
	for _, j := range m.jobs {
		if j.PostedByUserID == userID && j.IsActive {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })

	res := []storage.JobApplicationCount{}
	for _, j := range jobs {
		c := storage.JobApplicationCount{JobID: j.ID, JobGUID: j.GUID, JobTitle: j.Title}
		for _, a := range m.applications {
			if a.JobID != j.ID {
				continue
			}
			c.Total++
			if !a.IsViewedByEmployer {
				c.Unread++
			}
			if a.Status == storage.StatusApplied {
				c.Pending++
			}
		}
		res = append(res, c)
	}
	return res, nil
}

func (m *MemStore) MarkJobApplicationsRead(ctx context.Context, jobID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markRead(at, func(a *storage.Application) bool { return a.JobID == jobID }), nil
}

func (m *MemStore) MarkAllApplicationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markRead(at, func(a *storage.Application) bool {
		j := m.jobs[a.JobID]
		return j != nil && j.PostedByUserID == userID && j.IsActive
	}), nil
}

func (m *MemStore) markRead(at time.Time, match func(a *storage.Application) bool) int64 {
	var n int64
	for _, a := range m.applications {
		if a.IsViewedByEmployer || !match(a) {
			continue
		}
		a.IsViewedByEmployer = true
		t := at
		a.EmployerViewedAt = &t
		n++
	}
	return n
}

func (m *MemStore) ListCandidateApplications(ctx context.Context, candidateProfileID int64) ([]storage.CandidateApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []storage.CandidateApplication{}
	for _, a := range m.applications {
		if a.CandidateProfileID != candidateProfileID {
			continue
		}
		j := m.jobs[a.JobID]
		if j == nil {
			continue
		}
		row := storage.CandidateApplication{
			ApplicationID: a.ID, Status: a.Status, StatusLabel: a.Status.Label(),
			AppliedAt: a.AppliedAt, UpdatedAt: a.UpdatedAt, JobGUID: j.GUID, JobTitle: j.Title,
			JobLocation: j.Location, SalaryMin: j.SalaryMin, SalaryMax: j.SalaryMax,
		}
		if j.CompanyID != nil {
			if c, ok := m.companies[*j.CompanyID]; ok {
				row.CompanyName = c.Name
				row.CompanyLogo = c.LogoPath
			}
		}
		if j.EmployerProfileID != nil {
			if e, ok := m.employers[*j.EmployerProfileID]; ok {
				row.EmployerName = e.ContactName
			}
		}
		res = append(res, row)
	}
	sort.Slice(res, func(x, y int) bool { return res[x].AppliedAt.After(res[y].AppliedAt) })
	return res, nil
}

// Notifications

func (m *MemStore) CreateNotification(ctx context.Context, n *storage.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotificationErr != nil {
		return m.NotificationErr
	}
	n.ID = m.id()
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *MemStore) ListNotifications(ctx context.Context, userID string, limit int, unreadOnly bool) ([]storage.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []storage.Notification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		res = append(res, *n)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (m *MemStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) MarkNotificationRead(ctx context.Context, userID string, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			if n.ReadAt == nil {
				t := at
				n.ReadAt = &t
			}
			n.IsRead = true
			return nil
		}
	}
	return errors.Wrapf(errors.ErrNotFound, "notification %d", id)
}

func (m *MemStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			t := at
			n.IsRead = true
			n.ReadAt = &t
			count++
		}
	}
	return count, nil
}
