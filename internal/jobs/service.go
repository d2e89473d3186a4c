// Package jobs is the job-mutation engine. Every mutation retires the
// cached listing so that readers see it within one cache round trip.
package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobhub/internal/errors"
	"jobhub/internal/listing"
	"jobhub/internal/logger"
	"jobhub/internal/storage"
)

type Store interface {
	CreateJob(ctx context.Context, job *storage.Job) error
	UpdateJob(ctx context.Context, job *storage.Job) error
	GetJobByGUID(ctx context.Context, guid string) (*storage.Job, error)
	DeleteJob(ctx context.Context, id int64, at time.Time) error
	HardDeleteJob(ctx context.Context, id int64) error
	SetHiringStatus(ctx context.Context, id int64, status storage.HiringStatus, at time.Time) error
	ListActiveJobs(ctx context.Context, f storage.ListingFilter) ([]storage.JobSummary, int, error)
	GetEmployerProfileByUserID(ctx context.Context, userID string) (*storage.EmployerProfile, error)
}

// Input holds the editable fields of a posting.
type Input struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Requirements    string     `json:"requirements"`
	Benefits        string     `json:"benefits"`
	Location        string     `json:"location"`
	Category        string     `json:"category"`
	EmploymentType  string     `json:"employment_type"`
	ExperienceLevel string     `json:"experience_level"`
	SalaryMin       *int64     `json:"salary_min"`
	SalaryMax       *int64     `json:"salary_max"`
	Currency        string     `json:"currency"`
	PositionsNeeded int        `json:"positions_needed"`
	Deadline        *time.Time `json:"deadline"`
}

func (in *Input) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return errors.NewInvalidRequestError("title is required")
	}
	if in.PositionsNeeded == 0 {
		in.PositionsNeeded = 1
	}
	if in.PositionsNeeded < 0 {
		return errors.NewInvalidRequestError("positions_needed must be positive")
	}
	if in.SalaryMin != nil && *in.SalaryMin < 0 || in.SalaryMax != nil && *in.SalaryMax < 0 {
		return errors.NewInvalidRequestError("salary must not be negative")
	}
	if in.SalaryMin != nil && in.SalaryMax != nil && *in.SalaryMin > *in.SalaryMax {
		return errors.NewInvalidRequestError("salary_min must not exceed salary_max")
	}
	if in.Currency == "" {
		in.Currency = "VND"
	}
	return nil
}

func (in *Input) apply(job *storage.Job) {
	job.Title = in.Title
	job.Description = in.Description
	job.Requirements = in.Requirements
	job.Benefits = in.Benefits
	job.Location = in.Location
	job.Category = strings.TrimSpace(in.Category)
	job.EmploymentType = in.EmploymentType
	job.ExperienceLevel = in.ExperienceLevel
	job.SalaryMin = in.SalaryMin
	job.SalaryMax = in.SalaryMax
	job.Currency = in.Currency
	job.PositionsNeeded = in.PositionsNeeded
	job.Deadline = in.Deadline
}

type Service struct {
	store  Store
	cache  listing.Cache
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(store Store, cache listing.Cache, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = logger.Logger
	}
	return &Service{store: store, cache: cache, logger: log.Named("jobs"), now: time.Now}
}

// Create posts a job on behalf of userID. When the user has an employer
// profile the job is linked to it and to its company.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*storage.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	job := &storage.Job{
		GUID:           uuid.NewString(),
		HiringStatus:   storage.HiringOpen,
		IsActive:       true,
		PostedByUserID: userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	in.apply(job)

	ep, err := s.store.GetEmployerProfileByUserID(ctx, userID)
	switch {
	case err == nil:
		job.EmployerProfileID = &ep.ID
		job.CompanyID = ep.CompanyID
	case !errors.IsNotFound(err):
		return nil, errors.Wrap(err, "load employer profile")
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Infow("Job created", logger.FieldJobID, job.ID, logger.FieldJobGUID, job.GUID, logger.FieldUserID, userID)
	s.invalidate(ctx, "create", job)
	return job, nil
}

// Get returns an active job.
func (s *Service) Get(ctx context.Context, guid string) (*storage.Job, error) {
	return s.store.GetJobByGUID(ctx, guid)
}

func (s *Service) owned(ctx context.Context, userID, guid string) (*storage.Job, error) {
	job, err := s.store.GetJobByGUID(ctx, guid)
	if err != nil {
		return nil, err
	}
	var ep *storage.EmployerProfile
	if job.EmployerProfileID != nil {
		ep, err = s.store.GetEmployerProfileByUserID(ctx, userID)
		if err != nil && !errors.IsNotFound(err) {
			return nil, errors.Wrap(err, "load employer profile")
		}
	}
	if !job.OwnedBy(userID, ep) {
		return nil, errors.Wrapf(errors.ErrForbidden, "job %s", guid)
	}
	return job, nil
}

func (s *Service) Update(ctx context.Context, userID, guid string, in Input) (*storage.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	job, err := s.owned(ctx, userID, guid)
	if err != nil {
		return nil, err
	}
	in.apply(job)
	job.UpdatedAt = s.now()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	s.invalidate(ctx, "update", job)
	return job, nil
}

// Delete hides the job, or removes it with its applications when hard is set.
func (s *Service) Delete(ctx context.Context, userID, guid string, hard bool) error {
	job, err := s.owned(ctx, userID, guid)
	if err != nil {
		return err
	}
	if hard {
		err = s.store.HardDeleteJob(ctx, job.ID)
	} else {
		err = s.store.DeleteJob(ctx, job.ID, s.now())
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, "delete", job)
	return nil
}

// ToggleStatus flips the job between OPEN and CLOSED.
func (s *Service) ToggleStatus(ctx context.Context, userID, guid string) (*storage.Job, error) {
	job, err := s.owned(ctx, userID, guid)
	if err != nil {
		return nil, err
	}
	next := storage.HiringClosed
	if job.HiringStatus == storage.HiringClosed {
		next = storage.HiringOpen
	}
	now := s.now()
	if err := s.store.SetHiringStatus(ctx, job.ID, next, now); err != nil {
		return nil, err
	}
	job.HiringStatus = next
	job.UpdatedAt = now
	s.invalidate(ctx, "toggle", job)
	return job, nil
}

// List serves one listing page, reading through the cache. Cache failures
// degrade to a direct store query.
func (s *Service) List(ctx context.Context, q listing.Query) (*listing.Page, error) {
	q = q.Normalize()

	version, err := s.cache.Version(ctx)
	if err != nil {
		s.logger.Warnw("Listing cache unavailable", logger.FieldError, err)
		return s.query(ctx, q)
	}

	key := q.Key(version)
	page, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warnw("Listing cache read failed", "key", key, logger.FieldError, err)
	}
	if ok {
		return page, nil
	}

	page, err = s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, page); err != nil {
		s.logger.Warnw("Listing cache write failed", "key", key, logger.FieldError, err)
	}
	return page, nil
}

func (s *Service) query(ctx context.Context, q listing.Query) (*listing.Page, error) {
	jobs, total, err := s.store.ListActiveJobs(ctx, q.Filter())
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	return listing.NewPage(q, jobs, total), nil
}

func (s *Service) invalidate(ctx context.Context, op string, job *storage.Job) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Errorw("Failed to invalidate listing cache",
			logger.FieldOperation, op,
			logger.FieldJobID, job.ID,
			logger.FieldError, err,
		)
	}
}
