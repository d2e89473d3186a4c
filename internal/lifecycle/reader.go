package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobhub/internal/errors"
	"jobhub/internal/logger"
	"jobhub/internal/media"
	"jobhub/internal/storage"
)

// ReadStore backs the employer and candidate read paths.
type ReadStore interface {
	employerLookup
	GetJobByGUID(ctx context.Context, guid string) (*storage.Job, error)
	GetCandidateProfileByUserID(ctx context.Context, userID string) (*storage.CandidateProfile, error)
	ListApplicationsForJob(ctx context.Context, jobID int64) ([]storage.ApplicationSummary, error)
	ListApplicationsForEmployer(ctx context.Context, userID string) ([]storage.ApplicationSummary, error)
	ApplicationCountsForEmployer(ctx context.Context, userID string) ([]storage.JobApplicationCount, error)
	MarkJobApplicationsRead(ctx context.Context, jobID int64, at time.Time) (int64, error)
	MarkAllApplicationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	ListCandidateApplications(ctx context.Context, candidateProfileID int64) ([]storage.CandidateApplication, error)
}

// Reader serves enriched application views. It enforces job ownership but
// holds no invariants of its own.
type Reader struct {
	store  ReadStore
	media  media.Resolver
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewReader(store ReadStore, resolver media.Resolver, log *zap.SugaredLogger) *Reader {
	if resolver == nil {
		resolver = media.Static{}
	}
	if log == nil {
		log = logger.Logger
	}
	return &Reader{store: store, media: resolver, logger: log.Named("reader"), now: time.Now}
}

// EmployerStats aggregates application counts across an employer's jobs.
type EmployerStats struct {
	Jobs              []storage.JobApplicationCount `json:"jobs"`
	TotalApplications int                           `json:"total_applications"`
	TotalUnread       int                           `json:"total_unread"`
	TotalPending      int                           `json:"total_pending"`
}

// ownedJob resolves jobGUID and fails with ErrForbidden unless userID owns it.
func (r *Reader) ownedJob(ctx context.Context, userID, jobGUID string) (*storage.Job, error) {
	job, err := r.store.GetJobByGUID(ctx, jobGUID)
	if err != nil {
		return nil, err
	}
	ok, err := ownsJob(ctx, r.store, job, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrForbidden, "job %s", jobGUID)
	}
	return job, nil
}

func (r *Reader) EmployerApplications(ctx context.Context, userID string) ([]storage.ApplicationSummary, error) {
	apps, err := r.store.ListApplicationsForEmployer(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.resolveSummaries(ctx, apps)
	return apps, nil
}

func (r *Reader) JobApplications(ctx context.Context, userID, jobGUID string) ([]storage.ApplicationSummary, error) {
	job, err := r.ownedJob(ctx, userID, jobGUID)
	if err != nil {
		return nil, err
	}
	apps, err := r.store.ListApplicationsForJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	r.resolveSummaries(ctx, apps)
	return apps, nil
}

func (r *Reader) EmployerStats(ctx context.Context, userID string) (*EmployerStats, error) {
	counts, err := r.store.ApplicationCountsForEmployer(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &EmployerStats{Jobs: counts}
	for _, c := range counts {
		stats.TotalApplications += c.Total
		stats.TotalUnread += c.Unread
		stats.TotalPending += c.Pending
	}
	return stats, nil
}

// MarkJobRead flags every application of one owned job as viewed.
func (r *Reader) MarkJobRead(ctx context.Context, userID, jobGUID string) (int64, error) {
	job, err := r.ownedJob(ctx, userID, jobGUID)
	if err != nil {
		return 0, err
	}
	return r.store.MarkJobApplicationsRead(ctx, job.ID, r.now())
}

func (r *Reader) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return r.store.MarkAllApplicationsRead(ctx, userID, r.now())
}

// CandidateHistory lists userID's applications. A user without a candidate
// profile simply has none.
func (r *Reader) CandidateHistory(ctx context.Context, userID string) ([]storage.CandidateApplication, error) {
	profile, err := r.store.GetCandidateProfileByUserID(ctx, userID)
	if errors.IsNotFound(err) {
		return []storage.CandidateApplication{}, nil
	}
	if err != nil {
		return nil, err
	}
	history, err := r.store.ListCandidateApplications(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	for i := range history {
		history[i].CompanyLogo = r.resolve(ctx, history[i].CompanyLogo)
	}
	return history, nil
}

func (r *Reader) resolveSummaries(ctx context.Context, apps []storage.ApplicationSummary) {
	for i := range apps {
		apps[i].AvatarPath = r.resolve(ctx, apps[i].AvatarPath)
		images, err := media.ResolveAll(ctx, r.media, apps[i].PortfolioImages)
		if err != nil {
			r.logger.Warnw("Failed to resolve portfolio images", logger.FieldApplicationID, apps[i].ApplicationID, logger.FieldError, err)
		}
		apps[i].PortfolioImages = images
	}
}

func (r *Reader) resolve(ctx context.Context, path string) string {
	u, err := r.media.Resolve(ctx, path)
	if err != nil {
		r.logger.Warnw("Failed to resolve media path", "path", path, logger.FieldError, err)
		return path
	}
	return u
}
