package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobhub/internal/errors"
	"jobhub/internal/logger"
	"jobhub/internal/notify"
	"jobhub/internal/resume"
	"jobhub/internal/storage"
)

// Store is what the engine needs from persistence.
type Store interface {
	employerLookup
	GetJobByGUID(ctx context.Context, guid string) (*storage.Job, error)
	GetJobByID(ctx context.Context, id int64) (*storage.Job, error)
	GetCandidateProfileByUserID(ctx context.Context, userID string) (*storage.CandidateProfile, error)
	GetCandidateProfile(ctx context.Context, id int64) (*storage.CandidateProfile, error)
	GetCompany(ctx context.Context, id int64) (*storage.Company, error)
	GetResumeByCandidate(ctx context.Context, candidateProfileID int64) (*storage.Resume, error)
	CreateResume(ctx context.Context, r *storage.Resume) (*storage.Resume, error)
	ApplicationExists(ctx context.Context, jobID, candidateProfileID int64) (bool, error)
	CreateApplication(ctx context.Context, app *storage.Application) error
	GetApplication(ctx context.Context, id int64) (*storage.Application, error)
	TransitionApplication(ctx context.Context, id int64, fn storage.TransitionFunc) (*storage.Application, error)
}

// Notifier accepts events for asynchronous fan-out.
type Notifier interface {
	Notify(e notify.Event) bool
}

// Invalidator retires cached listing pages.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Engine struct {
	store    Store
	notifier Notifier
	listing  Invalidator
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewEngine wires the engine. listing may be nil when nothing caches job
// summaries.
func NewEngine(store Store, notifier Notifier, listing Invalidator, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = logger.Logger
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		listing:  listing,
		logger:   log.Named("lifecycle"),
		now:      time.Now,
	}
}

// WithClock replaces the time source (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Apply submits userID's application to the job with public id jobGUID.
// Preconditions are checked in order and the first failure is returned.
func (e *Engine) Apply(ctx context.Context, jobGUID, userID string) (ApplyResult, error) {
	job, err := e.store.GetJobByGUID(ctx, jobGUID)
	if errors.IsNotFound(err) {
		return applyResult(OutcomeNotFound, SeverityError, msgJobNotFound), nil
	}
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "load job")
	}

	if job.PostedByUserID == userID {
		return applyResult(OutcomeSelfApplication, SeverityError, msgSelfApplication), nil
	}

	profile, err := e.store.GetCandidateProfileByUserID(ctx, userID)
	if errors.IsNotFound(err) {
		return applyResult(OutcomeProfileRequired, SeverityInfo, msgProfileRequired), nil
	}
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "load candidate profile")
	}

	exists, err := e.store.ApplicationExists(ctx, job.ID, profile.ID)
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "check existing application")
	}
	if exists {
		return applyResult(OutcomeAlreadyApplied, SeverityWarning, msgAlreadyApplied), nil
	}

	now := e.now()
	cv, err := e.ensureResume(ctx, profile, now)
	if err != nil {
		return ApplyResult{}, err
	}

	app := &storage.Application{
		JobID:              job.ID,
		CandidateProfileID: profile.ID,
		ResumeID:           cv.ID,
		Status:             storage.StatusApplied,
		AppliedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.store.CreateApplication(ctx, app); err != nil {
		// lost a race against a concurrent submission of the same pair
		if errors.IsConflict(err) {
			return applyResult(OutcomeAlreadyApplied, SeverityWarning, msgAlreadyApplied), nil
		}
		return ApplyResult{}, errors.Wrap(err, "create application")
	}

	e.logger.Infow("Application submitted",
		logger.FieldApplicationID, app.ID,
		logger.FieldJobID, job.ID,
		logger.FieldUserID, userID,
	)

	e.fanOut(notify.Event{
		Kind:            notify.KindNewApplication,
		RecipientUserID: job.PostedByUserID,
		ApplicationID:   app.ID,
		JobID:           job.ID,
		JobGUID:         job.GUID,
		JobTitle:        job.Title,
		CandidateName:   profile.FullName,
		NewStatus:       storage.StatusApplied,
		OccurredAt:      now,
	})

	res := applyResult(OutcomeSuccess, SeveritySuccess, msgApplied)
	id := app.ID
	res.ApplicationID = &id
	return res, nil
}

// ensureResume returns the candidate's resume, synthesizing it from the
// profile on the first application.
func (e *Engine) ensureResume(ctx context.Context, profile *storage.CandidateProfile, now time.Time) (*storage.Resume, error) {
	cv, err := e.store.GetResumeByCandidate(ctx, profile.ID)
	if err == nil {
		return cv, nil
	}
	if !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, "load resume")
	}

	cv, err = e.store.CreateResume(ctx, resume.FromProfile(profile, now))
	if err != nil {
		return nil, errors.Wrap(err, "create resume")
	}
	e.logger.Infow("Resume synthesized from profile", "resume_id", cv.ID, "candidate_profile_id", profile.ID)
	return cv, nil
}

// UpdateStatus moves an application to rawStatus on behalf of the employer
// owning its job. Any status may follow any other.
func (e *Engine) UpdateStatus(ctx context.Context, employerUserID string, applicationID int64, rawStatus string) (StatusResult, error) {
	newStatus, ok := storage.ParseApplicationStatus(rawStatus)
	if !ok {
		return statusFailure(OutcomeInvalidStatus, msgInvalidStatus), nil
	}

	app, err := e.store.GetApplication(ctx, applicationID)
	if errors.IsNotFound(err) {
		return statusFailure(OutcomeNotFound, msgApplicationNotFound), nil
	}
	if err != nil {
		return StatusResult{}, errors.Wrap(err, "load application")
	}

	job, err := e.store.GetJobByID(ctx, app.JobID)
	if errors.IsNotFound(err) {
		return statusFailure(OutcomeNotFound, msgApplicationNotFound), nil
	}
	if err != nil {
		return StatusResult{}, errors.Wrap(err, "load job")
	}

	owner, err := ownsJob(ctx, e.store, job, employerUserID)
	if err != nil {
		return StatusResult{}, err
	}
	if !owner {
		e.logger.Warnw("Status change rejected: caller does not own job",
			logger.FieldUserID, employerUserID,
			logger.FieldApplicationID, applicationID,
		)
		return statusFailure(OutcomeForbidden, msgForbidden), nil
	}

	now := e.now()
	var oldStatus storage.ApplicationStatus
	var delta int
	updated, err := e.store.TransitionApplication(ctx, applicationID, func(a *storage.Application) (int, error) {
		oldStatus = a.Status
		a.Status = newStatus
		a.UpdatedAt = now
		if !a.IsViewedByEmployer {
			a.IsViewedByEmployer = true
			viewed := now
			a.EmployerViewedAt = &viewed
		}
		delta = PositionsDelta(oldStatus, newStatus)
		return delta, nil
	})
	if errors.IsNotFound(err) {
		return statusFailure(OutcomeNotFound, msgApplicationNotFound), nil
	}
	if err != nil {
		return StatusResult{}, errors.Wrap(err, "transition application")
	}

	e.logger.Infow("Application status changed",
		logger.FieldApplicationID, applicationID,
		logger.FieldJobID, job.ID,
		logger.FieldOldStatus, oldStatus,
		logger.FieldStatus, newStatus,
		"positions_delta", delta,
	)

	// listings show positions_filled
	if delta != 0 && e.listing != nil {
		if err := e.listing.Invalidate(ctx); err != nil {
			e.logger.Errorw("Failed to invalidate listing cache", logger.FieldJobID, job.ID, logger.FieldError, err)
		}
	}

	e.notifyCandidate(ctx, job, updated, oldStatus, now)

	updatedAt := updated.UpdatedAt
	return StatusResult{
		Success:     true,
		Outcome:     OutcomeSuccess,
		Severity:    SeveritySuccess,
		Message:     fmt.Sprintf(msgStatusUpdated, newStatus.Label()),
		NewStatus:   newStatus,
		StatusLabel: newStatus.Label(),
		UpdatedAt:   &updatedAt,
	}, nil
}

// notifyCandidate resolves the candidate's user and enqueues the event.
// Lookup failures are logged; the transition has already committed.
func (e *Engine) notifyCandidate(ctx context.Context, job *storage.Job, app *storage.Application, old storage.ApplicationStatus, now time.Time) {
	profile, err := e.store.GetCandidateProfile(ctx, app.CandidateProfileID)
	if err != nil {
		e.logger.Errorw("Cannot resolve candidate for notification",
			logger.FieldApplicationID, app.ID,
			logger.FieldJobID, job.ID,
			logger.FieldError, err,
		)
		return
	}

	var companyName string
	if job.CompanyID != nil {
		if c, err := e.store.GetCompany(ctx, *job.CompanyID); err == nil {
			companyName = c.Name
		}
	}

	e.fanOut(notify.Event{
		Kind:            notify.KindStatusChanged,
		RecipientUserID: profile.UserID,
		ApplicationID:   app.ID,
		JobID:           job.ID,
		JobGUID:         job.GUID,
		JobTitle:        job.Title,
		CompanyName:     companyName,
		OldStatus:       old,
		NewStatus:       app.Status,
		OccurredAt:      now,
	})
}

func (e *Engine) fanOut(ev notify.Event) {
	if e.notifier == nil {
		return
	}
	if !e.notifier.Notify(ev) {
		e.logger.Warnw("Notification not queued",
			"kind", ev.Kind,
			logger.FieldApplicationID, ev.ApplicationID,
			logger.FieldJobID, ev.JobID,
		)
	}
}
