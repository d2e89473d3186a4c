package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jobhub/internal/errors"
	"jobhub/internal/jobs"
	"jobhub/internal/lifecycle"
	"jobhub/internal/logger"
	"jobhub/internal/notify"
	"jobhub/internal/presence"
	"jobhub/internal/resume"
	"jobhub/internal/storage"
)

// Store covers the profile, resume and notification reads and writes the
// handlers perform directly.
type Store interface {
	GetCandidateProfileByUserID(ctx context.Context, userID string) (*storage.CandidateProfile, error)
	UpsertCandidateProfile(ctx context.Context, p *storage.CandidateProfile) error
	GetEmployerProfileByUserID(ctx context.Context, userID string) (*storage.EmployerProfile, error)
	SaveEmployerProfile(ctx context.Context, e *storage.EmployerProfile, company *storage.Company) error
	GetResumeByCandidate(ctx context.Context, candidateProfileID int64) (*storage.Resume, error)
	ReplaceResume(ctx context.Context, r *storage.Resume) error

	ListNotifications(ctx context.Context, userID string, limit int, unreadOnly bool) ([]storage.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID string, id int64, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// Deps is everything the HTTP layer is built from. Hub, Parser and
// Dispatcher are optional.
type Deps struct {
	Store      Store
	Engine     *lifecycle.Engine
	Reader     *lifecycle.Reader
	Jobs       *jobs.Service
	Hub        *presence.Hub
	Parser     *resume.Parser
	Dispatcher *notify.Dispatcher

	// ApplyRate limits submissions per user; zero disables limiting.
	ApplyRate  rate.Limit
	ApplyBurst int

	Logger *zap.SugaredLogger
}

type API struct {
	store      Store
	engine     *lifecycle.Engine
	reader     *lifecycle.Reader
	jobs       *jobs.Service
	hub        *presence.Hub
	parser     *resume.Parser
	dispatcher *notify.Dispatcher
	limiter    *userLimiter
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewAPI(d Deps) *API {
	log := d.Logger
	if log == nil {
		log = logger.Logger
	}
	a := &API{
		store:      d.Store,
		engine:     d.Engine,
		reader:     d.Reader,
		jobs:       d.Jobs,
		hub:        d.Hub,
		parser:     d.Parser,
		dispatcher: d.Dispatcher,
		logger:     log.Named("api"),
		now:        time.Now,
	}
	if d.ApplyRate > 0 {
		a.limiter = newUserLimiter(d.ApplyRate, d.ApplyBurst)
	}
	return a
}

// MessageResponse is the body of every non-data response.
type MessageResponse struct {
	Message  string             `json:"message"`
	Severity lifecycle.Severity `json:"severity"`
}

// CountResponse reports how many records an operation touched or matched.
type CountResponse struct {
	Count int64 `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, sev lifecycle.Severity, msg string) {
	writeJSON(w, status, MessageResponse{Message: msg, Severity: sev})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewInvalidRequestError("invalid JSON: %v", err)
	}
	return nil
}

// writeError maps store and service errors onto status codes. Unexpected
// errors are logged and reported without detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errors.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, errors.ErrUnauthorized.Error()
	case errors.IsForbidden(err):
		status, msg = http.StatusForbidden, errors.ErrForbidden.Error()
	case errors.IsNotFound(err):
		status, msg = http.StatusNotFound, errors.ErrNotFound.Error()
	case errors.IsConflict(err):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, errors.ErrServiceUnavailable):
		status, msg = http.StatusServiceUnavailable, errors.ErrServiceUnavailable.Error()
	default:
		a.logger.Errorw("Request failed",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldError, err,
		)
	}
	writeMessage(w, status, lifecycle.SeverityError, msg)
}
