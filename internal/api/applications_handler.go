package api

import (
	"net/http"
	"strconv"

	"jobhub/internal/errors"
	"jobhub/internal/lifecycle"
)

// StatusRequest is the body of a status transition.
type StatusRequest struct {
	Status string `json:"status"`
}

var transitionStatus = map[lifecycle.Outcome]int{
	lifecycle.OutcomeSuccess:       http.StatusOK,
	lifecycle.OutcomeNotFound:      http.StatusNotFound,
	lifecycle.OutcomeForbidden:     http.StatusForbidden,
	lifecycle.OutcomeInvalidStatus: http.StatusBadRequest,
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequestError("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// UpdateStatusHandler moves an application to a new status
// @Summary Update application status
// @Description Employer-only. Moving into or out of ACCEPTED adjusts the job's filled positions
// @Tags applications
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path int true "Application id"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} lifecycle.StatusResult
// @Failure 400 {object} lifecycle.StatusResult "Unknown status"
// @Failure 403 {object} lifecycle.StatusResult
// @Failure 404 {object} lifecycle.StatusResult
// @Router /applications/{id}/status [patch]
func (a *API) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	res, err := a.engine.UpdateStatus(r.Context(), UserID(r.Context()), id, req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status, ok := transitionStatus[res.Outcome]
	if !ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

// EmployerApplicationsHandler lists applications across the caller's jobs
// @Summary List employer applications
// @Tags employer
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {array} storage.ApplicationSummary
// @Router /employer/applications [get]
func (a *API) EmployerApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	apps, err := a.reader.EmployerApplications(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// JobApplicationsHandler lists applications for one owned job
// @Summary List job applications
// @Tags employer
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param guid path string true "Job public id"
// @Success 200 {array} storage.ApplicationSummary
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /jobs/{guid}/applications [get]
func (a *API) JobApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	apps, err := a.reader.JobApplications(r.Context(), UserID(r.Context()), r.PathValue("guid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// EmployerStatsHandler returns per-job application counts
// @Summary Employer application stats
// @Tags employer
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} lifecycle.EmployerStats
// @Router /employer/stats [get]
func (a *API) EmployerStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.reader.EmployerStats(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// MarkJobReadHandler marks every application of an owned job as viewed
// @Summary Mark job applications read
// @Tags employer
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param guid path string true "Job public id"
// @Success 200 {object} CountResponse
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /jobs/{guid}/applications/read [post]
func (a *API) MarkJobReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.reader.MarkJobRead(r.Context(), UserID(r.Context()), r.PathValue("guid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// MarkAllReadHandler marks every application of the caller's jobs as viewed
// @Summary Mark all applications read
// @Tags employer
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} CountResponse
// @Router /employer/applications/read [post]
func (a *API) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.reader.MarkAllRead(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// CandidateApplicationsHandler returns the caller's application history
// @Summary Candidate application history
// @Tags candidate
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {array} storage.CandidateApplication
// @Router /candidate/applications [get]
func (a *API) CandidateApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	apps, err := a.reader.CandidateHistory(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}
