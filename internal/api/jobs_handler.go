package api

import (
	"net/http"
	"strconv"

	"jobhub/internal/jobs"
	"jobhub/internal/lifecycle"
	"jobhub/internal/listing"
)

// ListJobsHandler serves the public job listing
// @Summary List open jobs
// @Description Paginated listing of active jobs, served from the listing cache
// @Tags jobs
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 10, max 50)"
// @Param search query string false "Matches title, description or company"
// @Param category query string false "Exact category"
// @Success 200 {object} listing.Page
// @Failure 500 {object} MessageResponse
// @Router /jobs [get]
func (a *API) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	res, err := a.jobs.List(r.Context(), listing.Query{
		Page:     page,
		PageSize: size,
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetJobHandler returns one active job
// @Summary Get job
// @Tags jobs
// @Produce json
// @Param guid path string true "Job public id"
// @Success 200 {object} storage.Job
// @Failure 404 {object} MessageResponse
// @Router /jobs/{guid} [get]
func (a *API) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := a.jobs.Get(r.Context(), r.PathValue("guid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CreateJobHandler posts a job for the caller
// @Summary Create job
// @Tags jobs
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param job body jobs.Input true "Job fields"
// @Success 201 {object} storage.Job
// @Failure 400 {object} MessageResponse
// @Failure 401 {object} MessageResponse
// @Router /jobs [post]
func (a *API) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var in jobs.Input
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	job, err := a.jobs.Create(r.Context(), UserID(r.Context()), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// UpdateJobHandler edits a job owned by the caller
// @Summary Update job
// @Tags jobs
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param guid path string true "Job public id"
// @Param job body jobs.Input true "Job fields"
// @Success 200 {object} storage.Job
// @Failure 400 {object} MessageResponse
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /jobs/{guid} [put]
func (a *API) UpdateJobHandler(w http.ResponseWriter, r *http.Request) {
	var in jobs.Input
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	job, err := a.jobs.Update(r.Context(), UserID(r.Context()), r.PathValue("guid"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DeleteJobHandler hides a job, or removes it with ?hard=true
// @Summary Delete job
// @Tags jobs
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param guid path string true "Job public id"
// @Param hard query bool false "Remove the job and its applications"
// @Success 200 {object} MessageResponse
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /jobs/{guid} [delete]
func (a *API) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if err := a.jobs.Delete(r.Context(), UserID(r.Context()), r.PathValue("guid"), hard); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, lifecycle.SeveritySuccess, "Đã xóa tin tuyển dụng.")
}

// ToggleJobStatusHandler opens or closes hiring on a job
// @Summary Toggle hiring status
// @Tags jobs
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param guid path string true "Job public id"
// @Success 200 {object} storage.Job
// @Failure 403 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /jobs/{guid}/toggle-status [post]
func (a *API) ToggleJobStatusHandler(w http.ResponseWriter, r *http.Request) {
	job, err := a.jobs.ToggleStatus(r.Context(), UserID(r.Context()), r.PathValue("guid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

var applyStatus = map[lifecycle.Outcome]int{
	lifecycle.OutcomeSuccess:         http.StatusCreated,
	lifecycle.OutcomeNotFound:        http.StatusNotFound,
	lifecycle.OutcomeSelfApplication: http.StatusForbidden,
	lifecycle.OutcomeProfileRequired: http.StatusUnprocessableEntity,
	lifecycle.OutcomeAlreadyApplied:  http.StatusConflict,
}

// ApplyHandler submits the caller's application to a job
// @Summary Apply to job
// @Description Creates the caller's application, synthesizing a resume on first use
// @Tags applications
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param guid path string true "Job public id"
// @Success 201 {object} lifecycle.ApplyResult
// @Failure 403 {object} lifecycle.ApplyResult "Own job"
// @Failure 404 {object} lifecycle.ApplyResult
// @Failure 409 {object} lifecycle.ApplyResult "Already applied"
// @Failure 422 {object} lifecycle.ApplyResult "Candidate profile missing"
// @Failure 429 {object} MessageResponse
// @Router /jobs/{guid}/apply [post]
func (a *API) ApplyHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.Apply(r.Context(), r.PathValue("guid"), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status, ok := applyStatus[res.Outcome]
	if !ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}
