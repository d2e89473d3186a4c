package api

import (
	"net/http"
	"strings"

	"jobhub/internal/errors"
	"jobhub/internal/lifecycle"
	"jobhub/internal/logger"
	"jobhub/internal/resume"
	"jobhub/internal/storage"
)

// CandidateProfileInput holds the editable candidate fields.
type CandidateProfileInput struct {
	FullName        string   `json:"full_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Title           string   `json:"title"`
	Bio             string   `json:"bio"`
	Skills          []string `json:"skills"`
	Experience      string   `json:"experience"`
	Education       string   `json:"education"`
	Location        string   `json:"location"`
	AvatarPath      string   `json:"avatar_path"`
	PortfolioImages []string `json:"portfolio_images"`
}

// EmployerProfileInput holds the employer fields plus an optional company.
type EmployerProfileInput struct {
	ContactName string           `json:"contact_name"`
	Position    string           `json:"position"`
	Phone       string           `json:"phone"`
	AvatarPath  string           `json:"avatar_path"`
	Company     *storage.Company `json:"company,omitempty"`
}

// GetCandidateProfileHandler returns the caller's candidate profile
// @Summary Get candidate profile
// @Tags candidate
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} storage.CandidateProfile
// @Failure 404 {object} MessageResponse
// @Router /candidate/profile [get]
func (a *API) GetCandidateProfileHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetCandidateProfileByUserID(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SaveCandidateProfileHandler creates or replaces the caller's candidate profile
// @Summary Save candidate profile
// @Tags candidate
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param profile body CandidateProfileInput true "Profile fields"
// @Success 200 {object} storage.CandidateProfile
// @Failure 400 {object} MessageResponse
// @Router /candidate/profile [put]
func (a *API) SaveCandidateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var in CandidateProfileInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.FullName) == "" {
		a.writeError(w, r, errors.NewInvalidRequestError("full_name is required"))
		return
	}

	p := &storage.CandidateProfile{
		UserID:          UserID(r.Context()),
		FullName:        strings.TrimSpace(in.FullName),
		Email:           strings.TrimSpace(in.Email),
		Phone:           in.Phone,
		Title:           in.Title,
		Bio:             in.Bio,
		Skills:          in.Skills,
		Experience:      in.Experience,
		Education:       in.Education,
		Location:        in.Location,
		AvatarPath:      in.AvatarPath,
		PortfolioImages: in.PortfolioImages,
		UpdatedAt:       a.now(),
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if err := a.store.UpsertCandidateProfile(r.Context(), p); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetEmployerProfileHandler returns the caller's employer profile
// @Summary Get employer profile
// @Tags employer
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} storage.EmployerProfile
// @Failure 404 {object} MessageResponse
// @Router /employer/profile [get]
func (a *API) GetEmployerProfileHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetEmployerProfileByUserID(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SaveEmployerProfileHandler creates or replaces the caller's employer profile.
// A company in the body updates the linked company, or creates one.
// @Summary Save employer profile
// @Tags employer
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param profile body EmployerProfileInput true "Profile fields"
// @Success 200 {object} storage.EmployerProfile
// @Failure 400 {object} MessageResponse
// @Router /employer/profile [put]
func (a *API) SaveEmployerProfileHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in EmployerProfileInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	if in.Company != nil && strings.TrimSpace(in.Company.Name) == "" {
		a.writeError(w, r, errors.NewInvalidRequestError("company name is required"))
		return
	}

	userID := UserID(ctx)
	e := &storage.EmployerProfile{
		UserID:      userID,
		ContactName: in.ContactName,
		Position:    in.Position,
		Phone:       in.Phone,
		AvatarPath:  in.AvatarPath,
	}

	current, err := a.store.GetEmployerProfileByUserID(ctx, userID)
	switch {
	case err == nil:
		e.CompanyID = current.CompanyID
		if in.Company != nil {
			in.Company.ID = 0
			if current.CompanyID != nil {
				in.Company.ID = *current.CompanyID
			}
		}
	case errors.IsNotFound(err):
		if in.Company != nil {
			in.Company.ID = 0
		}
	default:
		a.writeError(w, r, err)
		return
	}

	if err := a.store.SaveEmployerProfile(ctx, e, in.Company); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetResumeHandler returns the caller's resume
// @Summary Get resume
// @Tags candidate
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} storage.Resume
// @Failure 404 {object} MessageResponse
// @Router /candidate/resume [get]
func (a *API) GetResumeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := a.store.GetCandidateProfileByUserID(ctx, UserID(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.store.GetResumeByCandidate(ctx, p.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImportResumeHandler replaces the caller's resume with one parsed from a CV file
// @Summary Import resume from CV
// @Description Upload a CV file (PDF/DOCX/TXT); its text and skills become the resume used for applications
// @Tags candidate
// @Accept multipart/form-data
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param file formData file true "CV file"
// @Success 200 {object} storage.Resume
// @Failure 400 {object} MessageResponse
// @Failure 422 {object} MessageResponse "Candidate profile missing"
// @Failure 503 {object} MessageResponse
// @Router /candidate/resume/import [post]
func (a *API) ImportResumeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.parser == nil {
		a.writeError(w, r, errors.Wrap(errors.ErrServiceUnavailable, "resume import disabled"))
		return
	}

	profile, err := a.store.GetCandidateProfileByUserID(ctx, UserID(ctx))
	if errors.IsNotFound(err) {
		writeMessage(w, http.StatusUnprocessableEntity, lifecycle.SeverityWarning,
			"Vui lòng hoàn thiện hồ sơ ứng viên trước khi tải CV.")
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, resume.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(resume.MaxUploadSize); err != nil {
		a.writeError(w, r, errors.NewInvalidRequestError("file too large or invalid (max 10MB)"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, errors.NewInvalidRequestError("no file uploaded"))
		return
	}
	defer file.Close()

	parsed, err := a.parser.ParseFile(header.Filename, file)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	res := resume.FromParsed(profile, parsed, a.now())
	if err := a.store.ReplaceResume(ctx, res); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.Infow("Resume imported",
		logger.FieldUserID, profile.UserID,
		"file", parsed.Filename,
		"skills", len(res.Skills),
	)
	writeJSON(w, http.StatusOK, res)
}
