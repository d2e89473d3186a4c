package storage

import (
	"strings"
	"time"
)

// HiringStatus is a job's public recruiting state.
type HiringStatus string

const (
	HiringOpen   HiringStatus = "OPEN"
	HiringClosed HiringStatus = "CLOSED"
)

// ApplicationStatus is the fixed status vocabulary of an Application.
type ApplicationStatus string

const (
	StatusApplied      ApplicationStatus = "APPLIED"
	StatusReviewed     ApplicationStatus = "REVIEWED"
	StatusInterviewing ApplicationStatus = "INTERVIEWING"
	StatusAccepted     ApplicationStatus = "ACCEPTED"
	StatusRejected     ApplicationStatus = "REJECTED"
)

var statusLabels = map[ApplicationStatus]string{
	StatusApplied:      "Đã ứng tuyển",
	StatusReviewed:     "Đã xem hồ sơ",
	StatusInterviewing: "Mời phỏng vấn",
	StatusAccepted:     "Đã trúng tuyển",
	StatusRejected:     "Không phù hợp",
}

// ParseApplicationStatus normalizes case and surrounding space and reports
// whether s belongs to the vocabulary.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	st := ApplicationStatus(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := statusLabels[st]
	return st, ok
}

// Label is the human-readable status shown to candidates and employers.
func (s ApplicationStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Job is a posting. PositionsFilled is only mutated by the lifecycle engine.
type Job struct {
	ID                int64        `json:"id"`
	GUID              string       `json:"guid"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Requirements      string       `json:"requirements,omitempty"`
	Benefits          string       `json:"benefits,omitempty"`
	Location          string       `json:"location"`
	Category          string       `json:"category"`
	EmploymentType    string       `json:"employment_type"`
	ExperienceLevel   string       `json:"experience_level,omitempty"`
	SalaryMin         *int64       `json:"salary_min,omitempty"`
	SalaryMax         *int64       `json:"salary_max,omitempty"`
	Currency          string       `json:"currency,omitempty"`
	PositionsNeeded   int          `json:"positions_needed"`
	PositionsFilled   int          `json:"positions_filled"`
	HiringStatus      HiringStatus `json:"hiring_status"`
	IsActive          bool         `json:"is_active"`
	PostedByUserID    string       `json:"posted_by_user_id"`
	EmployerProfileID *int64       `json:"employer_profile_id,omitempty"`
	CompanyID         *int64       `json:"company_id,omitempty"`
	Deadline          *time.Time   `json:"deadline,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// OwnedBy reports whether the user behind userID and profile (nil when the
// user has no employer profile) owns the job. A job linked to an employer
// profile belongs to that profile; otherwise to its poster.
func (j *Job) OwnedBy(userID string, profile *EmployerProfile) bool {
	if userID == "" {
		return false
	}
	if j.EmployerProfileID == nil {
		return j.PostedByUserID == userID
	}
	return profile != nil && profile.UserID == userID && profile.ID == *j.EmployerProfileID
}

// JobSummary is one row of the public listing.
type JobSummary struct {
	GUID            string       `json:"guid"`
	Title           string       `json:"title"`
	Location        string       `json:"location"`
	Category        string       `json:"category"`
	EmploymentType  string       `json:"employment_type"`
	SalaryMin       *int64       `json:"salary_min,omitempty"`
	SalaryMax       *int64       `json:"salary_max,omitempty"`
	Currency        string       `json:"currency,omitempty"`
	PositionsNeeded int          `json:"positions_needed"`
	PositionsFilled int          `json:"positions_filled"`
	HiringStatus    HiringStatus `json:"hiring_status"`
	CompanyName     string       `json:"company_name,omitempty"`
	CompanyLogo     string       `json:"company_logo,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// ListingFilter is the already-normalized listing query handed to the store.
type ListingFilter struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}

// CandidateProfile holds resume-relevant fields; one per user.
type CandidateProfile struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"user_id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Title           string    `json:"title,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Skills          []string  `json:"skills"`
	Experience      string    `json:"experience,omitempty"`
	Education       string    `json:"education,omitempty"`
	Location        string    `json:"location,omitempty"`
	AvatarPath      string    `json:"avatar_path,omitempty"`
	PortfolioImages []string  `json:"portfolio_images,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EmployerProfile is the recruiter side of a user.
type EmployerProfile struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	CompanyID   *int64 `json:"company_id,omitempty"`
	ContactName string `json:"contact_name"`
	Position    string `json:"position,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AvatarPath  string `json:"avatar_path,omitempty"`
}

type Company struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	LogoPath string `json:"logo_path,omitempty"`
	Website  string `json:"website,omitempty"`
	Location string `json:"location,omitempty"`
}

// Resume belongs to a candidate profile and is reused by every application.
type Resume struct {
	ID                 int64     `json:"id"`
	CandidateProfileID int64     `json:"candidate_profile_id"`
	Title              string    `json:"title"`
	Summary            string    `json:"summary"`
	Skills             []string  `json:"skills"`
	Experience         string    `json:"experience,omitempty"`
	Education          string    `json:"education,omitempty"`
	FileName           string    `json:"file_name,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Application is unique per (JobID, CandidateProfileID).
type Application struct {
	ID                 int64             `json:"id"`
	JobID              int64             `json:"job_id"`
	CandidateProfileID int64             `json:"candidate_profile_id"`
	ResumeID           int64             `json:"resume_id"`
	Status             ApplicationStatus `json:"status"`
	CoverLetter        string            `json:"cover_letter,omitempty"`
	AppliedAt          time.Time         `json:"applied_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	IsViewedByEmployer bool              `json:"is_viewed_by_employer"`
	EmployerViewedAt   *time.Time        `json:"employer_viewed_at,omitempty"`
}

// TransitionFunc mutates a row-locked application and returns the change to
// apply to its job's positions_filled counter.
type TransitionFunc func(app *Application) (filledDelta int, err error)

// ApplicationSummary is the employer-facing enriched application row.
type ApplicationSummary struct {
	ApplicationID      int64             `json:"application_id"`
	Status             ApplicationStatus `json:"status"`
	StatusLabel        string            `json:"status_label"`
	AppliedAt          time.Time         `json:"applied_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	IsViewedByEmployer bool              `json:"is_viewed_by_employer"`
	JobID              int64             `json:"job_id"`
	JobGUID            string            `json:"job_guid"`
	JobTitle           string            `json:"job_title"`
	CandidateID        int64             `json:"candidate_id"`
	CandidateName      string            `json:"candidate_name"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone,omitempty"`
	Headline           string            `json:"headline,omitempty"`
	Skills             []string          `json:"skills"`
	Experience         string            `json:"experience,omitempty"`
	Location           string            `json:"location,omitempty"`
	AvatarPath         string            `json:"avatar_path,omitempty"`
	PortfolioImages    []string          `json:"portfolio_images,omitempty"`
	ResumeID           int64             `json:"resume_id"`
}

// JobApplicationCount aggregates applications of one job for its employer.
type JobApplicationCount struct {
	JobID    int64  `json:"job_id"`
	JobGUID  string `json:"job_guid"`
	JobTitle string `json:"job_title"`
	Total    int    `json:"total"`
	Unread   int    `json:"unread"`
	Pending  int    `json:"pending"`
}

// CandidateApplication is one row of a candidate's history.
type CandidateApplication struct {
	ApplicationID int64             `json:"application_id"`
	Status        ApplicationStatus `json:"status"`
	StatusLabel   string            `json:"status_label"`
	AppliedAt     time.Time         `json:"applied_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	JobGUID       string            `json:"job_guid"`
	JobTitle      string            `json:"job_title"`
	JobLocation   string            `json:"job_location"`
	SalaryMin     *int64            `json:"salary_min,omitempty"`
	SalaryMax     *int64            `json:"salary_max,omitempty"`
	CompanyName   string            `json:"company_name,omitempty"`
	CompanyLogo   string            `json:"company_logo,omitempty"`
	EmployerName  string            `json:"employer_name,omitempty"`
}

// NotificationCategory classifies ledger records.
type NotificationCategory string

const (
	CategoryNewApplication NotificationCategory = "new_application"
	CategoryStatusChange   NotificationCategory = "status_change"
)

// Notification is an immutable ledger record; only IsRead/ReadAt change.
type Notification struct {
	ID            int64                `json:"id"`
	UserID        string               `json:"user_id"`
	Category      NotificationCategory `json:"category"`
	Title         string               `json:"title"`
	Body          string               `json:"body"`
	JobID         *int64               `json:"job_id,omitempty"`
	ApplicationID *int64               `json:"application_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	IsRead        bool                 `json:"is_read"`
	ReadAt        *time.Time           `json:"read_at,omitempty"`
}

// PositionDrift is a job whose counter disagrees with its accepted applications.
type PositionDrift struct {
	JobID    int64  `json:"job_id"`
	JobGUID  string `json:"job_guid"`
	Stored   int    `json:"stored"`
	Accepted int    `json:"accepted"`
}
