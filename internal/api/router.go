package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRouter(a *API, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	mux.HandleFunc("GET /health", a.HealthHandler)

	// Public listing
	mux.HandleFunc("GET /api/jobs", a.ListJobsHandler)
	mux.HandleFunc("GET /api/jobs/{guid}", a.GetJobHandler)

	// Job mutations
	mux.HandleFunc("POST /api/jobs", a.RequireUser(a.CreateJobHandler))
	mux.HandleFunc("PUT /api/jobs/{guid}", a.RequireUser(a.UpdateJobHandler))
	mux.HandleFunc("DELETE /api/jobs/{guid}", a.RequireUser(a.DeleteJobHandler))
	mux.HandleFunc("POST /api/jobs/{guid}/toggle-status", a.RequireUser(a.ToggleJobStatusHandler))

	// Application lifecycle
	mux.HandleFunc("POST /api/jobs/{guid}/apply", a.RequireUser(a.rateLimited(a.ApplyHandler)))
	mux.HandleFunc("PATCH /api/applications/{id}/status", a.RequireUser(a.UpdateStatusHandler))

	// Employer views
	mux.HandleFunc("GET /api/jobs/{guid}/applications", a.RequireUser(a.JobApplicationsHandler))
	mux.HandleFunc("POST /api/jobs/{guid}/applications/read", a.RequireUser(a.MarkJobReadHandler))
	mux.HandleFunc("GET /api/employer/applications", a.RequireUser(a.EmployerApplicationsHandler))
	mux.HandleFunc("POST /api/employer/applications/read", a.RequireUser(a.MarkAllReadHandler))
	mux.HandleFunc("GET /api/employer/stats", a.RequireUser(a.EmployerStatsHandler))
	mux.HandleFunc("GET /api/employer/profile", a.RequireUser(a.GetEmployerProfileHandler))
	mux.HandleFunc("PUT /api/employer/profile", a.RequireUser(a.SaveEmployerProfileHandler))

	// Candidate views
	mux.HandleFunc("GET /api/candidate/applications", a.RequireUser(a.CandidateApplicationsHandler))
	mux.HandleFunc("GET /api/candidate/profile", a.RequireUser(a.GetCandidateProfileHandler))
	mux.HandleFunc("PUT /api/candidate/profile", a.RequireUser(a.SaveCandidateProfileHandler))
	mux.HandleFunc("GET /api/candidate/resume", a.RequireUser(a.GetResumeHandler))
	mux.HandleFunc("POST /api/candidate/resume/import", a.RequireUser(a.ImportResumeHandler))

	// Notifications
	mux.HandleFunc("GET /api/notifications", a.RequireUser(a.ListNotificationsHandler))
	mux.HandleFunc("GET /api/notifications/unread-count", a.RequireUser(a.UnreadCountHandler))
	mux.HandleFunc("POST /api/notifications/{id}/read", a.RequireUser(a.MarkNotificationReadHandler))
	mux.HandleFunc("POST /api/notifications/read-all", a.RequireUser(a.MarkAllNotificationsReadHandler))

	// Presence channel
	mux.HandleFunc("GET /ws", a.RequireUser(a.WebSocketHandler))

	return corsMiddleware(allowedOrigins, a.logRequests(mux))
}
