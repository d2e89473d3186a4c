package storage

import (
	"context"
	"database/sql"
	"time"

	"jobhub/internal/errors"
)

const applicationColumns = `id, job_id, candidate_profile_id, resume_id, status, cover_letter,
	applied_at, updated_at, is_viewed_by_employer, employer_viewed_at`

func scanApplication(row rowScanner) (*Application, error) {
	a := &Application{}
	var status string
	var viewedAt sql.NullTime
	err := row.Scan(&a.ID, &a.JobID, &a.CandidateProfileID, &a.ResumeID, &status, &a.CoverLetter,
		&a.AppliedAt, &a.UpdatedAt, &a.IsViewedByEmployer, &viewedAt)
	if err != nil {
		return nil, err
	}
	a.Status = ApplicationStatus(status)
	a.EmployerViewedAt = timePtr(viewedAt)
	return a, nil
}

func (db *DB) ApplicationExists(ctx context.Context, jobID, candidateProfileID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM applications WHERE job_id = $1 AND candidate_profile_id = $2)`
	err := db.connection.QueryRowContext(ctx, query, jobID, candidateProfileID).Scan(&exists)
	if err != nil {
		return false, mapErr(err, "check application job=%d candidate=%d", jobID, candidateProfileID)
	}
	return exists, nil
}

// CreateApplication inserts app and sets its ID. A second application for the
// same (job, candidate) pair yields ErrConflict; the unique constraint is the
// arbiter when two submissions race past ApplicationExists.
func (db *DB) CreateApplication(ctx context.Context, app *Application) error {
	query := `INSERT INTO applications (job_id, candidate_profile_id, resume_id, status, cover_letter,
				applied_at, updated_at, is_viewed_by_employer)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
			  ON CONFLICT (job_id, candidate_profile_id) DO NOTHING
			  RETURNING id`
	err := db.connection.QueryRowContext(ctx, query,
		app.JobID, app.CandidateProfileID, app.ResumeID, string(app.Status), app.CoverLetter,
		app.AppliedAt, app.UpdatedAt,
	).Scan(&app.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(errors.ErrConflict, "application job=%d candidate=%d", app.JobID, app.CandidateProfileID)
	}
	if err != nil {
		return mapErr(err, "create application job=%d candidate=%d", app.JobID, app.CandidateProfileID)
	}
	return nil
}

func (db *DB) GetApplication(ctx context.Context, id int64) (*Application, error) {
	row := db.connection.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		return nil, mapErr(err, "application %d", id)
	}
	return app, nil
}

// TransitionApplication locks the application row, lets fn mutate it, and
// persists the row together with fn's positions_filled delta in one
// transaction. The counter change is a single UPDATE expression floored at
// zero, so concurrent transitions on one job cannot lose an update.
func (db *DB) TransitionApplication(ctx context.Context, id int64, fn TransitionFunc) (*Application, error) {
	var out *Application
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id)
		app, err := scanApplication(row)
		if err != nil {
			return mapErr(err, "lock application %d", id)
		}

		delta, err := fn(app)
		if err != nil {
			return err
		}

		var viewedAt interface{}
		if app.EmployerViewedAt != nil {
			viewedAt = *app.EmployerViewedAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE applications
			 SET status = $2, updated_at = $3, is_viewed_by_employer = $4, employer_viewed_at = $5
			 WHERE id = $1`,
			app.ID, string(app.Status), app.UpdatedAt, app.IsViewedByEmployer, viewedAt)
		if err != nil {
			return mapErr(err, "update application %d", id)
		}

		if delta != 0 {
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET positions_filled = GREATEST(positions_filled + $2, 0) WHERE id = $1`,
				app.JobID, delta)
			if err != nil {
				return mapErr(err, "adjust positions_filled of job %d", app.JobID)
			}
		}

		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const summarySelect = `SELECT a.id, a.status, a.applied_at, a.updated_at, a.is_viewed_by_employer,
		j.id, j.guid, j.title, c.id, c.full_name, c.email, c.phone, c.title, c.skills,
		c.experience, c.location, c.avatar_path, c.portfolio_images, a.resume_id
	FROM applications a
	JOIN jobs j ON j.id = a.job_id
	JOIN candidate_profiles c ON c.id = a.candidate_profile_id`

func (db *DB) querySummaries(ctx context.Context, query string, args ...interface{}) ([]ApplicationSummary, error) {
	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "list applications")
	}
	defer rows.Close()

	res := []ApplicationSummary{}
	for rows.Next() {
		var s ApplicationSummary
		var status, skills, portfolio string
		if err := rows.Scan(&s.ApplicationID, &status, &s.AppliedAt, &s.UpdatedAt, &s.IsViewedByEmployer,
			&s.JobID, &s.JobGUID, &s.JobTitle, &s.CandidateID, &s.CandidateName, &s.Email, &s.Phone,
			&s.Headline, &skills, &s.Experience, &s.Location, &s.AvatarPath, &portfolio, &s.ResumeID); err != nil {
			return nil, errors.Wrap(err, "scan application summary")
		}
		s.Status = ApplicationStatus(status)
		s.StatusLabel = s.Status.Label()
		s.Skills = splitAndTrim(skills)
		s.PortfolioImages = splitAndTrim(portfolio)
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListApplicationsForJob returns the enriched applications of one job.
func (db *DB) ListApplicationsForJob(ctx context.Context, jobID int64) ([]ApplicationSummary, error) {
	return db.querySummaries(ctx, summarySelect+` WHERE a.job_id = $1 ORDER BY a.applied_at DESC`, jobID)
}

// ListApplicationsForEmployer returns applications across every active job
// the user posted.
func (db *DB) ListApplicationsForEmployer(ctx context.Context, userID string) ([]ApplicationSummary, error) {
	return db.querySummaries(ctx,
		summarySelect+` WHERE j.posted_by_user_id = $1 AND j.is_active ORDER BY a.applied_at DESC`, userID)
}

// ApplicationCountsForEmployer returns per-job totals, unread and pending
// (still APPLIED) counts for every active job the user posted.
func (db *DB) ApplicationCountsForEmployer(ctx context.Context, userID string) ([]JobApplicationCount, error) {
	query := `SELECT j.id, j.guid, j.title,
				COUNT(a.id),
				COUNT(a.id) FILTER (WHERE NOT a.is_viewed_by_employer),
				COUNT(a.id) FILTER (WHERE a.status = 'APPLIED')
			  FROM jobs j
			  LEFT JOIN applications a ON a.job_id = j.id
			  WHERE j.posted_by_user_id = $1 AND j.is_active
			  GROUP BY j.id
			  ORDER BY j.created_at DESC`
	rows, err := db.connection.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapErr(err, "application counts for %s", userID)
	}
	defer rows.Close()

	res := []JobApplicationCount{}
	for rows.Next() {
		var c JobApplicationCount
		if err := rows.Scan(&c.JobID, &c.JobGUID, &c.JobTitle, &c.Total, &c.Unread, &c.Pending); err != nil {
			return nil, errors.Wrap(err, "scan application count")
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// MarkJobApplicationsRead flags every unseen application of a job as viewed.
func (db *DB) MarkJobApplicationsRead(ctx context.Context, jobID int64, at time.Time) (int64, error) {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE applications SET is_viewed_by_employer = TRUE, employer_viewed_at = $2
		 WHERE job_id = $1 AND NOT is_viewed_by_employer`, jobID, at)
	if err != nil {
		return 0, mapErr(err, "mark applications of job %d read", jobID)
	}
	return res.RowsAffected()
}

// MarkAllApplicationsRead flags every unseen application on the user's
// active jobs as viewed, matching what the employer lists show.
func (db *DB) MarkAllApplicationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE applications a SET is_viewed_by_employer = TRUE, employer_viewed_at = $2
		 FROM jobs j
		 WHERE a.job_id = j.id AND j.posted_by_user_id = $1 AND j.is_active AND NOT a.is_viewed_by_employer`, userID, at)
	if err != nil {
		return 0, mapErr(err, "mark applications of %s read", userID)
	}
	return res.RowsAffected()
}

// ListCandidateApplications returns a candidate's history joined with the
// job, its company and the posting employer.
func (db *DB) ListCandidateApplications(ctx context.Context, candidateProfileID int64) ([]CandidateApplication, error) {
	query := `SELECT a.id, a.status, a.applied_at, a.updated_at, j.guid, j.title, j.location,
				j.salary_min, j.salary_max, COALESCE(co.name, ''), COALESCE(co.logo_path, ''),
				COALESCE(e.contact_name, '')
			  FROM applications a
			  JOIN jobs j ON j.id = a.job_id
			  LEFT JOIN companies co ON co.id = j.company_id
			  LEFT JOIN employer_profiles e ON e.id = j.employer_profile_id
			  WHERE a.candidate_profile_id = $1
			  ORDER BY a.applied_at DESC`
	rows, err := db.connection.QueryContext(ctx, query, candidateProfileID)
	if err != nil {
		return nil, mapErr(err, "candidate applications %d", candidateProfileID)
	}
	defer rows.Close()

	res := []CandidateApplication{}
	for rows.Next() {
		var c CandidateApplication
		var status string
		var salaryMin, salaryMax sql.NullInt64
		if err := rows.Scan(&c.ApplicationID, &status, &c.AppliedAt, &c.UpdatedAt, &c.JobGUID, &c.JobTitle,
			&c.JobLocation, &salaryMin, &salaryMax, &c.CompanyName, &c.CompanyLogo, &c.EmployerName); err != nil {
			return nil, errors.Wrap(err, "scan candidate application")
		}
		c.Status = ApplicationStatus(status)
		c.StatusLabel = c.Status.Label()
		c.SalaryMin = int64Ptr(salaryMin)
		c.SalaryMax = int64Ptr(salaryMax)
		res = append(res, c)
	}
	return res, rows.Err()
}
