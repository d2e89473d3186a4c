package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobhub/internal/errors"
)

const jobColumns = `id, guid, title, description, requirements, benefits, location, category,
	employment_type, experience_level, salary_min, salary_max, currency, positions_needed,
	positions_filled, hiring_status, is_active, posted_by_user_id, employer_profile_id,
	company_id, deadline, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	var salaryMin, salaryMax, employerID, companyID sql.NullInt64
	var deadline sql.NullTime
	var hiring string
	err := row.Scan(
		&j.ID, &j.GUID, &j.Title, &j.Description, &j.Requirements, &j.Benefits, &j.Location, &j.Category,
		&j.EmploymentType, &j.ExperienceLevel, &salaryMin, &salaryMax, &j.Currency, &j.PositionsNeeded,
		&j.PositionsFilled, &hiring, &j.IsActive, &j.PostedByUserID, &employerID,
		&companyID, &deadline, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.HiringStatus = HiringStatus(hiring)
	j.SalaryMin = int64Ptr(salaryMin)
	j.SalaryMax = int64Ptr(salaryMax)
	j.EmployerProfileID = int64Ptr(employerID)
	j.CompanyID = int64Ptr(companyID)
	j.Deadline = timePtr(deadline)
	return j, nil
}

// CreateJob inserts a posting and fills in its ID. GUID, timestamps and
// poster must be set by the caller.
func (db *DB) CreateJob(ctx context.Context, job *Job) error {
	query := `INSERT INTO jobs (guid, title, description, requirements, benefits, location, category,
				employment_type, experience_level, salary_min, salary_max, currency, positions_needed,
				positions_filled, hiring_status, is_active, posted_by_user_id, employer_profile_id,
				company_id, deadline, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, $14, $15, $16, $17, $18, $19, $20, $21)
			  RETURNING id`
	var deadline interface{}
	if job.Deadline != nil {
		deadline = *job.Deadline
	}
	err := db.connection.QueryRowContext(ctx, query,
		job.GUID, job.Title, job.Description, job.Requirements, job.Benefits, job.Location, job.Category,
		job.EmploymentType, job.ExperienceLevel, nullInt64(job.SalaryMin), nullInt64(job.SalaryMax),
		job.Currency, job.PositionsNeeded, string(job.HiringStatus), job.IsActive, job.PostedByUserID,
		nullInt64(job.EmployerProfileID), nullInt64(job.CompanyID), deadline, job.CreatedAt, job.UpdatedAt,
	).Scan(&job.ID)
	if err != nil {
		return mapErr(err, "create job %s", job.GUID)
	}
	job.PositionsFilled = 0
	return nil
}

// UpdateJob rewrites the editable fields of a posting. The counter, GUID and
// poster are never touched here.
func (db *DB) UpdateJob(ctx context.Context, job *Job) error {
	query := `UPDATE jobs
			  SET title = $2, description = $3, requirements = $4, benefits = $5, location = $6,
				  category = $7, employment_type = $8, experience_level = $9, salary_min = $10,
				  salary_max = $11, currency = $12, positions_needed = $13, hiring_status = $14,
				  deadline = $15, updated_at = $16
			  WHERE id = $1`
	var deadline interface{}
	if job.Deadline != nil {
		deadline = *job.Deadline
	}
	res, err := db.connection.ExecContext(ctx, query,
		job.ID, job.Title, job.Description, job.Requirements, job.Benefits, job.Location,
		job.Category, job.EmploymentType, job.ExperienceLevel, nullInt64(job.SalaryMin),
		nullInt64(job.SalaryMax), job.Currency, job.PositionsNeeded, string(job.HiringStatus),
		deadline, job.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "update job %d", job.ID)
	}
	return expectAffected(res, "job %d", job.ID)
}

// GetJobByGUID resolves an active posting by its public identifier.
// Malformed GUIDs and soft-deleted jobs are reported as not found.
func (db *DB) GetJobByGUID(ctx context.Context, guid string) (*Job, error) {
	if _, err := uuid.Parse(guid); err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %q", guid)
	}
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE guid = $1 AND is_active`, guid)
	job, err := scanJob(row)
	if err != nil {
		return nil, mapErr(err, "job %s", guid)
	}
	return job, nil
}

// GetJobByID loads a posting regardless of its active flag.
func (db *DB) GetJobByID(ctx context.Context, id int64) (*Job, error) {
	row := db.connection.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, mapErr(err, "job %d", id)
	}
	return job, nil
}

// DeleteJob hides a posting from listings and from apply.
func (db *DB) DeleteJob(ctx context.Context, id int64, at time.Time) error {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE jobs SET is_active = FALSE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err, "delete job %d", id)
	}
	return expectAffected(res, "job %d", id)
}

// HardDeleteJob removes a posting and, through the FK cascade, its applications.
func (db *DB) HardDeleteJob(ctx context.Context, id int64) error {
	res, err := db.connection.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "hard delete job %d", id)
	}
	return expectAffected(res, "job %d", id)
}

func (db *DB) SetHiringStatus(ctx context.Context, id int64, status HiringStatus, at time.Time) error {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE jobs SET hiring_status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return mapErr(err, "set hiring status of job %d", id)
	}
	return expectAffected(res, "job %d", id)
}

// ListActiveJobs returns one page of the public listing and the total number
// of matching jobs.
func (db *DB) ListActiveJobs(ctx context.Context, f ListingFilter) ([]JobSummary, int, error) {
	where := []string{"j.is_active"}
	var args []interface{}
	i := 1

	if f.Search != "" {
		where = append(where, fmt.Sprintf("(j.title ILIKE $%d OR j.description ILIKE $%d OR c.name ILIKE $%d)", i, i, i))
		args = append(args, "%"+f.Search+"%")
		i++
	}
	if f.Category != "" {
		where = append(where, fmt.Sprintf("LOWER(j.category) = $%d", i))
		args = append(args, f.Category)
		i++
	}

	from := ` FROM jobs j LEFT JOIN companies c ON c.id = j.company_id WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := db.connection.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err, "count listing")
	}

	query := `SELECT j.guid, j.title, j.location, j.category, j.employment_type, j.salary_min,
				j.salary_max, j.currency, j.positions_needed, j.positions_filled, j.hiring_status,
				COALESCE(c.name, ''), COALESCE(c.logo_path, ''), j.created_at` + from +
		fmt.Sprintf(` ORDER BY j.created_at DESC, j.id DESC LIMIT $%d OFFSET $%d`, i, i+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapErr(err, "list jobs")
	}
	defer rows.Close()

	res := []JobSummary{}
	for rows.Next() {
		var s JobSummary
		var salaryMin, salaryMax sql.NullInt64
		var hiring string
		if err := rows.Scan(&s.GUID, &s.Title, &s.Location, &s.Category, &s.EmploymentType, &salaryMin,
			&salaryMax, &s.Currency, &s.PositionsNeeded, &s.PositionsFilled, &hiring,
			&s.CompanyName, &s.CompanyLogo, &s.CreatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scan job summary")
		}
		s.SalaryMin = int64Ptr(salaryMin)
		s.SalaryMax = int64Ptr(salaryMax)
		s.HiringStatus = HiringStatus(hiring)
		res = append(res, s)
	}
	return res, total, rows.Err()
}

// ListPositionDrift finds jobs whose positions_filled differs from the
// number of ACCEPTED applications.
func (db *DB) ListPositionDrift(ctx context.Context, limit int) ([]PositionDrift, error) {
	query := `SELECT j.id, j.guid, j.positions_filled,
				COUNT(a.id) FILTER (WHERE a.status = 'ACCEPTED') AS accepted
			  FROM jobs j
			  LEFT JOIN applications a ON a.job_id = j.id
			  GROUP BY j.id
			  HAVING j.positions_filled <> COUNT(a.id) FILTER (WHERE a.status = 'ACCEPTED')
			  ORDER BY j.id
			  LIMIT $1`
	rows, err := db.connection.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, mapErr(err, "list position drift")
	}
	defer rows.Close()

	var res []PositionDrift
	for rows.Next() {
		var d PositionDrift
		if err := rows.Scan(&d.JobID, &d.JobGUID, &d.Stored, &d.Accepted); err != nil {
			return nil, errors.Wrap(err, "scan position drift")
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// RecountPositions rewrites one job's positions_filled from its ACCEPTED
// applications. The job row is locked before counting, so a concurrent
// TransitionApplication either commits first and is counted, or waits on the
// lock and applies its delta on top of the recount.
func (db *DB) RecountPositions(ctx context.Context, jobID int64) (PositionDrift, error) {
	d := PositionDrift{JobID: jobID}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT guid, positions_filled FROM jobs WHERE id = $1 FOR UPDATE`, jobID).
			Scan(&d.JobGUID, &d.Stored)
		if err != nil {
			return mapErr(err, "lock job %d", jobID)
		}
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM applications WHERE job_id = $1 AND status = 'ACCEPTED'`, jobID).
			Scan(&d.Accepted)
		if err != nil {
			return mapErr(err, "count accepted applications of job %d", jobID)
		}
		if d.Stored == d.Accepted {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET positions_filled = $2 WHERE id = $1`, jobID, d.Accepted)
		return mapErr(err, "set positions_filled of job %d", jobID)
	})
	if err != nil {
		return PositionDrift{}, err
	}
	return d, nil
}

func expectAffected(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, format, args...)
	}
	return nil
}
