package storage

import (
	"context"
	"database/sql"

	"jobhub/internal/errors"
)

const candidateColumns = `id, user_id, full_name, email, phone, title, bio, skills, experience,
	education, location, avatar_path, portfolio_images, updated_at`

func scanCandidate(row rowScanner) (*CandidateProfile, error) {
	p := &CandidateProfile{}
	var skills, portfolio string
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.Email, &p.Phone, &p.Title, &p.Bio, &skills,
		&p.Experience, &p.Education, &p.Location, &p.AvatarPath, &portfolio, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Skills = splitAndTrim(skills)
	p.PortfolioImages = splitAndTrim(portfolio)
	return p, nil
}

func (db *DB) GetCandidateProfileByUserID(ctx context.Context, userID string) (*CandidateProfile, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidate_profiles WHERE user_id = $1`, userID)
	p, err := scanCandidate(row)
	if err != nil {
		return nil, mapErr(err, "candidate profile of %s", userID)
	}
	return p, nil
}

func (db *DB) GetCandidateProfile(ctx context.Context, id int64) (*CandidateProfile, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidate_profiles WHERE id = $1`, id)
	p, err := scanCandidate(row)
	if err != nil {
		return nil, mapErr(err, "candidate profile %d", id)
	}
	return p, nil
}

// UpsertCandidateProfile creates or replaces the profile of p.UserID and sets p.ID.
func (db *DB) UpsertCandidateProfile(ctx context.Context, p *CandidateProfile) error {
	query := `INSERT INTO candidate_profiles (user_id, full_name, email, phone, title, bio, skills,
				experience, education, location, avatar_path, portfolio_images, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  ON CONFLICT (user_id) DO UPDATE SET
				full_name = EXCLUDED.full_name, email = EXCLUDED.email, phone = EXCLUDED.phone,
				title = EXCLUDED.title, bio = EXCLUDED.bio, skills = EXCLUDED.skills,
				experience = EXCLUDED.experience, education = EXCLUDED.education,
				location = EXCLUDED.location, avatar_path = EXCLUDED.avatar_path,
				portfolio_images = EXCLUDED.portfolio_images, updated_at = EXCLUDED.updated_at
			  RETURNING id`
	err := db.connection.QueryRowContext(ctx, query,
		p.UserID, p.FullName, p.Email, p.Phone, p.Title, p.Bio, joinList(p.Skills),
		p.Experience, p.Education, p.Location, p.AvatarPath, joinList(p.PortfolioImages), p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return mapErr(err, "upsert candidate profile of %s", p.UserID)
	}
	return nil
}

func (db *DB) GetEmployerProfileByUserID(ctx context.Context, userID string) (*EmployerProfile, error) {
	e := &EmployerProfile{}
	var companyID sql.NullInt64
	err := db.connection.QueryRowContext(ctx,
		`SELECT id, user_id, company_id, contact_name, position, phone, avatar_path
		 FROM employer_profiles WHERE user_id = $1`, userID,
	).Scan(&e.ID, &e.UserID, &companyID, &e.ContactName, &e.Position, &e.Phone, &e.AvatarPath)
	if err != nil {
		return nil, mapErr(err, "employer profile of %s", userID)
	}
	e.CompanyID = int64Ptr(companyID)
	return e, nil
}

// SaveEmployerProfile upserts the employer profile of e.UserID. When company
// is non-nil it is created (ID 0) or updated first and linked to the profile.
func (db *DB) SaveEmployerProfile(ctx context.Context, e *EmployerProfile, company *Company) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if company != nil {
			if company.ID == 0 {
				err := tx.QueryRowContext(ctx,
					`INSERT INTO companies (name, logo_path, website, location) VALUES ($1, $2, $3, $4) RETURNING id`,
					company.Name, company.LogoPath, company.Website, company.Location,
				).Scan(&company.ID)
				if err != nil {
					return mapErr(err, "create company %q", company.Name)
				}
			} else {
				_, err := tx.ExecContext(ctx,
					`UPDATE companies SET name = $2, logo_path = $3, website = $4, location = $5 WHERE id = $1`,
					company.ID, company.Name, company.LogoPath, company.Website, company.Location)
				if err != nil {
					return mapErr(err, "update company %d", company.ID)
				}
			}
			id := company.ID
			e.CompanyID = &id
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO employer_profiles (user_id, company_id, contact_name, position, phone, avatar_path)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id) DO UPDATE SET
				company_id = EXCLUDED.company_id, contact_name = EXCLUDED.contact_name,
				position = EXCLUDED.position, phone = EXCLUDED.phone, avatar_path = EXCLUDED.avatar_path
			 RETURNING id`,
			e.UserID, nullInt64(e.CompanyID), e.ContactName, e.Position, e.Phone, e.AvatarPath,
		).Scan(&e.ID)
		if err != nil {
			return mapErr(err, "save employer profile of %s", e.UserID)
		}
		return nil
	})
}

func (db *DB) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c := &Company{}
	err := db.connection.QueryRowContext(ctx,
		`SELECT id, name, logo_path, website, location FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.LogoPath, &c.Website, &c.Location)
	if err != nil {
		return nil, mapErr(err, "company %d", id)
	}
	return c, nil
}

const resumeColumns = `id, candidate_profile_id, title, summary, skills, experience, education,
	file_name, created_at, updated_at`

func scanResume(row rowScanner) (*Resume, error) {
	r := &Resume{}
	var skills string
	err := row.Scan(&r.ID, &r.CandidateProfileID, &r.Title, &r.Summary, &skills, &r.Experience,
		&r.Education, &r.FileName, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Skills = splitAndTrim(skills)
	return r, nil
}

func (db *DB) GetResumeByCandidate(ctx context.Context, candidateProfileID int64) (*Resume, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE candidate_profile_id = $1`, candidateProfileID)
	r, err := scanResume(row)
	if err != nil {
		return nil, mapErr(err, "resume of candidate %d", candidateProfileID)
	}
	return r, nil
}

// CreateResume inserts r unless the candidate already owns a resume, in which
// case the existing one is returned untouched. Two racing first applications
// therefore share one resume.
func (db *DB) CreateResume(ctx context.Context, r *Resume) (*Resume, error) {
	err := db.connection.QueryRowContext(ctx,
		`INSERT INTO resumes (candidate_profile_id, title, summary, skills, experience, education,
			file_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (candidate_profile_id) DO NOTHING
		 RETURNING id`,
		r.CandidateProfileID, r.Title, r.Summary, joinList(r.Skills), r.Experience, r.Education,
		r.FileName, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.GetResumeByCandidate(ctx, r.CandidateProfileID)
	}
	if err != nil {
		return nil, mapErr(err, "create resume of candidate %d", r.CandidateProfileID)
	}
	return r, nil
}

// ReplaceResume overwrites the candidate's resume content, creating it when missing.
func (db *DB) ReplaceResume(ctx context.Context, r *Resume) error {
	err := db.connection.QueryRowContext(ctx,
		`INSERT INTO resumes (candidate_profile_id, title, summary, skills, experience, education,
			file_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (candidate_profile_id) DO UPDATE SET
			title = EXCLUDED.title, summary = EXCLUDED.summary, skills = EXCLUDED.skills,
			experience = EXCLUDED.experience, education = EXCLUDED.education,
			file_name = EXCLUDED.file_name, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		r.CandidateProfileID, r.Title, r.Summary, joinList(r.Skills), r.Experience, r.Education,
		r.FileName, r.UpdatedAt,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return mapErr(err, "replace resume of candidate %d", r.CandidateProfileID)
	}
	return nil
}

