package lifecycle

import (
	"context"

	"jobhub/internal/errors"
	"jobhub/internal/storage"
)

type employerLookup interface {
	GetEmployerProfileByUserID(ctx context.Context, userID string) (*storage.EmployerProfile, error)
}

// ownsJob loads userID's employer profile when the job needs it and applies
// storage.Job.OwnedBy.
func ownsJob(ctx context.Context, store employerLookup, job *storage.Job, userID string) (bool, error) {
	if userID == "" || job.EmployerProfileID == nil {
		return job.OwnedBy(userID, nil), nil
	}
	ep, err := store.GetEmployerProfileByUserID(ctx, userID)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "load employer profile")
	}
	return job.OwnedBy(userID, ep), nil
}
