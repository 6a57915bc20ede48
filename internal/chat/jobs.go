package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ValidateSession confirms the caller owns the session before a job is queued,
// with the same existence-hiding semantics as the synchronous operations.
func (s *Service) ValidateSession(ctx context.Context, id Identity, sessionID string) error {
	if !id.Valid() {
		return ErrAccessDenied
	}
	if _, err := s.repo.GetSessionForOwner(ctx, id, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

// GetJobForOwner hides jobs belonging to other identities behind not-found.
func (s *Service) GetJobForOwner(ctx context.Context, id Identity, jobID string) (*Job, error) {
	if !id.Valid() {
		return nil, ErrAccessDenied
	}
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	owner := j.Owner()
	match := (id.IsAuthenticated() && owner.UserID == id.UserID) ||
		(id.IsAnonymous() && owner.AnonymousID == id.AnonymousID)
	if !match {
		return nil, ErrSessionNotFound
	}
	return j, nil
}

// RunJob executes one queued async send through the full lifecycle path, so
// quota, reactivation and ownership rules apply exactly as they do for
// synchronous sends.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	res, err := s.SendMessage(ctx, j.Owner(), j.SessionID, j.Prompt)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return s.repo.MarkJobSucceeded(ctx, jobID, res.AssistantMsgID)
}
