package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func ownerScope(q *gorm.DB, id Identity) *gorm.DB {
	if id.IsAuthenticated() {
		return q.Where("user_id = ?", id.UserID)
	}
	return q.Where("anonymous_id = ?", id.AnonymousID)
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSessionForOwner looks up a session scoped to the caller's identity, so an
// ownership mismatch is indistinguishable from absence.
func (r *Repo) GetSessionForOwner(ctx context.Context, id Identity, sessionID string) (*Session, error) {
	var s Session
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if err := ownerScope(q, id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) SaveSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// SaveExchange persists the updated session plus the user/assistant message
// pair in one transaction so MessageCount never drifts from the message rows.
func (r *Repo) SaveExchange(ctx context.Context, s *Session, userMsg, agentMsg *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(s).Error; err != nil {
			return err
		}
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		return tx.Create(agentMsg).Error
	})
}

func (r *Repo) CountSessionsCreatedSince(ctx context.Context, userID uint64, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

func (r *Repo) GetAnonymousUsage(ctx context.Context, anonymousID string) (*AnonymousUsage, error) {
	var u AnonymousUsage
	if err := r.db.WithContext(ctx).
		Where("anonymous_id = ?", anonymousID).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateAnonymousUsage creates the usage record on first anonymous contact.
func (r *Repo) GetOrCreateAnonymousUsage(ctx context.Context, anonymousID string) (*AnonymousUsage, error) {
	u, err := r.GetAnonymousUsage(ctx, anonymousID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &AnonymousUsage{AnonymousID: anonymousID, LastUsed: time.Now()}
	if err := r.db.WithContext(ctx).Create(fresh).Error; err == nil {
		return fresh, nil
	}
	// lost a create race; the row exists now
	return r.GetAnonymousUsage(ctx, anonymousID)
}

// IncrementAnonymousUsage bumps the counter in-place at the store level, never
// read-modify-write, so concurrent sends cannot undercount.
func (r *Repo) IncrementAnonymousUsage(ctx context.Context, anonymousID string) error {
	return r.db.WithContext(ctx).Model(&AnonymousUsage{}).
		Where("anonymous_id = ?", anonymousID).
		UpdateColumns(map[string]any{
			"free_messages_used": gorm.Expr("free_messages_used + 1"),
			"last_used":          time.Now(),
		}).Error
}

// ListRecentMessagesAsc returns up to limit most recent messages for the
// session, reordered oldest -> newest.
func (r *Repo) ListRecentMessagesAsc(ctx context.Context, id Identity, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []Message
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if err := ownerScope(q, id).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// FindIdleSessions returns active sessions untouched since the cutoff.
func (r *Repo) FindIdleSessions(ctx context.Context, cutoff time.Time) ([]Session, error) {
	var sessions []Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_used < ?", SessionActive, cutoff).
		Find(&sessions).Error
	return sessions, err
}

// EndSessionIfActive closes a session only when it is still active, so the
// reaper cannot clobber a send that reactivated it mid-sweep. Returns whether
// the row was actually closed.
func (r *Repo) EndSessionIfActive(ctx context.Context, id uint64, endedAt time.Time, duration int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", id, SessionActive).
		Updates(map[string]any{
			"status":   SessionEnded,
			"ended_at": endedAt,
			"duration": duration,
		})
	return res.RowsAffected > 0, res.Error
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func (r *Repo) GetJobByIdempotencyKey(ctx context.Context, id Identity, key string) (*Job, error) {
	var job Job
	q := r.db.WithContext(ctx).Where("idempotency_key = ?", key)
	if err := ownerScope(q, id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if the owner already has a
// job with the same idempotency key, it returns the existing one instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByIdempotencyKey(ctx, job.Owner(), *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
