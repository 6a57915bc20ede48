package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is an async send: the HTTP handler enqueues it, the worker runs the same
// lifecycle send path and records the outcome here.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	// Owner identity, same pair rule as Session.
	UserID      *uint64 `gorm:"index"`
	AnonymousID *string `gorm:"type:varchar(64);index"`

	SessionID string `gorm:"size:26;index;not null"`
	Prompt    string `gorm:"type:text;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_idempo,unique" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "chat_jobs" }

func (j *Job) Owner() Identity {
	var id Identity
	if j.UserID != nil {
		id.UserID = *j.UserID
	}
	if j.AnonymousID != nil {
		id.AnonymousID = *j.AnonymousID
	}
	return id
}
