package chat

import (
	"context"
	"errors"
	"testing"

	"persona-chat/internal/ai"
	"persona-chat/internal/common"
)

func queueJob(t *testing.T, svc *Service, id Identity, sessionID, prompt string, key *string) *Job {
	t.Helper()
	jobID, err := common.NewULID()
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	j := &Job{ID: jobID, SessionID: sessionID, Prompt: prompt, IdempotencyKey: key, Status: JobQueued}
	if id.IsAuthenticated() {
		uid := id.UserID
		j.UserID = &uid
	} else {
		anon := id.AnonymousID
		j.AnonymousID = &anon
	}
	j, _, err = svc.CreateJobOrGetExisting(context.Background(), j)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestRunJob_Succeeds(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := anon("anon-job-1")

	sess, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	j := queueJob(t, svc, id, sess.SessionID, "hello from the queue", nil)
	if err := svc.RunJob(context.Background(), j.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}

	var done Job
	if err := db.First(&done, "id = ?", j.ID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if done.Status != JobSucceeded {
		t.Fatalf("expected succeeded, got %s", done.Status)
	}
	if done.ResultMessageID == nil || *done.ResultMessageID == 0 {
		t.Fatalf("expected result message id")
	}

	// the exchange went through the normal path, so the quota moved
	var usage AnonymousUsage
	if err := db.Where("anonymous_id = ?", id.AnonymousID).First(&usage).Error; err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.FreeMessagesUsed != 1 {
		t.Fatalf("expected 1 free message used, got %d", usage.FreeMessagesUsed)
	}
}

func TestRunJob_ProviderFailureMarksFailed(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{failErr: &ai.ProviderError{Provider: "fake", Message: "down"}})
	id := anon("anon-job-2")

	sess, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	j := queueJob(t, svc, id, sess.SessionID, "doomed", nil)
	if err := svc.RunJob(context.Background(), j.ID); err == nil {
		t.Fatalf("expected run job to fail")
	}

	var failed Job
	if err := db.First(&failed, "id = ?", j.ID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if failed.Status != JobFailed || failed.Error == nil {
		t.Fatalf("expected failed job with error, got %s", failed.Status)
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := anon("anon-job-3")

	sess, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	key := "retry-key-1"
	first := queueJob(t, svc, id, sess.SessionID, "once", &key)
	second := queueJob(t, svc, id, sess.SessionID, "once", &key)
	if first.ID != second.ID {
		t.Fatalf("expected same job for repeated idempotency key, got %s and %s", first.ID, second.ID)
	}
}

func TestGetJobForOwner_HidesOtherOwners(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := anon("anon-job-4")

	sess, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	j := queueJob(t, svc, id, sess.SessionID, "mine", nil)

	if _, err := svc.GetJobForOwner(context.Background(), id, j.ID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := svc.GetJobForOwner(context.Background(), anon("anon-job-other"), j.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected hidden job, got %v", err)
	}
}
