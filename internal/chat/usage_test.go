package chat

import (
	"context"
	"errors"
	"testing"
)

func TestCheckUsageLimits_DailySessionLimit(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	free := user(401, "free")

	for i := 0; i < 5; i++ {
		if _, err := svc.CreateSession(context.Background(), free, "technical-expert"); err != nil {
			t.Fatalf("create session %d: %v", i+1, err)
		}
	}

	if _, err := svc.CreateSession(context.Background(), free, "technical-expert"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached on 6th session, got %v", err)
	}

	// a paid tier is never metered
	paid := user(402, "pro")
	for i := 0; i < 7; i++ {
		if _, err := svc.CreateSession(context.Background(), paid, "technical-expert"); err != nil {
			t.Fatalf("paid create %d: %v", i+1, err)
		}
	}
}

func TestCheckUsageLimits_AnonymousQuota(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := anon("anon-policy-1")

	if err := svc.CheckUsageLimits(context.Background(), id); err != nil {
		t.Fatalf("fresh anonymous identity should be allowed: %v", err)
	}

	// record was created on first contact
	var usage AnonymousUsage
	if err := db.Where("anonymous_id = ?", id.AnonymousID).First(&usage).Error; err != nil {
		t.Fatalf("usage record missing: %v", err)
	}

	if err := db.Model(&AnonymousUsage{}).Where("anonymous_id = ?", id.AnonymousID).
		Update("free_messages_used", 5).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}
	if err := svc.CheckUsageLimits(context.Background(), id); !errors.Is(err, ErrFreeLimitExceeded) {
		t.Fatalf("expected ErrFreeLimitExceeded, got %v", err)
	}

	remaining, err := svc.FreeMessagesRemaining(context.Background(), id)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
}

func TestCheckUsageLimits_NoIdentity(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})

	if err := svc.CheckUsageLimits(context.Background(), Identity{}); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}
