package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"persona-chat/internal/ai"
	"persona-chat/internal/persona"
)

type fakeProvider struct {
	last    []ai.Message
	replies int
	failErr error
}

func (p *fakeProvider) Complete(ctx context.Context, messages []ai.Message) (*ai.Completion, error) {
	_ = ctx
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.failErr != nil {
		return nil, p.failErr
	}
	p.replies++
	return &ai.Completion{
		Text:             fmt.Sprintf("reply-%d", p.replies),
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
	}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &AnonymousUsage{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, prov ai.Provider) *Service {
	t.Helper()
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return prov, nil
	})
	return NewService(NewRepo(db), persona.Default(), reg, NewMemoryLocker(), nil, Options{
		ProviderName:       "fake",
		FreeMessageQuota:   5,
		DailySessionLimit:  5,
		ReactivationWindow: 30 * time.Minute,
	})
}

func anon(id string) Identity { return Identity{AnonymousID: id} }

func user(id uint64, tier string) Identity { return Identity{UserID: id, Tier: tier} }

func TestCreateSession_SeedsConversation(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})

	sess, err := svc.CreateSession(context.Background(), anon("anon-create-1"), "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != SessionActive {
		t.Fatalf("expected active session, got %s", sess.Status)
	}
	if len(sess.Conversation) != 2 {
		t.Fatalf("expected 2 seeded turns, got %d", len(sess.Conversation))
	}
	if sess.Conversation[0].Role != RoleSystem || sess.Conversation[1].Role != RoleAssistant {
		t.Fatalf("unexpected seed roles: %s, %s", sess.Conversation[0].Role, sess.Conversation[1].Role)
	}
	if sess.UserID != nil || sess.AnonymousID == nil {
		t.Fatalf("expected anonymous owner")
	}
	if sess.MessageCount != 0 {
		t.Fatalf("expected message count 0, got %d", sess.MessageCount)
	}
}

func TestCreateSession_UnknownAgent(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})

	if _, err := svc.CreateSession(context.Background(), anon("anon-create-2"), "no-such-agent"); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestCreateSession_NoIdentity(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})

	if _, err := svc.CreateSession(context.Background(), Identity{}, "technical-expert"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestSendMessage_ExchangeAndQuota(t *testing.T) {
	db := openTestDB(t)
	prov := &fakeProvider{}
	svc := newTestService(t, db, prov)
	id := anon("anon-quota-1")

	sess, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	res, err := svc.SendMessage(context.Background(), id, sess.SessionID, "hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if res.MessageCount != 2 {
		t.Fatalf("expected message count 2, got %d", res.MessageCount)
	}
	if res.FreeMessagesRemaining == nil || *res.FreeMessagesRemaining != 4 {
		t.Fatalf("expected 4 free messages remaining, got %v", res.FreeMessagesRemaining)
	}
	if res.Usage.Total != 15 {
		t.Fatalf("expected total token usage 15, got %d", res.Usage.Total)
	}

	var msgs []Message
	if err := db.Where("session_id = ?", sess.SessionID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 message rows, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Fatalf("unexpected user row: %s %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "reply-1" {
		t.Fatalf("unexpected assistant row: %s %q", msgs[1].Role, msgs[1].Content)
	}

	// four more sends exhaust the quota
	for i := 0; i < 4; i++ {
		if _, err := svc.SendMessage(context.Background(), id, sess.SessionID, "more"); err != nil {
			t.Fatalf("send %d: %v", i+2, err)
		}
	}

	var usage AnonymousUsage
	if err := db.Where("anonymous_id = ?", id.AnonymousID).First(&usage).Error; err != nil {
		t.Fatalf("query usage: %v", err)
	}
	if usage.FreeMessagesUsed != 5 {
		t.Fatalf("expected 5 free messages used, got %d", usage.FreeMessagesUsed)
	}

	if _, err := svc.SendMessage(context.Background(), id, sess.SessionID, "one too many"); !errors.Is(err, ErrFreeLimitExceeded) {
		t.Fatalf("expected ErrFreeLimitExceeded, got %v", err)
	}
}

func TestSendMessage_SystemPromptSingularity(t *testing.T) {
	db := openTestDB(t)
	prov := &fakeProvider{}
	svc := newTestService(t, db, prov)
	id := user(101, "premium")

	sess, err := svc.CreateSession(context.Background(), id, "creative-writer")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.SendMessage(context.Background(), id, sess.SessionID, "again"); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
		systems := 0
		for _, m := range prov.last {
			if m.Role == RoleSystem {
				systems++
			}
		}
		if systems != 1 {
			t.Fatalf("send %d: expected exactly 1 system message, got %d", i+1, systems)
		}
		if prov.last[0].Role != RoleSystem {
			t.Fatalf("send %d: system message not first", i+1)
		}
		if last := prov.last[len(prov.last)-1]; last.Role != RoleUser || last.Content != "again" {
			t.Fatalf("send %d: expected trailing user message, got %s %q", i+1, last.Role, last.Content)
		}
	}
}

func TestSendMessage_OwnershipIsolation(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	owner := anon("anon-owner-1")

	sess, err := svc.CreateSession(context.Background(), owner, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.SendMessage(context.Background(), anon("anon-intruder-1"), sess.SessionID, "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("other anonymous identity: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), user(202, "premium"), sess.SessionID, "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("authenticated identity: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), Identity{}, sess.SessionID, "hi"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("no identity: expected ErrAccessDenied, got %v", err)
	}
	if _, err := svc.StopSession(context.Background(), anon("anon-intruder-1"), sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("stop: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.GetHistory(context.Background(), anon("anon-intruder-1"), sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("history: expected ErrSessionNotFound, got %v", err)
	}
}

func TestSendMessage_ProviderFailureLeavesSessionUntouched(t *testing.T) {
	db := openTestDB(t)
	prov := &fakeProvider{failErr: &ai.ProviderError{Provider: "fake", Status: 500, Message: "boom"}}
	svc := newTestService(t, db, prov)
	id := anon("anon-fail-1")

	sess, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.SendMessage(context.Background(), id, sess.SessionID, "hello")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	var pe *ai.ProviderError
	if !errors.As(err, &pe) || pe.Status != 500 {
		t.Fatalf("expected wrapped provider error with status, got %v", err)
	}

	var fresh Session
	if err := db.Where("session_id = ?", sess.SessionID).First(&fresh).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if fresh.MessageCount != 0 || len(fresh.Conversation) != 2 || fresh.TotalTokens != 0 {
		t.Fatalf("session mutated on provider failure: count=%d turns=%d tokens=%d",
			fresh.MessageCount, len(fresh.Conversation), fresh.TotalTokens)
	}

	var n int64
	if err := db.Model(&Message{}).Where("session_id = ?", sess.SessionID).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no message rows, got %d", n)
	}

	var usage AnonymousUsage
	if err := db.Where("anonymous_id = ?", id.AnonymousID).First(&usage).Error; err != nil {
		t.Fatalf("query usage: %v", err)
	}
	if usage.FreeMessagesUsed != 0 {
		t.Fatalf("quota consumed on failed send: %d", usage.FreeMessagesUsed)
	}
}

func TestSendMessage_EmptyMessage(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})

	if _, err := svc.SendMessage(context.Background(), anon("anon-empty-1"), "whatever", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func backdateSession(t *testing.T, db *gorm.DB, sessionID string, createdAt time.Time, endedAt time.Time) {
	t.Helper()
	if err := db.Model(&Session{}).Where("session_id = ?", sessionID).
		UpdateColumns(map[string]any{"created_at": createdAt, "ended_at": endedAt}).Error; err != nil {
		t.Fatalf("backdate session: %v", err)
	}
}

func TestSendMessage_ReactivationWindow(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := user(301, "premium")

	// ended 29 minutes ago: reactivates
	recent, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.StopSession(context.Background(), id, recent.SessionID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	now := time.Now()
	backdateSession(t, db, recent.SessionID, now.Add(-40*time.Minute), now.Add(-29*time.Minute))

	res, err := svc.SendMessage(context.Background(), id, recent.SessionID, "back again")
	if err != nil {
		t.Fatalf("expected reactivation, got %v", err)
	}
	if !res.Reactivated {
		t.Fatalf("expected reactivated flag")
	}
	var fresh Session
	if err := db.Where("session_id = ?", recent.SessionID).First(&fresh).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.Status != SessionActive || fresh.EndedAt != nil {
		t.Fatalf("expected active session with cleared ended_at, got %s %v", fresh.Status, fresh.EndedAt)
	}

	// ended 31 minutes ago: terminal
	stale, err := svc.CreateSession(context.Background(), id, "technical-expert")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.StopSession(context.Background(), id, stale.SessionID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	backdateSession(t, db, stale.SessionID, now.Add(-40*time.Minute), now.Add(-31*time.Minute))

	if _, err := svc.SendMessage(context.Background(), id, stale.SessionID, "too late"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestStopSession_Idempotent(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := anon("anon-stop-1")

	sess, err := svc.CreateSession(context.Background(), id, "life-coach")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	first, err := svc.StopSession(context.Background(), id, sess.SessionID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if first.Status != SessionEnded || first.EndedAt == nil || first.Duration == nil {
		t.Fatalf("expected ended session with ended_at and duration")
	}
	if *first.Duration != 0 {
		t.Fatalf("expected ~0s duration right after creation, got %d", *first.Duration)
	}

	// make a recompute visible if one were to happen
	past := time.Now().Add(-1 * time.Minute)
	if err := db.Model(&Session{}).Where("session_id = ?", sess.SessionID).
		UpdateColumns(map[string]any{"ended_at": past, "duration": int64(60)}).Error; err != nil {
		t.Fatalf("adjust session: %v", err)
	}

	second, err := svc.StopSession(context.Background(), id, sess.SessionID)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if second.Status != SessionEnded {
		t.Fatalf("expected ended session")
	}
	if second.Duration == nil || *second.Duration != 60 {
		t.Fatalf("second stop recomputed duration: %v", second.Duration)
	}
	if second.EndedAt == nil || second.EndedAt.Sub(past).Abs() > time.Second {
		t.Fatalf("second stop changed ended_at: %v", second.EndedAt)
	}
}

func TestGetHistory(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &fakeProvider{})
	id := anon("anon-hist-1")

	sess, err := svc.CreateSession(context.Background(), id, "study-buddy")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.SendMessage(context.Background(), id, sess.SessionID, "question"); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}

	hist, err := svc.GetHistory(context.Background(), id, sess.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if hist.Session.MessageCount != 4 {
		t.Fatalf("expected message count 4, got %d", hist.Session.MessageCount)
	}
	if len(hist.Messages) != 4 {
		t.Fatalf("expected 4 persisted messages, got %d", len(hist.Messages))
	}
	for i := 1; i < len(hist.Messages); i++ {
		if hist.Messages[i].ID < hist.Messages[i-1].ID {
			t.Fatalf("messages not in ascending order")
		}
	}
	// seed system + greeting, then 2 exchanges
	if hist.Stats.TotalMessages != 6 || hist.Stats.UserMessages != 2 || hist.Stats.AssistantMessages != 3 {
		t.Fatalf("unexpected stats: %+v", hist.Stats)
	}
	if hist.Stats.EstimatedTokens <= 0 {
		t.Fatalf("expected positive token estimate")
	}
}
