package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"persona-chat/internal/ai"
	"persona-chat/internal/common"
	"persona-chat/internal/persona"
)

type Options struct {
	ProviderName        string
	FreeMessageQuota    int
	DailySessionLimit   int
	ReactivationWindow  time.Duration
	HistoryMessageLimit int
}

// Service is the session lifecycle manager: it creates sessions, routes sends
// through the completion provider, reactivates recently ended sessions and
// answers history queries. All state lives in the store; the service itself
// holds no per-session memory.
type Service struct {
	repo     *Repo
	personas *persona.Registry
	registry *ai.Registry
	locks    SessionLocker
	log      *zap.Logger

	providerName        string
	freeMessageQuota    int
	dailySessionLimit   int
	reactivationWindow  time.Duration
	historyMessageLimit int
}

func NewService(repo *Repo, personas *persona.Registry, registry *ai.Registry, locks SessionLocker, log *zap.Logger, opts Options) *Service {
	if opts.ProviderName == "" {
		opts.ProviderName = "openai"
	}
	if opts.FreeMessageQuota <= 0 {
		opts.FreeMessageQuota = 5
	}
	if opts.DailySessionLimit <= 0 {
		opts.DailySessionLimit = 5
	}
	if opts.ReactivationWindow <= 0 {
		opts.ReactivationWindow = 30 * time.Minute
	}
	if opts.HistoryMessageLimit <= 0 || opts.HistoryMessageLimit > 100 {
		opts.HistoryMessageLimit = 100
	}
	if locks == nil {
		locks = NewMemoryLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		personas: personas,
		registry: registry,
		locks:    locks,
		log:      log,

		providerName:        opts.ProviderName,
		freeMessageQuota:    opts.FreeMessageQuota,
		dailySessionLimit:   opts.DailySessionLimit,
		reactivationWindow:  opts.ReactivationWindow,
		historyMessageLimit: opts.HistoryMessageLimit,
	}
}

// CreateSession starts an ACTIVE session seeded with the persona's system
// prompt and greeting. The usage gate runs before anything is written.
func (s *Service) CreateSession(ctx context.Context, id Identity, personaID string) (*Session, error) {
	if !id.Valid() {
		return nil, ErrAccessDenied
	}

	p, ok := s.personas.Get(personaID)
	if !ok {
		return nil, ErrAgentNotFound
	}

	if err := s.CheckUsageLimits(ctx, id); err != nil {
		return nil, err
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		SessionID:    sid,
		PersonaID:    p.ID,
		PersonaName:  p.Name,
		SystemPrompt: p.SystemPrompt,
		Conversation: Conversation{
			{Role: RoleSystem, Content: p.SystemPrompt, Timestamp: now},
			{Role: RoleAssistant, Content: p.Greeting, Timestamp: now},
		},
		Status:   SessionActive,
		LastUsed: now,
	}
	if id.IsAuthenticated() {
		uid := id.UserID
		sess.UserID = &uid
	} else {
		anon := id.AnonymousID
		sess.AnonymousID = &anon
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

type SendResult struct {
	SessionID      string
	Reply          string
	AssistantMsgID uint64
	MessageCount   int
	Usage          TokenUsage
	ProcessingMs   int64
	Reactivated    bool

	// FreeMessagesRemaining is set for anonymous callers only.
	FreeMessagesRemaining *int
}

// SendMessage appends one user/assistant exchange to the session. An ENDED
// session within the reactivation window silently flips back to ACTIVE first.
// Session state is only mutated after the provider call succeeds.
func (s *Service) SendMessage(ctx context.Context, id Identity, sessionID, message string) (*SendResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrValidation
	}
	if !id.Valid() {
		return nil, ErrAccessDenied
	}

	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.repo.GetSessionForOwner(ctx, id, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	now := time.Now()
	reactivated := false
	if sess.Status == SessionEnded {
		ref := sess.CreatedAt
		if sess.EndedAt != nil && sess.EndedAt.After(ref) {
			ref = *sess.EndedAt
		}
		if now.Sub(ref) > s.reactivationWindow {
			return nil, ErrSessionExpired
		}
		sess.Status = SessionActive
		sess.EndedAt = nil
		sess.Duration = nil
		reactivated = true
	}

	// quota is consumed per user message, so the send path enforces it even
	// when session creation let the caller through
	var usage *AnonymousUsage
	if id.IsAnonymous() {
		usage, err = s.repo.GetOrCreateAnonymousUsage(ctx, id.AnonymousID)
		if err != nil {
			return nil, err
		}
		if usage.FreeMessagesUsed >= s.freeMessageQuota {
			return nil, ErrFreeLimitExceeded
		}
	}

	providerMsgs := buildProviderMessages(sess.SystemPrompt, sess.Conversation, message)

	provider, err := s.registry.Get(ctx, s.providerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	start := time.Now()
	comp, err := provider.Complete(ctx, providerMsgs)
	if err != nil {
		// no partial writes: the session is untouched on provider failure
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	elapsed := time.Since(start).Milliseconds()

	now = time.Now()
	sess.Conversation = append(sess.Conversation,
		Turn{Role: RoleUser, Content: message, Timestamp: now},
		Turn{Role: RoleAssistant, Content: comp.Text, Timestamp: now},
	)
	sess.MessageCount += 2
	sess.PromptTokens += comp.PromptTokens
	sess.CompletionTokens += comp.CompletionTokens
	sess.TotalTokens += comp.TotalTokens
	sess.LastUsed = now

	userMsg := &Message{
		SessionID:   sess.SessionID,
		UserID:      sess.UserID,
		AnonymousID: sess.AnonymousID,
		Role:        RoleUser,
		Content:     message,
		TokenCount:  comp.PromptTokens,
	}
	agentMsg := &Message{
		SessionID:    sess.SessionID,
		UserID:       sess.UserID,
		AnonymousID:  sess.AnonymousID,
		Role:         RoleAssistant,
		Content:      comp.Text,
		TokenCount:   comp.CompletionTokens,
		ProcessingMs: &elapsed,
	}

	if err := s.repo.SaveExchange(ctx, sess, userMsg, agentMsg); err != nil {
		return nil, err
	}

	res := &SendResult{
		SessionID:      sess.SessionID,
		Reply:          comp.Text,
		AssistantMsgID: agentMsg.ID,
		MessageCount:   sess.MessageCount,
		Usage: TokenUsage{
			Prompt:     sess.PromptTokens,
			Completion: sess.CompletionTokens,
			Total:      sess.TotalTokens,
		},
		ProcessingMs: elapsed,
		Reactivated:  reactivated,
	}

	if id.IsAnonymous() {
		if err := s.repo.IncrementAnonymousUsage(ctx, id.AnonymousID); err != nil {
			// the exchange is already persisted; log and keep the response
			s.log.Warn("anonymous usage increment failed",
				zap.String("session_id", sess.SessionID), zap.Error(err))
		}
		remaining := s.freeMessageQuota - (usage.FreeMessagesUsed + 1)
		if remaining < 0 {
			remaining = 0
		}
		res.FreeMessagesRemaining = &remaining
	}

	return res, nil
}

// buildProviderMessages assembles the outbound request: exactly one system
// message, then the non-system history, then the new user message. Prior
// system turns are dropped, not merged.
func buildProviderMessages(systemPrompt string, history Conversation, userMessage string) []ai.Message {
	out := make([]ai.Message, 0, len(history)+2)
	out = append(out, ai.Message{Role: RoleSystem, Content: systemPrompt})
	for _, t := range history {
		if t.Role == RoleSystem {
			continue
		}
		out = append(out, ai.Message{Role: t.Role, Content: t.Content})
	}
	return append(out, ai.Message{Role: RoleUser, Content: userMessage})
}

// StopSession ends a session. Stopping an already-ended session succeeds and
// returns the original endedAt/duration unchanged.
func (s *Service) StopSession(ctx context.Context, id Identity, sessionID string) (*Session, error) {
	if !id.Valid() {
		return nil, ErrAccessDenied
	}

	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.repo.GetSessionForOwner(ctx, id, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if sess.Status == SessionEnded {
		return sess, nil
	}

	now := time.Now()
	duration := int64(math.Round(now.Sub(sess.CreatedAt).Seconds()))
	sess.Status = SessionEnded
	sess.EndedAt = &now
	sess.Duration = &duration

	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

type ConversationStats struct {
	TotalMessages     int `json:"total_messages"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
	EstimatedTokens   int `json:"estimated_tokens"`
}

type History struct {
	Session  *Session          `json:"session"`
	Messages []Message         `json:"messages"`
	Stats    ConversationStats `json:"stats"`
}

// GetHistory returns the session summary, its in-row conversation and up to
// the most recent persisted messages in ascending creation order.
func (s *Service) GetHistory(ctx context.Context, id Identity, sessionID string) (*History, error) {
	if !id.Valid() {
		return nil, ErrAccessDenied
	}

	sess, err := s.repo.GetSessionForOwner(ctx, id, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	msgs, err := s.repo.ListRecentMessagesAsc(ctx, id, sessionID, s.historyMessageLimit)
	if err != nil {
		return nil, err
	}

	stats := ConversationStats{}
	chars := 0
	for _, t := range sess.Conversation {
		stats.TotalMessages++
		switch t.Role {
		case RoleUser:
			stats.UserMessages++
		case RoleAssistant:
			stats.AssistantMessages++
		}
		chars += len(t.Content)
	}
	stats.EstimatedTokens = int(float64(chars) * 0.75)

	return &History{Session: sess, Messages: msgs, Stats: stats}, nil
}
