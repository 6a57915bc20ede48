package chat

import (
	"context"
	"strings"
	"time"
)

// startOfDay is the local-midnight boundary used for daily session metering.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func metered(tier string) bool {
	return tier == "" || strings.EqualFold(tier, TierFree)
}

// CheckUsageLimits is the allow/deny gate in front of session creation.
//
// Authenticated FREE-tier users are capped on sessions created today;
// anonymous identities are capped on total free messages. No resolvable
// identity fails closed. The anonymous check is advisory here and enforced
// again on every send, where the quota is actually consumed.
func (s *Service) CheckUsageLimits(ctx context.Context, id Identity) error {
	switch {
	case id.IsAuthenticated():
		if !metered(id.Tier) {
			return nil
		}
		n, err := s.repo.CountSessionsCreatedSince(ctx, id.UserID, startOfDay(time.Now()))
		if err != nil {
			return err
		}
		if n >= int64(s.dailySessionLimit) {
			return ErrLimitReached
		}
		return nil

	case id.IsAnonymous():
		u, err := s.repo.GetOrCreateAnonymousUsage(ctx, id.AnonymousID)
		if err != nil {
			return err
		}
		if u.FreeMessagesUsed >= s.freeMessageQuota {
			return ErrFreeLimitExceeded
		}
		return nil

	default:
		return ErrAccessDenied
	}
}

// FreeMessagesRemaining returns the quota balance for an anonymous identity.
func (s *Service) FreeMessagesRemaining(ctx context.Context, id Identity) (int, error) {
	if !id.IsAnonymous() {
		return 0, ErrAccessDenied
	}
	u, err := s.repo.GetOrCreateAnonymousUsage(ctx, id.AnonymousID)
	if err != nil {
		return 0, err
	}
	remaining := s.freeMessageQuota - u.FreeMessagesUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
