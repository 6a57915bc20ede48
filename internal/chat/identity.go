package chat

// Identity scopes every session operation. Exactly one of UserID or AnonymousID
// is set on a valid identity; sessions store the same pair and ownership checks
// compare whichever side is active.
type Identity struct {
	UserID      uint64
	Tier        string
	AnonymousID string
}

const TierFree = "free"

func (id Identity) IsAuthenticated() bool { return id.UserID != 0 }

func (id Identity) IsAnonymous() bool { return id.UserID == 0 && id.AnonymousID != "" }

// Valid reports whether the identity can own a session at all.
func (id Identity) Valid() bool { return id.IsAuthenticated() || id.IsAnonymous() }
