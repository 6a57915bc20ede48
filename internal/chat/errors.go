package chat

import "errors"

// Sentinel errors for the session lifecycle. Handlers map these to HTTP status
// codes and stable client-facing error codes; everything else is a 500.
var (
	ErrValidation        = errors.New("invalid input")
	ErrAccessDenied      = errors.New("access denied")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrLimitReached      = errors.New("daily session limit reached")
	ErrFreeLimitExceeded = errors.New("free message limit exceeded")
	ErrProvider          = errors.New("ai provider failure")
)
