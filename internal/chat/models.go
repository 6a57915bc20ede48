package chat

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one element of a session's in-row conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Conversation is the append-only turn sequence, stored as a JSON text column.
type Conversation []Turn

func (c Conversation) Value() (driver.Value, error) {
	if c == nil {
		c = Conversation{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Conversation) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("chat: unsupported conversation column type")
	}
}

type Session struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`

	// Owner identity: exactly one of UserID / AnonymousID is non-null.
	UserID      *uint64 `gorm:"index" json:"-"`
	AnonymousID *string `gorm:"type:varchar(64);index" json:"-"`

	PersonaID    string `gorm:"type:varchar(64);not null" json:"persona_id"`
	PersonaName  string `gorm:"type:varchar(128);not null" json:"persona_name"`
	SystemPrompt string `gorm:"type:text;not null" json:"-"`

	Conversation Conversation `gorm:"type:text" json:"conversation"`

	Status       SessionStatus `gorm:"type:varchar(16);index:idx_chat_sess_status_last_used,priority:1;not null" json:"status"`
	MessageCount int           `gorm:"not null;default:0" json:"message_count"`

	PromptTokens     int `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int `gorm:"not null;default:0" json:"completion_tokens"`
	TotalTokens      int `gorm:"not null;default:0" json:"total_tokens"`

	LastUsed time.Time  `gorm:"index:idx_chat_sess_status_last_used,priority:2;not null" json:"last_used"`
	EndedAt  *time.Time `json:"ended_at,omitempty"`
	// Duration is seconds from creation to end, set when the session ends.
	Duration *int64 `json:"duration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Owner returns the identity that owns this session.
func (s *Session) Owner() Identity {
	var id Identity
	if s.UserID != nil {
		id.UserID = *s.UserID
	}
	if s.AnonymousID != nil {
		id.AnonymousID = *s.AnonymousID
	}
	return id
}

type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"type:varchar(26);not null;index" json:"session_id"`

	UserID      *uint64 `gorm:"index" json:"-"`
	AnonymousID *string `gorm:"type:varchar(64);index" json:"-"`

	Role       string `gorm:"type:varchar(16);not null" json:"role"`
	Content    string `gorm:"type:text;not null" json:"content"`
	TokenCount int    `gorm:"not null;default:0" json:"token_count"`

	// ProcessingMs is the provider round-trip for assistant messages.
	ProcessingMs *int64 `json:"processing_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// AnonymousUsage tracks free-message consumption per anonymous identity.
// FreeMessagesUsed only ever increases, via a store-level increment.
type AnonymousUsage struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	AnonymousID      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"anonymous_id"`
	FreeMessagesUsed int       `gorm:"not null;default:0" json:"free_messages_used"`
	CreatedAt        time.Time `json:"created_at"`
	LastUsed         time.Time `gorm:"not null" json:"last_used"`
}

func (AnonymousUsage) TableName() string { return "anonymous_usage" }
