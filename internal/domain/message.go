package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an append-only chat entry. AuthorID is nil for SYSTEM
// messages emitted by membership transitions. Rows are immutable;
// the serial id doubles as the creation-order key.
type Message struct {
	ID        int64      `json:"id"`
	RoomID    uuid.UUID  `json:"room_id"`
	AuthorID  *uuid.UUID `json:"user_id,omitempty"`
	Type      string     `json:"type"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`

	// Display identity, joined in at read time. Empty for SYSTEM rows.
	Nickname  string  `json:"nickname,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

const (
	MessageTypeText   = "TEXT"
	MessageTypeSystem = "SYSTEM"
)
