package domain

import (
	"time"

	"github.com/google/uuid"
)

// Membership is the single row tracking one user's relationship with
// one room. It is mutated in place across its lifetime; (user, room)
// is unique. Absence of a row means the user never requested entry.
type Membership struct {
	UserID          uuid.UUID  `json:"user_id"`
	RoomID          uuid.UUID  `json:"room_id"`
	Status          string     `json:"status"`
	Role            string     `json:"role"`
	RequestedAt     time.Time  `json:"requested_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	DecidedByUserID *uuid.UUID `json:"decided_by_user_id,omitempty"`
	JoinedAt        *time.Time `json:"joined_at,omitempty"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
	LastReadAt      *time.Time `json:"last_read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

const (
	MembershipStatusPending   = "PENDING"
	MembershipStatusJoined    = "JOINED"
	MembershipStatusLeft      = "LEFT"
	MembershipStatusKicked    = "KICKED"
	MembershipStatusRejected  = "REJECTED"
	MembershipStatusCancelled = "CANCELLED"
)

const (
	MembershipRoleHost  = "HOST"
	MembershipRoleGuest = "GUEST"
)

// CanRequestAgain reports whether a past membership allows a fresh
// entry request. KICKED is terminal for the room.
func (m *Membership) CanRequestAgain() bool {
	switch m.Status {
	case MembershipStatusLeft, MembershipStatusCancelled, MembershipStatusRejected:
		return true
	default:
		return false
	}
}
