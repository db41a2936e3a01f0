package domain

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID               uuid.UUID  `json:"id"`
	MatchID          uuid.UUID  `json:"match_id"`
	HostUserID       uuid.UUID  `json:"host_user_id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	Notice           *string    `json:"notice,omitempty"`
	Capacity         int        `json:"capacity"`
	Status           string     `json:"status"`
	RequiresApproval bool       `json:"requires_approval"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const (
	RoomStatusOpen    = "OPEN"
	RoomStatusFull    = "FULL"
	RoomStatusClosed  = "CLOSED"
	RoomStatusDeleted = "DELETED"
)

// Joinable reports whether the room accepts entry requests at all.
// OPEN and FULL both accept requests; a FULL room still records
// PENDING applicants, it only refuses approvals.
func (r *Room) Joinable() bool {
	return r.DeletedAt == nil && (r.Status == RoomStatusOpen || r.Status == RoomStatusFull)
}
