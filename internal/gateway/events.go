package gateway

import (
	"github.com/google/uuid"

	"watch_party/internal/domain"
)

// Event is the wire envelope delivered to room subscribers. Payloads
// are the fixed vocabulary below; nothing else ever crosses the socket
// towards clients.
type Event struct {
	Type    string      `json:"type"`
	RoomID  uuid.UUID   `json:"room_id"`
	Payload interface{} `json:"payload"`
}

const (
	EventJoinRequest          = "join_request"
	EventJoinRequestCancelled = "join_request_cancelled"
	EventJoinApproved         = "join_approved"
	EventJoinError            = "join_error"
	EventRoomUpdate           = "room_update"
	EventUserKicked           = "user_kicked"
	EventReceiveMessage       = "receive_message"
)

type MemberPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	Nickname  string    `json:"nickname"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Status    string    `json:"status,omitempty"`
}

type RoomUpdatePayload struct {
	CurrentCount int    `json:"current_count"`
	RoomStatus   string `json:"room_status"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewJoinRequest(roomID uuid.UUID, user *domain.User) Event {
	return Event{Type: EventJoinRequest, RoomID: roomID, Payload: MemberPayload{
		UserID:    user.ID,
		Nickname:  user.Nickname,
		AvatarURL: user.AvatarURL,
		Status:    domain.MembershipStatusPending,
	}}
}

func NewJoinRequestCancelled(roomID uuid.UUID, userID uuid.UUID) Event {
	return Event{Type: EventJoinRequestCancelled, RoomID: roomID, Payload: MemberPayload{UserID: userID}}
}

func NewJoinApproved(roomID uuid.UUID, user *domain.User) Event {
	return Event{Type: EventJoinApproved, RoomID: roomID, Payload: MemberPayload{
		UserID:    user.ID,
		Nickname:  user.Nickname,
		AvatarURL: user.AvatarURL,
	}}
}

func NewJoinError(roomID uuid.UUID, code, message string) Event {
	return Event{Type: EventJoinError, RoomID: roomID, Payload: ErrorPayload{Code: code, Message: message}}
}

func NewRoomUpdate(roomID uuid.UUID, currentCount int, roomStatus string) Event {
	return Event{Type: EventRoomUpdate, RoomID: roomID, Payload: RoomUpdatePayload{
		CurrentCount: currentCount,
		RoomStatus:   roomStatus,
	}}
}

func NewUserKicked(roomID uuid.UUID, user *domain.User) Event {
	return Event{Type: EventUserKicked, RoomID: roomID, Payload: MemberPayload{
		UserID:   user.ID,
		Nickname: user.Nickname,
	}}
}

func NewReceiveMessage(message *domain.Message) Event {
	return Event{Type: EventReceiveMessage, RoomID: message.RoomID, Payload: message}
}
