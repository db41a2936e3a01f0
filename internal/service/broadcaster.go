package service

import (
	"github.com/google/uuid"

	"watch_party/internal/gateway"
)

// Broadcaster is the services' outbound edge to connected clients.
// Implementations must preserve per-room publish order; services call
// Publish strictly after the corresponding write committed.
type Broadcaster interface {
	Publish(roomID uuid.UUID, ev gateway.Event)
	// SendToUser reaches all live sessions of one user, subscribed or
	// not. Decisions on entry requests travel this way.
	SendToUser(userID uuid.UUID, ev gateway.Event)
	// DropFromRoom revokes the user's room subscription in event
	// order: everything published before the drop still reaches them.
	DropFromRoom(roomID uuid.UUID, userID uuid.UUID)
}
