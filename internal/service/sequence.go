package service

import (
	"sync"

	"github.com/google/uuid"
)

// roomSequence serializes the commit-to-publish window per room. The
// guard's row lock orders the commits themselves, but between commit
// and enqueue nothing else keeps two transitions on the same room from
// swapping places; holding the room's slot across both keeps the
// dispatcher's delivery order equal to commit order.
type roomSequence struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*sequenceSlot
}

type sequenceSlot struct {
	sync.Mutex
	refs int
}

func newRoomSequence() *roomSequence {
	return &roomSequence{slots: make(map[uuid.UUID]*sequenceSlot)}
}

// Lock blocks until the caller owns the room's slot and returns the
// matching unlock. Slots are dropped once the last holder releases.
func (s *roomSequence) Lock(roomID uuid.UUID) func() {
	s.mu.Lock()
	slot, ok := s.slots[roomID]
	if !ok {
		slot = &sequenceSlot{}
		s.slots[roomID] = slot
	}
	slot.refs++
	s.mu.Unlock()

	slot.Lock()

	return func() {
		slot.Unlock()
		s.mu.Lock()
		slot.refs--
		if slot.refs == 0 {
			delete(s.slots, roomID)
		}
		s.mu.Unlock()
	}
}
