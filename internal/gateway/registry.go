package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live sessions and their room subscriptions. It is an
// explicit object with its own lifecycle, injected into the Gateway,
// never package-global state. Dropping a session here has no effect on
// persisted membership rows.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]Session                // sessionID -> session
	rooms        map[uuid.UUID]map[string]Session  // roomID -> sessionID -> session
	sessionRooms map[string]map[uuid.UUID]struct{} // sessionID -> subscribed rooms
	userSessions map[uuid.UUID]map[string]Session  // userID -> sessionID -> session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]Session),
		rooms:        make(map[uuid.UUID]map[string]Session),
		sessionRooms: make(map[string]map[uuid.UUID]struct{}),
		userSessions: make(map[uuid.UUID]map[string]Session),
	}
}

// Attach registers a session.
func (r *Registry) Attach(s Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.sessionRooms[s.ID()] = make(map[uuid.UUID]struct{})

	byUser := r.userSessions[s.UserID()]
	if byUser == nil {
		byUser = make(map[string]Session)
		r.userSessions[s.UserID()] = byUser
	}
	byUser[s.ID()] = s
	r.mu.Unlock()
}

// Detach removes a session and all its subscriptions.
func (r *Registry) Detach(s Session) {
	r.mu.Lock()
	r.detachLocked(s.ID())
	r.mu.Unlock()
}

// Subscribe adds the session to a room channel. Unknown sessions are
// ignored; a detach may have raced the subscribe.
func (r *Registry) Subscribe(roomID uuid.UUID, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID()]; !ok {
		return
	}

	room := r.rooms[roomID]
	if room == nil {
		room = make(map[string]Session)
		r.rooms[roomID] = room
	}
	room[s.ID()] = s

	r.sessionRooms[s.ID()][roomID] = struct{}{}
}

// Unsubscribe removes the session from a room channel.
func (r *Registry) Unsubscribe(roomID uuid.UUID, s Session) {
	r.mu.Lock()
	r.unsubscribeLocked(roomID, s.ID())
	r.mu.Unlock()
}

// Subscribers snapshots the sessions currently subscribed to a room.
func (r *Registry) Subscribers(roomID uuid.UUID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	if len(room) == 0 {
		return nil
	}

	out := make([]Session, 0, len(room))
	for _, s := range room {
		out = append(out, s)
	}
	return out
}

// SessionsOfUser snapshots every live session belonging to one user.
// A user waiting on approval is reachable here even though they are
// not subscribed to any room yet.
func (r *Registry) SessionsOfUser(userID uuid.UUID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser := r.userSessions[userID]
	if len(byUser) == 0 {
		return nil
	}

	out := make([]Session, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, s)
	}
	return out
}

// Close terminates all sessions and clears the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]Session)
	r.rooms = make(map[uuid.UUID]map[string]Session)
	r.sessionRooms = make(map[string]map[uuid.UUID]struct{})
	r.userSessions = make(map[uuid.UUID]map[string]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close(1001, "registry shutdown")
	}
}

func (r *Registry) detachLocked(sessionID string) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)

	for roomID := range r.sessionRooms[sessionID] {
		r.unsubscribeLocked(roomID, sessionID)
	}
	delete(r.sessionRooms, sessionID)

	if byUser, ok := r.userSessions[s.UserID()]; ok {
		delete(byUser, sessionID)
		if len(byUser) == 0 {
			delete(r.userSessions, s.UserID())
		}
	}
}

func (r *Registry) unsubscribeLocked(roomID uuid.UUID, sessionID string) {
	room := r.rooms[roomID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
	if subs, ok := r.sessionRooms[sessionID]; ok {
		delete(subs, roomID)
	}
}
