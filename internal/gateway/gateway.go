package gateway

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"watch_party/pkg/logger"
)

const dispatchBuffer = 64

// Gateway fans committed outcomes out to room subscribers. Each room
// has a single dispatcher goroutine, so delivery order within a room
// is exactly the order Publish was called — which callers guarantee is
// commit order by publishing only after their transaction commits.
// There is no ordering across rooms.
type Gateway struct {
	registry *Registry
	log      logger.Logger

	mu          sync.Mutex
	dispatchers map[uuid.UUID]*dispatcher
	closed      bool
}

type dispatcher struct {
	inbox chan func()
	done  chan struct{}
}

func New(registry *Registry, log logger.Logger) *Gateway {
	return &Gateway{
		registry:    registry,
		log:         log,
		dispatchers: make(map[uuid.UUID]*dispatcher),
	}
}

func (g *Gateway) Registry() *Registry { return g.registry }

// Attach registers a freshly upgraded session.
func (g *Gateway) Attach(s Session) {
	g.registry.Attach(s)
}

// Subscribe attaches the session to the room channel. Events committed
// after this call will reach the session.
func (g *Gateway) Subscribe(s Session, roomID uuid.UUID) {
	g.registry.Subscribe(roomID, s)
}

// Unsubscribe detaches the session from the room channel only; it
// never touches membership state.
func (g *Gateway) Unsubscribe(s Session, roomID uuid.UUID) {
	g.registry.Unsubscribe(roomID, s)
}

// Publish enqueues an event for every current subscriber of the room.
// Callers must invoke it only after the corresponding write committed;
// the gateway never speculates or reorders relative to the store.
func (g *Gateway) Publish(roomID uuid.UUID, ev Event) {
	g.enqueue(roomID, func() {
		g.fanOut(roomID, ev)
	})
}

// DropFromRoom unsubscribes all of a user's sessions from the room.
// It runs on the room dispatcher, so events published before the drop
// still reach the user and events published after do not.
func (g *Gateway) DropFromRoom(roomID uuid.UUID, userID uuid.UUID) {
	g.enqueue(roomID, func() {
		for _, s := range g.registry.SessionsOfUser(userID) {
			g.registry.Unsubscribe(roomID, s)
		}
	})
}

func (g *Gateway) enqueue(roomID uuid.UUID, job func()) {
	d := g.roomDispatcher(roomID)
	if d == nil {
		return
	}

	select {
	case d.inbox <- job:
	case <-d.done:
	}
}

// SendTo delivers an event to a single session, bypassing the room
// channel. Used for per-requester failures like join_error.
func (g *Gateway) SendTo(s Session, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		g.log.Error("Failed to marshal event", "error", err, "type", ev.Type)
		return
	}
	if err := s.Send(payload); err != nil {
		g.log.Warn("Failed to send event to session", "error", err, "session_id", s.ID())
	}
}

// SendToUser delivers an event to every live session of one user,
// regardless of room subscriptions. This is how a waiting requester
// hears about the decision on their request.
func (g *Gateway) SendToUser(userID uuid.UUID, ev Event) {
	sessions := g.registry.SessionsOfUser(userID)
	if len(sessions) == 0 {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		g.log.Error("Failed to marshal event", "error", err, "type", ev.Type)
		return
	}
	for _, s := range sessions {
		if err := s.Send(payload); err != nil {
			g.registry.Detach(s)
		}
	}
}

// Disconnect drops the session from the registry; implicit unsubscribe
// from every room, no membership mutation.
func (g *Gateway) Disconnect(s Session) {
	g.registry.Detach(s)
}

// Close stops all dispatchers and the registry.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	for roomID, d := range g.dispatchers {
		close(d.done)
		delete(g.dispatchers, roomID)
	}
	g.mu.Unlock()

	g.registry.Close()
}

func (g *Gateway) roomDispatcher(roomID uuid.UUID) *dispatcher {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}

	d, ok := g.dispatchers[roomID]
	if !ok {
		d = &dispatcher{
			inbox: make(chan func(), dispatchBuffer),
			done:  make(chan struct{}),
		}
		g.dispatchers[roomID] = d
		go d.loop()
	}
	return d
}

func (d *dispatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case job := <-d.inbox:
			job()
		}
	}
}

func (g *Gateway) fanOut(roomID uuid.UUID, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		g.log.Error("Failed to marshal event", "error", err, "type", ev.Type)
		return
	}
	for _, s := range g.registry.Subscribers(roomID) {
		if err := s.Send(payload); err != nil {
			// Slow or dead subscriber; detach so the next event does
			// not hit it again.
			g.registry.Detach(s)
		}
	}
}
