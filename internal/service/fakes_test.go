package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"watch_party/internal/domain"
	"watch_party/internal/gateway"
	"watch_party/internal/repository"
	apperrors "watch_party/pkg/errors"
)

type memberKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*domain.Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[uuid.UUID]*domain.Room)}
}

func (f *fakeRoomRepo) Create(_ context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.DeletedAt != nil {
		return nil, apperrors.ErrRoomNotFound
	}
	clone := *room
	return &clone, nil
}

func (f *fakeRoomRepo) GetOfficialByMatch(_ context.Context, matchID uuid.UUID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.MatchID == matchID && !room.RequiresApproval && room.DeletedAt == nil {
			clone := *room
			return &clone, nil
		}
	}
	return nil, apperrors.ErrRoomNotFound
}

func (f *fakeRoomRepo) ListByMatch(_ context.Context, matchID uuid.UUID) ([]*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Room
	for _, room := range f.rooms {
		if room.MatchID == matchID && room.DeletedAt == nil {
			clone := *room
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRoomRepo) Update(_ context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[room.ID]; !ok {
		return apperrors.ErrRoomNotFound
	}
	clone := *room
	f.rooms[room.ID] = &clone
	return nil
}

func (f *fakeRoomRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.DeletedAt != nil {
		return apperrors.ErrRoomNotFound
	}
	now := time.Now()
	room.Status = domain.RoomStatusDeleted
	room.DeletedAt = &now
	return nil
}

type fakeMembershipRepo struct {
	mu       sync.Mutex
	rows     map[memberKey]*domain.Membership
	messages *fakeMessageRepo
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{rows: make(map[memberKey]*domain.Membership)}
}

func (f *fakeMembershipRepo) Get(_ context.Context, roomID, userID uuid.UUID) (*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[memberKey{roomID, userID}]
	if !ok {
		return nil, apperrors.ErrMembershipNotFound
	}
	clone := *m
	return &clone, nil
}

func (f *fakeMembershipRepo) Create(_ context.Context, m *domain.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *m
	f.rows[memberKey{m.RoomID, m.UserID}] = &clone
	return nil
}

func (f *fakeMembershipRepo) Update(_ context.Context, m *domain.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[memberKey{m.RoomID, m.UserID}]; !ok {
		return apperrors.ErrMembershipNotFound
	}
	clone := *m
	f.rows[memberKey{m.RoomID, m.UserID}] = &clone
	return nil
}

func (f *fakeMembershipRepo) ListByStatus(_ context.Context, roomID uuid.UUID, status string) ([]*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Membership
	for key, m := range f.rows {
		if key.roomID == roomID && m.Status == status {
			clone := *m
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeMembershipRepo) CountJoined(_ context.Context, roomID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countJoinedLocked(roomID), nil
}

func (f *fakeMembershipRepo) countJoinedLocked(roomID uuid.UUID) int {
	count := 0
	for key, m := range f.rows {
		if key.roomID == roomID && m.Status == domain.MembershipStatusJoined {
			count++
		}
	}
	return count
}

func (f *fakeMembershipRepo) UpdateLastRead(_ context.Context, roomID, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[memberKey{roomID, userID}]
	if !ok {
		return apperrors.ErrMembershipNotFound
	}
	m.LastReadAt = &at
	return nil
}

func (f *fakeMembershipRepo) UnreadCount(_ context.Context, roomID, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	m, ok := f.rows[memberKey{roomID, userID}]
	if !ok {
		f.mu.Unlock()
		return 0, apperrors.ErrMembershipNotFound
	}
	row := *m
	f.mu.Unlock()

	if f.messages == nil {
		return 0, nil
	}

	f.messages.mu.Lock()
	defer f.messages.mu.Unlock()
	count := 0
	for _, msg := range f.messages.messages {
		if msg.RoomID != roomID {
			continue
		}
		if msg.AuthorID != nil && *msg.AuthorID == userID {
			continue
		}
		if row.JoinedAt != nil && msg.CreatedAt.Before(*row.JoinedAt) {
			continue
		}
		if row.LastReadAt != nil && !msg.CreatedAt.After(*row.LastReadAt) {
			continue
		}
		count++
	}
	return count, nil
}

// fakeGuard mirrors the transactional capacity guard with one mutex
// standing in for the room row lock.
type fakeGuard struct {
	mu      sync.Mutex
	rooms   *fakeRoomRepo
	members *fakeMembershipRepo
}

func newFakeGuard(rooms *fakeRoomRepo, members *fakeMembershipRepo) *fakeGuard {
	return &fakeGuard{rooms: rooms, members: members}
}

func (g *fakeGuard) lockedRoom(roomID uuid.UUID) (*domain.Room, error) {
	room, ok := g.rooms.rooms[roomID]
	if !ok || room.DeletedAt != nil {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

func (g *fakeGuard) Approve(_ context.Context, roomID, userID, decidedBy uuid.UUID) (*repository.GuardOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms.mu.Lock()
	defer g.rooms.mu.Unlock()
	g.members.mu.Lock()
	defer g.members.mu.Unlock()

	room, err := g.lockedRoom(roomID)
	if err != nil {
		return nil, err
	}
	if !room.Joinable() {
		return nil, apperrors.ErrInvalidTransition
	}

	m, ok := g.members.rows[memberKey{roomID, userID}]
	if !ok {
		return nil, apperrors.ErrMembershipNotFound
	}
	if m.Status != domain.MembershipStatusPending {
		return nil, apperrors.ErrInvalidTransition
	}

	occupancy := g.members.countJoinedLocked(roomID)
	if occupancy >= room.Capacity {
		return nil, apperrors.ErrRoomFull
	}

	now := time.Now()
	m.Status = domain.MembershipStatusJoined
	m.DecidedAt = &now
	m.DecidedByUserID = &decidedBy
	m.JoinedAt = &now
	m.LeftAt = nil

	occupancy++
	status := domain.RoomStatusOpen
	if occupancy >= room.Capacity {
		status = domain.RoomStatusFull
	}
	room.Status = status

	clone := *m
	return &repository.GuardOutcome{Membership: &clone, Occupancy: occupancy, RoomStatus: status}, nil
}

func (g *fakeGuard) Remove(_ context.Context, roomID, userID uuid.UUID, target string) (*repository.GuardOutcome, error) {
	if target != domain.MembershipStatusLeft && target != domain.MembershipStatusKicked {
		return nil, apperrors.ErrInvalidTransition
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms.mu.Lock()
	defer g.rooms.mu.Unlock()
	g.members.mu.Lock()
	defer g.members.mu.Unlock()

	room, err := g.lockedRoom(roomID)
	if err != nil {
		return nil, err
	}

	m, ok := g.members.rows[memberKey{roomID, userID}]
	if !ok {
		return nil, apperrors.ErrMembershipNotFound
	}
	if m.Status != domain.MembershipStatusJoined {
		return nil, apperrors.ErrInvalidTransition
	}

	now := time.Now()
	m.Status = target
	m.LeftAt = &now

	occupancy := g.members.countJoinedLocked(roomID)
	if occupancy < room.Capacity && room.Status == domain.RoomStatusFull {
		room.Status = domain.RoomStatusOpen
	}

	clone := *m
	return &repository.GuardOutcome{Membership: &clone, Occupancy: occupancy, RoomStatus: room.Status}, nil
}

func (g *fakeGuard) AdmitDirect(_ context.Context, roomID, userID uuid.UUID, m *domain.Membership) (*repository.GuardOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms.mu.Lock()
	defer g.rooms.mu.Unlock()
	g.members.mu.Lock()
	defer g.members.mu.Unlock()

	room, err := g.lockedRoom(roomID)
	if err != nil {
		return nil, err
	}
	if !room.Joinable() {
		return nil, apperrors.ErrInvalidTransition
	}

	occupancy := g.members.countJoinedLocked(roomID)
	if room.RequiresApproval && occupancy >= room.Capacity {
		return nil, apperrors.ErrRoomFull
	}

	existing, ok := g.members.rows[memberKey{roomID, userID}]
	if ok {
		switch existing.Status {
		case domain.MembershipStatusKicked:
			return nil, apperrors.ErrBannedFromRoom
		case domain.MembershipStatusJoined:
			return nil, apperrors.ErrInvalidTransition
		}
		now := time.Now()
		existing.Status = domain.MembershipStatusJoined
		existing.JoinedAt = &now
		existing.LeftAt = nil
		m = existing
	} else {
		clone := *m
		g.members.rows[memberKey{roomID, userID}] = &clone
		m = &clone
	}

	occupancy++
	status := room.Status
	if room.RequiresApproval {
		status = domain.RoomStatusOpen
		if occupancy >= room.Capacity {
			status = domain.RoomStatusFull
		}
		room.Status = status
	}

	clone := *m
	return &repository.GuardOutcome{Membership: &clone, Occupancy: occupancy, RoomStatus: status}, nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*domain.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[uuid.UUID]*domain.Match)}
}

func (f *fakeMatchRepo) Create(_ context.Context, match *domain.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *match
	f.matches[match.ID] = &clone
	return nil
}

func (f *fakeMatchRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	match, ok := f.matches[id]
	if !ok {
		return nil, apperrors.ErrMatchNotFound
	}
	clone := *match
	return &clone, nil
}

func (f *fakeMatchRepo) List(_ context.Context, from time.Time, limit int) ([]*domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Match
	for _, match := range f.matches {
		if !match.ScheduledAt.Before(from) && len(out) < limit {
			clone := *match
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeMatchRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	match, ok := f.matches[id]
	if !ok {
		return apperrors.ErrMatchNotFound
	}
	match.Status = domain.NormalizeMatchStatus(status)
	return nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperrors.ErrUserAlreadyExists
		}
	}
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) CreateSession(_ context.Context, _ *domain.UserSession) error { return nil }

func (f *fakeUserRepo) GetSessionByTokenHash(_ context.Context, _ string) (*domain.UserSession, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeUserRepo) RevokeSession(_ context.Context, _ uuid.UUID, _ string) error { return nil }

type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages []*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1}
}

func (f *fakeMessageRepo) Create(_ context.Context, message *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	message.ID = f.nextID
	f.nextID++
	clone := *message
	f.messages = append(f.messages, &clone)
	return nil
}

func (f *fakeMessageRepo) Recent(_ context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inRoom []*domain.Message
	for _, m := range f.messages {
		if m.RoomID == roomID {
			clone := *m
			inRoom = append(inRoom, &clone)
		}
	}
	if len(inRoom) > limit {
		inRoom = inRoom[len(inRoom)-limit:]
	}
	return inRoom, nil
}

// fakeAuditRepo optionally sleeps a random slice of delay per write to
// model the store round-trip sitting between a commit and its publish.
type fakeAuditRepo struct {
	mu      sync.Mutex
	delay   time.Duration
	entries []*domain.AuditLog
}

func (f *fakeAuditRepo) CreateLog(_ context.Context, entry *domain.AuditLog) error {
	if f.delay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(f.delay))))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type publishedEvent struct {
	roomID uuid.UUID
	event  gateway.Event
}

// fakeBroadcaster records everything in call order so tests can assert
// that event order matches commit order.
type fakeBroadcaster struct {
	mu        sync.Mutex
	published []publishedEvent
	direct    map[uuid.UUID][]gateway.Event
	drops     []memberKey
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{direct: make(map[uuid.UUID][]gateway.Event)}
}

func (f *fakeBroadcaster) Publish(roomID uuid.UUID, ev gateway.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedEvent{roomID: roomID, event: ev})
}

func (f *fakeBroadcaster) SendToUser(userID uuid.UUID, ev gateway.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct[userID] = append(f.direct[userID], ev)
}

func (f *fakeBroadcaster) DropFromRoom(roomID uuid.UUID, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, memberKey{roomID, userID})
}

func (f *fakeBroadcaster) publishedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.published))
	for _, p := range f.published {
		types = append(types, p.event.Type)
	}
	return types
}
