package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watch_party/internal/config"
	"watch_party/internal/domain"
	"watch_party/internal/gateway"
	apperrors "watch_party/pkg/errors"
	"watch_party/pkg/logger"
)

type testEnv struct {
	rooms       *fakeRoomRepo
	members     *fakeMembershipRepo
	users       *fakeUserRepo
	messages    *fakeMessageRepo
	guard       *fakeGuard
	audit       *fakeAuditRepo
	broadcaster *fakeBroadcaster
	chat        ChatService
	svc         MembershipService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewNop()
	cfg := &config.Config{Room: config.RoomConfig{DefaultCapacity: 10, MaxCapacity: 500, HistoryLimit: 100}}

	rooms := newFakeRoomRepo()
	members := newFakeMembershipRepo()
	users := newFakeUserRepo()
	messages := newFakeMessageRepo()
	members.messages = messages
	guard := newFakeGuard(rooms, members)
	auditRepo := &fakeAuditRepo{}
	broadcaster := newFakeBroadcaster()
	order := newRoomSequence()

	chat := NewChatService(messages, members, rooms, users, broadcaster, order, cfg, log)
	audit := NewAuditService(auditRepo, log)
	svc := NewMembershipService(rooms, members, users, guard, chat, audit, broadcaster, order, log)

	return &testEnv{
		rooms:       rooms,
		members:     members,
		users:       users,
		messages:    messages,
		guard:       guard,
		audit:       auditRepo,
		broadcaster: broadcaster,
		chat:        chat,
		svc:         svc,
	}
}

func (e *testEnv) seedUser(t *testing.T, nickname string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:       uuid.New(),
		Email:    nickname + "@example.com",
		Nickname: nickname,
		IsActive: true,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func (e *testEnv) seedRoom(t *testing.T, host *domain.User, capacity int, requiresApproval bool) *domain.Room {
	t.Helper()
	now := time.Now()
	room := &domain.Room{
		ID:               uuid.New(),
		MatchID:          uuid.New(),
		HostUserID:       host.ID,
		Title:            "room",
		Capacity:         capacity,
		Status:           domain.RoomStatusOpen,
		RequiresApproval: requiresApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, e.rooms.Create(context.Background(), room))

	if requiresApproval {
		_, err := e.guard.AdmitDirect(context.Background(), room.ID, host.ID, &domain.Membership{
			UserID:      host.ID,
			RoomID:      room.ID,
			Status:      domain.MembershipStatusJoined,
			Role:        domain.MembershipRoleHost,
			RequestedAt: now,
			JoinedAt:    &now,
		})
		require.NoError(t, err)
	}
	return room
}

func (e *testEnv) membership(t *testing.T, roomID, userID uuid.UUID) *domain.Membership {
	t.Helper()
	m, err := e.members.Get(context.Background(), roomID, userID)
	require.NoError(t, err)
	return m
}

func TestRequestEntryQueuesPending(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)
	env.broadcaster.published = nil

	m, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)
	assert.Equal(t, domain.MembershipRoleGuest, m.Role)

	assert.Equal(t, []string{gateway.EventJoinRequest}, env.broadcaster.publishedTypes())
}

func TestRequestEntryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	env.broadcaster.published = nil

	// Repeating while PENDING changes nothing and emits nothing.
	m, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)
	assert.Empty(t, env.broadcaster.publishedTypes())

	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)
	env.broadcaster.published = nil

	// Same while JOINED.
	m, err = env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusJoined, m.Status)
	assert.Empty(t, env.broadcaster.publishedTypes())
}

func TestRequestEntryAutoAdmitsWithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "admin")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 100, false)
	env.broadcaster.published = nil

	m, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusJoined, m.Status)

	assert.Equal(t, []string{gateway.EventJoinApproved, gateway.EventRoomUpdate}, env.broadcaster.publishedTypes())
}

func TestRequestEntryAfterKickIsBanned(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.Kick(context.Background(), room.ID, host.ID, guest.ID))

	_, err = env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	assert.ErrorIs(t, err, apperrors.ErrBannedFromRoom)
}

func TestRequestEntryAfterLeaveRequeues(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.Leave(context.Background(), room.ID, guest.ID))

	m, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)
	assert.Nil(t, m.DecidedAt)
	assert.Nil(t, m.JoinedAt)
	assert.Nil(t, m.LeftAt)
}

func TestApproveSeatsApplicant(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	env.broadcaster.published = nil

	m, err := env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusJoined, m.Status)
	require.NotNil(t, m.DecidedByUserID)
	assert.Equal(t, host.ID, *m.DecidedByUserID)

	assert.Equal(t, []string{gateway.EventJoinApproved, gateway.EventRoomUpdate}, env.broadcaster.publishedTypes())

	// The applicant hears the decision directly too.
	direct := env.broadcaster.direct[guest.ID]
	require.Len(t, direct, 1)
	assert.Equal(t, gateway.EventJoinApproved, direct[0].Type)
}

func TestApproveRequiresHost(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	intruder := env.seedUser(t, "intruder")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)

	_, err = env.svc.Approve(context.Background(), room.ID, intruder.ID, guest.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotHost)
}

func TestApproveNonPendingFails(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)

	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestApproveFullRoomKeepsApplicantPending(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	seated := env.seedUser(t, "seated")
	waiting := env.seedUser(t, "waiting")
	room := env.seedRoom(t, host, 2, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, seated.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, seated.ID)
	require.NoError(t, err)

	_, err = env.svc.RequestEntry(context.Background(), room.ID, waiting.ID)
	require.NoError(t, err)
	env.broadcaster.published = nil

	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, waiting.ID)
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)

	// The failed approval leaves no trace: still PENDING, no events.
	m := env.membership(t, room.ID, waiting.ID)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)
	assert.Empty(t, env.broadcaster.publishedTypes())
}

func TestConcurrentApprovalsForLastSeat(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	first := env.seedUser(t, "first")
	second := env.seedUser(t, "second")
	room := env.seedRoom(t, host, 2, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, first.ID)
	require.NoError(t, err)
	_, err = env.svc.RequestEntry(context.Background(), room.ID, second.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, applicant := range []uuid.UUID{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, applicant uuid.UUID) {
			defer wg.Done()
			_, errs[i] = env.svc.Approve(context.Background(), room.ID, host.ID, applicant)
		}(i, applicant)
	}
	wg.Wait()

	// Exactly one approval wins the last seat.
	var full, ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrRoomFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)

	updated, err := env.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusFull, updated.Status)

	count, err := env.members.CountJoined(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRejectAllowsNewRequest(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.Reject(context.Background(), room.ID, host.ID, guest.ID))

	m := env.membership(t, room.ID, guest.ID)
	assert.Equal(t, domain.MembershipStatusRejected, m.Status)

	// Rejection is not a ban.
	m, err = env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)
}

func TestCancelPendingRequest(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Cancel(context.Background(), room.ID, guest.ID))
	m := env.membership(t, room.ID, guest.ID)
	assert.Equal(t, domain.MembershipStatusCancelled, m.Status)

	// Only PENDING can be cancelled.
	err = env.svc.Cancel(context.Background(), room.ID, guest.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestKickEmitsEventsInOrder(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)
	env.broadcaster.published = nil

	require.NoError(t, env.svc.Kick(context.Background(), room.ID, host.ID, guest.ID))

	assert.Equal(t, []string{
		gateway.EventUserKicked,
		gateway.EventReceiveMessage,
		gateway.EventRoomUpdate,
	}, env.broadcaster.publishedTypes())
	assert.Contains(t, env.broadcaster.drops, memberKey{room.ID, guest.ID})

	m := env.membership(t, room.ID, guest.ID)
	assert.Equal(t, domain.MembershipStatusKicked, m.Status)

	// The kick left a SYSTEM entry in the ledger.
	msgs, err := env.messages.Recent(context.Background(), room.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageTypeSystem, msgs[0].Type)
	assert.Nil(t, msgs[0].AuthorID)
}

func TestKickRestrictions(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)

	err = env.svc.Kick(context.Background(), room.ID, guest.ID, host.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotHost)

	err = env.svc.Kick(context.Background(), room.ID, host.ID, host.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestLeaveFreesSeatAndReopensRoom(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 2, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(context.Background(), room.ID, host.ID, guest.ID)
	require.NoError(t, err)

	full, err := env.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoomStatusFull, full.Status)
	env.broadcaster.published = nil

	require.NoError(t, env.svc.Leave(context.Background(), room.ID, guest.ID))

	assert.Equal(t, []string{gateway.EventReceiveMessage, gateway.EventRoomUpdate}, env.broadcaster.publishedTypes())

	reopened, err := env.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusOpen, reopened.Status)

	m := env.membership(t, room.ID, guest.ID)
	assert.Equal(t, domain.MembershipStatusLeft, m.Status)
}

func TestListPendingIsHostOnly(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
	require.NoError(t, err)

	applicants, err := env.svc.ListPending(context.Background(), room.ID, host.ID)
	require.NoError(t, err)
	require.Len(t, applicants, 1)
	assert.Equal(t, guest.ID, applicants[0].Membership.UserID)
	assert.Equal(t, "guest", applicants[0].Nickname)

	_, err = env.svc.ListPending(context.Background(), room.ID, guest.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotHost)
}

// Full lifecycle: two applicants chase the last seat of a capacity-2
// room across approve, full rejection, kick and re-approval.
func TestRoomLifecycleAroundCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := env.seedUser(t, "host")
	alice := env.seedUser(t, "alice")
	bob := env.seedUser(t, "bob")
	room := env.seedRoom(t, host, 2, true)

	roomStatus := func() string {
		r, err := env.rooms.GetByID(ctx, room.ID)
		require.NoError(t, err)
		return r.Status
	}
	occupancy := func() int {
		n, err := env.members.CountJoined(ctx, room.ID)
		require.NoError(t, err)
		return n
	}

	// Host alone: 1/2, OPEN.
	require.Equal(t, 1, occupancy())

	m, err := env.svc.RequestEntry(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)

	_, err = env.svc.Approve(ctx, room.ID, host.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, occupancy())
	assert.Equal(t, domain.RoomStatusFull, roomStatus())

	// A full room still takes requests, it just refuses approvals.
	m, err = env.svc.RequestEntry(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusPending, m.Status)

	_, err = env.svc.Approve(ctx, room.ID, host.ID, bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)
	assert.Equal(t, domain.MembershipStatusPending, env.membership(t, room.ID, bob.ID).Status)

	require.NoError(t, env.svc.Kick(ctx, room.ID, host.ID, alice.ID))
	assert.Equal(t, 1, occupancy())
	assert.Equal(t, domain.RoomStatusOpen, roomStatus())
	assert.Equal(t, domain.MembershipStatusKicked, env.membership(t, room.ID, alice.ID).Status)

	_, err = env.svc.Approve(ctx, room.ID, host.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, occupancy())
	assert.Equal(t, domain.RoomStatusFull, roomStatus())
}

// Occupancy commits strictly ascend under the guard's lock; the
// broadcast stream must carry the same sequence even when approvals
// race and the audit write between commit and publish takes a while.
func TestConcurrentApprovalsPublishInCommitOrder(t *testing.T) {
	env := newTestEnv(t)
	env.audit.delay = 500 * time.Microsecond
	host := env.seedUser(t, "host")
	room := env.seedRoom(t, host, 64, true)

	const applicants = 24
	ids := make([]uuid.UUID, 0, applicants)
	for i := 0; i < applicants; i++ {
		guest := env.seedUser(t, fmt.Sprintf("guest%02d", i))
		_, err := env.svc.RequestEntry(context.Background(), room.ID, guest.ID)
		require.NoError(t, err)
		ids = append(ids, guest.ID)
	}
	env.broadcaster.published = nil

	var wg sync.WaitGroup
	errs := make([]error, applicants)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = env.svc.Approve(context.Background(), room.ID, host.ID, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	var counts []int
	for _, p := range env.broadcaster.published {
		if p.event.Type == gateway.EventRoomUpdate {
			counts = append(counts, p.event.Payload.(gateway.RoomUpdatePayload).CurrentCount)
		}
	}
	require.Len(t, counts, applicants)
	for i, count := range counts {
		// Host holds seat one, so the stream runs 2..applicants+1.
		assert.Equal(t, i+2, count)
	}
}

func TestOfficialRoomEntryIsUnbounded(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host")
	room := env.seedRoom(t, host, 1, false)

	first := env.seedUser(t, "first")
	second := env.seedUser(t, "second")

	m, err := env.svc.RequestEntry(context.Background(), room.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusJoined, m.Status)

	// The seat count already matches capacity; an approval-free room
	// admits regardless.
	m, err = env.svc.RequestEntry(context.Background(), room.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusJoined, m.Status)

	updated, err := env.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusOpen, updated.Status)

	count, err := env.members.CountJoined(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUnreadCountSkipsOwnAndPreJoinMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := env.seedUser(t, "host")
	guest := env.seedUser(t, "guest")
	room := env.seedRoom(t, host, 5, true)

	_, err := env.chat.Send(ctx, room.ID, host.ID, "before the guest arrived")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = env.svc.RequestEntry(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, room.ID, host.ID, guest.ID)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = env.chat.Send(ctx, room.ID, host.ID, "first")
	require.NoError(t, err)
	_, err = env.chat.Send(ctx, room.ID, host.ID, "second")
	require.NoError(t, err)
	_, err = env.chat.Send(ctx, room.ID, guest.ID, "my own reply")
	require.NoError(t, err)

	count, err := env.svc.UnreadCount(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, env.svc.MarkRead(ctx, room.ID, guest.ID))
	count, err = env.svc.UnreadCount(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	time.Sleep(time.Millisecond)
	_, err = env.chat.Send(ctx, room.ID, host.ID, "third")
	require.NoError(t, err)
	count, err = env.svc.UnreadCount(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
