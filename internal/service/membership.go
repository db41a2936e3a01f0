package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"watch_party/internal/domain"
	"watch_party/internal/gateway"
	"watch_party/internal/repository"
	apperrors "watch_party/pkg/errors"
	"watch_party/pkg/logger"
)

// PendingApplicant is a queued entry request with the display identity
// the host needs to decide on it.
type PendingApplicant struct {
	Membership *domain.Membership `json:"membership"`
	Nickname   string             `json:"nickname"`
	AvatarURL  *string            `json:"avatar_url,omitempty"`
}

// MembershipService drives the per-user room lifecycle. Every
// occupancy-changing transition goes through the capacity guard;
// events are published only after the transition committed.
type MembershipService interface {
	RequestEntry(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error)
	Cancel(ctx context.Context, roomID, userID uuid.UUID) error
	Approve(ctx context.Context, roomID, hostID, applicantID uuid.UUID) (*domain.Membership, error)
	Reject(ctx context.Context, roomID, hostID, applicantID uuid.UUID) error
	Kick(ctx context.Context, roomID, hostID, targetID uuid.UUID) error
	Leave(ctx context.Context, roomID, userID uuid.UUID) error
	Get(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error)
	ListPending(ctx context.Context, roomID, hostID uuid.UUID) ([]*PendingApplicant, error)
	MarkRead(ctx context.Context, roomID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error)
}

type membershipService struct {
	roomRepo       repository.RoomRepository
	membershipRepo repository.MembershipRepository
	userRepo       repository.UserRepository
	guard          repository.CapacityGuard
	chatSvc        ChatService
	auditSvc       AuditService
	broadcaster    Broadcaster
	order          *roomSequence
	log            logger.Logger
}

func NewMembershipService(
	roomRepo repository.RoomRepository,
	membershipRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
	guard repository.CapacityGuard,
	chatSvc ChatService,
	auditSvc AuditService,
	broadcaster Broadcaster,
	order *roomSequence,
	log logger.Logger,
) MembershipService {
	return &membershipService{
		roomRepo:       roomRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		guard:          guard,
		chatSvc:        chatSvc,
		auditSvc:       auditSvc,
		broadcaster:    broadcaster,
		order:          order,
		log:            log,
	}
}

// RequestEntry is the single entrance to a room. Approval-gated rooms
// queue the caller as PENDING; approval-free rooms seat them at once.
// Repeating the call while PENDING or JOINED is a no-op returning the
// current row. KICKED blocks re-entry for good.
func (s *membershipService) RequestEntry(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Joinable() {
		return nil, apperrors.ErrInvalidTransition
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.order.Lock(roomID)
	defer unlock()

	m, err := s.membershipRepo.Get(ctx, roomID, userID)
	switch {
	case errors.Is(err, apperrors.ErrMembershipNotFound):
		return s.firstRequest(ctx, room, user)
	case err != nil:
		return nil, err
	}

	switch m.Status {
	case domain.MembershipStatusKicked:
		return nil, apperrors.ErrBannedFromRoom
	case domain.MembershipStatusPending, domain.MembershipStatusJoined:
		return m, nil
	}

	if !m.CanRequestAgain() {
		return nil, apperrors.ErrInvalidTransition
	}

	if !room.RequiresApproval {
		return s.admitDirect(ctx, room, user, m)
	}

	now := time.Now()
	m.Status = domain.MembershipStatusPending
	m.RequestedAt = now
	m.DecidedAt = nil
	m.DecidedByUserID = nil
	m.JoinedAt = nil
	m.LeftAt = nil
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		return nil, err
	}

	s.auditSvc.Record(ctx, &userID, domain.ActorRoleUser, &roomID, domain.EventTypeEntryRequested, nil)
	s.broadcaster.Publish(roomID, gateway.NewJoinRequest(roomID, user))
	return m, nil
}

func (s *membershipService) firstRequest(ctx context.Context, room *domain.Room, user *domain.User) (*domain.Membership, error) {
	now := time.Now()
	m := &domain.Membership{
		UserID:      user.ID,
		RoomID:      room.ID,
		Role:        domain.MembershipRoleGuest,
		RequestedAt: now,
	}

	if !room.RequiresApproval {
		return s.admitDirect(ctx, room, user, m)
	}

	m.Status = domain.MembershipStatusPending
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.membershipRepo.Create(ctx, m); err != nil {
		return nil, err
	}

	s.auditSvc.Record(ctx, &user.ID, domain.ActorRoleUser, &room.ID, domain.EventTypeEntryRequested, nil)
	s.broadcaster.Publish(room.ID, gateway.NewJoinRequest(room.ID, user))
	return m, nil
}

func (s *membershipService) admitDirect(ctx context.Context, room *domain.Room, user *domain.User, m *domain.Membership) (*domain.Membership, error) {
	now := time.Now()
	m.Status = domain.MembershipStatusJoined
	m.JoinedAt = &now

	outcome, err := s.guard.AdmitDirect(ctx, room.ID, user.ID, m)
	if err != nil {
		return nil, err
	}

	s.auditSvc.Record(ctx, &user.ID, domain.ActorRoleUser, &room.ID, domain.EventTypeEntryApproved, map[string]interface{}{
		"direct": true,
	})
	s.broadcaster.Publish(room.ID, gateway.NewJoinApproved(room.ID, user))
	s.broadcaster.Publish(room.ID, gateway.NewRoomUpdate(room.ID, outcome.Occupancy, outcome.RoomStatus))
	return outcome.Membership, nil
}

// Cancel withdraws the caller's own PENDING request.
func (s *membershipService) Cancel(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.order.Lock(roomID)
	defer unlock()

	m, err := s.membershipRepo.Get(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if m.Status != domain.MembershipStatusPending {
		return apperrors.ErrInvalidTransition
	}

	now := time.Now()
	m.Status = domain.MembershipStatusCancelled
	m.DecidedAt = &now
	m.DecidedByUserID = &userID
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		return err
	}

	s.auditSvc.Record(ctx, &userID, domain.ActorRoleUser, &roomID, domain.EventTypeEntryCancelled, nil)
	s.broadcaster.Publish(roomID, gateway.NewJoinRequestCancelled(roomID, userID))
	return nil
}

// Approve seats a PENDING applicant. The guard holds the room lock for
// the whole decision, so two hosts racing over the last seat resolve
// to exactly one JOINED row; the loser gets ROOM_FULL and the
// applicant stays PENDING.
func (s *membershipService) Approve(ctx context.Context, roomID, hostID, applicantID uuid.UUID) (*domain.Membership, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostUserID != hostID {
		return nil, apperrors.ErrNotHost
	}

	applicant, err := s.userRepo.GetByID(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	// Hold the room's publish slot across commit and enqueue so the
	// broadcast stream carries occupancy changes in commit order.
	unlock := s.order.Lock(roomID)
	defer unlock()

	outcome, err := s.guard.Approve(ctx, roomID, applicantID, hostID)
	if err != nil {
		return nil, err
	}

	s.auditSvc.Record(ctx, &hostID, domain.ActorRoleHost, &roomID, domain.EventTypeEntryApproved, map[string]interface{}{
		"applicant_id": applicantID.String(),
	})
	s.broadcaster.Publish(roomID, gateway.NewJoinApproved(roomID, applicant))
	s.broadcaster.Publish(roomID, gateway.NewRoomUpdate(roomID, outcome.Occupancy, outcome.RoomStatus))
	// The applicant is not subscribed yet; reach them directly.
	s.broadcaster.SendToUser(applicantID, gateway.NewJoinApproved(roomID, applicant))

	s.log.Info("Entry approved", "room_id", roomID, "applicant_id", applicantID, "occupancy", outcome.Occupancy)
	return outcome.Membership, nil
}

// Reject declines a PENDING applicant. The applicant may request again
// later; rejection is not a ban.
func (s *membershipService) Reject(ctx context.Context, roomID, hostID, applicantID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostUserID != hostID {
		return apperrors.ErrNotHost
	}

	unlock := s.order.Lock(roomID)
	defer unlock()

	m, err := s.membershipRepo.Get(ctx, roomID, applicantID)
	if err != nil {
		return err
	}
	if m.Status != domain.MembershipStatusPending {
		return apperrors.ErrInvalidTransition
	}

	now := time.Now()
	m.Status = domain.MembershipStatusRejected
	m.DecidedAt = &now
	m.DecidedByUserID = &hostID
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		return err
	}

	s.auditSvc.Record(ctx, &hostID, domain.ActorRoleHost, &roomID, domain.EventTypeEntryRejected, map[string]interface{}{
		"applicant_id": applicantID.String(),
	})
	// Same event as a self-cancel: the queue entry disappears.
	s.broadcaster.Publish(roomID, gateway.NewJoinRequestCancelled(roomID, applicantID))
	s.broadcaster.SendToUser(applicantID, gateway.NewJoinRequestCancelled(roomID, applicantID))
	return nil
}

// Kick removes a seated member and bans them from the room. Event
// order mirrors commit order: the kick itself, the ledger entry, then
// the corrected occupancy.
func (s *membershipService) Kick(ctx context.Context, roomID, hostID, targetID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostUserID != hostID {
		return apperrors.ErrNotHost
	}
	if targetID == hostID {
		return apperrors.ErrInvalidTransition
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	unlock := s.order.Lock(roomID)
	defer unlock()

	outcome, err := s.guard.Remove(ctx, roomID, targetID, domain.MembershipStatusKicked)
	if err != nil {
		return err
	}

	s.auditSvc.Record(ctx, &hostID, domain.ActorRoleHost, &roomID, domain.EventTypeUserKicked, map[string]interface{}{
		"target_id": targetID.String(),
	})

	s.broadcaster.Publish(roomID, gateway.NewUserKicked(roomID, target))
	// The target sees the kick itself but nothing after it.
	s.broadcaster.DropFromRoom(roomID, targetID)
	if _, err := s.chatSvc.AppendSystem(ctx, roomID, fmt.Sprintf("%s was removed from the room", target.Nickname)); err != nil {
		s.log.Warn("Failed to append kick notice", "error", err, "room_id", roomID)
	}
	s.broadcaster.Publish(roomID, gateway.NewRoomUpdate(roomID, outcome.Occupancy, outcome.RoomStatus))

	s.log.Info("User kicked", "room_id", roomID, "target_id", targetID, "occupancy", outcome.Occupancy)
	return nil
}

// Leave vacates the caller's own seat. The host cannot leave their
// room; they delete it instead.
func (s *membershipService) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostUserID == userID && room.RequiresApproval {
		return apperrors.ErrInvalidTransition
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	unlock := s.order.Lock(roomID)
	defer unlock()

	outcome, err := s.guard.Remove(ctx, roomID, userID, domain.MembershipStatusLeft)
	if err != nil {
		return err
	}

	s.auditSvc.Record(ctx, &userID, domain.ActorRoleUser, &roomID, domain.EventTypeUserLeft, nil)

	s.broadcaster.DropFromRoom(roomID, userID)
	if _, err := s.chatSvc.AppendSystem(ctx, roomID, fmt.Sprintf("%s left the room", user.Nickname)); err != nil {
		s.log.Warn("Failed to append leave notice", "error", err, "room_id", roomID)
	}
	s.broadcaster.Publish(roomID, gateway.NewRoomUpdate(roomID, outcome.Occupancy, outcome.RoomStatus))
	return nil
}

func (s *membershipService) Get(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error) {
	return s.membershipRepo.Get(ctx, roomID, userID)
}

// ListPending returns the approval queue in request order, host only.
func (s *membershipService) ListPending(ctx context.Context, roomID, hostID uuid.UUID) ([]*PendingApplicant, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostUserID != hostID {
		return nil, apperrors.ErrNotHost
	}

	pending, err := s.membershipRepo.ListByStatus(ctx, roomID, domain.MembershipStatusPending)
	if err != nil {
		return nil, err
	}

	applicants := make([]*PendingApplicant, 0, len(pending))
	for _, m := range pending {
		a := &PendingApplicant{Membership: m}
		if user, err := s.userRepo.GetByID(ctx, m.UserID); err == nil {
			a.Nickname = user.Nickname
			a.AvatarURL = user.AvatarURL
		}
		applicants = append(applicants, a)
	}
	return applicants, nil
}

func (s *membershipService) MarkRead(ctx context.Context, roomID, userID uuid.UUID) error {
	m, err := s.membershipRepo.Get(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if m.Status != domain.MembershipStatusJoined {
		return apperrors.ErrForbidden
	}
	return s.membershipRepo.UpdateLastRead(ctx, roomID, userID, time.Now())
}

func (s *membershipService) UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	m, err := s.membershipRepo.Get(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	if m.Status != domain.MembershipStatusJoined {
		return 0, apperrors.ErrForbidden
	}
	return s.membershipRepo.UnreadCount(ctx, roomID, userID)
}
