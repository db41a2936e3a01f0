package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"watch_party/internal/config"
	"watch_party/internal/domain"
	"watch_party/internal/repository"
	apperrors "watch_party/pkg/errors"
	"watch_party/pkg/logger"
)

type CreateRoomInput struct {
	MatchID     uuid.UUID
	Title       string
	Description *string
	Capacity    int
}

type UpdateRoomInput struct {
	Title       *string
	Description *string
	Notice      *string
}

// RoomInfo is a room plus its derived counters. Occupancy is always
// counted from membership rows at read time, never cached.
type RoomInfo struct {
	Room         *domain.Room `json:"room"`
	CurrentCount int          `json:"current_count"`
	PendingCount int          `json:"pending_count"`
}

type RoomService interface {
	Create(ctx context.Context, hostID uuid.UUID, in CreateRoomInput) (*domain.Room, error)
	GetInfo(ctx context.Context, roomID uuid.UUID) (*RoomInfo, error)
	ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*RoomInfo, error)
	Update(ctx context.Context, roomID, hostID uuid.UUID, in UpdateRoomInput) (*domain.Room, error)
	Delete(ctx context.Context, roomID, hostID uuid.UUID) error
	EnsureOfficialRoom(ctx context.Context, matchID, creatorID uuid.UUID) (*domain.Room, error)
}

type roomService struct {
	roomRepo       repository.RoomRepository
	membershipRepo repository.MembershipRepository
	matchRepo      repository.MatchRepository
	guard          repository.CapacityGuard
	auditSvc       AuditService
	cfg            *config.Config
	log            logger.Logger
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	membershipRepo repository.MembershipRepository,
	matchRepo repository.MatchRepository,
	guard repository.CapacityGuard,
	auditSvc AuditService,
	cfg *config.Config,
	log logger.Logger,
) RoomService {
	return &roomService{
		roomRepo:       roomRepo,
		membershipRepo: membershipRepo,
		matchRepo:      matchRepo,
		guard:          guard,
		auditSvc:       auditSvc,
		cfg:            cfg,
		log:            log,
	}
}

// Create opens a fan room for a match. The creator becomes the host
// and is seated immediately; capacity is fixed for the life of the
// room.
func (s *roomService) Create(ctx context.Context, hostID uuid.UUID, in CreateRoomInput) (*domain.Room, error) {
	if _, err := s.matchRepo.GetByID(ctx, in.MatchID); err != nil {
		return nil, err
	}

	capacity := in.Capacity
	if capacity <= 0 {
		capacity = s.cfg.Room.DefaultCapacity
	}
	if capacity > s.cfg.Room.MaxCapacity {
		return nil, apperrors.ErrBadRequest
	}

	now := time.Now()
	room := &domain.Room{
		ID:               uuid.New(),
		MatchID:          in.MatchID,
		HostUserID:       hostID,
		Title:            in.Title,
		Description:      in.Description,
		Capacity:         capacity,
		Status:           domain.RoomStatusOpen,
		RequiresApproval: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	host := &domain.Membership{
		UserID:      hostID,
		RoomID:      room.ID,
		Status:      domain.MembershipStatusJoined,
		Role:        domain.MembershipRoleHost,
		RequestedAt: now,
		JoinedAt:    &now,
	}
	// Seating the host through the guard keeps the OPEN/FULL flip
	// correct even for a capacity-one room.
	outcome, err := s.guard.AdmitDirect(ctx, room.ID, hostID, host)
	if err != nil {
		s.log.Error("Failed to seat host", "error", err, "room_id", room.ID, "host_id", hostID)
		return nil, err
	}
	room.Status = outcome.RoomStatus

	s.auditSvc.Record(ctx, &hostID, domain.ActorRoleHost, &room.ID, domain.EventTypeRoomCreated, map[string]interface{}{
		"match_id": in.MatchID.String(),
		"capacity": capacity,
	})

	s.log.Info("Room created", "room_id", room.ID, "match_id", in.MatchID, "host_id", hostID)
	return room, nil
}

func (s *roomService) GetInfo(ctx context.Context, roomID uuid.UUID) (*RoomInfo, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.assembleInfo(ctx, room)
}

func (s *roomService) ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*RoomInfo, error) {
	rooms, err := s.roomRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	infos := make([]*RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		info, err := s.assembleInfo(ctx, room)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *roomService) Update(ctx context.Context, roomID, hostID uuid.UUID, in UpdateRoomInput) (*domain.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostUserID != hostID {
		return nil, apperrors.ErrNotHost
	}

	if in.Title != nil {
		room.Title = *in.Title
	}
	if in.Description != nil {
		room.Description = in.Description
	}
	if in.Notice != nil {
		room.Notice = in.Notice
	}

	if err := s.roomRepo.Update(ctx, room); err != nil {
		return nil, err
	}

	s.auditSvc.Record(ctx, &hostID, domain.ActorRoleHost, &roomID, domain.EventTypeRoomUpdated, nil)
	return room, nil
}

func (s *roomService) Delete(ctx context.Context, roomID, hostID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostUserID != hostID {
		return apperrors.ErrNotHost
	}

	if err := s.roomRepo.SoftDelete(ctx, roomID); err != nil {
		return err
	}

	s.auditSvc.Record(ctx, &hostID, domain.ActorRoleHost, &roomID, domain.EventTypeRoomDeleted, nil)
	s.log.Info("Room deleted", "room_id", roomID, "host_id", hostID)
	return nil
}

// EnsureOfficialRoom returns the match's approval-free room, creating
// it on first call. A partial unique index guards against a concurrent
// double-create; the loser of that race re-reads.
func (s *roomService) EnsureOfficialRoom(ctx context.Context, matchID, creatorID uuid.UUID) (*domain.Room, error) {
	room, err := s.roomRepo.GetOfficialByMatch(ctx, matchID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, apperrors.ErrRoomNotFound) {
		return nil, err
	}

	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	room = &domain.Room{
		ID:               uuid.New(),
		MatchID:          matchID,
		HostUserID:       creatorID,
		Title:            fmt.Sprintf("%s vs %s", match.HomeTeam, match.AwayTeam),
		Capacity:         s.cfg.Room.MaxCapacity,
		Status:           domain.RoomStatusOpen,
		RequiresApproval: false,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		if existing, getErr := s.roomRepo.GetOfficialByMatch(ctx, matchID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.auditSvc.Record(ctx, &creatorID, domain.ActorRoleSystem, &room.ID, domain.EventTypeRoomCreated, map[string]interface{}{
		"match_id": matchID.String(),
		"official": true,
	})
	return room, nil
}

func (s *roomService) assembleInfo(ctx context.Context, room *domain.Room) (*RoomInfo, error) {
	count, err := s.membershipRepo.CountJoined(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	pending, err := s.membershipRepo.ListByStatus(ctx, room.ID, domain.MembershipStatusPending)
	if err != nil {
		return nil, err
	}

	return &RoomInfo{Room: room, CurrentCount: count, PendingCount: len(pending)}, nil
}
