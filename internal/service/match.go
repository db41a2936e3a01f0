package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"watch_party/internal/domain"
	"watch_party/internal/repository"
	"watch_party/pkg/logger"
)

type CreateMatchInput struct {
	HomeTeam    string
	AwayTeam    string
	League      string
	ScheduledAt time.Time
}

type MatchService interface {
	Create(ctx context.Context, creatorID uuid.UUID, in CreateMatchInput) (*domain.Match, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error)
	List(ctx context.Context, from time.Time, limit int) ([]*domain.Match, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type matchService struct {
	matchRepo repository.MatchRepository
	roomSvc   RoomService
	log       logger.Logger
}

func NewMatchService(matchRepo repository.MatchRepository, roomSvc RoomService, log logger.Logger) MatchService {
	return &matchService{matchRepo: matchRepo, roomSvc: roomSvc, log: log}
}

// Create registers a match and provisions its official room. Every
// match carries exactly one approval-free room from the moment it is
// visible to clients.
func (s *matchService) Create(ctx context.Context, creatorID uuid.UUID, in CreateMatchInput) (*domain.Match, error) {
	now := time.Now()
	match := &domain.Match{
		ID:          uuid.New(),
		HomeTeam:    in.HomeTeam,
		AwayTeam:    in.AwayTeam,
		League:      in.League,
		ScheduledAt: in.ScheduledAt,
		Status:      domain.MatchStatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.matchRepo.Create(ctx, match); err != nil {
		return nil, err
	}

	if _, err := s.roomSvc.EnsureOfficialRoom(ctx, match.ID, creatorID); err != nil {
		s.log.Error("Failed to provision official room", "error", err, "match_id", match.ID)
		return nil, err
	}

	s.log.Info("Match created", "match_id", match.ID, "home", in.HomeTeam, "away", in.AwayTeam)
	return match, nil
}

func (s *matchService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	return s.matchRepo.GetByID(ctx, id)
}

func (s *matchService) List(ctx context.Context, from time.Time, limit int) ([]*domain.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.matchRepo.List(ctx, from, limit)
}

func (s *matchService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if _, err := s.matchRepo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.matchRepo.UpdateStatus(ctx, id, status)
}
