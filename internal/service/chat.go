package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"watch_party/internal/config"
	"watch_party/internal/domain"
	"watch_party/internal/gateway"
	"watch_party/internal/repository"
	apperrors "watch_party/pkg/errors"
	"watch_party/pkg/logger"
)

const maxMessageLength = 1000

type ChatService interface {
	Send(ctx context.Context, roomID, authorID uuid.UUID, content string) (*domain.Message, error)
	// AppendSystem records a membership transition in the ledger and
	// fans it out. Author is nil; the row reads as a SYSTEM entry. The
	// caller must already hold the room's publish slot.
	AppendSystem(ctx context.Context, roomID uuid.UUID, content string) (*domain.Message, error)
	History(ctx context.Context, roomID, userID uuid.UUID, limit int) ([]*domain.Message, error)
}

type chatService struct {
	messageRepo    repository.MessageRepository
	membershipRepo repository.MembershipRepository
	roomRepo       repository.RoomRepository
	userRepo       repository.UserRepository
	broadcaster    Broadcaster
	order          *roomSequence
	cfg            *config.Config
	log            logger.Logger
}

func NewChatService(
	messageRepo repository.MessageRepository,
	membershipRepo repository.MembershipRepository,
	roomRepo repository.RoomRepository,
	userRepo repository.UserRepository,
	broadcaster Broadcaster,
	order *roomSequence,
	cfg *config.Config,
	log logger.Logger,
) ChatService {
	return &chatService{
		messageRepo:    messageRepo,
		membershipRepo: membershipRepo,
		roomRepo:       roomRepo,
		userRepo:       userRepo,
		broadcaster:    broadcaster,
		order:          order,
		cfg:            cfg,
		log:            log,
	}
}

func (s *chatService) Send(ctx context.Context, roomID, authorID uuid.UUID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Joinable() {
		return nil, apperrors.ErrForbidden
	}

	m, err := s.membershipRepo.Get(ctx, roomID, authorID)
	if err != nil {
		return nil, apperrors.ErrForbidden
	}
	if m.Status != domain.MembershipStatusJoined {
		return nil, apperrors.ErrForbidden
	}

	message := &domain.Message{
		RoomID:    roomID,
		AuthorID:  &authorID,
		Type:      domain.MessageTypeText,
		Content:   content,
		CreatedAt: time.Now(),
	}

	unlock := s.order.Lock(roomID)
	defer unlock()

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if author, err := s.userRepo.GetByID(ctx, authorID); err == nil {
		message.Nickname = author.Nickname
		message.AvatarURL = author.AvatarURL
	}

	s.broadcaster.Publish(roomID, gateway.NewReceiveMessage(message))
	return message, nil
}

func (s *chatService) AppendSystem(ctx context.Context, roomID uuid.UUID, content string) (*domain.Message, error) {
	message := &domain.Message{
		RoomID:    roomID,
		Type:      domain.MessageTypeSystem,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	s.broadcaster.Publish(roomID, gateway.NewReceiveMessage(message))
	return message, nil
}

// History returns the newest messages in ascending creation order,
// never more than the configured ledger cap.
func (s *chatService) History(ctx context.Context, roomID, userID uuid.UUID, limit int) ([]*domain.Message, error) {
	m, err := s.membershipRepo.Get(ctx, roomID, userID)
	if err != nil {
		return nil, apperrors.ErrForbidden
	}
	if m.Status != domain.MembershipStatusJoined {
		return nil, apperrors.ErrForbidden
	}

	if limit <= 0 || limit > s.cfg.Room.HistoryLimit {
		limit = s.cfg.Room.HistoryLimit
	}

	return s.messageRepo.Recent(ctx, roomID, limit)
}
