package service

import (
	"watch_party/internal/config"
	"watch_party/internal/repository"
	"watch_party/pkg/logger"
)

type Services struct {
	Auth       AuthService
	User       UserService
	Match      MatchService
	Room       RoomService
	Membership MembershipService
	Chat       ChatService
	RateLimit  RateLimitService
	Audit      AuditService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, broadcaster Broadcaster, log logger.Logger) *Services {
	order := newRoomSequence()
	auditSvc := NewAuditService(repos.Audit, log)
	chatSvc := NewChatService(repos.Message, repos.Membership, repos.Room, repos.User, broadcaster, order, cfg, log)
	roomSvc := NewRoomService(repos.Room, repos.Membership, repos.Match, repos.Guard, auditSvc, cfg, log)

	return &Services{
		Auth:       NewAuthService(repos.User, cfg, log),
		User:       NewUserService(repos.User, log),
		Match:      NewMatchService(repos.Match, roomSvc, log),
		Room:       roomSvc,
		Membership: NewMembershipService(repos.Room, repos.Membership, repos.User, repos.Guard, chatSvc, auditSvc, broadcaster, order, log),
		Chat:       chatSvc,
		RateLimit:  NewRateLimitService(repos.RateLimit, log),
		Audit:      auditSvc,
	}
}
