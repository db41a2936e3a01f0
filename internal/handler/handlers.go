package handler

import (
	"watch_party/internal/config"
	"watch_party/internal/gateway"
	"watch_party/internal/service"
	"watch_party/pkg/logger"
)

type Handlers struct {
	Health     *HealthHandler
	Auth       *AuthHandler
	User       *UserHandler
	Match      *MatchHandler
	Room       *RoomHandler
	Membership *MembershipHandler
	Chat       *ChatHandler
	WebSocket  *WebSocketHandler
}

func NewHandlers(services *service.Services, gw *gateway.Gateway, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(cfg),
		Auth:       NewAuthHandler(services.Auth, log),
		User:       NewUserHandler(services.User, log),
		Match:      NewMatchHandler(services.Match, services.Room, log),
		Room:       NewRoomHandler(services.Room, log),
		Membership: NewMembershipHandler(services.Membership, log),
		Chat:       NewChatHandler(services.Chat, log),
		WebSocket:  NewWebSocketHandler(gw, services.Auth, services.Membership, services.Chat, log),
	}
}
