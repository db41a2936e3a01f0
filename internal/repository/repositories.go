package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"watch_party/pkg/logger"
)

type Repositories struct {
	User       UserRepository
	Match      MatchRepository
	Room       RoomRepository
	Membership MembershipRepository
	Guard      CapacityGuard
	Message    MessageRepository
	Audit      AuditRepository
	RateLimit  RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db, log),
		Match:      NewMatchRepository(db, log),
		Room:       NewRoomRepository(db, log),
		Membership: NewMembershipRepository(db, log),
		Guard:      NewCapacityGuard(db, log),
		Message:    NewMessageRepository(db, log),
		Audit:      NewAuditRepository(db, log),
		RateLimit:  NewRateLimitRepository(redis, log),
	}
}
