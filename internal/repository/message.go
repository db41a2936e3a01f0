package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"watch_party/internal/domain"
	"watch_party/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	// Recent returns the latest messages for a room in ascending
	// creation order, at most limit entries.
	Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (room_id, author_id, type, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.RoomID, message.AuthorID, message.Type, message.Content, message.CreatedAt,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err, "room_id", message.RoomID)
		return err
	}

	return nil
}

func (r *messageRepository) Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error) {
	// The inner query walks the index backwards to find the newest
	// rows; the outer one restores chronological order.
	query := `
		SELECT id, room_id, author_id, type, content, created_at, nickname, avatar_url
		FROM (
			SELECT msg.id, msg.room_id, msg.author_id, msg.type, msg.content, msg.created_at,
			       COALESCE(u.nickname, '') AS nickname, u.avatar_url
			FROM messages msg
			LEFT JOIN users u ON u.id = msg.author_id
			WHERE msg.room_id = $1
			ORDER BY msg.id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, roomID, limit)
	if err != nil {
		r.log.Error("Failed to get messages", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		err := rows.Scan(
			&message.ID, &message.RoomID, &message.AuthorID, &message.Type,
			&message.Content, &message.CreatedAt, &message.Nickname, &message.AvatarURL,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, nil
}
