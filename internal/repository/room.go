package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"watch_party/internal/domain"
	apperrors "watch_party/pkg/errors"
	"watch_party/pkg/logger"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetOfficialByMatch(ctx context.Context, matchID uuid.UUID) (*domain.Room, error)
	ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

const roomColumns = `id, match_id, host_user_id, title, description, notice, capacity, status, requires_approval, deleted_at, created_at, updated_at`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID, &room.MatchID, &room.HostUserID, &room.Title, &room.Description, &room.Notice,
		&room.Capacity, &room.Status, &room.RequiresApproval, &room.DeletedAt,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO rooms (id, match_id, host_user_id, title, description, notice, capacity, status, requires_approval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		room.ID, room.MatchID, room.HostUserID, room.Title, room.Description, room.Notice,
		room.Capacity, room.Status, room.RequiresApproval, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.CreatedAt, &room.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to create room", "error", err)
		return err
	}

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 AND deleted_at IS NULL`

	room, err := scanRoom(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room", "error", err, "room_id", id)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) GetOfficialByMatch(ctx context.Context, matchID uuid.UUID) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE match_id = $1 AND requires_approval = FALSE AND deleted_at IS NULL`

	room, err := scanRoom(r.db.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get official room", "error", err, "match_id", matchID)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*domain.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE match_id = $1 AND deleted_at IS NULL
		ORDER BY requires_approval ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, matchID)
	if err != nil {
		r.log.Error("Failed to list rooms", "error", err, "match_id", matchID)
		return nil, err
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (r *roomRepository) Update(ctx context.Context, room *domain.Room) error {
	query := `
		UPDATE rooms
		SET title = $2, description = $3, notice = $4, capacity = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		room.ID, room.Title, room.Description, room.Notice, room.Capacity, time.Now(),
	).Scan(&room.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to update room", "error", err, "room_id", room.ID)
		return err
	}

	return nil
}

func (r *roomRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	// DELETED implies a non-null deleted_at; both are set together.
	query := `
		UPDATE rooms
		SET status = $2, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, domain.RoomStatusDeleted)
	if err != nil {
		r.log.Error("Failed to delete room", "error", err, "room_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRoomNotFound
	}

	return nil
}
