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

type MembershipRepository interface {
	Get(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error)
	Create(ctx context.Context, m *domain.Membership) error
	Update(ctx context.Context, m *domain.Membership) error
	ListByStatus(ctx context.Context, roomID uuid.UUID, status string) ([]*domain.Membership, error)
	CountJoined(ctx context.Context, roomID uuid.UUID) (int, error)
	UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error
	UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error)
}

type membershipRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMembershipRepository(db *pgxpool.Pool, log logger.Logger) MembershipRepository {
	return &membershipRepository{db: db, log: log}
}

const membershipColumns = `user_id, room_id, status, role, requested_at, decided_at, decided_by_user_id, joined_at, left_at, last_read_at, created_at, updated_at`

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := row.Scan(
		&m.UserID, &m.RoomID, &m.Status, &m.Role, &m.RequestedAt,
		&m.DecidedAt, &m.DecidedByUserID, &m.JoinedAt, &m.LeftAt, &m.LastReadAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *membershipRepository) Get(ctx context.Context, roomID, userID uuid.UUID) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE room_id = $1 AND user_id = $2`

	m, err := scanMembership(r.db.QueryRow(ctx, query, roomID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMembershipNotFound
		}
		r.log.Error("Failed to get membership", "error", err, "room_id", roomID, "user_id", userID)
		return nil, err
	}

	return m, nil
}

func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO memberships (user_id, room_id, status, role, requested_at, joined_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		m.UserID, m.RoomID, m.Status, m.Role, m.RequestedAt, m.JoinedAt, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to create membership", "error", err, "room_id", m.RoomID, "user_id", m.UserID)
		return err
	}

	return nil
}

func (r *membershipRepository) Update(ctx context.Context, m *domain.Membership) error {
	query := `
		UPDATE memberships
		SET status = $3, requested_at = $4, decided_at = $5, decided_by_user_id = $6,
		    joined_at = $7, left_at = $8, updated_at = $9
		WHERE room_id = $1 AND user_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		m.RoomID, m.UserID, m.Status, m.RequestedAt, m.DecidedAt, m.DecidedByUserID,
		m.JoinedAt, m.LeftAt, time.Now(),
	).Scan(&m.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrMembershipNotFound
		}
		r.log.Error("Failed to update membership", "error", err, "room_id", m.RoomID, "user_id", m.UserID)
		return err
	}

	return nil
}

func (r *membershipRepository) ListByStatus(ctx context.Context, roomID uuid.UUID, status string) ([]*domain.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE room_id = $1 AND status = $2
		ORDER BY requested_at ASC
	`

	rows, err := r.db.Query(ctx, query, roomID, status)
	if err != nil {
		r.log.Error("Failed to list memberships", "error", err, "room_id", roomID, "status", status)
		return nil, err
	}
	defer rows.Close()

	var memberships []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			r.log.Error("Failed to scan membership", "error", err)
			return nil, err
		}
		memberships = append(memberships, m)
	}

	return memberships, nil
}

// CountJoined derives occupancy from the rows themselves. There is no
// cached counter anywhere that could drift from this count.
func (r *membershipRepository) CountJoined(ctx context.Context, roomID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM memberships WHERE room_id = $1 AND status = $2`

	var count int
	err := r.db.QueryRow(ctx, query, roomID, domain.MembershipStatusJoined).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count joined memberships", "error", err, "room_id", roomID)
		return 0, err
	}

	return count, nil
}

func (r *membershipRepository) UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error {
	query := `UPDATE memberships SET last_read_at = $3, updated_at = now() WHERE room_id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, roomID, userID, at)
	if err != nil {
		r.log.Error("Failed to update last read", "error", err, "room_id", roomID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMembershipNotFound
	}

	return nil
}

func (r *membershipRepository) UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	// Own messages never count, and neither does anything sent before
	// the reader's seat existed.
	query := `
		SELECT count(*)
		FROM messages msg
		JOIN memberships m ON m.room_id = msg.room_id AND m.user_id = $2
		WHERE msg.room_id = $1
		  AND msg.author_id IS DISTINCT FROM $2
		  AND (m.joined_at IS NULL OR msg.created_at >= m.joined_at)
		  AND (m.last_read_at IS NULL OR msg.created_at > m.last_read_at)
	`

	var count int
	err := r.db.QueryRow(ctx, query, roomID, userID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count unread messages", "error", err, "room_id", roomID, "user_id", userID)
		return 0, err
	}

	return count, nil
}
