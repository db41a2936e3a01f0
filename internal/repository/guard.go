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

// GuardOutcome reports the state after a guarded transition committed:
// the mutated membership row, the derived occupancy and the room
// status the transition settled on.
type GuardOutcome struct {
	Membership *domain.Membership
	Occupancy  int
	RoomStatus string
}

// CapacityGuard serializes every occupancy-changing transition behind
// the room's row lock. Approve is the only transition that can
// overflow capacity; Remove re-derives the OPEN/FULL status after a
// kick or leave. Nothing else in the codebase may write occupancy.
type CapacityGuard interface {
	Approve(ctx context.Context, roomID, userID, decidedBy uuid.UUID) (*GuardOutcome, error)
	Remove(ctx context.Context, roomID, userID uuid.UUID, target string) (*GuardOutcome, error)
	AdmitDirect(ctx context.Context, roomID, userID uuid.UUID, m *domain.Membership) (*GuardOutcome, error)
}

type capacityGuard struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewCapacityGuard(db *pgxpool.Pool, log logger.Logger) CapacityGuard {
	return &capacityGuard{db: db, log: log}
}

// lockRoom acquires the row lock that serializes all occupancy
// decisions for one room.
func (g *capacityGuard) lockRoom(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	room, err := scanRoom(tx.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		g.log.Error("Failed to lock room", "error", err, "room_id", roomID)
		return nil, apperrors.ErrStoreUnavailable
	}

	return room, nil
}

func (g *capacityGuard) getMembership(ctx context.Context, tx pgx.Tx, roomID, userID uuid.UUID) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE room_id = $1 AND user_id = $2`

	m, err := scanMembership(tx.QueryRow(ctx, query, roomID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMembershipNotFound
		}
		return nil, apperrors.ErrStoreUnavailable
	}

	return m, nil
}

func (g *capacityGuard) countJoined(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`SELECT count(*) FROM memberships WHERE room_id = $1 AND status = $2`,
		roomID, domain.MembershipStatusJoined,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.ErrStoreUnavailable
	}
	return count, nil
}

func (g *capacityGuard) setRoomStatus(ctx context.Context, tx pgx.Tx, roomID uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE rooms SET status = $2, updated_at = now() WHERE id = $1`, roomID, status)
	if err != nil {
		g.log.Error("Failed to set room status", "error", err, "room_id", roomID, "status", status)
		return apperrors.ErrStoreUnavailable
	}
	return nil
}

func (g *capacityGuard) updateMembership(ctx context.Context, tx pgx.Tx, m *domain.Membership) error {
	query := `
		UPDATE memberships
		SET status = $3, decided_at = $4, decided_by_user_id = $5, joined_at = $6, left_at = $7, updated_at = now()
		WHERE room_id = $1 AND user_id = $2
	`

	_, err := tx.Exec(ctx, query,
		m.RoomID, m.UserID, m.Status, m.DecidedAt, m.DecidedByUserID, m.JoinedAt, m.LeftAt,
	)
	if err != nil {
		g.log.Error("Failed to update membership in guard", "error", err, "room_id", m.RoomID, "user_id", m.UserID)
		return apperrors.ErrStoreUnavailable
	}
	return nil
}

// Approve flips a PENDING row to JOINED while holding the room lock.
// If the room is already at capacity the transaction aborts with
// ROOM_FULL and the PENDING row stays untouched so the host may retry
// against a different applicant.
func (g *capacityGuard) Approve(ctx context.Context, roomID, userID, decidedBy uuid.UUID) (*GuardOutcome, error) {
	var outcome *GuardOutcome

	err := withinTx(ctx, g.db, func(tx pgx.Tx) error {
		room, err := g.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if !room.Joinable() {
			return apperrors.ErrInvalidTransition
		}

		m, err := g.getMembership(ctx, tx, roomID, userID)
		if err != nil {
			return err
		}
		if m.Status != domain.MembershipStatusPending {
			return apperrors.ErrInvalidTransition
		}

		occupancy, err := g.countJoined(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if occupancy >= room.Capacity {
			return apperrors.ErrRoomFull
		}

		now := time.Now()
		m.Status = domain.MembershipStatusJoined
		m.DecidedAt = &now
		m.DecidedByUserID = &decidedBy
		m.JoinedAt = &now
		m.LeftAt = nil
		if err := g.updateMembership(ctx, tx, m); err != nil {
			return err
		}

		occupancy++
		status := domain.RoomStatusOpen
		if occupancy >= room.Capacity {
			status = domain.RoomStatusFull
		}
		if status != room.Status {
			if err := g.setRoomStatus(ctx, tx, roomID, status); err != nil {
				return err
			}
		}

		outcome = &GuardOutcome{Membership: m, Occupancy: occupancy, RoomStatus: status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

// Remove transitions a JOINED row to LEFT or KICKED and flips a FULL
// room back to OPEN when a seat frees up.
func (g *capacityGuard) Remove(ctx context.Context, roomID, userID uuid.UUID, target string) (*GuardOutcome, error) {
	if target != domain.MembershipStatusLeft && target != domain.MembershipStatusKicked {
		return nil, apperrors.ErrInvalidTransition
	}

	var outcome *GuardOutcome

	err := withinTx(ctx, g.db, func(tx pgx.Tx) error {
		room, err := g.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}

		m, err := g.getMembership(ctx, tx, roomID, userID)
		if err != nil {
			return err
		}
		if m.Status != domain.MembershipStatusJoined {
			return apperrors.ErrInvalidTransition
		}

		now := time.Now()
		m.Status = target
		m.LeftAt = &now
		if err := g.updateMembership(ctx, tx, m); err != nil {
			return err
		}

		occupancy, err := g.countJoined(ctx, tx, roomID)
		if err != nil {
			return err
		}

		status := room.Status
		if occupancy < room.Capacity && room.Status == domain.RoomStatusFull {
			status = domain.RoomStatusOpen
			if err := g.setRoomStatus(ctx, tx, roomID, status); err != nil {
				return err
			}
		}

		outcome = &GuardOutcome{Membership: m, Occupancy: occupancy, RoomStatus: status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

// AdmitDirect inserts or revives a membership straight to JOINED.
// Used for approval-free rooms and for the host row at room creation.
// It still takes the room lock so the occupancy it reports is
// consistent with concurrent guard transitions. Entry to approval-free
// rooms is unbounded; only approval-gated rooms enforce capacity here.
func (g *capacityGuard) AdmitDirect(ctx context.Context, roomID, userID uuid.UUID, m *domain.Membership) (*GuardOutcome, error) {
	var outcome *GuardOutcome

	err := withinTx(ctx, g.db, func(tx pgx.Tx) error {
		room, err := g.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if !room.Joinable() {
			return apperrors.ErrInvalidTransition
		}

		occupancy, err := g.countJoined(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.RequiresApproval && occupancy >= room.Capacity {
			return apperrors.ErrRoomFull
		}

		existing, err := g.getMembership(ctx, tx, roomID, userID)
		switch {
		case err == nil:
			if existing.Status == domain.MembershipStatusKicked {
				return apperrors.ErrBannedFromRoom
			}
			if existing.Status == domain.MembershipStatusJoined {
				return apperrors.ErrInvalidTransition
			}
			now := time.Now()
			existing.Status = domain.MembershipStatusJoined
			existing.JoinedAt = &now
			existing.LeftAt = nil
			if err := g.updateMembership(ctx, tx, existing); err != nil {
				return err
			}
			m = existing
		case errors.Is(err, apperrors.ErrMembershipNotFound):
			query := `
				INSERT INTO memberships (user_id, room_id, status, role, requested_at, joined_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`
			if _, err := tx.Exec(ctx, query,
				m.UserID, m.RoomID, m.Status, m.Role, m.RequestedAt, m.JoinedAt,
			); err != nil {
				g.log.Error("Failed to insert membership in guard", "error", err, "room_id", roomID, "user_id", userID)
				return apperrors.ErrStoreUnavailable
			}
		default:
			return err
		}

		occupancy++
		status := room.Status
		if room.RequiresApproval {
			status = domain.RoomStatusOpen
			if occupancy >= room.Capacity {
				status = domain.RoomStatusFull
			}
			if status != room.Status {
				if err := g.setRoomStatus(ctx, tx, roomID, status); err != nil {
					return err
				}
			}
		}

		outcome = &GuardOutcome{Membership: m, Occupancy: occupancy, RoomStatus: status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}
