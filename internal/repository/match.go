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

type MatchRepository interface {
	Create(ctx context.Context, match *domain.Match) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error)
	List(ctx context.Context, from time.Time, limit int) ([]*domain.Match, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type matchRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMatchRepository(db *pgxpool.Pool, log logger.Logger) MatchRepository {
	return &matchRepository{db: db, log: log}
}

func (r *matchRepository) Create(ctx context.Context, match *domain.Match) error {
	query := `
		INSERT INTO matches (id, home_team, away_team, league, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		match.ID, match.HomeTeam, match.AwayTeam, match.League,
		match.ScheduledAt, match.Status, match.CreatedAt, match.UpdatedAt,
	).Scan(&match.CreatedAt, &match.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to create match", "error", err)
		return err
	}

	return nil
}

func (r *matchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	query := `
		SELECT id, home_team, away_team, league, scheduled_at, status, created_at, updated_at
		FROM matches
		WHERE id = $1
	`

	match := &domain.Match{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&match.ID, &match.HomeTeam, &match.AwayTeam, &match.League,
		&match.ScheduledAt, &match.Status, &match.CreatedAt, &match.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMatchNotFound
		}
		r.log.Error("Failed to get match", "error", err, "match_id", id)
		return nil, err
	}

	match.Status = domain.NormalizeMatchStatus(match.Status)
	return match, nil
}

func (r *matchRepository) List(ctx context.Context, from time.Time, limit int) ([]*domain.Match, error) {
	query := `
		SELECT id, home_team, away_team, league, scheduled_at, status, created_at, updated_at
		FROM matches
		WHERE scheduled_at >= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, from, limit)
	if err != nil {
		r.log.Error("Failed to list matches", "error", err)
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.Match
	for rows.Next() {
		match := &domain.Match{}
		err := rows.Scan(
			&match.ID, &match.HomeTeam, &match.AwayTeam, &match.League,
			&match.ScheduledAt, &match.Status, &match.CreatedAt, &match.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan match", "error", err)
			return nil, err
		}
		match.Status = domain.NormalizeMatchStatus(match.Status)
		matches = append(matches, match)
	}

	return matches, nil
}

func (r *matchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE matches SET status = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, domain.NormalizeMatchStatus(status))
	if err != nil {
		r.log.Error("Failed to update match status", "error", err, "match_id", id)
		return err
	}
	return nil
}
