package domain

import (
	"time"

	"github.com/google/uuid"
)

// Match is the scheduled event a watch-party room is scoped to.
// Each match has exactly one official room with unrestricted entry.
type Match struct {
	ID          uuid.UUID `json:"id"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	League      string    `json:"league"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	MatchStatusScheduled = "SCHEDULED"
	MatchStatusLive      = "LIVE"
	MatchStatusEnded     = "ENDED"
	MatchStatusCancelled = "CANCELLED"

	// Legacy rows written by an earlier ingestion job. Normalized to
	// ENDED on read, never written anymore.
	matchStatusCompleted = "COMPLETED"
)

// NormalizeMatchStatus folds the legacy COMPLETED token into ENDED.
func NormalizeMatchStatus(status string) string {
	if status == matchStatusCompleted {
		return MatchStatusEnded
	}
	return status
}
