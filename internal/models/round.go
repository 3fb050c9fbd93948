package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the lifecycle state of a game round.
type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "active"
	RoundStatusCompleted RoundStatus = "completed"
	RoundStatusCancelled RoundStatus = "cancelled"
)

// Terminal reports whether a status can never transition again.
func (s RoundStatus) Terminal() bool {
	return s == RoundStatusCompleted || s == RoundStatusCancelled
}

// Round represents one timed instance of the guessing game, tied to
// exactly one guild channel. At most one active round exists per
// (guild_id, game_channel_id).
type Round struct {
	ID                uuid.UUID   `json:"id"`
	GuildID           string      `json:"guild_id"`
	GameChannelID     string      `json:"game_channel_id"`
	TargetMessageID   string      `json:"target_message_id"`
	TargetChannelID   string      `json:"target_channel_id"`
	TargetTimestampMS int64       `json:"target_timestamp_ms"`
	TargetAuthorID    *string     `json:"target_author_id,omitempty"`
	Status            RoundStatus `json:"status"`
	StartedAt         time.Time   `json:"started_at"`
	EndedAt           *time.Time  `json:"ended_at,omitempty"`
	// DeadlineAt is persisted at creation so timers can be re-armed
	// after a process restart.
	DeadlineAt *time.Time `json:"deadline_at,omitempty"`
}
