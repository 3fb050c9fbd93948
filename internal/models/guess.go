package models

import (
	"time"

	"github.com/google/uuid"
)

// Guess is a single player's answer for a round. Unique per
// (round_id, player_id); never mutated after insertion.
type Guess struct {
	RoundID            uuid.UUID  `json:"round_id"`
	PlayerID           string     `json:"player_id"`
	GuessedChannelID   *string    `json:"guessed_channel_id,omitempty"`
	GuessedTimestampMS *int64     `json:"guessed_timestamp_ms,omitempty"`
	GuessedAuthorID    *string    `json:"guessed_author_id,omitempty"`
	ChannelCorrect     bool       `json:"channel_correct"`
	AuthorCorrect      bool       `json:"author_correct"`
	TimeScore          int        `json:"time_score"`
	SubmittedAt        time.Time  `json:"submitted_at"`
}
