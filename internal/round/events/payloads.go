package events

import (
	"time"

	"github.com/channelguessr/core/internal/models"
)

// Event payloads published for the presentation layer. The adapter
// renders these into chat messages; no formatting happens here.

// MessageSnapshot carries the fields of a chat message the presenter
// needs to render an excerpt.
type MessageSnapshot struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	AuthorID    string `json:"author_id"`
	Content     string `json:"content"`
	Attachments int    `json:"attachments"`
	Embeds      int    `json:"embeds"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Snapshot converts a chat message into its event representation.
func Snapshot(m models.Message) MessageSnapshot {
	return MessageSnapshot{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		Attachments: m.Attachments,
		Embeds:      m.Embeds,
		TimestampMS: m.TimestampMS,
	}
}

// Snapshots converts a slice of messages.
func Snapshots(msgs []models.Message) []MessageSnapshot {
	out := make([]MessageSnapshot, len(msgs))
	for i, m := range msgs {
		out[i] = Snapshot(m)
	}
	return out
}

// RoundStartedPayload is published when a round begins.
type RoundStartedPayload struct {
	RoundID       string            `json:"round_id"`
	GuildID       string            `json:"guild_id"`
	GameChannelID string            `json:"game_channel_id"`
	RoundNumber   int               `json:"round_number"`
	StartedAt     time.Time         `json:"started_at"`
	DeadlineAt    time.Time         `json:"deadline_at"`
	TimeoutSec    int               `json:"timeout_sec"`
	Target        MessageSnapshot   `json:"target"`
	ContextBefore []MessageSnapshot `json:"context_before,omitempty"`
	ContextAfter  []MessageSnapshot `json:"context_after,omitempty"`
}

// GuessAcceptedPayload is published when a guess is stored.
type GuessAcceptedPayload struct {
	RoundID     string    `json:"round_id"`
	GuildID     string    `json:"guild_id"`
	PlayerID    string    `json:"player_id"`
	TotalScore  int       `json:"total_score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RoundWarningPayload is published shortly before a round's deadline.
type RoundWarningPayload struct {
	RoundID       string `json:"round_id"`
	GuildID       string `json:"guild_id"`
	GameChannelID string `json:"game_channel_id"`
	RemainingSec  int    `json:"remaining_sec"`
}

// PlayerResult is one scored guess inside a RoundEndedPayload.
type PlayerResult struct {
	PlayerID       string `json:"player_id"`
	ChannelCorrect bool   `json:"channel_correct"`
	AuthorCorrect  bool   `json:"author_correct"`
	TimeScore      int    `json:"time_score"`
	TotalScore     int    `json:"total_score"`
	Perfect        bool   `json:"perfect"`
}

// RoundEndedPayload is published when a round completes or is
// cancelled. Results are ordered by descending total score.
type RoundEndedPayload struct {
	RoundID           string         `json:"round_id"`
	GuildID           string         `json:"guild_id"`
	GameChannelID     string         `json:"game_channel_id"`
	Status            string         `json:"status"`
	EndedAt           time.Time      `json:"ended_at"`
	TargetMessageID   string         `json:"target_message_id"`
	TargetChannelID   string         `json:"target_channel_id"`
	TargetTimestampMS int64          `json:"target_timestamp_ms"`
	TargetAuthorID    *string        `json:"target_author_id,omitempty"`
	TargetDeleted     bool           `json:"target_deleted,omitempty"`
	Results           []PlayerResult `json:"results"`
}
