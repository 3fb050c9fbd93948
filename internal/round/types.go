package round

import (
	"time"

	"github.com/channelguessr/core/internal/models"
)

// Config holds the round timing defaults.
type Config struct {
	RoundTimeout    time.Duration
	WarningLead     time.Duration // how long before the deadline the warning fires
	ContextMessages int           // excerpt context fetched around the target
}

// DefaultConfig mirrors the production defaults: one minute rounds,
// a ten second warning, five context messages either side.
func DefaultConfig() Config {
	return Config{
		RoundTimeout:    60 * time.Second,
		WarningLead:     10 * time.Second,
		ContextMessages: 5,
	}
}

// StartOptions overrides per-round timing when set.
type StartOptions struct {
	ContextMessages *int
	Timeout         *time.Duration
}

// StartRoundResult is the structured payload handed to the
// presentation layer when a round begins.
type StartRoundResult struct {
	Round         *models.Round
	RoundNumber   int
	Target        models.Message
	TargetChannel models.Channel
	ContextBefore []models.Message
	ContextAfter  []models.Message
	Deadline      time.Time
}

// GuessRequest is a raw guess as received from the command layer.
type GuessRequest struct {
	PlayerID  string
	ChannelID string
	When      string // free-form time guess, parsed by timeparse
	AuthorID  *string
}

// GuessResult is the score preview returned to the guesser.
type GuessResult struct {
	ChannelCorrect bool
	AuthorCorrect  bool
	TimeScore      int
	TotalScore     int
}

// PlayerResult is one scored guess in a round summary.
type PlayerResult struct {
	PlayerID       string
	ChannelCorrect bool
	AuthorCorrect  bool
	TimeScore      int
	TotalScore     int
	Perfect        bool
}

// Summary describes a finished round: the revealed target plus all
// scored guesses, ordered by descending total score. TargetDeleted is
// set when the target message no longer exists at reveal time.
type Summary struct {
	Round         *models.Round
	Results       []PlayerResult
	TargetDeleted bool
}
