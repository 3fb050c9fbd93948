package round

import "errors"

var (
	// ErrRoundActive is returned by StartRound when the channel
	// already has a running round.
	ErrRoundActive = errors.New("a round is already active in this channel")

	// ErrNoActiveRound is returned when a guess or skip arrives with
	// no round running.
	ErrNoActiveRound = errors.New("no active round in this channel")

	// ErrRoundNotFound is returned when a round id does not exist.
	ErrRoundNotFound = errors.New("round not found")

	// ErrAlreadyGuessed is returned when a player submits a second
	// guess for the same round.
	ErrAlreadyGuessed = errors.New("player already guessed this round")

	// ErrBadTimeGuess is returned when the time guess cannot be
	// parsed. Nothing is persisted in that case.
	ErrBadTimeGuess = errors.New("unrecognized time guess")
)
