// Package scoring computes points for guesses. All functions are pure;
// point values and tier boundaries are configuration.
package scoring

const msPerDay = 1000 * 60 * 60 * 24

// TimeTier awards Points when the guess is within MaxDays of the
// target. Tiers are evaluated in order, so they must be sorted by
// ascending MaxDays.
type TimeTier struct {
	MaxDays float64
	Points  int
}

// Config holds the tunable scoring parameters.
type Config struct {
	ChannelPoints int
	AuthorPoints  int
	TimeTiers     []TimeTier
}

// DefaultConfig returns the standard scoring table: 500 points each for
// channel and author, and time points of 1000/500/300 at 1/16/46 days.
func DefaultConfig() Config {
	return Config{
		ChannelPoints: 500,
		AuthorPoints:  500,
		TimeTiers: []TimeTier{
			{MaxDays: 1, Points: 1000},
			{MaxDays: 16, Points: 500},
			{MaxDays: 46, Points: 300},
		},
	}
}

// TimeScore awards points based on the absolute day difference between
// the guessed and actual timestamps. Outside the last tier the score
// is zero.
func (c Config) TimeScore(guessedMS, actualMS int64) int {
	diff := guessedMS - actualMS
	if diff < 0 {
		diff = -diff
	}
	days := float64(diff) / msPerDay
	for _, tier := range c.TimeTiers {
		if days <= tier.MaxDays {
			return tier.Points
		}
	}
	return 0
}

// MaxTimeScore returns the points of the tightest tier.
func (c Config) MaxTimeScore() int {
	if len(c.TimeTiers) == 0 {
		return 0
	}
	return c.TimeTiers[0].Points
}

// TotalScore sums the channel, time and author components.
func (c Config) TotalScore(channelCorrect bool, timeScore int, authorCorrect bool) int {
	total := timeScore
	if channelCorrect {
		total += c.ChannelPoints
	}
	if authorCorrect {
		total += c.AuthorPoints
	}
	return total
}

// IsPerfect reports whether a guess nailed channel, time and author.
func (c Config) IsPerfect(channelCorrect bool, timeScore int, authorCorrect bool) bool {
	return channelCorrect && authorCorrect && timeScore == c.MaxTimeScore()
}
