package models

// PlayerScore is a player's cumulative standing within a guild.
// Upserted additively every time a round ends.
type PlayerScore struct {
	GuildID        string `json:"guild_id"`
	PlayerID       string `json:"player_id"`
	TotalScore     int64  `json:"total_score"`
	RoundsPlayed   int    `json:"rounds_played"`
	PerfectGuesses int    `json:"perfect_guesses"`
}

// UserDataDeletion reports how much of a user's data was erased.
type UserDataDeletion struct {
	Guesses int64 `json:"guesses"`
	Scores  int64 `json:"scores"`
}
