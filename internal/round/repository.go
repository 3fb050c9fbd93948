package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/channelguessr/core/internal/models"
)

// DBTX is the subset of pgx a Repository needs; satisfied by
// *pgxpool.Pool and pgx.Tx alike.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements round data access on Postgres.
type Repository struct {
	db DBTX
}

// NewRepository creates a round repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const roundColumns = `id, guild_id, game_channel_id, target_message_id, target_channel_id,
	target_timestamp_ms, target_author_id, status, started_at, ended_at, deadline_at`

func scanRound(row pgx.Row) (*models.Round, error) {
	var r models.Round
	err := row.Scan(
		&r.ID, &r.GuildID, &r.GameChannelID, &r.TargetMessageID, &r.TargetChannelID,
		&r.TargetTimestampMS, &r.TargetAuthorID, &r.Status, &r.StartedAt, &r.EndedAt, &r.DeadlineAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRound persists a new round record.
func (r *Repository) CreateRound(ctx context.Context, round *models.Round) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO game_rounds
			(id, guild_id, game_channel_id, target_message_id, target_channel_id,
			 target_timestamp_ms, target_author_id, status, started_at, deadline_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		round.ID, round.GuildID, round.GameChannelID, round.TargetMessageID,
		round.TargetChannelID, round.TargetTimestampMS, round.TargetAuthorID,
		round.Status, round.StartedAt, round.DeadlineAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

// GetRound fetches a round by id. Returns ErrRoundNotFound when
// absent.
func (r *Repository) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	round, err := scanRound(r.db.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM game_rounds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

// GetActiveRound returns the active round for a channel, or nil when
// there is none.
func (r *Repository) GetActiveRound(ctx context.Context, guildID, gameChannelID string) (*models.Round, error) {
	round, err := scanRound(r.db.QueryRow(ctx, `
		SELECT `+roundColumns+` FROM game_rounds
		WHERE guild_id = $1 AND game_channel_id = $2 AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1`,
		guildID, gameChannelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active round: %w", err)
	}
	return round, nil
}

// EndRound marks an active round with a terminal status. Returns false
// when the round was not active, which makes double-processing a
// visible no-op for the caller.
func (r *Repository) EndRound(ctx context.Context, id uuid.UUID, status models.RoundStatus, endedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE game_rounds
		SET status = $2, ended_at = $3
		WHERE id = $1 AND status = 'active'`,
		id, status, endedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to end round: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountRounds returns how many rounds a guild has played.
func (r *Repository) CountRounds(ctx context.Context, guildID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_rounds WHERE guild_id = $1`, guildID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rounds: %w", err)
	}
	return count, nil
}

// ListActiveRounds returns every round with status active, for timer
// restoration after a restart.
func (r *Repository) ListActiveRounds(ctx context.Context) ([]models.Round, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+roundColumns+` FROM game_rounds WHERE status = 'active' ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rounds: %w", err)
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active round: %w", err)
		}
		rounds = append(rounds, *round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list active rounds: %w", err)
	}
	return rounds, nil
}

// InsertGuess stores a guess if the player has none for this round
// yet. Returns false when a guess already existed; the conditional
// insert is the authoritative duplicate guard.
func (r *Repository) InsertGuess(ctx context.Context, g *models.Guess) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO guesses
			(round_id, player_id, guessed_channel_id, guessed_timestamp_ms,
			 guessed_author_id, channel_correct, author_correct, time_score, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (round_id, player_id) DO NOTHING`,
		g.RoundID, g.PlayerID, g.GuessedChannelID, g.GuessedTimestampMS,
		g.GuessedAuthorID, g.ChannelCorrect, g.AuthorCorrect, g.TimeScore, g.SubmittedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert guess: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasGuessed reports whether a player already guessed in a round.
func (r *Repository) HasGuessed(ctx context.Context, roundID uuid.UUID, playerID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM guesses WHERE round_id = $1 AND player_id = $2)`,
		roundID, playerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check guess: %w", err)
	}
	return exists, nil
}

// ListGuesses returns all guesses for a round in submission order.
func (r *Repository) ListGuesses(ctx context.Context, roundID uuid.UUID) ([]models.Guess, error) {
	rows, err := r.db.Query(ctx, `
		SELECT round_id, player_id, guessed_channel_id, guessed_timestamp_ms,
			guessed_author_id, channel_correct, author_correct, time_score, submitted_at
		FROM guesses
		WHERE round_id = $1
		ORDER BY submitted_at`,
		roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guesses: %w", err)
	}
	defer rows.Close()

	var guesses []models.Guess
	for rows.Next() {
		var g models.Guess
		err := rows.Scan(
			&g.RoundID, &g.PlayerID, &g.GuessedChannelID, &g.GuessedTimestampMS,
			&g.GuessedAuthorID, &g.ChannelCorrect, &g.AuthorCorrect, &g.TimeScore, &g.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guess: %w", err)
		}
		guesses = append(guesses, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list guesses: %w", err)
	}
	return guesses, nil
}

// UpsertPlayerScore merges a round's points into the player's
// cumulative standing.
func (r *Repository) UpsertPlayerScore(ctx context.Context, guildID, playerID string, points int, perfect bool) error {
	perfectInc := 0
	if perfect {
		perfectInc = 1
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO player_scores (guild_id, player_id, total_score, rounds_played, perfect_guesses)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (guild_id, player_id) DO UPDATE SET
			total_score = player_scores.total_score + EXCLUDED.total_score,
			rounds_played = player_scores.rounds_played + 1,
			perfect_guesses = player_scores.perfect_guesses + EXCLUDED.perfect_guesses`,
		guildID, playerID, points, perfectInc,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player score: %w", err)
	}
	return nil
}

// Leaderboard returns the top players of a guild by total score.
func (r *Repository) Leaderboard(ctx context.Context, guildID string, limit int) ([]models.PlayerScore, error) {
	rows, err := r.db.Query(ctx, `
		SELECT guild_id, player_id, total_score, rounds_played, perfect_guesses
		FROM player_scores
		WHERE guild_id = $1
		ORDER BY total_score DESC
		LIMIT $2`,
		guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var scores []models.PlayerScore
	for rows.Next() {
		var s models.PlayerScore
		if err := rows.Scan(&s.GuildID, &s.PlayerID, &s.TotalScore, &s.RoundsPlayed, &s.PerfectGuesses); err != nil {
			return nil, fmt.Errorf("failed to scan player score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return scores, nil
}

// PlayerStats returns a player's standing, or nil if they never
// scored.
func (r *Repository) PlayerStats(ctx context.Context, guildID, playerID string) (*models.PlayerScore, error) {
	var s models.PlayerScore
	err := r.db.QueryRow(ctx, `
		SELECT guild_id, player_id, total_score, rounds_played, perfect_guesses
		FROM player_scores
		WHERE guild_id = $1 AND player_id = $2`,
		guildID, playerID).Scan(&s.GuildID, &s.PlayerID, &s.TotalScore, &s.RoundsPlayed, &s.PerfectGuesses)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	return &s, nil
}

// PlayerRank returns a player's 1-based rank in the guild
// leaderboard.
func (r *Repository) PlayerRank(ctx context.Context, guildID, playerID string) (int, error) {
	var rank int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) + 1 FROM player_scores
		WHERE guild_id = $1 AND total_score > (
			SELECT COALESCE(MAX(total_score), 0) FROM player_scores
			WHERE guild_id = $1 AND player_id = $2
		)`,
		guildID, playerID).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("failed to get player rank: %w", err)
	}
	return rank, nil
}

// ListGuildIDs returns every guild id with stored data.
func (r *Repository) ListGuildIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT guild_id FROM game_rounds
		UNION
		SELECT guild_id FROM player_scores`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan guild id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list guild ids: %w", err)
	}
	return ids, nil
}

// DeleteGuildData erases all rounds, guesses and scores for a guild.
// Guesses cascade off their rounds.
func (r *Repository) DeleteGuildData(ctx context.Context, guildID string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM game_rounds WHERE guild_id = $1`, guildID); err != nil {
		return fmt.Errorf("failed to delete guild rounds: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`DELETE FROM player_scores WHERE guild_id = $1`, guildID); err != nil {
		return fmt.Errorf("failed to delete guild scores: %w", err)
	}
	return nil
}

// DeleteUserData erases a player's guesses and scores across all
// guilds, returning how many rows went away.
func (r *Repository) DeleteUserData(ctx context.Context, playerID string) (models.UserDataDeletion, error) {
	var result models.UserDataDeletion

	tag, err := r.db.Exec(ctx, `DELETE FROM guesses WHERE player_id = $1`, playerID)
	if err != nil {
		return result, fmt.Errorf("failed to delete user guesses: %w", err)
	}
	result.Guesses = tag.RowsAffected()

	tag, err = r.db.Exec(ctx, `DELETE FROM player_scores WHERE player_id = $1`, playerID)
	if err != nil {
		return result, fmt.Errorf("failed to delete user scores: %w", err)
	}
	result.Scores = tag.RowsAffected()

	return result, nil
}
