package round

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/channelguessr/core/internal/chat"
	"github.com/channelguessr/core/internal/models"
	"github.com/channelguessr/core/internal/round/events"
	"github.com/channelguessr/core/internal/round/scoring"
	"github.com/channelguessr/core/internal/timeparse"
)

// RoundRepository defines what the app layer needs from the store.
// All operations are individually atomic; no multi-statement
// transaction is assumed.
type RoundRepository interface {
	CreateRound(ctx context.Context, round *models.Round) error
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	GetActiveRound(ctx context.Context, guildID, gameChannelID string) (*models.Round, error)
	EndRound(ctx context.Context, id uuid.UUID, status models.RoundStatus, endedAt time.Time) (bool, error)
	CountRounds(ctx context.Context, guildID string) (int, error)
	ListActiveRounds(ctx context.Context) ([]models.Round, error)
	InsertGuess(ctx context.Context, g *models.Guess) (bool, error)
	HasGuessed(ctx context.Context, roundID uuid.UUID, playerID string) (bool, error)
	ListGuesses(ctx context.Context, roundID uuid.UUID) ([]models.Guess, error)
	UpsertPlayerScore(ctx context.Context, guildID, playerID string, points int, perfect bool) error
	Leaderboard(ctx context.Context, guildID string, limit int) ([]models.PlayerScore, error)
	PlayerStats(ctx context.Context, guildID, playerID string) (*models.PlayerScore, error)
	PlayerRank(ctx context.Context, guildID, playerID string) (int, error)
	ListGuildIDs(ctx context.Context) ([]string, error)
	DeleteGuildData(ctx context.Context, guildID string) error
	DeleteUserData(ctx context.Context, playerID string) (models.UserDataDeletion, error)
}

// TargetSelector picks the message a round is played about.
type TargetSelector interface {
	SelectRandomTarget(ctx context.Context, guildID string) (*models.Message, *models.Channel, error)
}

// MessageReader fetches excerpt context around the target message and
// individual messages by id.
type MessageReader interface {
	HistoryBefore(ctx context.Context, channelID, beforeID string, limit int) ([]models.Message, error)
	HistoryAfter(ctx context.Context, channelID, afterID string, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, channelID, messageID string) (*models.Message, error)
}

// Scheduler arms and cancels round timers. Implemented by the
// scheduler package; the app never touches the timer registry
// directly.
type Scheduler interface {
	Schedule(ctx context.Context, roundID uuid.UUID, guildID, gameChannelID string, delay time.Duration)
	ScheduleWarning(ctx context.Context, roundID uuid.UUID, guildID, gameChannelID string, delay, remaining time.Duration)
	Cancel(guildID, gameChannelID string) bool
	CancelForGuild(guildID string) int
}

// EventPublisher emits structured round events for the presentation
// layer.
type EventPublisher interface {
	RoundStarted(ctx context.Context, payload events.RoundStartedPayload) error
	GuessAccepted(ctx context.Context, payload events.GuessAcceptedPayload) error
	RoundEnded(ctx context.Context, payload events.RoundEndedPayload) error
}

// App owns the round lifecycle: state transitions, guess acceptance
// and score aggregation.
type App struct {
	repo     RoundRepository
	selector TargetSelector
	messages MessageReader
	pub      EventPublisher
	scores   scoring.Config
	cfg      Config
	clock    clockwork.Clock

	sched Scheduler
}

// NewApp creates the round lifecycle manager. The scheduler is
// attached afterwards with SetScheduler since it needs the app to end
// rounds.
func NewApp(repo RoundRepository, sel TargetSelector, messages MessageReader, pub EventPublisher, scores scoring.Config, cfg Config, clock clockwork.Clock) *App {
	return &App{
		repo:     repo,
		selector: sel,
		messages: messages,
		pub:      pub,
		scores:   scores,
		cfg:      cfg,
		clock:    clock,
	}
}

// SetScheduler wires the timer scheduler in after construction.
func (a *App) SetScheduler(s Scheduler) {
	a.sched = s
}

// StartRound begins a new round in a channel. The exclusivity check is
// a read followed by an insert, not an atomic compare-and-swap; two
// truly concurrent starts inside that window can both pass, which is
// accepted for human-paced command traffic.
func (a *App) StartRound(ctx context.Context, guildID, gameChannelID string, opts StartOptions) (*StartRoundResult, error) {
	timeout := a.cfg.RoundTimeout
	if opts.Timeout != nil {
		timeout = *opts.Timeout
	}
	contextN := a.cfg.ContextMessages
	if opts.ContextMessages != nil {
		contextN = *opts.ContextMessages
	}

	log.Info().
		Str("guild_id", guildID).
		Str("channel_id", gameChannelID).
		Dur("timeout", timeout).
		Msg("starting new round")

	active, err := a.repo.GetActiveRound(ctx, guildID, gameChannelID)
	if err != nil {
		return nil, fmt.Errorf("check active round: %w", err)
	}
	if active != nil {
		return nil, ErrRoundActive
	}

	target, targetChannel, err := a.selector.SelectRandomTarget(ctx, guildID)
	if err != nil {
		return nil, err
	}

	before, after := a.fetchContext(ctx, target, contextN)

	count, err := a.repo.CountRounds(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("count rounds: %w", err)
	}
	roundNumber := count + 1

	now := a.clock.Now().UTC()
	deadline := now.Add(timeout)
	authorID := target.AuthorID
	round := &models.Round{
		ID:                uuid.New(),
		GuildID:           guildID,
		GameChannelID:     gameChannelID,
		TargetMessageID:   target.ID,
		TargetChannelID:   target.ChannelID,
		TargetTimestampMS: target.TimestampMS,
		TargetAuthorID:    &authorID,
		Status:            models.RoundStatusActive,
		StartedAt:         now,
		DeadlineAt:        &deadline,
	}
	if err := a.repo.CreateRound(ctx, round); err != nil {
		return nil, err
	}

	log.Info().
		Str("round_id", round.ID.String()).
		Int("round_number", roundNumber).
		Str("target_channel_id", target.ChannelID).
		Msg("round created")

	if a.sched != nil {
		a.sched.Schedule(ctx, round.ID, guildID, gameChannelID, timeout)
		if a.cfg.WarningLead > 0 && timeout > a.cfg.WarningLead {
			a.sched.ScheduleWarning(ctx, round.ID, guildID, gameChannelID, timeout-a.cfg.WarningLead, a.cfg.WarningLead)
		}
	}

	if err := a.pub.RoundStarted(ctx, events.RoundStartedPayload{
		RoundID:       round.ID.String(),
		GuildID:       guildID,
		GameChannelID: gameChannelID,
		RoundNumber:   roundNumber,
		StartedAt:     now,
		DeadlineAt:    deadline,
		TimeoutSec:    int(timeout / time.Second),
		Target:        events.Snapshot(*target),
		ContextBefore: events.Snapshots(before),
		ContextAfter:  events.Snapshots(after),
	}); err != nil {
		log.Error().Err(err).Str("round_id", round.ID.String()).Msg("failed to publish round started event")
	}

	return &StartRoundResult{
		Round:         round,
		RoundNumber:   roundNumber,
		Target:        *target,
		TargetChannel: *targetChannel,
		ContextBefore: before,
		ContextAfter:  after,
		Deadline:      deadline,
	}, nil
}

// fetchContext loads the excerpt messages around the target. Failures
// here degrade the presentation, not the round, so they only log.
func (a *App) fetchContext(ctx context.Context, target *models.Message, n int) (before, after []models.Message) {
	if n <= 0 {
		return nil, nil
	}
	var err error
	before, err = a.messages.HistoryBefore(ctx, target.ChannelID, target.ID, n)
	if err != nil {
		log.Warn().Err(err).Str("channel_id", target.ChannelID).Msg("failed to fetch context before target")
	}
	after, err = a.messages.HistoryAfter(ctx, target.ChannelID, target.ID, n)
	if err != nil {
		log.Warn().Err(err).Str("channel_id", target.ChannelID).Msg("failed to fetch context after target")
	}
	return before, after
}

// SubmitGuess validates, scores and stores a guess for the channel's
// active round.
func (a *App) SubmitGuess(ctx context.Context, guildID, gameChannelID string, req GuessRequest) (*GuessResult, error) {
	active, err := a.repo.GetActiveRound(ctx, guildID, gameChannelID)
	if err != nil {
		return nil, fmt.Errorf("check active round: %w", err)
	}
	if active == nil {
		return nil, ErrNoActiveRound
	}

	// Cheap early rejection; the conditional insert below is the
	// authoritative guard.
	guessed, err := a.repo.HasGuessed(ctx, active.ID, req.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("check existing guess: %w", err)
	}
	if guessed {
		return nil, ErrAlreadyGuessed
	}

	guessedTS, err := timeparse.Parse(req.When)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimeGuess, req.When)
	}

	channelCorrect := req.ChannelID == active.TargetChannelID
	timeScore := a.scores.TimeScore(guessedTS, active.TargetTimestampMS)
	authorCorrect := req.AuthorID != nil && active.TargetAuthorID != nil &&
		*req.AuthorID == *active.TargetAuthorID

	guess := &models.Guess{
		RoundID:            active.ID,
		PlayerID:           req.PlayerID,
		GuessedChannelID:   &req.ChannelID,
		GuessedTimestampMS: &guessedTS,
		GuessedAuthorID:    req.AuthorID,
		ChannelCorrect:     channelCorrect,
		AuthorCorrect:      authorCorrect,
		TimeScore:          timeScore,
		SubmittedAt:        a.clock.Now().UTC(),
	}
	inserted, err := a.repo.InsertGuess(ctx, guess)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, ErrAlreadyGuessed
	}

	total := a.scores.TotalScore(channelCorrect, timeScore, authorCorrect)

	log.Info().
		Str("round_id", active.ID.String()).
		Str("player_id", req.PlayerID).
		Int("total_score", total).
		Msg("guess accepted")

	if err := a.pub.GuessAccepted(ctx, events.GuessAcceptedPayload{
		RoundID:     active.ID.String(),
		GuildID:     guildID,
		PlayerID:    req.PlayerID,
		TotalScore:  total,
		SubmittedAt: guess.SubmittedAt,
	}); err != nil {
		log.Error().Err(err).Str("round_id", active.ID.String()).Msg("failed to publish guess accepted event")
	}

	return &GuessResult{
		ChannelCorrect: channelCorrect,
		AuthorCorrect:  authorCorrect,
		TimeScore:      timeScore,
		TotalScore:     total,
	}, nil
}

// GetRound fetches a round by id.
func (a *App) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	return a.repo.GetRound(ctx, id)
}

// EndRound moves an active round to a terminal status, aggregates
// scores and emits the results. Ending a round that is missing or
// already terminal is a no-op, which absorbs the race between the
// deadline timer and a manual skip.
func (a *App) EndRound(ctx context.Context, roundID uuid.UUID, status models.RoundStatus) (*Summary, error) {
	round, err := a.repo.GetRound(ctx, roundID)
	if errors.Is(err, ErrRoundNotFound) {
		log.Warn().Str("round_id", roundID.String()).Msg("round not found, skipping end")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusActive {
		log.Warn().
			Str("round_id", roundID.String()).
			Str("status", string(round.Status)).
			Msg("round not active, skipping end")
		return nil, nil
	}

	now := a.clock.Now().UTC()
	updated, err := a.repo.EndRound(ctx, roundID, status, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Another caller won the transition between our read and
		// this write.
		log.Warn().Str("round_id", roundID.String()).Msg("round already ended, skipping")
		return nil, nil
	}
	round.Status = status
	round.EndedAt = &now

	log.Info().
		Str("round_id", roundID.String()).
		Str("status", string(status)).
		Msg("round ended")

	if a.sched != nil {
		// The fired timer removes its own registry entry before
		// calling EndRound, so this only ever stops a still-pending
		// timer.
		a.sched.Cancel(round.GuildID, round.GameChannelID)
	}

	// The reveal proceeds even when the target has been deleted since
	// the round started; the presenter just gets told it is gone.
	targetDeleted := false
	if _, err := a.messages.GetMessage(ctx, round.TargetChannelID, round.TargetMessageID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			targetDeleted = true
			log.Warn().
				Str("round_id", roundID.String()).
				Str("message_id", round.TargetMessageID).
				Msg("target message deleted before reveal")
		} else {
			log.Warn().Err(err).Str("round_id", roundID.String()).Msg("could not verify target message")
		}
	}

	guesses, err := a.repo.ListGuesses(ctx, roundID)
	if err != nil {
		return nil, err
	}

	results := make([]PlayerResult, 0, len(guesses))
	for _, g := range guesses {
		total := a.scores.TotalScore(g.ChannelCorrect, g.TimeScore, g.AuthorCorrect)
		perfect := a.scores.IsPerfect(g.ChannelCorrect, g.TimeScore, g.AuthorCorrect)
		if err := a.repo.UpsertPlayerScore(ctx, round.GuildID, g.PlayerID, total, perfect); err != nil {
			return nil, fmt.Errorf("update score for player %s: %w", g.PlayerID, err)
		}
		results = append(results, PlayerResult{
			PlayerID:       g.PlayerID,
			ChannelCorrect: g.ChannelCorrect,
			AuthorCorrect:  g.AuthorCorrect,
			TimeScore:      g.TimeScore,
			TotalScore:     total,
			Perfect:        perfect,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalScore > results[j].TotalScore
	})

	eventResults := make([]events.PlayerResult, len(results))
	for i, res := range results {
		eventResults[i] = events.PlayerResult(res)
	}
	if err := a.pub.RoundEnded(ctx, events.RoundEndedPayload{
		RoundID:           round.ID.String(),
		GuildID:           round.GuildID,
		GameChannelID:     round.GameChannelID,
		Status:            string(status),
		EndedAt:           now,
		TargetMessageID:   round.TargetMessageID,
		TargetChannelID:   round.TargetChannelID,
		TargetTimestampMS: round.TargetTimestampMS,
		TargetAuthorID:    round.TargetAuthorID,
		TargetDeleted:     targetDeleted,
		Results:           eventResults,
	}); err != nil {
		log.Error().Err(err).Str("round_id", round.ID.String()).Msg("failed to publish round ended event")
	}

	return &Summary{Round: round, Results: results, TargetDeleted: targetDeleted}, nil
}

// SkipRound cancels the channel's active round.
func (a *App) SkipRound(ctx context.Context, guildID, gameChannelID string) (*Summary, error) {
	active, err := a.repo.GetActiveRound(ctx, guildID, gameChannelID)
	if err != nil {
		return nil, fmt.Errorf("check active round: %w", err)
	}
	if active == nil {
		return nil, ErrNoActiveRound
	}
	return a.EndRound(ctx, active.ID, models.RoundStatusCancelled)
}

// ListActiveRounds returns the persisted active rounds for startup
// restoration.
func (a *App) ListActiveRounds(ctx context.Context) ([]models.Round, error) {
	return a.repo.ListActiveRounds(ctx)
}

// Leaderboard returns a guild's top players.
func (a *App) Leaderboard(ctx context.Context, guildID string, limit int) ([]models.PlayerScore, error) {
	return a.repo.Leaderboard(ctx, guildID, limit)
}

// PlayerStats returns a player's standing and rank.
func (a *App) PlayerStats(ctx context.Context, guildID, playerID string) (*models.PlayerScore, int, error) {
	stats, err := a.repo.PlayerStats(ctx, guildID, playerID)
	if err != nil {
		return nil, 0, err
	}
	rank, err := a.repo.PlayerRank(ctx, guildID, playerID)
	if err != nil {
		return nil, 0, err
	}
	return stats, rank, nil
}

// RemoveGuild cancels the guild's timers and erases its data. Called
// when the bot loses access to a guild.
func (a *App) RemoveGuild(ctx context.Context, guildID string) error {
	if a.sched != nil {
		cancelled := a.sched.CancelForGuild(guildID)
		if cancelled > 0 {
			log.Info().Str("guild_id", guildID).Int("timers", cancelled).Msg("cancelled guild timers")
		}
	}
	if err := a.repo.DeleteGuildData(ctx, guildID); err != nil {
		return err
	}
	log.Info().Str("guild_id", guildID).Msg("deleted guild data")
	return nil
}

// CleanupOrphanGuilds erases data for guilds the bot is no longer in.
func (a *App) CleanupOrphanGuilds(ctx context.Context, liveGuildIDs []string) (int, error) {
	stored, err := a.repo.ListGuildIDs(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(liveGuildIDs))
	for _, id := range liveGuildIDs {
		live[id] = struct{}{}
	}

	removed := 0
	for _, id := range stored {
		if _, ok := live[id]; ok {
			continue
		}
		if err := a.RemoveGuild(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DeleteUserData erases one player's guesses and scores everywhere.
func (a *App) DeleteUserData(ctx context.Context, playerID string) (models.UserDataDeletion, error) {
	result, err := a.repo.DeleteUserData(ctx, playerID)
	if err != nil {
		return result, err
	}
	log.Info().
		Str("player_id", playerID).
		Int64("guesses", result.Guesses).
		Int64("scores", result.Scores).
		Msg("deleted user data")
	return result, nil
}
