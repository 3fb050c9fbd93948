package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/channelguessr/core/internal/models"
	"github.com/channelguessr/core/internal/round"
)

// RoundService is what the scheduler needs from the round lifecycle
// manager when a timer fires.
type RoundService interface {
	EndRound(ctx context.Context, roundID uuid.UUID, status models.RoundStatus) (*round.Summary, error)
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
}

// ChannelResolver checks that a restored round's channel still exists
// and is readable.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, guildID, channelID string) (*models.Channel, error)
}

// Notifier receives the near-deadline warning.
type Notifier interface {
	RoundExpiring(ctx context.Context, r *models.Round, remaining time.Duration) error
}

// Scheduler arms one completion timer and at most one warning timer
// per game channel. Timers live only in memory; rounds persist their
// deadline so Restore can re-arm them after a restart.
type Scheduler struct {
	rounds   RoundService
	resolver ChannelResolver
	notifier Notifier
	clock    clockwork.Clock

	mu       sync.Mutex
	timers   map[string]clockwork.Timer
	warnings map[string]clockwork.Timer
}

// New creates an empty scheduler.
func New(rounds RoundService, resolver ChannelResolver, notifier Notifier, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		rounds:   rounds,
		resolver: resolver,
		notifier: notifier,
		clock:    clock,
		timers:   make(map[string]clockwork.Timer),
		warnings: make(map[string]clockwork.Timer),
	}
}

func timerKey(guildID, gameChannelID string) string {
	return guildID + ":" + gameChannelID
}

// Schedule arms the completion timer for a round, replacing any timer
// already registered for the channel.
func (s *Scheduler) Schedule(ctx context.Context, roundID uuid.UUID, guildID, gameChannelID string, delay time.Duration) {
	key := timerKey(guildID, gameChannelID)
	timer := s.clock.NewTimer(delay)

	s.mu.Lock()
	if old, ok := s.timers[key]; ok {
		stopAndDrainTimer(old)
	}
	s.timers[key] = timer
	s.mu.Unlock()

	log.Debug().
		Str("round_id", roundID.String()).
		Str("timer_key", key).
		Dur("delay", delay).
		Msg("scheduled round completion")

	go s.runCompletion(ctx, timer, key, roundID)
}

func (s *Scheduler) runCompletion(ctx context.Context, timer clockwork.Timer, key string, roundID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("round_id", roundID.String()).
				Msg("panic in round completion timer")
		}
	}()

	// A replaced or cancelled timer never fires, so its goroutine
	// stays parked here until ctx ends. At most one goroutine exists
	// per Schedule call.
	select {
	case <-timer.Chan():
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return
	}

	// Deregister before ending so EndRound's cancel call cannot stop
	// this already-fired timer's registry slot out from under a
	// replacement.
	s.mu.Lock()
	if s.timers[key] == timer {
		delete(s.timers, key)
	}
	s.mu.Unlock()

	log.Info().
		Str("round_id", roundID.String()).
		Str("timer_key", key).
		Msg("round deadline reached")

	if _, err := s.rounds.EndRound(context.Background(), roundID, models.RoundStatusCompleted); err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("failed to end expired round")
	}
}

// ScheduleWarning arms the near-deadline warning. The warning
// re-checks the round's status when it fires so a round that ended
// early stays silent.
func (s *Scheduler) ScheduleWarning(ctx context.Context, roundID uuid.UUID, guildID, gameChannelID string, delay, remaining time.Duration) {
	key := timerKey(guildID, gameChannelID)
	timer := s.clock.NewTimer(delay)

	s.mu.Lock()
	if old, ok := s.warnings[key]; ok {
		stopAndDrainTimer(old)
	}
	s.warnings[key] = timer
	s.mu.Unlock()

	go s.runWarning(ctx, timer, key, roundID, remaining)
}

func (s *Scheduler) runWarning(ctx context.Context, timer clockwork.Timer, key string, roundID uuid.UUID, remaining time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("round_id", roundID.String()).
				Msg("panic in round warning timer")
		}
	}()

	// Same parking behavior as runCompletion: a stopped warning
	// timer's goroutine lives until ctx ends.
	select {
	case <-timer.Chan():
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return
	}

	s.mu.Lock()
	if s.warnings[key] == timer {
		delete(s.warnings, key)
	}
	s.mu.Unlock()

	r, err := s.rounds.GetRound(context.Background(), roundID)
	if err != nil {
		log.Warn().Err(err).Str("round_id", roundID.String()).Msg("failed to load round for warning")
		return
	}
	if r.Status != models.RoundStatusActive {
		return
	}

	if err := s.notifier.RoundExpiring(context.Background(), r, remaining); err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("failed to send expiry warning")
	}
}

// Cancel stops the channel's timers. Returns whether a completion
// timer was pending.
func (s *Scheduler) Cancel(guildID, gameChannelID string) bool {
	key := timerKey(guildID, gameChannelID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := false
	if timer, ok := s.timers[key]; ok {
		stopAndDrainTimer(timer)
		delete(s.timers, key)
		cancelled = true
	}
	if timer, ok := s.warnings[key]; ok {
		stopAndDrainTimer(timer)
		delete(s.warnings, key)
	}
	return cancelled
}

// CancelForGuild stops every timer belonging to a guild and returns
// how many completion timers were pending.
func (s *Scheduler) CancelForGuild(guildID string) int {
	prefix := guildID + ":"

	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for key, timer := range s.timers {
		if strings.HasPrefix(key, prefix) {
			stopAndDrainTimer(timer)
			delete(s.timers, key)
			cancelled++
		}
	}
	for key, timer := range s.warnings {
		if strings.HasPrefix(key, prefix) {
			stopAndDrainTimer(timer)
			delete(s.warnings, key)
		}
	}
	return cancelled
}

// Restore re-arms timers for rounds that were active before a restart.
// Rounds whose channel is gone or whose record predates deadline
// persistence are cancelled instead. Returns how many timers were
// armed.
func (s *Scheduler) Restore(ctx context.Context, rounds []models.Round) int {
	restored := 0
	for i := range rounds {
		r := &rounds[i]

		if _, err := s.resolver.ResolveChannel(ctx, r.GuildID, r.GameChannelID); err != nil {
			log.Warn().
				Err(err).
				Str("round_id", r.ID.String()).
				Str("channel_id", r.GameChannelID).
				Msg("cancelling round with unreachable channel")
			s.endRestored(ctx, r, models.RoundStatusCancelled)
			continue
		}

		if r.DeadlineAt == nil {
			log.Warn().
				Str("round_id", r.ID.String()).
				Msg("cancelling round without a deadline")
			s.endRestored(ctx, r, models.RoundStatusCancelled)
			continue
		}

		delay := r.DeadlineAt.Sub(s.clock.Now())
		if delay < 0 {
			delay = 0
		}
		s.Schedule(ctx, r.ID, r.GuildID, r.GameChannelID, delay)
		restored++

		log.Info().
			Str("round_id", r.ID.String()).
			Str("guild_id", r.GuildID).
			Dur("delay", delay).
			Msg("restored round timer")
	}
	return restored
}

func (s *Scheduler) endRestored(ctx context.Context, r *models.Round, status models.RoundStatus) {
	if _, err := s.rounds.EndRound(ctx, r.ID, status); err != nil {
		log.Error().Err(err).Str("round_id", r.ID.String()).Msg("failed to end unrestorable round")
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a fire
// that raced the stop does not leak into a later receive. Callers must
// hold no lock the timer's goroutine needs.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
