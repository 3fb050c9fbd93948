// Package selector picks a random target message from a guild's
// history. It is rejection sampling over an uneven event stream:
// higher-traffic time windows are more likely to be hit, which is an
// accepted property of the game, not something to correct here.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/channelguessr/core/internal/chat"
	"github.com/channelguessr/core/internal/models"
	"github.com/channelguessr/core/internal/snowflake"
)

// ErrNoSuitableMessage is returned when the retry budget is exhausted
// or no readable channel remains.
var ErrNoSuitableMessage = errors.New("no suitable message found")

// sparseThreshold is the minimum batch size below which a channel/time
// combination is considered too quiet to sample from.
const sparseThreshold = 5

var urlRe = regexp.MustCompile(`https?://\S+`)

// ChatReader is the slice of the chat collaborator the selector needs.
type ChatReader interface {
	ListReadableChannels(ctx context.Context, guildID string) ([]models.Channel, error)
	HistoryAfter(ctx context.Context, channelID, afterID string, limit int) ([]models.Message, error)
}

// Config holds the sampling parameters.
type Config struct {
	Lookback         time.Duration // how far back history is sampled
	MinMessageAge    time.Duration // newest allowed target age
	SearchLimit      int           // batch size per fetch
	MaxRetries       int
	MinMessageLength int
}

// DefaultConfig mirrors the production settings: one year of lookback,
// day-old messages at the newest, batches of 100, five attempts.
func DefaultConfig() Config {
	return Config{
		Lookback:         365 * 24 * time.Hour,
		MinMessageAge:    24 * time.Hour,
		SearchLimit:      100,
		MaxRetries:       5,
		MinMessageLength: 200,
	}
}

// Selector samples target messages for new rounds.
type Selector struct {
	chat  ChatReader
	cfg   Config
	clock clockwork.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Selector with its own seeded RNG.
func New(reader ChatReader, cfg Config, clock clockwork.Clock) *Selector {
	return &Selector{
		chat:  reader,
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Interesting reports whether a message is worth guessing about:
// long enough, or carrying attachments, embeds or a URL. Messages from
// automated accounts never qualify.
func (s *Selector) Interesting(msg models.Message) bool {
	if msg.AuthorIsBot {
		return false
	}
	if len(msg.Content) >= s.cfg.MinMessageLength {
		return true
	}
	if msg.Attachments > 0 || msg.Embeds > 0 {
		return true
	}
	return urlRe.MatchString(msg.Content)
}

// SelectRandomTarget picks a random interesting message and its
// channel. Channels the bot loses read access to mid-search are
// dropped from the candidate set.
func (s *Selector) SelectRandomTarget(ctx context.Context, guildID string) (*models.Message, *models.Channel, error) {
	channels, err := s.chat.ListReadableChannels(ctx, guildID)
	if err != nil {
		return nil, nil, fmt.Errorf("list readable channels: %w", err)
	}
	if len(channels) == 0 {
		log.Warn().Str("guild_id", guildID).Msg("no readable channels in guild")
		return nil, nil, ErrNoSuitableMessage
	}

	nowMS := s.clock.Now().UnixMilli()
	maxTS := nowMS - s.cfg.MinMessageAge.Milliseconds()
	minTS := nowMS - s.cfg.Lookback.Milliseconds()
	if maxTS <= minTS {
		maxTS = minTS + 1
	}

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if len(channels) == 0 {
			log.Warn().Str("guild_id", guildID).Msg("no readable channels left")
			return nil, nil, ErrNoSuitableMessage
		}

		s.mu.Lock()
		idx := s.rng.Intn(len(channels))
		ts := minTS + s.rng.Int63n(maxTS-minTS)
		s.mu.Unlock()
		channel := channels[idx]
		after := snowflake.FromTimestampMS(ts)

		log.Info().
			Int("attempt", attempt).
			Int("max_retries", s.cfg.MaxRetries).
			Str("channel", channel.Name).
			Msg("searching for target message")

		batch, err := s.chat.HistoryAfter(ctx, channel.ID, after, s.cfg.SearchLimit)
		if err != nil {
			if errors.Is(err, chat.ErrForbidden) {
				log.Warn().Str("channel", channel.Name).Msg("lost read access, dropping channel")
				channels = append(channels[:idx], channels[idx+1:]...)
				continue
			}
			log.Warn().Err(err).Str("channel", channel.Name).Msg("history fetch failed, retrying")
			continue
		}

		if len(batch) < sparseThreshold {
			log.Debug().
				Str("channel", channel.Name).
				Int("messages", len(batch)).
				Msg("channel too sparse at this time, retrying")
			continue
		}

		for i := range batch {
			if s.Interesting(batch[i]) {
				log.Info().
					Str("message_id", batch[i].ID).
					Str("channel", channel.Name).
					Int("attempt", attempt).
					Msg("selected target message")
				return &batch[i], &channel, nil
			}
		}

		log.Debug().
			Str("channel", channel.Name).
			Int("messages", len(batch)).
			Msg("no interesting messages in batch, retrying")
	}

	log.Warn().
		Str("guild_id", guildID).
		Int("max_retries", s.cfg.MaxRetries).
		Msg("retry budget exhausted without a suitable message")
	return nil, nil, ErrNoSuitableMessage
}
