package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/channelguessr/core/internal/models"
)

// PublisherConfig holds the JetStream stream settings.
type PublisherConfig struct {
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	Replicas      int
}

// DefaultPublisherConfig keeps a week of game events on one replica.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		StreamName:    "GAME_EVENTS",
		SubjectPrefix: "game.events",
		MaxAge:        7 * 24 * time.Hour,
		Replicas:      1,
	}
}

// Publisher writes round lifecycle events to a JetStream stream for
// the presentation adapter to consume.
type Publisher struct {
	js  jetstream.JetStream
	cfg PublisherConfig
}

// NewPublisher creates the publisher and ensures its stream exists.
func NewPublisher(nc *nats.Conn, cfg PublisherConfig) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{js: js, cfg: cfg}
	if err := p.ensureStream(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:      p.cfg.StreamName,
		Subjects:  []string{p.cfg.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    p.cfg.MaxAge,
		Storage:   jetstream.FileStorage,
		Replicas:  p.cfg.Replicas,
	}

	if _, err := p.js.Stream(ctx, p.cfg.StreamName); err != nil {
		if _, err := p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", p.cfg.StreamName).Msg("created JetStream stream")
	}
	return nil
}

type eventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	GuildID   string          `json:"guild_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (p *Publisher) publish(ctx context.Context, eventType, guildID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	eventID := uuid.New().String()
	data, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		GuildID:   guildID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	subject := p.cfg.SubjectPrefix + "." + eventType
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(eventID)); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", eventID).
		Str("guild_id", guildID).
		Msg("published game event")
	return nil
}

// RoundStarted publishes a round.started event.
func (p *Publisher) RoundStarted(ctx context.Context, payload RoundStartedPayload) error {
	return p.publish(ctx, "round.started", payload.GuildID, payload)
}

// GuessAccepted publishes a guess.accepted event.
func (p *Publisher) GuessAccepted(ctx context.Context, payload GuessAcceptedPayload) error {
	return p.publish(ctx, "guess.accepted", payload.GuildID, payload)
}

// RoundEnded publishes a round.ended event.
func (p *Publisher) RoundEnded(ctx context.Context, payload RoundEndedPayload) error {
	return p.publish(ctx, "round.ended", payload.GuildID, payload)
}

// RoundExpiring publishes a round.warning event. It satisfies the
// scheduler's notifier interface.
func (p *Publisher) RoundExpiring(ctx context.Context, r *models.Round, remaining time.Duration) error {
	return p.publish(ctx, "round.warning", r.GuildID, RoundWarningPayload{
		RoundID:       r.ID.String(),
		GuildID:       r.GuildID,
		GameChannelID: r.GameChannelID,
		RemainingSec:  int(remaining / time.Second),
	})
}
