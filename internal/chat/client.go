// Package chat talks to the chat-platform adapter over NATS
// request/reply. The adapter owns the gateway connection and
// permission checks; this client only asks it questions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/channelguessr/core/internal/models"
)

// Errors mapped from the adapter's reply envelope.
var (
	ErrForbidden   = errors.New("chat: forbidden")
	ErrNotFound    = errors.New("chat: not found")
	ErrUnavailable = errors.New("chat: adapter unavailable")
)

// Config holds client settings.
type Config struct {
	SubjectPrefix  string
	RequestTimeout time.Duration
}

// DefaultConfig returns the standard adapter subjects and timeout.
func DefaultConfig() Config {
	return Config{
		SubjectPrefix:  "chat.rpc",
		RequestTimeout: 10 * time.Second,
	}
}

// Client is a chat-platform collaborator backed by NATS request/reply.
// Resolved channels are cached; ResolveChannel falls back to a direct
// fetch on a cache miss.
type Client struct {
	nc  *nats.Conn
	cfg Config

	mu    sync.RWMutex
	cache map[string]models.Channel
}

// NewClient creates a chat client on an existing NATS connection.
func NewClient(nc *nats.Conn, cfg Config) *Client {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Client{
		nc:    nc,
		cfg:   cfg,
		cache: make(map[string]models.Channel),
	}
}

type envelope struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (c *Client) request(ctx context.Context, op string, req any, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, c.cfg.SubjectPrefix+"."+op, payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrUnavailable, op)
		}
		return fmt.Errorf("%s request: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Errorf("decode %s reply: %w", op, err)
	}
	switch env.Error {
	case "":
	case "forbidden":
		return ErrForbidden
	case "not_found":
		return ErrNotFound
	default:
		return fmt.Errorf("chat adapter error on %s: %s", op, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s payload: %w", op, err)
		}
	}
	return nil
}

// ListReadableChannels returns the text channels the bot can read in a
// guild.
func (c *Client) ListReadableChannels(ctx context.Context, guildID string) ([]models.Channel, error) {
	req := struct {
		GuildID string `json:"guild_id"`
	}{guildID}
	var channels []models.Channel
	if err := c.request(ctx, "channels.list", req, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

type historyRequest struct {
	ChannelID   string `json:"channel_id"`
	AfterID     string `json:"after_id,omitempty"`
	BeforeID    string `json:"before_id,omitempty"`
	Limit       int    `json:"limit"`
	OldestFirst bool   `json:"oldest_first"`
}

// HistoryAfter fetches up to limit messages strictly after the given
// message id, oldest first.
func (c *Client) HistoryAfter(ctx context.Context, channelID, afterID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	req := historyRequest{ChannelID: channelID, AfterID: afterID, Limit: limit, OldestFirst: true}
	if err := c.request(ctx, "history", req, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// HistoryBefore fetches up to limit messages strictly before the given
// message id, returned in chronological order.
func (c *Client) HistoryBefore(ctx context.Context, channelID, beforeID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	req := historyRequest{ChannelID: channelID, BeforeID: beforeID, Limit: limit}
	if err := c.request(ctx, "history", req, &messages); err != nil {
		return nil, err
	}
	// Adapter replies newest first for before-queries.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetMessage fetches a single message. Returns ErrNotFound if it was
// deleted.
func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	req := struct {
		ChannelID string `json:"channel_id"`
		MessageID string `json:"message_id"`
	}{channelID, messageID}
	var msg models.Message
	if err := c.request(ctx, "message.get", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ResolveChannel returns channel metadata, from cache when possible.
func (c *Client) ResolveChannel(ctx context.Context, guildID, channelID string) (*models.Channel, error) {
	key := guildID + ":" + channelID
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	req := struct {
		GuildID   string `json:"guild_id"`
		ChannelID string `json:"channel_id"`
	}{guildID, channelID}
	var ch models.Channel
	if err := c.request(ctx, "channel.get", req, &ch); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = ch
	c.mu.Unlock()
	log.Debug().Str("guild_id", guildID).Str("channel_id", channelID).Msg("cached resolved channel")
	return &ch, nil
}

// ListGuildIDs returns the ids of every guild the bot is currently in.
func (c *Client) ListGuildIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.request(ctx, "guilds.list", struct{}{}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
