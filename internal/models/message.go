package models

// Channel is a text channel the bot can read within a guild.
type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

// Message is a chat message as reported by the chat-platform
// collaborator. Only the fields the game inspects are carried.
type Message struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id"`
	AuthorID    string `json:"author_id"`
	AuthorIsBot bool   `json:"author_is_bot"`
	Content     string `json:"content"`
	Attachments int    `json:"attachments"`
	Embeds      int    `json:"embeds"`
	TimestampMS int64  `json:"timestamp_ms"`
}
