package store

import "time"

// Bot is a configured chat persona.
type Bot struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"systemPrompt"`
	PrimaryColor string    `json:"primaryColor"`
	UserID       string    `json:"userId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document is a unit of knowledge attached to a bot.
type Document struct {
	ID        string    `json:"id"`
	BotID     string    `json:"botId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one persisted conversational turn. Messages are append-only.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Stats are row totals per table.
type Stats struct {
	Bots          int `json:"totalBots"`
	Documents     int `json:"totalDocuments"`
	Conversations int `json:"totalConversations"`
	Messages      int `json:"totalMessages"`
}

// BotSummary is a row of the admin bot listing.
type BotSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PrimaryColor  string    `json:"primaryColor"`
	UserID        string    `json:"userId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Conversations int       `json:"conversationCount"`
	Documents     int       `json:"documentCount"`
}

// ConversationSummary is a row of the admin conversation listing.
type ConversationSummary struct {
	ID           string    `json:"id"`
	BotID        string    `json:"botId"`
	BotName      string    `json:"botName"`
	PrimaryColor string    `json:"primaryColor"`
	CreatedAt    time.Time `json:"createdAt"`
	Messages     int       `json:"messageCount"`
}
