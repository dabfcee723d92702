package models

import "time"

// Role tags who authored a message. The set is closed: storage and
// prompt assembly switch over it exhaustively.

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Sentiment is the coarse polarity label attached to every stored message.

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Message is one stored chat turn. Messages are append-only: never
// mutated or deleted after insert.
type Message struct {
	ID        string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	Sentiment Sentiment `json:"sentiment"`
	CreatedAt time.Time `json:"created_at"`
}
