package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"createdAt"`
}

type Chatroom struct {
	ID                 string    `json:"chatroom_id"`
	UserID             int64     `json:"-"`
	Title              string    `json:"title"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	MessageCount       int       `json:"message_count"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
}

// MessagePair is the unit of persistence: one user utterance plus its one
// assistant reply, sharing a pair id.
type MessagePair struct {
	PairID     string    `json:"message_pair_id"`
	ChatroomID string    `json:"chatroom_id"`
	UserText   string    `json:"user_message"`
	BotText    string    `json:"bot_message"`
	Timestamp  time.Time `json:"timestamp"`
}
