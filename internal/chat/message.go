package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is the flat, one-message-per-role shape the transcript is made of.
// IDs are either provisional (client-generated, "local_" prefix) or durable
// (derived from a pair id with a "_user"/"_bot" suffix).
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	provisionalPrefix = "local_"
	pairPrefix        = "pair_"
	UserSuffix        = "_user"
	BotSuffix         = "_bot"

	// DraftIDPrefix namespaces locally persisted thread ids so they can
	// never collide with server-assigned chatroom ids.
	DraftIDPrefix = "draft_"
)

// IsDraftThreadID reports whether a thread id belongs to the local draft
// store's namespace.
func IsDraftThreadID(id string) bool {
	return strings.HasPrefix(id, DraftIDPrefix)
}

// NewProvisionalID returns a fresh client-side message id, unique per
// submission attempt.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// NewPairID returns a pair identifier for exchanges persisted locally, where
// no server assigns one.
func NewPairID() string {
	return pairPrefix + uuid.NewString()
}

func UserMessageID(pairID string) string {
	return pairID + UserSuffix
}

func BotMessageID(pairID string) string {
	return pairID + BotSuffix
}

// PairIDFromMessageID extracts the pair id from a durable message id.
// Returns "" for provisional or otherwise non-durable ids.
func PairIDFromMessageID(id string) string {
	if pair, ok := strings.CutSuffix(id, UserSuffix); ok {
		return pair
	}
	if pair, ok := strings.CutSuffix(id, BotSuffix); ok {
		return pair
	}
	return ""
}

// IsProvisionalID reports whether the id was minted client-side and has not
// been reconciled to a durable pair id yet.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// PairToMessages expands one persisted exchange into its flat display form.
func PairToMessages(pairID, userText, botText string, ts time.Time) []Message {
	var msgs []Message
	if userText != "" {
		msgs = append(msgs, Message{
			ID:        UserMessageID(pairID),
			Content:   userText,
			IsUser:    true,
			Timestamp: ts,
		})
	}
	if botText != "" {
		msgs = append(msgs, Message{
			ID:        BotMessageID(pairID),
			Content:   botText,
			IsUser:    false,
			Timestamp: ts,
		})
	}
	return msgs
}

// Thread is the metadata view of a persisted conversation, shared by both
// storage backends.
type Thread struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	MessageCount       int       `json:"messageCount"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
}

// TitleFromMessage derives a placeholder thread title from the first user
// message; a generated title replaces it when one arrives.
func TitleFromMessage(firstMessage string) string {
	title := strings.TrimSpace(firstMessage)
	title = strings.Join(strings.Fields(title), " ")
	if len(title) > 50 {
		title = strings.TrimSpace(title[:50]) + "..."
	}

	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "position"):
		title = "Position Guide Question"
	case strings.Contains(lower, "dota"):
		title = "Dota 2 Question"
	case strings.Contains(lower, "carry"), strings.Contains(lower, "support"):
		title = "Role Discussion"
	}

	if title == "" {
		title = "New Chat"
	}
	return title
}

// TruncatePreview shortens text to the stored preview length (100 chars).
func TruncatePreview(text string) string {
	const max = 100
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
