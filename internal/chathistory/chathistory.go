// Package chathistory persists conversation turns so answers can be
// conditioned on prior exchanges. The primary store is MongoDB; a JSON
// file store covers deployments without one.
package chathistory

import (
	"context"
	"time"

	"github.com/devkraft/ragline/internal/schema"
)

const previewLength = 50

// Turn is one message in a conversation. Assistant turns may carry the
// model's extracted reasoning and the sources the answer cited.
type Turn struct {
	Role      string                     `bson:"role" json:"role"`
	Content   string                     `bson:"content" json:"content"`
	Thinking  string                     `bson:"thinking,omitempty" json:"thinking,omitempty"`
	Sources   []schema.SourceAttribution `bson:"sources,omitempty" json:"sources,omitempty"`
	Timestamp time.Time                  `bson:"timestamp" json:"timestamp"`
}

// Summary is a conversation list entry.
type Summary struct {
	ChatID    string    `json:"chat_id"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversations keyed by chat ID. Implementations must be
// safe for concurrent use.
type Store interface {
	// Append adds turns to the chat, creating it when absent.
	Append(ctx context.Context, chatID string, turns ...Turn) error

	// Load returns the chat's turns in order; a missing chat yields an
	// empty slice, not an error.
	Load(ctx context.Context, chatID string) ([]Turn, error)

	// Recent lists conversations newest-first. Chats without any turns
	// are skipped.
	Recent(ctx context.Context, limit int) ([]Summary, error)
}

// preview shortens the first user message for conversation lists.
func preview(turns []Turn) string {
	for _, t := range turns {
		if t.Role != "user" || t.Content == "" {
			continue
		}
		runes := []rune(t.Content)
		if len(runes) <= previewLength {
			return t.Content
		}
		return string(runes[:previewLength]) + "..."
	}
	return ""
}
