// Package llm generates answers from a prompt plus prior conversation
// turns, either through the Gemini API or a local engine.
package llm

import "context"

// Conversation roles as stored in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    string
	Content string
}

// Chunk is one piece of a streamed answer. A chunk with Err set is
// terminal; the channel is closed after it.
type Chunk struct {
	Text string
	Err  error
}

// Generator produces model answers. Implementations must be safe for
// concurrent use.
type Generator interface {
	// Generate returns the complete answer to prompt, conditioned on the
	// prior turns in history.
	Generate(ctx context.Context, history []Message, prompt string) (string, error)

	// GenerateStream returns the answer incrementally. The channel is
	// closed when the answer is complete or after a terminal error chunk.
	GenerateStream(ctx context.Context, history []Message, prompt string) (<-chan Chunk, error)
}
