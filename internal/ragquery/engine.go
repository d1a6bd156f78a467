// Package ragquery answers questions against the ingested corpus and
// attributes answers back to the chunks they cite.
package ragquery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devkraft/ragline/internal/chathistory"
	"github.com/devkraft/ragline/internal/embedding"
	"github.com/devkraft/ragline/internal/llm"
	"github.com/devkraft/ragline/internal/schema"
	"github.com/devkraft/ragline/pkg/logger"
)

// retriever is the slice of the dual store the engine needs.
type retriever interface {
	SearchDurable(ctx context.Context, vector []float32, topK int) ([]schema.RetrievalHit, error)
	SearchFast(ctx context.Context, vector []float32, topK int) ([]schema.RetrievalHit, error)
}

// Space selects which embedding space a query runs in. Each space is bound
// to its own provider and storage tier; queries never cross between them.
type Space string

const (
	// SpaceRemote is the high-capacity space served by the durable tier.
	SpaceRemote Space = "remote"
	// SpaceLocal is the local space served by the fast tier.
	SpaceLocal Space = "local"
)

// Options tune the engine. Zero values fall back to the defaults below.
type Options struct {
	TopK          int
	HistoryWindow int
	MaxSources    int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 4
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 5
	}
	if o.MaxSources <= 0 {
		o.MaxSources = 3
	}
	return o
}

// Answer is one complete reply.
type Answer struct {
	ChatID   string                     `json:"chat_id"`
	Text     string                     `json:"text"`
	Thinking string                     `json:"thinking,omitempty"`
	Sources  []schema.SourceAttribution `json:"sources,omitempty"`
}

// Event is one step of a streamed reply.
type Event struct {
	Type     string                     `json:"type"` // start, chunk, end, error
	ChatID   string                     `json:"chat_id,omitempty"`
	Text     string                     `json:"text,omitempty"`
	Thinking string                     `json:"thinking,omitempty"`
	Sources  []schema.SourceAttribution `json:"sources,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// Engine retrieves context for a question, generates a grounded answer, and
// persists the exchange. The caller picks the embedding space; each space
// carries its own provider, storage tier, and generator.
type Engine struct {
	store        retriever
	durableEmbed embedding.Provider
	fastEmbed    embedding.Provider
	remoteGen    llm.Generator
	localGen     llm.Generator
	history      chathistory.Store
	opts         Options
	log          *logger.Logger
}

// NewEngine wires an engine. Each space gets its own generator alongside
// its provider and tier.
func NewEngine(store retriever, durableEmbed, fastEmbed embedding.Provider, remoteGen, localGen llm.Generator, history chathistory.Store, opts Options, log *logger.Logger) *Engine {
	return &Engine{
		store:        store,
		durableEmbed: durableEmbed,
		fastEmbed:    fastEmbed,
		remoteGen:    remoteGen,
		localGen:     localGen,
		history:      history,
		opts:         opts.withDefaults(),
		log:          log,
	}
}

// generator picks the space's generation capability. retrieve has already
// validated the space.
func (e *Engine) generator(space Space) llm.Generator {
	if space == SpaceLocal {
		return e.localGen
	}
	return e.remoteGen
}

// retrieve embeds the question in the requested space and searches that
// space's tier.
func (e *Engine) retrieve(ctx context.Context, space Space, question string) ([]schema.RetrievalHit, error) {
	switch space {
	case SpaceRemote, "":
		vec, err := e.durableEmbed.EmbedQuery(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("query embedding failed: %w", err)
		}
		return e.store.SearchDurable(ctx, vec, e.opts.TopK)
	case SpaceLocal:
		vec, err := e.fastEmbed.EmbedQuery(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("query embedding failed: %w", err)
		}
		return e.store.SearchFast(ctx, vec, e.opts.TopK)
	default:
		return nil, fmt.Errorf("unknown embedding space %q", space)
	}
}

// recentTurns converts the tail of the chat history into generator
// messages.
func (e *Engine) recentTurns(ctx context.Context, chatID string) []llm.Message {
	turns, err := e.history.Load(ctx, chatID)
	if err != nil {
		e.log.WithError(err).Warn("failed to load chat history, answering without it")
		return nil
	}
	if len(turns) > e.opts.HistoryWindow {
		turns = turns[len(turns)-e.opts.HistoryWindow:]
	}
	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	return messages
}

// persist records the exchange. A history failure does not fail the answer
// that was already produced.
func (e *Engine) persist(ctx context.Context, chatID, question string, ans *Answer) {
	now := time.Now().UTC()
	err := e.history.Append(ctx, chatID,
		chathistory.Turn{Role: llm.RoleUser, Content: question, Timestamp: now},
		chathistory.Turn{
			Role:      llm.RoleAssistant,
			Content:   ans.Text,
			Thinking:  ans.Thinking,
			Sources:   ans.Sources,
			Timestamp: now,
		},
	)
	if err != nil {
		e.log.WithError(err).Error("failed to persist chat turns")
	}
}

// Answer produces a complete grounded reply in the requested space. An
// empty chatID starts a new conversation; an empty space means remote.
func (e *Engine) Answer(ctx context.Context, space Space, chatID, question string) (*Answer, error) {
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if chatID == "" {
		chatID = uuid.NewString()
	}

	hits, err := e.retrieve(ctx, space, question)
	if err != nil {
		return nil, err
	}
	window := &contextWindow{hits: hits}

	raw, err := e.generator(space).Generate(ctx, e.recentTurns(ctx, chatID), window.prompt(question))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	ans := e.finish(window, chatID, raw)
	e.persist(ctx, chatID, question, ans)
	return ans, nil
}

// finish turns raw model output into an Answer: trailer off, reasoning out,
// citations resolved.
func (e *Engine) finish(window *contextWindow, chatID, raw string) *Answer {
	clean, indices, found := parseTrailer(raw, len(window.hits))
	clean, thinking := extractThinking(clean)
	return &Answer{
		ChatID:   chatID,
		Text:     clean,
		Thinking: thinking,
		Sources:  window.resolve(indices, found, e.opts.MaxSources),
	}
}

// AnswerStream produces the reply incrementally. Text is emitted as it
// arrives, except that a possible citation trailer is held back until the
// stream ends; the end event carries the resolved sources.
func (e *Engine) AnswerStream(ctx context.Context, space Space, chatID, question string) (<-chan Event, error) {
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if chatID == "" {
		chatID = uuid.NewString()
	}

	hits, err := e.retrieve(ctx, space, question)
	if err != nil {
		return nil, err
	}
	window := &contextWindow{hits: hits}

	chunks, err := e.generator(space).GenerateStream(ctx, e.recentTurns(ctx, chatID), window.prompt(question))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		if !send(ctx, events, Event{Type: "start", ChatID: chatID}) {
			return
		}

		var full, emitted string
		for chunk := range chunks {
			if chunk.Err != nil {
				send(ctx, events, Event{Type: "error", ChatID: chatID, Error: chunk.Err.Error()})
				return
			}
			full += chunk.Text
			if n := safeFlushLen(full); n > len(emitted) {
				if !send(ctx, events, Event{Type: "chunk", ChatID: chatID, Text: full[len(emitted):n]}) {
					return
				}
				emitted = full[:n]
			}
		}

		// Anything held back that turned out not to be a trailer still
		// belongs to the client.
		if clean := stripTrailer(full); len(clean) > len(emitted) {
			if !send(ctx, events, Event{Type: "chunk", ChatID: chatID, Text: clean[len(emitted):]}) {
				return
			}
		}

		ans := e.finish(window, chatID, full)
		if !send(ctx, events, Event{
			Type:     "end",
			ChatID:   chatID,
			Text:     ans.Text,
			Thinking: ans.Thinking,
			Sources:  ans.Sources,
		}) {
			return
		}
		e.persist(ctx, chatID, question, ans)
	}()
	return events, nil
}

// send delivers an event unless the consumer's context has ended. A false
// return means nobody is listening anymore and the stream should stop.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
