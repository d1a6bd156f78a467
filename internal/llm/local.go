package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/devkraft/ragline/pkg/logger"
)

// chatEngine is the call surface shared by the Ollama and Hugging Face
// generators, narrowed so tests can substitute fakes.
type chatEngine interface {
	chat(ctx context.Context, messages []Message) (string, error)
	chatStream(ctx context.Context, messages []Message, emit func(string) error) error
}

// LocalGenerator prefers a local Ollama engine and falls back to the
// Hugging Face Inference API. The switch to the remote engine is permanent
// for the lifetime of the instance, mirroring the embedding side.
type LocalGenerator struct {
	primary  chatEngine
	fallback chatEngine
	log      *logger.Logger

	mu       sync.Mutex
	fellBack bool
}

// NewLocalGenerator probes the Ollama server once at construction; when the
// probe fails the generator starts out on the Hugging Face engine.
func NewLocalGenerator(ctx context.Context, ollamaModel, ollamaURL, hfToken, hfModel string, log *logger.Logger) (*LocalGenerator, error) {
	oc, err := newOllamaChat(ollamaModel, ollamaURL)
	if err != nil {
		return nil, err
	}

	g := &LocalGenerator{
		primary:  oc,
		fallback: newHFChat(hfToken, hfModel),
		log:      log,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := oc.client.Heartbeat(probeCtx); err != nil {
		log.WithError(err).Warn("ollama is unreachable, using hugging face engine")
		g.fellBack = true
	}
	return g, nil
}

func newLocalGenerator(primary, fallback chatEngine, log *logger.Logger) *LocalGenerator {
	return &LocalGenerator{primary: primary, fallback: fallback, log: log}
}

func (g *LocalGenerator) engine() (chatEngine, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fellBack {
		return g.fallback, true
	}
	return g.primary, false
}

func (g *LocalGenerator) switchToFallback(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.fellBack {
		g.log.WithError(err).Warn("local chat engine failed, switching to hugging face")
		g.fellBack = true
	}
}

// Generate returns the complete answer, retrying the active engine once
// before falling back.
func (g *LocalGenerator) Generate(ctx context.Context, history []Message, prompt string) (string, error) {
	messages := append(append([]Message{}, history...), Message{Role: RoleUser, Content: prompt})
	engine, onFallback := g.engine()

	answer, err := engine.chat(ctx, messages)
	if err != nil && ctx.Err() == nil {
		answer, err = engine.chat(ctx, messages)
	}
	if err == nil {
		return answer, nil
	}
	if onFallback || ctx.Err() != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}

	g.switchToFallback(err)
	answer, err = g.fallback.chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("fallback chat failed: %w", err)
	}
	return answer, nil
}

// GenerateStream forwards answer fragments from the active engine. The
// Hugging Face engine cannot stream; after a fallback the full answer
// arrives as a single chunk. A failure after fragments were already
// delivered is terminal for this stream: later calls use the fallback, but
// the partial answer is never re-generated onto the same stream.
func (g *LocalGenerator) GenerateStream(ctx context.Context, history []Message, prompt string) (<-chan Chunk, error) {
	messages := append(append([]Message{}, history...), Message{Role: RoleUser, Content: prompt})
	engine, onFallback := g.engine()

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		var emitted bool
		emit := func(text string) error {
			select {
			case ch <- Chunk{Text: text}:
				emitted = true
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		fail := func(err error) {
			select {
			case ch <- Chunk{Err: err}:
			case <-ctx.Done():
			}
		}

		err := engine.chatStream(ctx, messages, emit)
		if err == nil || ctx.Err() != nil {
			return
		}
		if onFallback {
			fail(fmt.Errorf("chat stream failed: %w", err))
			return
		}

		g.switchToFallback(err)
		if emitted {
			// Part of the answer already reached the client; regenerating
			// on the fallback would append a second copy of it.
			fail(fmt.Errorf("chat stream failed mid-answer: %w", err))
			return
		}
		if err := g.fallback.chatStream(ctx, messages, emit); err != nil {
			fail(fmt.Errorf("fallback chat failed: %w", err))
		}
	}()
	return ch, nil
}

// ollamaChat drives a local Ollama chat model.
type ollamaChat struct {
	client *ollama.Client
	model  string
}

func newOllamaChat(model, baseURL string) (*ollamaChat, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	hc := &http.Client{Timeout: 300 * time.Second}
	return &ollamaChat{client: ollama.NewClient(parsedURL, hc), model: model}, nil
}

func toOllamaMessages(messages []Message) []ollama.Message {
	out := make([]ollama.Message, len(messages))
	for i, m := range messages {
		out[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (o *ollamaChat) chat(ctx context.Context, messages []Message) (string, error) {
	var answer string
	stream := false
	err := o.client.Chat(ctx, &ollama.ChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}, func(resp ollama.ChatResponse) error {
		answer += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return answer, nil
}

func (o *ollamaChat) chatStream(ctx context.Context, messages []Message, emit func(string) error) error {
	stream := true
	err := o.client.Chat(ctx, &ollama.ChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}, func(resp ollama.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return emit(resp.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("ollama chat stream failed: %w", err)
	}
	return nil
}

var (
	_ chatEngine = (*ollamaChat)(nil)
	_ chatEngine = (*hfChat)(nil)
	_ Generator  = (*LocalGenerator)(nil)
)
