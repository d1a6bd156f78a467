package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/devkraft/ragline/pkg/logger"
)

// GeminiGenerator answers through the Gemini API. Each call builds a fresh
// chat session seeded with the caller's history, so the generator itself
// stays stateless and concurrent calls never share a session.
type GeminiGenerator struct {
	model *genai.GenerativeModel
	log   *logger.Logger
}

// NewGeminiGenerator creates a generator for the named chat model.
func NewGeminiGenerator(ctx context.Context, model, apiKey string, log *logger.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{model: client.GenerativeModel(model), log: log}, nil
}

// session builds a chat session carrying the prior turns. Gemini names the
// model side "model", not "assistant".
func (g *GeminiGenerator) session(history []Message) *genai.ChatSession {
	cs := g.model.StartChat()
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return cs
}

// Generate sends the prompt and returns the full answer text.
func (g *GeminiGenerator) Generate(ctx context.Context, history []Message, prompt string) (string, error) {
	resp, err := g.session(history).SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return responseText(resp), nil
}

// GenerateStream sends the prompt and forwards answer fragments as they
// arrive.
func (g *GeminiGenerator) GenerateStream(ctx context.Context, history []Message, prompt string) (<-chan Chunk, error) {
	iter := g.session(history).SendMessageStream(ctx, genai.Text(prompt))

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				select {
				case ch <- Chunk{Err: fmt.Errorf("gemini stream failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if text := responseText(resp); text != "" {
				select {
				case ch <- Chunk{Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

var _ Generator = (*GeminiGenerator)(nil)
