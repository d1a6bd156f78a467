package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devkraft/ragline/pkg/logger"
)

// localEngine is the call surface shared by the Ollama and Hugging Face
// clients, narrowed so tests can substitute fakes.
type localEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LocalProvider is the low-dimension embedding variant. It prefers a local
// Ollama engine and falls back to the Hugging Face Inference API. Once the
// provider switches to the remote engine it never probes the local one
// again for the lifetime of the instance.
//
// Local models do not return unit vectors, so every output is normalized
// before it reaches a cosine-distance store.
type LocalProvider struct {
	primary  localEngine
	fallback localEngine
	dim      int
	log      *logger.Logger

	mu       sync.Mutex
	fellBack bool
}

// NewLocalProvider probes the Ollama server once at construction; when the
// probe fails the provider starts out on the Hugging Face engine.
func NewLocalProvider(ctx context.Context, ollamaModel, ollamaURL string, hf *HuggingFaceModel, dim int, log *logger.Logger) (*LocalProvider, error) {
	om, err := NewOllamaModel(ollamaModel, ollamaURL)
	if err != nil {
		return nil, err
	}

	p := &LocalProvider{primary: om, fallback: hf, dim: dim, log: log}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := om.Alive(probeCtx); err != nil {
		log.WithError(err).Warn("ollama is unreachable, using hugging face engine")
		p.fellBack = true
	}
	return p, nil
}

// newLocalProvider assembles a provider from pre-built engines; tests use
// it directly with fakes.
func newLocalProvider(primary, fallback localEngine, dim int, log *logger.Logger) *LocalProvider {
	return &LocalProvider{primary: primary, fallback: fallback, dim: dim, log: log}
}

// Dim reports the provider's embedding dimensionality.
func (p *LocalProvider) Dim() int { return p.dim }

func (p *LocalProvider) engine() (localEngine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fellBack {
		return p.fallback, true
	}
	return p.primary, false
}

// switchToFallback flips the provider to the remote engine for good.
func (p *LocalProvider) switchToFallback(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.fellBack {
		p.log.WithError(err).Warn("local embedding engine failed, switching to hugging face")
		p.fellBack = true
	}
}

// EmbedDocuments embeds a batch of chunks with the active engine, retrying
// once before falling back, and unit-normalizes every vector.
func (p *LocalProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors, err := p.embedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range vectors {
		vectors[i] = normalize(vectors[i])
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text and unit-normalizes the result.
func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	vec, err := p.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	return normalize(vec), nil
}

func (p *LocalProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	engine, onFallback := p.engine()

	vectors, err := engine.EmbedBatch(ctx, texts)
	if err != nil && ctx.Err() == nil {
		// One retry covers transient failures like a model still loading.
		vectors, err = engine.EmbedBatch(ctx, texts)
	}
	if err == nil {
		return vectors, nil
	}
	if onFallback || ctx.Err() != nil {
		return nil, fmt.Errorf("batch embed failed: %w", err)
	}

	p.switchToFallback(err)
	vectors, err = p.fallback.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("fallback batch embed failed: %w", err)
	}
	return vectors, nil
}

func (p *LocalProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	engine, onFallback := p.engine()

	vec, err := engine.Embed(ctx, text)
	if err != nil && ctx.Err() == nil {
		vec, err = engine.Embed(ctx, text)
	}
	if err == nil {
		return vec, nil
	}
	if onFallback || ctx.Err() != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}

	p.switchToFallback(err)
	vec, err = p.fallback.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("fallback embed failed: %w", err)
	}
	return vec, nil
}

var _ Provider = (*LocalProvider)(nil)
