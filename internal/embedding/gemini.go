package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/devkraft/ragline/pkg/logger"
)

const (
	// batchCeiling is the hard per-request batch-size limit of the API.
	batchCeiling = 49
	// batchCooldown keeps each credential at or below the per-minute
	// request budget: a credential submits at most one sub-batch per period.
	batchCooldown = time.Minute
	// queryCooldownEvery forces a pause once a credential's call counter
	// crosses this multiple.
	queryCooldownEvery = 50
	queryCooldown      = 10 * time.Second
)

// geminiClient is the per-credential call surface, narrowed so tests can
// substitute fakes for the remote API.
type geminiClient interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
	embedQuery(ctx context.Context, text string) ([]float32, error)
}

// GeminiProvider is the high-capacity embedding variant. Caller-supplied
// batches are split into sub-batches under the API ceiling; sub-batches
// rotate round-robin across the configured credentials and each credential
// independently respects the per-minute budget, so two credentials roughly
// double aggregate throughput.
//
// Cooldown state is owned by the provider instance, never module-global, so
// isolated instances can be constructed for tests. Waits happen outside the
// mutex: a slot is reserved under lock and slept for per call, so concurrent
// ingestions never serialize behind one another's cooldowns.
type GeminiProvider struct {
	clients []geminiClient
	dim     int
	log     *logger.Logger
	sleep   sleepFunc
	now     func() time.Time

	mu    sync.Mutex
	next  []time.Time // per-credential earliest permitted sub-batch submit
	calls []int       // per-credential call counter, shared by both paths
	rr    int
}

// genaiCredential wraps one API key's embedding models. Document and query
// embeddings use distinct task types.
type genaiCredential struct {
	doc   *genai.EmbeddingModel
	query *genai.EmbeddingModel
}

func (c *genaiCredential) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := c.doc.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := c.doc.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("batch embed request failed: %w", err)
	}
	vectors := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}

func (c *genaiCredential) embedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := c.query.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("query embed request failed: %w", err)
	}
	return res.Embedding.Values, nil
}

// NewGeminiProvider connects one genai client per configured API key. The
// returned provider is safe for concurrent use and should be constructed
// once per process and passed by reference to all call sites.
func NewGeminiProvider(ctx context.Context, apiKeys []string, model string, dim int, log *logger.Logger) (*GeminiProvider, error) {
	if len(apiKeys) == 0 || apiKeys[0] == "" {
		return nil, fmt.Errorf("at least one API key is required")
	}

	var clients []geminiClient
	for _, key := range apiKeys {
		if key == "" {
			continue
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		doc := client.EmbeddingModel(model)
		doc.TaskType = genai.TaskTypeRetrievalDocument
		query := client.EmbeddingModel(model)
		query.TaskType = genai.TaskTypeRetrievalQuery
		clients = append(clients, &genaiCredential{doc: doc, query: query})
	}

	log.Infof("initialized gemini embedding provider: model=%s credentials=%d", model, len(clients))
	return newGeminiProvider(clients, dim, log), nil
}

// newGeminiProvider assembles a provider from pre-built clients; tests use
// it directly with fakes.
func newGeminiProvider(clients []geminiClient, dim int, log *logger.Logger) *GeminiProvider {
	return &GeminiProvider{
		clients: clients,
		dim:     dim,
		log:     log,
		sleep:   defaultSleep,
		now:     time.Now,
		next:    make([]time.Time, len(clients)),
		calls:   make([]int, len(clients)),
	}
}

// Dim reports the provider's embedding dimensionality.
func (p *GeminiProvider) Dim() int { return p.dim }

// EmbedDocuments embeds a batch of chunks, splitting it into sub-batches
// under the API ceiling and pacing each credential to its budget. The API
// returns vectors already unit-normalized.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, 0, len(texts))
	total := (len(texts) + batchCeiling - 1) / batchCeiling
	for i, n := 0, 1; i < len(texts); i, n = i+batchCeiling, n+1 {
		end := i + batchCeiling
		if end > len(texts) {
			end = len(texts)
		}

		idx, wait := p.reserveBatchSlot()
		if wait > 0 {
			p.log.Infof("rate limit: waiting %s before sub-batch %d/%d (credential %d)", wait, n, total, idx+1)
			if err := p.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		p.log.Infof("embedding sub-batch %d/%d with %d texts (credential %d)", n, total, end-i, idx+1)
		batch, err := p.clients[idx].embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("sub-batch %d/%d failed: %w", n, total, err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("sub-batch %d/%d returned %d vectors for %d texts", n, total, len(batch), end-i)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery embeds a single query text. Query calls share the credential
// call counters with the batch path and force a fixed pause on every
// queryCooldownEvery-th call.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	idx, forced := p.reserveQuerySlot()
	if forced {
		p.log.Infof("rate limit: forced %s pause on credential %d", queryCooldown, idx+1)
		if err := p.sleep(ctx, queryCooldown); err != nil {
			return nil, err
		}
	}

	return p.clients[idx].embedQuery(ctx, text)
}

// reserveBatchSlot picks the next credential round-robin, reserves its next
// permitted submit time, and returns how long the caller must wait before
// using the slot. The wait itself happens outside the lock.
func (p *GeminiProvider) reserveBatchSlot() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.rr % len(p.clients)
	p.rr++
	p.calls[idx]++

	now := p.now()
	start := now
	if p.next[idx].After(now) {
		start = p.next[idx]
	}
	p.next[idx] = start.Add(batchCooldown)
	return idx, start.Sub(now)
}

// reserveQuerySlot picks the next credential round-robin, bumps its call
// counter, and reports whether the fixed query cooldown is due.
func (p *GeminiProvider) reserveQuerySlot() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.rr % len(p.clients)
	p.rr++
	p.calls[idx]++
	return idx, p.calls[idx]%queryCooldownEvery == 0
}

var _ Provider = (*GeminiProvider)(nil)
