package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HuggingFaceModel calls the Hugging Face Inference API feature-extraction
// pipeline over plain HTTP.
type HuggingFaceModel struct {
	client  *http.Client
	model   string
	apiKey  string
	baseURL string
}

// NewHuggingFaceModel builds a client for the given model. baseURL defaults
// to the public inference endpoint when empty.
func NewHuggingFaceModel(apiKey, model, baseURL string) (*HuggingFaceModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("hugging face API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"
	}
	return &HuggingFaceModel{
		client:  &http.Client{Timeout: 60 * time.Second},
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
	}, nil
}

// Embed generates a vector for a single text.
func (m *HuggingFaceModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates vectors for a batch of texts in one request.
func (m *HuggingFaceModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"inputs": texts,
		// Cold models answer 503 until loaded; ask the API to block instead.
		"options": map[string]bool{"wait_for_model": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+m.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hugging face API returned %d: %s", resp.StatusCode, msg)
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("hugging face returned %d embeddings for %d texts", len(embeddings), len(texts))
	}
	return embeddings, nil
}
