package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const hfModelsURL = "https://api-inference.huggingface.co/models/"

// hfChat answers through the Hugging Face text-generation API. Prior turns
// are flattened into a labeled transcript since the pipeline takes a single
// text input.
type hfChat struct {
	client *http.Client
	token  string
	model  string
}

func newHFChat(token, model string) *hfChat {
	return &hfChat{
		client: &http.Client{Timeout: 120 * time.Second},
		token:  token,
		model:  model,
	}
}

func transcript(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		label := "User"
		if m.Role == RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, m.Content)
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

func (h *hfChat) chat(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]interface{}{
		"inputs": transcript(messages),
		"parameters": map[string]interface{}{
			"max_new_tokens":   1024,
			"return_full_text": false,
		},
		"options": map[string]bool{"wait_for_model": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hfModelsURL+h.model, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("hugging face API returned %d: %s", resp.StatusCode, msg)
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("hugging face returned no generations")
	}
	return strings.TrimSpace(out[0].GeneratedText), nil
}

// chatStream delivers the whole answer as one fragment; the API has no
// streaming mode.
func (h *hfChat) chatStream(ctx context.Context, messages []Message, emit func(string) error) error {
	answer, err := h.chat(ctx, messages)
	if err != nil {
		return err
	}
	return emit(answer)
}
