package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaProvider dispatches translation calls to a local Ollama instance's
// blocking (non-streaming) chat endpoint in JSON mode, grounded on the OllamaLLMClient shape, adapted from a
// streamed NDJSON response to a single stream:false call with
// format:"json".
type OllamaProvider struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaProvider creates an Ollama client pointed at url for model.
func NewOllamaProvider(url, model string, poolSize int) *OllamaProvider {
	return &OllamaProvider{
		url:    url,
		model:  model,
		client: newPooledHTTPClient(poolSize, 60*time.Second),
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format"`
	Options  ollamaChatOptions   `json:"options"`
	Messages []ollamaChatMessage `json:"messages"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

// Chat posts a single blocking chat request and returns the assistant
// message content.
func (o *OllamaProvider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody, err := json.Marshal(ollamaChatRequest{
		Model:   o.model,
		Stream:  false,
		Format:  "json",
		Options: ollamaChatOptions{Temperature: 0.2, TopP: 0.1},
		Messages: []ollamaChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return out.Message.Content, nil
}
