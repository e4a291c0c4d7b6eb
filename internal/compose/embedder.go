package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KofiRusu/neonhub-go/internal/config"
)

const (
	defaultEmbeddingBaseURL = "https://api.openai.com/v1"
	embeddingTimeout        = 10 * time.Second
)

// Embedder turns text into a vector via an OpenAI-compatible
// /embeddings endpoint. Kept as a raw HTTP client so self-hosted
// bases work the same as the hosted API.
type Embedder struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder builds the embedder, or nil when no API key is
// configured. A nil embedder simply leaves memory records unvectored.
func NewEmbedder(cfg *config.Config) *Embedder {
	if cfg.Provider.APIKey == "" {
		return nil
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultEmbeddingBaseURL
	}
	return &Embedder{
		apiKey:     cfg.Provider.APIKey,
		baseURL:    baseURL,
		model:      cfg.EmbeddingModel(),
		httpClient: &http.Client{Timeout: embeddingTimeout},
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return decoded.Data[0].Embedding, nil
}
