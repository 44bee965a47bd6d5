// Package embed provides the embedding-model boundary: ordered texts in,
// aligned vectors out. Batching is the caller's responsibility; a single call
// is atomic and makes no other concurrency guarantee.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
)

// Client calls an OpenAI-style /v1/embeddings endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	dim        int
	httpClient *http.Client
}

// NewClient creates an embeddings client. endpoint is the API base URL
// without a trailing path, e.g. "https://api.openai.com".
func NewClient(endpoint, apiKey, model string, dim int) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dim:      dim,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// embeddingRequest is the request body for the embeddings API.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingData is one vector in the API response, tagged with its input index.
type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// embeddingResponse is the success body for the embeddings API.
type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// apiError is the error body returned by the embeddings API.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// EmbedTexts embeds every text in order. The result has exactly one vector
// per input text; any mismatch from the model is an EmbeddingUnavailable
// error, never silently padded or truncated.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, kberrors.New(kberrors.KindEmbeddingUnavailable, "embedding", err)
	}

	url := c.endpoint + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, kberrors.New(kberrors.KindEmbeddingUnavailable, "embedding", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, kberrors.New(kberrors.KindEmbeddingUnavailable, "embedding", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kberrors.New(kberrors.KindEmbeddingUnavailable, "embedding", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			logger.Error("Embedding API returned %d: %s", resp.StatusCode, apiErr.Error.Message)
			return nil, kberrors.Newf(kberrors.KindEmbeddingUnavailable,
				"embedding API returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, kberrors.Newf(kberrors.KindEmbeddingUnavailable,
			"embedding API returned status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, kberrors.New(kberrors.KindEmbeddingUnavailable, "embedding", err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, kberrors.Newf(kberrors.KindEmbeddingUnavailable,
			"embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data))
	}

	// The API may return vectors out of order; realign by index.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != c.dim {
			return nil, kberrors.Newf(kberrors.KindEmbeddingUnavailable,
				"embedding %d has dimension %d, expected %d", i, len(d.Embedding), c.dim)
		}
		vectors[i] = d.Embedding
	}

	logger.Debug("Embedded %d texts with model %s", len(texts), c.model)
	return vectors, nil
}

// Dimension returns the fixed vector width this client produces.
func (c *Client) Dimension() int {
	return c.dim
}

// String identifies the client for logs without exposing the API key.
func (c *Client) String() string {
	return fmt.Sprintf("embed.Client{model: %s, dim: %d}", c.model, c.dim)
}
