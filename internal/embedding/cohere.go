package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hyperjump/bekutoru/internal/apperr"
)

const cohereEmbedURL = "https://api.cohere.com/v2/embed"

// CohereEmbedder calls the Cohere v2 embed API.
type CohereEmbedder struct {
	client     *http.Client
	apiKey     string
	model      string
	dimensions int
	inputType  string
}

// NewCohereEmbedder creates an embedder for the given model and output
// dimension. The API key is read from the environment variable named by
// apiKeyEnv; a missing key is a configuration error.
func NewCohereEmbedder(model string, dimensions int, apiKeyEnv string) (*CohereEmbedder, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, apperr.New(apperr.KindConfig, "environment variable %s is not set", apiKeyEnv)
	}
	if model == "" {
		model = "embed-v4.0"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &CohereEmbedder{
		client:     &http.Client{Timeout: 30 * time.Second},
		apiKey:     key,
		model:      model,
		dimensions: dimensions,
		inputType:  "search_document",
	}, nil
}

type cohereRequest struct {
	Model           string   `json:"model"`
	Texts           []string `json:"texts"`
	InputType       string   `json:"input_type"`
	EmbeddingTypes  []string `json:"embedding_types"`
	OutputDimension int      `json:"output_dimension"`
}

type cohereResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message"`
}

// Embed returns the embedding for a single text.
func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch returns embeddings for a batch of texts in input order.
func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(cohereRequest{
		Model:           e.model,
		Texts:           texts,
		InputType:       e.inputType,
		EmbeddingTypes:  []string{"float"},
		OutputDimension: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cohereEmbedURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingFailure, err, "embed request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingFailure, err, "read embed response")
	}

	var out cohereResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingFailure, err, "parse embed response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindEmbeddingFailure,
			"embed request returned %d: %s", resp.StatusCode, out.Message)
	}
	if len(out.Embeddings.Float) != len(texts) {
		return nil, apperr.New(apperr.KindEmbeddingFailure,
			"embed response has %d embeddings for %d texts", len(out.Embeddings.Float), len(texts))
	}
	return out.Embeddings.Float, nil
}

// Dimensions returns the configured output dimension.
func (e *CohereEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op for CohereEmbedder.
func (e *CohereEmbedder) Close() error { return nil }
