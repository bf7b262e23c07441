package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGenerator calls an external text-generation endpoint. The endpoint
// receives the prompt and chat lines as JSON and answers with {"text": ...}.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator creates a generator client for the given endpoint.
func NewHTTPGenerator(endpoint, apiKey string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Prompt string   `json:"prompt"`
	Lines  []string `json:"lines"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, lines []string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Lines: lines})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("detect: generation endpoint returned %d: %s", resp.StatusCode, data)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}
