package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient speaks the literal generic shape from spec.md §6: POST a
// {model, system, messages, max_tokens} body, get back {text}. Any backend
// that can be reached with a bearer token and that exact envelope — a
// self-hosted vLLM endpoint, an OpenAI-compatible gateway — satisfies this
// without a dedicated adapter.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{BaseURL: baseURL, APIKey: apiKey, HTTPClient: httpClient}
}

type httpWireMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type httpWireRequest struct {
	Model       string            `json:"model"`
	System      string            `json:"system,omitempty"`
	Messages    []httpWireMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type httpWireResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	wireMsgs := make([]httpWireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wireMsgs = append(wireMsgs, httpWireMessage{Role: m.Role, Text: m.Text})
	}
	body, err := json.Marshal(httpWireRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    wireMsgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("llm: backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var wireResp httpWireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if wireResp.Error != "" {
		return nil, fmt.Errorf("llm: backend error: %s", wireResp.Error)
	}
	return &Response{Text: wireResp.Text}, nil
}

var _ Client = (*HTTPClient)(nil)
