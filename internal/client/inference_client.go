package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ballotbase/api/internal/config"
)

// Batch lifecycle states reported by the inference service. Any state
// not listed here is treated as still pending.
type BatchState string

const (
	BatchStateRunning   BatchState = "RUNNING"
	BatchStateSucceeded BatchState = "SUCCEEDED"
	BatchStateFailed    BatchState = "FAILED"
	BatchStateCancelled BatchState = "CANCELLED"
)

// GenerationConfig carries per-request generation parameters.
type GenerationConfig struct {
	Temperature      float64         `json:"temperature"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	ThinkingBudget   int             `json:"thinkingBudget,omitempty"`
}

// BatchRequest is one prompt within a batch submission. Key is the
// correlation token echoed back with the matching result.
type BatchRequest struct {
	Key          string            `json:"key"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	Contents     string            `json:"contents"`
	Config       *GenerationConfig `json:"generationConfig,omitempty"`
}

// BatchStatus is the coarse lifecycle state of a submitted batch.
type BatchStatus struct {
	State       BatchState `json:"state"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
}

// ItemResult is one per-key outcome, decoded defensively: exactly one
// of Text or Error is expected to be set.
type ItemResult struct {
	Key   string `json:"key"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// InferenceClient talks to the batch inference API.
type InferenceClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type submitBatchRequest struct {
	Model       string         `json:"model"`
	DisplayName string         `json:"displayName"`
	Requests    []BatchRequest `json:"requests"`
}

type submitBatchResponse struct {
	Name string `json:"name"`
}

type batchStatusResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type batchResultsResponse struct {
	Results []struct {
		Key      string `json:"key"`
		Response *struct {
			Text string `json:"text"`
		} `json:"response,omitempty"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"results"`
}

// NewInferenceClient creates a new batch inference API client.
func NewInferenceClient(cfg *config.InferenceConfig) *InferenceClient {
	return &InferenceClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// SubmitBatch submits a batch of prompts under the given model and
// returns the opaque batch reference.
func (c *InferenceClient) SubmitBatch(ctx context.Context, model, displayName string, requests []BatchRequest) (string, error) {
	reqBody := submitBatchRequest{
		Model:       model,
		DisplayName: displayName,
		Requests:    requests,
	}

	var resp submitBatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/batches", &reqBody, &resp); err != nil {
		return "", err
	}

	if resp.Name == "" {
		return "", fmt.Errorf("batch submission returned no reference")
	}

	return resp.Name, nil
}

// GetBatchStatus polls the lifecycle state of a submitted batch.
func (c *InferenceClient) GetBatchStatus(ctx context.Context, name string) (*BatchStatus, error) {
	var resp batchStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/"+url.PathEscape(name), nil, &resp); err != nil {
		return nil, err
	}

	status := &BatchStatus{State: BatchState(strings.ToUpper(resp.State))}
	if resp.Error != nil {
		status.ErrorDetail = resp.Error.Message
	}
	return status, nil
}

// FetchResults fetches per-item results for the given keys, returned in
// key order. Keys without a matching result yield an ItemResult with an
// explanatory error rather than a missing entry.
func (c *InferenceClient) FetchResults(ctx context.Context, name, mode string, keys []string) ([]ItemResult, error) {
	path := "/v1/" + url.PathEscape(name) + "/results?mode=" + url.QueryEscape(mode)

	var resp batchResultsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	byKey := make(map[string]ItemResult, len(resp.Results))
	for _, r := range resp.Results {
		item := ItemResult{Key: r.Key}
		switch {
		case r.Error != nil:
			item.Error = r.Error.Message
			if item.Error == "" {
				item.Error = "inference item failed without detail"
			}
		case r.Response != nil:
			item.Text = r.Response.Text
		default:
			item.Error = "inference item returned neither text nor error"
		}
		byKey[r.Key] = item
	}

	results := make([]ItemResult, len(keys))
	for i, key := range keys {
		if item, ok := byKey[key]; ok {
			results[i] = item
		} else {
			results[i] = ItemResult{Key: key, Error: "no result returned for key"}
		}
	}
	return results, nil
}

// IsConfigured returns true if the client has valid configuration.
func (c *InferenceClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *InferenceClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
