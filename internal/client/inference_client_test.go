package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbase/api/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*InferenceClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewInferenceClient(&config.InferenceConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}), srv
}

func TestSubmitBatch(t *testing.T) {
	var captured submitBatchRequest
	var gotAuth string

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/batches", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"name": "batches/abc-123"})
	})

	name, err := c.SubmitBatch(context.Background(), "gemini-2.5-pro", "County sheet", []BatchRequest{
		{Key: "group-001", SystemPrompt: "analyze", Contents: "rows"},
	})

	require.NoError(t, err)
	assert.Equal(t, "batches/abc-123", name)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gemini-2.5-pro", captured.Model)
	assert.Equal(t, "County sheet", captured.DisplayName)
	require.Len(t, captured.Requests, 1)
	assert.Equal(t, "group-001", captured.Requests[0].Key)
}

func TestSubmitBatchMissingReference(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})

	_, err := c.SubmitBatch(context.Background(), "m", "d", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reference")
}

func TestSubmitBatchErrorBodySurfaced(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	})

	_, err := c.SubmitBatch(context.Background(), "m", "d", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGetBatchStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batches/abc-123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"name": "batches/abc-123", "state": "succeeded"})
	})

	status, err := c.GetBatchStatus(context.Background(), "batches/abc-123")
	require.NoError(t, err)
	assert.Equal(t, BatchStateSucceeded, status.State)
	assert.Empty(t, status.ErrorDetail)
}

func TestGetBatchStatusWithError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"FAILED","error":{"message":"model overloaded"}}`))
	})

	status, err := c.GetBatchStatus(context.Background(), "batches/abc-123")
	require.NoError(t, err)
	assert.Equal(t, BatchStateFailed, status.State)
	assert.Equal(t, "model overloaded", status.ErrorDetail)
}

func TestFetchResultsAlignment(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batches/abc-123/results", r.URL.Path)
		assert.Equal(t, "inline", r.URL.Query().Get("mode"))
		w.Write([]byte(`{"results":[
			{"key":"group-002","error":{"message":"quota"}},
			{"key":"group-001","response":{"text":"analysis one"}},
			{"key":"group-004"}
		]}`))
	})

	results, err := c.FetchResults(context.Background(), "batches/abc-123", "inline",
		[]string{"group-001", "group-002", "group-003", "group-004"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	// Results come back in requested key order regardless of wire order.
	assert.Equal(t, "analysis one", results[0].Text)
	assert.Equal(t, "quota", results[1].Error)
	assert.Equal(t, "no result returned for key", results[2].Error)
	assert.Equal(t, "inference item returned neither text nor error", results[3].Error)
}

func TestFetchResultsErrorWithoutDetail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"key":"group-001","error":{}}]}`))
	})

	results, err := c.FetchResults(context.Background(), "batches/x", "inline", []string{"group-001"})
	require.NoError(t, err)
	assert.Equal(t, "inference item failed without detail", results[0].Error)
}

func TestIsConfigured(t *testing.T) {
	assert.True(t, NewInferenceClient(&config.InferenceConfig{APIKey: "k"}).IsConfigured())
	assert.False(t, NewInferenceClient(&config.InferenceConfig{}).IsConfigured())
}
