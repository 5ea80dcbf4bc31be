// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noesis-chat/client-core/internal/model"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient().WithBaseURL(srv.URL).WithHTTPClient(srv.Client())
}

func TestFetchGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/graph", r.URL.Path)
		json.NewEncoder(w).Encode(model.GraphSnapshot{
			Nodes: []model.GraphNode{{ID: "n1", Label: "Go"}},
			Edges: []model.GraphEdge{{ID: "e1", Source: "n1", Target: "n1"}},
		})
	}))
	defer srv.Close()

	snap, err := newTestClient(srv).FetchGraph(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.HasNode("n1"))
	assert.True(t, snap.HasEdge("e1"))
}

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)

		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-1", req.SessionID)
		assert.Equal(t, "what is a graph", req.Prompt)

		json.NewEncoder(w).Encode(QueryResponse{
			Reply:        "a set of nodes and edges",
			HasGraphData: true,
			Metadata:     map[string]string{"model": "gpt-4o"},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Query(context.Background(), "sess-1", "what is a graph")
	require.NoError(t, err)
	assert.Equal(t, "a set of nodes and edges", resp.Reply)
	assert.True(t, resp.HasGraphData)
	assert.Equal(t, "gpt-4o", resp.Metadata["model"])
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(model.GraphSnapshot{})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv).WithMaxRetries(2)
	_, err := c.FetchGraph(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"bad_prompt","message":"prompt rejected"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Query(context.Background(), "s", "p")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not retry")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad_prompt", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchGraph(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRateLimitedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		json.NewEncoder(w).Encode(QueryResponse{Reply: "ok"})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Query(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestClient(srv).FetchGraph(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "must not sit out the full backoff")
}

func TestResponseSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", MaxResponseSize+1)))
	}))
	defer srv.Close()

	c := newTestClient(srv).WithMaxRetries(1)
	_, err := c.FetchGraph(context.Background())
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{10, retryMaxDelay},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	c := NewClient().WithBaseURL("http://example.test/api/")
	assert.Equal(t, "http://example.test/api", c.BaseURL())
}
