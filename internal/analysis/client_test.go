package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/model"
)

func newClient(url string, opts ...Option) *Client {
	return New(config.AnalysisConfig{BaseURL: url + "/", APIKey: "k-123", Timeout: 2 * time.Second}, nil, opts...)
}

func TestProcessItem_PostsJSONWithKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/process/item", r.URL.Path)
		assert.Equal(t, "Bearer k-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var it model.Item
		require.NoError(t, json.NewDecoder(r.Body).Decode(&it))
		assert.Equal(t, "Widget", it.Title)

		_ = json.NewEncoder(w).Encode(map[string]any{"status": "queued"})
	}))
	defer srv.Close()

	out, err := newClient(srv.URL).ProcessItem(context.Background(), model.Item{ID: 1, Title: "Widget"})
	require.NoError(t, err)
	assert.Equal(t, "queued", out["status"])
}

func TestGetItemAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/analysis/item/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"score":0.5}`))
	}))
	defer srv.Close()

	out, err := newClient(srv.URL).GetItemAnalysis(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out["score"])
}

func TestStatusErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such item", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).GetItemAnalysis(context.Background(), 7)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "no such item")
}

func TestServerErrorsAreRetriedThenPassedThrough(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, WithRetryMax(1)).GetItemAnalysis(context.Background(), 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url, WithRetryMax(0)).GetItemAnalysis(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBadJSONIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).GetItemAnalysis(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}
