// Package analysis is the HTTP client for the companion analysis service.
// Items are pushed to it for processing and their analysis is read back.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/model"
)

// ErrUnavailable wraps transport failures: the service could not be
// reached or its reply could not be read.
var ErrUnavailable = errors.New("analysis service unavailable")

// StatusError is a non-2xx reply from the service. Code and Body are
// passed through to the API caller unchanged.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.Code, e.Body)
}

// Client talks to the analysis service.
type Client struct {
	base   string
	apiKey string
	http   *retryablehttp.Client
}

// Option tweaks a Client.
type Option func(*retryablehttp.Client)

// WithRetryMax sets how many times a failed call is retried.
func WithRetryMax(n int) Option {
	return func(c *retryablehttp.Client) { c.RetryMax = n }
}

// New builds a Client from cfg. log may be nil.
func New(cfg config.AnalysisConfig, log *zap.SugaredLogger, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	// hand the last response back instead of a generic "giving up" error
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if log != nil {
		rc.Logger = leveled{log}
	}
	for _, o := range opts {
		o(rc)
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), apiKey: cfg.APIKey, http: rc}
}

// ProcessItem sends an item to the service for processing.
func (c *Client) ProcessItem(ctx context.Context, it model.Item) (map[string]any, error) {
	return c.send(ctx, http.MethodPost, "process/item", it)
}

// GetItemAnalysis fetches the analysis for item id.
func (c *Client) GetItemAnalysis(ctx context.Context, id uint64) (map[string]any, error) {
	return c.send(ctx, http.MethodGet, "analysis/item/"+strconv.FormatUint(id, 10), nil)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+"/"+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", ErrUnavailable, err)
	}
	return out, nil
}

// leveled adapts a sugared zap logger to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
