// Package api is the HTTP client for the Piatto backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"piatto/internal/config"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder receives one call per completed request.
type Recorder interface {
	RecordRequest(endpoint, method string, status int, latency time.Duration)
}

// Client talks to the Piatto backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokenSource
	recorder   Recorder
	logger     *zap.Logger
	validate   *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRecorder attaches a request recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new backend client. An API key in cfg enables JWT
// bearer authentication.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
	if cfg.APIKey != "" {
		ts, err := newTokenSource(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		c.tokens = ts
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call performs one request. endpoint is the path template used for logging
// and metrics, path is the concrete path.
func (c *Client) call(ctx context.Context, method, endpoint, path string, body, out interface{}) error {
	op := method + " " + endpoint

	var reader io.Reader
	if body != nil {
		if err := c.validate.StructCtx(ctx, body); err != nil {
			if _, ok := err.(*validator.InvalidValidationError); !ok {
				return &Error{Op: op, Kind: KindBadRequest, Err: err}
			}
		}
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to create api token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, method, 0, time.Since(start))
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		c.logger.Warn("API unreachable", zap.String("op", op), zap.Error(err))
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	c.record(endpoint, method, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		kind := KindForStatus(resp.StatusCode)
		if kind == KindNotFound {
			c.logger.Debug("API not found", zap.String("op", op), zap.String("path", path))
		} else {
			c.logger.Error("API error response",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(respBody)),
				zap.String("request_id", requestID),
			)
		}
		return &Error{Op: op, Kind: kind, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func (c *Client) record(endpoint, method string, status int, latency time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordRequest(endpoint, method, status, latency)
	}
}

// decodeID accepts a bare number or an object carrying the id under one of
// the given keys.
func decodeID(raw json.RawMessage, keys ...string) (int64, error) {
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("unexpected id payload: %s", string(raw))
	}
	for _, key := range append(keys, "id") {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &id); err == nil {
				return id, nil
			}
		}
	}
	return 0, fmt.Errorf("no id in payload: %s", string(raw))
}

// decodeIDList accepts a bare array or an object carrying the array under one
// of the given keys.
func decodeIDList(raw json.RawMessage, keys ...string) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unexpected id list payload: %s", string(raw))
	}
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &ids); err == nil {
				return ids, nil
			}
		}
	}
	return nil, fmt.Errorf("no id list in payload: %s", string(raw))
}
