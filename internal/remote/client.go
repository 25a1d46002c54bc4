package remote

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

	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/monitoring"
	apperrors "github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/logger"
	"github.com/hearthly/hearth/pkg/response"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 8 << 20
)

// Config configures the household API client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the household REST API and unwraps its response envelope.
// Transport failures are reported as ErrRemoteUnavailable; server errors keep
// their code so NOT_FOUND and CONFLICT can be told apart.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *zap.Logger
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("remote: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:  base,
		token: strings.TrimSpace(cfg.Token),
		http:  httpClient,
		log:   logger.WithModule("remote"),
	}, nil
}

func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// Ping checks the liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health/live"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.ErrRemoteUnavailable.WithInternal(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.ErrRemoteUnavailable.WithMessage(fmt.Sprintf("health check returned %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := encodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		monitoring.RecordRemoteRequest(method, 0)
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, apperrors.ErrRemoteUnavailable.WithInternal(err)
	}
	defer resp.Body.Close()
	monitoring.RecordRemoteRequest(method, resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperrors.ErrRemoteUnavailable.WithInternal(err)
	}

	env, err := response.DecodeEnvelope(resp.StatusCode, raw)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	rel, err := url.Parse(path)
	if err != nil {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
		return u.String()
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return u.String()
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("null"), nil
		}
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
