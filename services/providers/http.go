package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/upb/integration-gateway/internal/policy"
)

type executeRequest struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

// HTTPConnector forwards actions to a per-provider connector endpoint
type HTTPConnector struct {
	provider   policy.Provider
	config     ConnectorConfig
	httpClient *http.Client
}

// NewHTTPConnector creates a new HTTP connector
func NewHTTPConnector(provider policy.Provider, config ConnectorConfig) (*HTTPConnector, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("connector endpoint for %s is required", provider)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = 10 << 20
	}

	return &HTTPConnector{
		provider: provider,
		config:   config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// BuildHTTPConnector is a ConnectorBuilder for HTTP connectors
func BuildHTTPConnector(provider policy.Provider, config ConnectorConfig) (Connector, error) {
	return NewHTTPConnector(provider, config)
}

// Provider returns the provider name
func (c *HTTPConnector) Provider() policy.Provider {
	return c.provider
}

// Execute posts {action, args} with the bearer token
func (c *HTTPConnector) Execute(ctx context.Context, action string, args json.RawMessage, accessToken string) (any, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	reqBody, err := json.Marshal(executeRequest{Action: action, Args: args})
	if err != nil {
		return nil, NewUpstreamError(c.provider, 0, "failed to encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, NewUpstreamError(c.provider, 0, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		upErr := NewUpstreamError(c.provider, 0, err.Error(), err)
		upErr.Timeout = errors.Is(err, context.DeadlineExceeded) || isTimeout(err)
		if upErr.Timeout {
			upErr.Message = fmt.Sprintf("%s request timed out", c.provider)
		}
		return nil, upErr
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, c.config.MaxResponseBytes))
	if err != nil {
		return nil, NewUpstreamError(c.provider, httpResp.StatusCode, "failed to read response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, NewUpstreamError(c.provider, httpResp.StatusCode, upstreamMessage(httpResp.StatusCode, respBody), nil)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, NewUpstreamError(c.provider, httpResp.StatusCode, "invalid JSON response", err)
	}
	return data, nil
}

// upstreamMessage picks the message out of common error envelopes, or
// returns the body as is.
func upstreamMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		for _, path := range []string{"error.message", "message", "error_description", "error"} {
			if v := root.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
