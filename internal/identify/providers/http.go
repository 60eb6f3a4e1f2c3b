package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/service"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// transport is the HTTP plumbing shared by every remote provider.
type transport struct {
	client  *http.Client
	limiter *rateLimiter
	logger  *slog.Logger
	name    string
	retry   service.RetryOptions
}

func newTransport(name string, cfg Config, logger *slog.Logger) transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient()
	}
	return transport{
		name:    name,
		client:  cfg.HTTPClient,
		limiter: newRateLimiter(cfg.RateLimit),
		retry:   cfg.Retry,
		logger:  logger.With("provider", name),
	}
}

// Name returns the provider name.
func (t *transport) Name() string {
	return t.name
}

// newRequest builds a fresh request on each retry.
type newRequest func(ctx context.Context) (*http.Request, error)

// do sends a request under the rate limiter with retries and returns the
// body of a 200 response. Failures are provider errors.
func (t *transport) do(ctx context.Context, build newRequest) ([]byte, error) {
	if err := t.limiter.wait(ctx); err != nil {
		return nil, common.ClassifyTransportError(t.name, err)
	}

	var body []byte
	err := common.WithRetry(ctx, func() error {
		req, err := build(ctx)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return common.ClassifyTransportError(t.name, fmt.Errorf("request failed: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return common.ClassifyTransportError(t.name, fmt.Errorf("failed to read response: %w", err))
		}
		if resp.StatusCode != http.StatusOK {
			return common.ProviderErrorFromStatus(t.name, resp.StatusCode, string(data))
		}
		body = data
		return nil
	}, t.retry)
	if err != nil {
		return nil, common.ClassifyTransportError(t.name, err)
	}
	return body, nil
}

// postJSON marshals payload and posts it with the given headers.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, common.NewProviderError(t.name, common.KindBadResponse, fmt.Errorf("failed to marshal request: %w", err))
	}
	return t.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// decode unmarshals a response body, reporting failures as bad responses.
func (t *transport) decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return common.NewProviderError(t.name, common.KindBadResponse, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func (t *transport) badResponse(format string, args ...any) error {
	return common.NewProviderError(t.name, common.KindBadResponse, fmt.Errorf(format, args...))
}
