package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"weld/internal/constants"
	"weld/internal/logger"
	"weld/internal/orchestration"
	"weld/pkg/circuitbreaker"
	"weld/pkg/errors"
	"weld/pkg/metrics"
	"weld/pkg/tracing"
)

// request keys expected by the combine endpoint, one per item.
var requestKeys = map[string]string{
	orchestration.ItemOrderHeaderDetails: "orderHeaderDetailsCSVUrl",
	orchestration.ItemOrderLineItems:     "orderLineItemsCSVUrl",
	orchestration.ItemProductInformation: "productInformationCSVUrl",
}

// Client calls the external combine service. One blocking POST; the
// caller treats any failure as terminal for the batch, so there is no
// retry here, only an optional circuit breaker to fail fast while the
// service is down.
type Client struct {
	endpoint string
	client   *http.Client
	breaker  *circuitbreaker.Wrapper
	logger   logger.Logger
}

func NewClient(endpoint string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultComposerTimeout
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
	}
}

// WithBreaker adds circuit breaker protection around the HTTP call.
func (c *Client) WithBreaker(breaker *circuitbreaker.Wrapper) *Client {
	c.breaker = breaker
	return c
}

func (c *Client) Compose(ctx context.Context, items map[string]string) (string, error) {
	ctx, span := tracing.GetTracer("composer").Start(ctx, "composer.compose")
	defer span.End()

	start := time.Now()

	body := make(map[string]string, len(requestKeys))
	for itemName, key := range requestKeys {
		location, ok := items[itemName]
		if !ok {
			metrics.ObserveComposeDuration(time.Since(start), "invalid_request")
			return "", errors.ErrValidation.WithDetail("missing_item", itemName)
		}
		body[key] = location
	}

	result, err := c.post(ctx, body)
	if err != nil {
		metrics.ObserveComposeDuration(time.Since(start), "error")
		return "", err
	}

	metrics.ObserveComposeDuration(time.Since(start), "ok")
	return result, nil
}

func (c *Client) post(ctx context.Context, body map[string]string) (string, error) {
	if c.breaker != nil {
		result, err := c.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
			return c.doPost(ctx, body)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	}
	return c.doPost(ctx, body)
}

func (c *Client) doPost(ctx context.Context, body map[string]string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal compose request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build compose request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.ErrServiceUnavailable.WithCause(err).WithDetail("endpoint", c.endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read compose response: %w", err)
	}

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return "", errors.ErrServiceUnavailable.
			WithDetail("endpoint", c.endpoint).
			WithDetail("status", resp.StatusCode).
			WithDetail("message", fmt.Sprintf("compose call returned status %d", resp.StatusCode))
	}

	return string(respBody), nil
}
