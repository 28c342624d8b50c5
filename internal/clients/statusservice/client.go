// Package statusservice is the remote implementation of the status write
// seam. When STATUS_SERVICE_HOST is set, the core forwards patches to the
// external status service instead of mutating the local store.
package statusservice

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

	"github.com/orpheus-edu/orpheus-core/internal/platform/httpx"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/status"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient builds a status.Updater backed by the remote status service at
// baseURL.
func NewClient(log *logger.Logger, baseURL string) (status.Updater, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("missing status service host")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &client{
		log:        log.With("service", "StatusServiceClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
	}, nil
}

type statusHTTPError struct {
	StatusCode int
	Body       string
}

func (e *statusHTTPError) Error() string {
	return fmt.Sprintf("status service http %d: %s", e.StatusCode, e.Body)
}

func (e *statusHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) Patch(ctx context.Context, promptID string, patch types.StatusPatch) error {
	path := "/status/" + url.PathEscape(promptID) + "/update"
	return c.do(ctx, http.MethodPatch, path, patch, nil)
}

func (c *client) Status(ctx context.Context, promptID string) (types.Status, error) {
	var out types.Status
	path := "/status/" + url.PathEscape(promptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return types.Status{}, err
	}
	return out, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &statusHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("status service decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("status service request retrying",
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
