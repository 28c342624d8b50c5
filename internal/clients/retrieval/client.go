// Package retrieval queries the document intelligence service for
// course-scoped content chunks.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/httpx"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

// Client retrieves document chunks relevant to one sub-query.
type Client interface {
	Query(ctx context.Context, courseID, promptQuery string) ([]types.DocumentChunk, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("DI_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing DI_API_URL")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &client{
		log:        log.With("service", "RetrievalClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 300 * time.Second},
		maxRetries: 2,
	}, nil
}

type retrievalHTTPError struct {
	StatusCode int
	Body       string
}

func (e *retrievalHTTPError) Error() string {
	return fmt.Sprintf("retrieval http %d: %s", e.StatusCode, e.Body)
}

func (e *retrievalHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) Query(ctx context.Context, courseID, promptQuery string) ([]types.DocumentChunk, error) {
	endpoint := fmt.Sprintf("%s/v1/retrieval/%s?%s",
		c.baseURL,
		url.PathEscape(courseID),
		url.Values{"courseId": {courseID}, "promptQuery": {promptQuery}}.Encode(),
	)

	backoff := 1 * time.Second
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		chunks, resp, err := c.queryOnce(ctx, endpoint)
		if err == nil {
			return chunks, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("retrieval request retrying",
			"course_id", courseID,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
}

func (c *client) queryOnce(ctx context.Context, endpoint string) ([]types.DocumentChunk, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &retrievalHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var chunks []types.DocumentChunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		// Some deployments wrap the list in an object.
		var wrapped struct {
			Chunks []types.DocumentChunk `json:"chunks"`
		}
		if wErr := json.Unmarshal(raw, &wrapped); wErr != nil {
			return nil, resp, fmt.Errorf("retrieval decode error: %w; raw=%s", err, string(raw))
		}
		chunks = wrapped.Chunks
	}
	return chunks, resp, nil
}
