// Package postprocessing talks to the slide post-processor, which compiles a
// Markdown slideset into a hosted web deck and a PDF.
package postprocessing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/httpx"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

// ErrNotFound reports that the post-processor has no slideset under the
// requested promptID.
var ErrNotFound = errors.New("slideset not found")

// Asset is an auxiliary file shipped with the slideset, e.g. an extracted
// figure referenced from the Markdown. Data is base64.
type Asset struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

type Slideset struct {
	PromptID string  `json:"promptId"`
	Slideset string  `json:"slideset"`
	Assets   []Asset `json:"assets,omitempty"`
	// Filled by the post-processor on reads, once the deck is published.
	WebURL string `json:"webUrl,omitempty"`
	PDFURL string `json:"pdfUrl,omitempty"`
}

type UploadResult struct {
	WebURL string `json:"webUrl"`
	PDFURL string `json:"pdfUrl"`
}

// Client stores slidesets with the post-processor and looks stored ones up.
type Client interface {
	Store(ctx context.Context, theme string, slideset Slideset) (UploadResult, error)
	Get(ctx context.Context, promptID string) (Slideset, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("POSTPROCESSING_SERVICE_HOST"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing POSTPROCESSING_SERVICE_HOST")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &client{
		log:        log.With("service", "PostprocessingClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		maxRetries: 2,
	}, nil
}

type ppHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ppHTTPError) Error() string {
	return fmt.Sprintf("postprocessing http %d: %s", e.StatusCode, e.Body)
}

func (e *ppHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type storeRequest struct {
	Theme    string   `json:"theme"`
	Slideset Slideset `json:"slideset"`
}

func (c *client) Store(ctx context.Context, theme string, slideset Slideset) (UploadResult, error) {
	body := storeRequest{Theme: theme, Slideset: slideset}

	var out UploadResult
	if err := c.do(ctx, http.MethodPut, "/v1/postprocessing", body, &out); err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

func (c *client) Get(ctx context.Context, promptID string) (Slideset, error) {
	var out Slideset
	path := "/v1/postprocessing/" + url.PathEscape(promptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		var httpErr *ppHTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return Slideset{}, ErrNotFound
		}
		return Slideset{}, err
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
		return resp, raw, &ppHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

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
				return fmt.Errorf("postprocessing decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("postprocessing request retrying",
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
