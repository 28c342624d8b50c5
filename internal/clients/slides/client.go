// Package slides is the remote implementation of the slide sub-pipeline.
// When SLIDES_API_URL is set, the core delegates structure, materialization
// and upload to an external slides service exposing the same surface as the
// local /v1/slides endpoints.
package slides

import (
	"bytes"
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

type GenerateRequest struct {
	CourseID      string               `json:"courseId"`
	PromptID      string               `json:"promptId"`
	LectureScript string               `json:"lectureScript"`
	User          types.Persona        `json:"user"`
	Assets        []types.LectureAsset `json:"assets"`
}

type GenerateResponse struct {
	PromptID  string               `json:"promptId"`
	Status    string               `json:"status"`
	Structure types.SlideStructure `json:"structure"`
}

type StatusResponse struct {
	PromptID       string  `json:"promptId"`
	Status         string  `json:"status"`
	TotalPages     int     `json:"totalPages"`
	GeneratedPages int     `json:"generatedPages"`
	WebURL         *string `json:"webUrl,omitempty"`
	PDFURL         *string `json:"pdfUrl,omitempty"`
}

type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	Status(ctx context.Context, promptID string) (StatusResponse, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient reads SLIDES_API_URL. An empty value is an error; the caller
// decides whether delegation is enabled before constructing the client.
func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("SLIDES_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing SLIDES_API_URL")
	}
	return &client{
		log:        log.With("service", "SlidesClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		maxRetries: 2,
	}, nil
}

type slidesHTTPError struct {
	StatusCode int
	Body       string
}

func (e *slidesHTTPError) Error() string {
	return fmt.Sprintf("slides service http %d: %s", e.StatusCode, e.Body)
}

func (e *slidesHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	var out GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/slides/generate", req, &out); err != nil {
		return GenerateResponse{}, err
	}
	return out, nil
}

func (c *client) Status(ctx context.Context, promptID string) (StatusResponse, error) {
	var out StatusResponse
	path := "/v1/slides/" + url.PathEscape(promptID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return StatusResponse{}, err
	}
	return out, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, &slidesHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("slides service decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("slides service request retrying",
			"method", method,
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
