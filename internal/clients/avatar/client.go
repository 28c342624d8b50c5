// Package avatar calls the talking-head renderer, which lip-syncs a source
// portrait to a WAV track and returns an MP4.
package avatar

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

// Client renders one talking-head video per call. The MP4 is written to
// outPath only when the renderer returns a non-empty body; a partial download
// never reaches the final path.
type Client interface {
	RenderVideo(ctx context.Context, audioPath, sourcePath, outPath string) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("AVATAR_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing AVATAR_API_URL")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &client{
		log:        log.With("service", "AvatarClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Minute},
	}, nil
}

type avatarHTTPError struct {
	StatusCode int
	Body       string
}

func (e *avatarHTTPError) Error() string {
	return fmt.Sprintf("avatar http %d: %s", e.StatusCode, e.Body)
}

func (e *avatarHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) RenderVideo(ctx context.Context, audioPath, sourcePath, outPath string) error {
	audio, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("open audio track: %w", err)
	}
	defer audio.Close()

	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source portrait: %w", err)
	}
	defer source.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var werr error
		defer func() { pw.CloseWithError(werr) }()

		part, err := mw.CreateFormFile("audio", filepath.Base(audioPath))
		if err != nil {
			werr = err
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			werr = err
			return
		}
		part, err = mw.CreateFormFile("source", filepath.Base(sourcePath))
		if err != nil {
			werr = err
			return
		}
		if _, err := io.Copy(part, source); err != nil {
			werr = err
			return
		}
		if err := mw.WriteField("output_path", filepath.Base(outPath)); err != nil {
			werr = err
			return
		}
		if err := mw.WriteField("return_file", "true"); err != nil {
			werr = err
			return
		}
		werr = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return &avatarHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	// Stage next to the final path so the rename below stays on one
	// filesystem.
	partPath := filepath.Join(filepath.Dir(outPath), "."+filepath.Base(outPath)+".part")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	part, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	n, copyErr := io.Copy(part, resp.Body)
	closeErr := part.Close()
	if copyErr != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("stream video to disk: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(partPath)
		return closeErr
	}
	if n == 0 {
		_ = os.Remove(partPath)
		return fmt.Errorf("avatar renderer returned empty video body")
	}
	if err := os.Rename(partPath, outPath); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("publish video: %w", err)
	}

	c.log.Debug("video rendered", "path", outPath, "bytes", n)
	return nil
}
