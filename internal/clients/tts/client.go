// Package tts calls the voice-cloning speech service and streams the
// generated WAV to disk.
package tts

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

// Client turns narration text into a WAV file on local disk. The reference
// voice sample decides the speaker timbre.
type Client interface {
	GenerateAudio(ctx context.Context, voicePath, courseID, slideText, outPath string) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("TTS_API_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing TTS_API_URL")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &client{
		log:        log.With("service", "TTSClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

type ttsHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ttsHTTPError) Error() string {
	return fmt.Sprintf("tts http %d: %s", e.StatusCode, e.Body)
}

func (e *ttsHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) GenerateAudio(ctx context.Context, voicePath, courseID, slideText, outPath string) error {
	voice, err := os.Open(voicePath)
	if err != nil {
		return fmt.Errorf("open reference voice: %w", err)
	}
	defer voice.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var werr error
		defer func() { pw.CloseWithError(werr) }()

		part, err := mw.CreateFormFile("voice_file", filepath.Base(voicePath))
		if err != nil {
			werr = err
			return
		}
		if _, err := io.Copy(part, voice); err != nil {
			werr = err
			return
		}
		if err := mw.WriteField("slide_text", slideText); err != nil {
			werr = err
			return
		}
		if err := mw.WriteField("course_id", courseID); err != nil {
			werr = err
			return
		}
		werr = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/generate", pr)
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
		return &ttsHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("stream audio to disk: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(outPath)
		return closeErr
	}
	if n == 0 {
		_ = os.Remove(outPath)
		return fmt.Errorf("tts returned empty audio body")
	}

	c.log.Debug("audio generated", "path", outPath, "bytes", n)
	return nil
}
