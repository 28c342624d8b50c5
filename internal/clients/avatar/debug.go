package avatar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

type debugClient struct {
	log *logger.Logger
}

// NewDebugClient returns a Client that writes a placeholder MP4 instead of
// calling the renderer, so smoke runs exercise the full render path.
func NewDebugClient(log *logger.Logger) Client {
	return &debugClient{log: log.With("service", "AvatarClient", "mode", "debug")}
}

func (c *debugClient) RenderVideo(_ context.Context, audioPath, _ string, outPath string) error {
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("audio track missing: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	// An ftyp box header, enough for consumers that only sniff the type.
	placeholder := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00,
		'm', 'p', '4', '2', 'i', 's', 'o', 'm',
	}
	if err := os.WriteFile(outPath, placeholder, 0o644); err != nil {
		return fmt.Errorf("write placeholder video: %w", err)
	}
	c.log.Debug("placeholder video written", "path", outPath)
	return nil
}
