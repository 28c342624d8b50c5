package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

type debugClient struct {
	log *logger.Logger
}

// NewDebugClient returns a Client that writes a short silent WAV instead of
// calling the speech service, so smoke runs exercise the full render path.
func NewDebugClient(log *logger.Logger) Client {
	return &debugClient{log: log.With("service", "TTSClient", "mode", "debug")}
}

func (c *debugClient) GenerateAudio(_ context.Context, _, _, _ string, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	if err := os.WriteFile(outPath, silentWAV(), 0o644); err != nil {
		return fmt.Errorf("write placeholder audio: %w", err)
	}
	c.log.Debug("placeholder audio written", "path", outPath)
	return nil
}

// silentWAV builds a valid 16-bit mono PCM file holding 100ms of silence.
func silentWAV() []byte {
	const (
		sampleRate = 16000
		samples    = sampleRate / 10
		dataLen    = samples * 2
	)
	buf := make([]byte, 44+dataLen)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], 1)
	binary.LittleEndian.PutUint32(buf[24:], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], dataLen)
	return buf
}
