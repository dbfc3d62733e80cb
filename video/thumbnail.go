package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gipjazes/ingest-api/config"
)

type FrameExtractor interface {
	ExtractFrame(ctx context.Context, sourcePath, outDir string, durationSecs float64) (string, error)
}

// Thumbnailer derives one representative still frame from a source video by
// shelling out to ffmpeg.
type Thumbnailer struct {
	Timeout time.Duration
}

// ExtractFrame writes a 320x640 JPEG into outDir and returns its path. The
// seek offset is half the source duration, so repeated runs against the same
// input produce the same frame; with unknown duration it falls back to the
// first frame.
func (t Thumbnailer) ExtractFrame(ctx context.Context, sourcePath, outDir string, durationSecs float64) (string, error) {
	outPath := filepath.Join(outDir, config.ThumbnailFilename)

	args := []string{
		"-ss", formatSeekOffset(durationSecs),
		"-i", sourcePath,
		"-frames:v", "1",
		"-vf", "scale=320:640",
		"-y",
		outPath,
	}

	timeout, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()
	cmd := exec.CommandContext(timeout, "ffmpeg", args...)

	var outputBuf bytes.Buffer
	var stdErr bytes.Buffer
	cmd.Stdout = &outputBuf
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("error running ffmpeg [%s] [%s] %w", outputBuf.String(), stdErr.String(), err)
	}

	// ffmpeg can exit zero without writing a frame for some corrupt inputs
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("thumbnail was not written: %w", err)
	}
	return outPath, nil
}

func (t Thumbnailer) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return 60 * time.Second
}

func formatSeekOffset(durationSecs float64) string {
	if durationSecs <= 0 {
		return "0"
	}
	return fmt.Sprintf("%.3f", durationSecs/2)
}
