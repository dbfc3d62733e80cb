package video

import (
	"os/exec"

	"github.com/gipjazes/ingest-api/log"
)

// Capabilities reports which external engines are usable. Detected once at
// startup; the pipeline's degrade logic consumes these flags instead of
// discovering missing binaries one failed subprocess at a time.
type Capabilities struct {
	// Probing is true when ffprobe is on PATH.
	Probing bool
	// Transcoding is true when ffmpeg is on PATH; thumbnails and HLS
	// segmenting both require it.
	Transcoding bool
}

func Detect() Capabilities {
	caps := Capabilities{}
	if _, err := exec.LookPath("ffprobe"); err == nil {
		caps.Probing = true
	} else {
		log.LogNoRequestID("ffprobe not found, metadata extraction disabled", "err", err)
	}
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		caps.Transcoding = true
	} else {
		log.LogNoRequestID("ffmpeg not found, thumbnails and segmenting disabled", "err", err)
	}
	return caps
}
