package video

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/vansante/go-ffprobe.v2"
)

type Prober interface {
	ProbeFile(ctx context.Context, path string) (Metadata, error)
}

type Probe struct {
	// Wall-clock bound on a single ffprobe invocation.
	Timeout time.Duration
}

func (p Probe) ProbeFile(ctx context.Context, path string) (Metadata, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, probeCancel := context.WithTimeout(ctx, p.timeout())
		defer probeCancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0 // don't impose a timeout as part of the retries
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return Metadata{}, fmt.Errorf("error probing: %w", err)
	}
	return parseProbeOutput(data)
}

func (p Probe) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 60 * time.Second
}

func parseProbeOutput(probeData *ffprobe.ProbeData) (Metadata, error) {
	if probeData.Format == nil {
		return Metadata{}, errors.New("error parsing probed data: format information missing")
	}

	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return Metadata{}, errors.New("error checking for video: no video stream found")
	}

	// Stream-level duration is more accurate when present; some containers
	// only carry it at the format level.
	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil {
		duration = probeData.Format.DurationSeconds
	}
	if duration < 0 {
		return Metadata{}, fmt.Errorf("error parsing probed data: negative duration %f", duration)
	}

	return Metadata{
		Duration: duration,
		Width:    int64(videoStream.Width),
		Height:   int64(videoStream.Height),
		Format:   probeData.Format.FormatName,
	}, nil
}
