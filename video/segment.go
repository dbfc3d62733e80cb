package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grafov/m3u8"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/gipjazes/ingest-api/config"
)

type Segmenter interface {
	Segment(ctx context.Context, sourcePath, outDir string) (*SegmentedOutput, error)
}

// HLSSegmenter converts a source video into a segmented HLS playlist plus
// MPEG-TS media segments using a single-pass transcode to a baseline-
// compatible profile.
type HLSSegmenter struct {
	// Target duration of each segment in seconds.
	SegmentDuration int
	// Wall-clock bound on the ffmpeg invocation.
	Timeout time.Duration
}

// Segment writes playlist.m3u8 and segment_N.ts files into outDir/hls and
// returns the manifest path plus the ordered segment list the manifest
// references.
func (s HLSSegmenter) Segment(ctx context.Context, sourcePath, outDir string) (*SegmentedOutput, error) {
	hlsDir := filepath.Join(outDir, config.HLSSubdir)
	if err := os.MkdirAll(hlsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segmenting output dir: %w", err)
	}
	manifestPath := filepath.Join(hlsDir, config.HLSManifestFilename)

	segmentDuration := s.SegmentDuration
	if segmentDuration <= 0 {
		segmentDuration = 10
	}

	ffmpegErr := bytes.Buffer{}
	err := ffmpeg.Input(sourcePath).
		Output(manifestPath, ffmpeg.KwArgs{
			"profile:v":            "baseline",
			"level":                "3.0",
			"start_number":         "0",
			"hls_time":             segmentDuration,
			"hls_list_size":        "0",
			"hls_segment_filename": filepath.Join(hlsDir, config.HLSSegmentFilePattern),
			"f":                    "hls",
		}).
		OverWriteOutput().
		WithErrorOutput(&ffmpegErr).
		WithTimeout(s.timeout()).
		Run()
	if err != nil {
		return nil, fmt.Errorf("failed to segment source file (%s) [%s]: %w", sourcePath, ffmpegErr.String(), err)
	}

	segmentPaths, err := manifestSegmentPaths(manifestPath)
	if err != nil {
		return nil, err
	}
	return &SegmentedOutput{ManifestPath: manifestPath, SegmentPaths: segmentPaths}, nil
}

func (s HLSSegmenter) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 10 * time.Minute
}

// manifestSegmentPaths parses the generated playlist and resolves the segment
// files it references, in playback order. Publishing relies on this list
// rather than a directory scan so the manifest can never reference a segment
// that was skipped.
func manifestSegmentPaths(manifestPath string) ([]string, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open generated manifest: %w", err)
	}
	defer f.Close()

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(f), true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated manifest: %w", err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("generated manifest is not a media playlist")
	}

	mediaPlaylist := playlist.(*m3u8.MediaPlaylist)
	var paths []string
	for _, segment := range mediaPlaylist.Segments {
		if segment == nil {
			continue
		}
		path := filepath.Join(filepath.Dir(manifestPath), filepath.Base(segment.URI))
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("manifest references missing segment %q: %w", segment.URI, err)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("generated manifest references no segments")
	}
	return paths, nil
}
