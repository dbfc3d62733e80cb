package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/gipjazes/ingest-api/clients"
	"github.com/gipjazes/ingest-api/config"
	"github.com/gipjazes/ingest-api/log"
	"github.com/gipjazes/ingest-api/metrics"
	"github.com/gipjazes/ingest-api/video"
)

// publishJob is everything the publisher needs to move a job's artifacts from
// scratch into object storage. ThumbnailPath is empty and Segmented is nil
// for stages that were degraded.
type publishJob struct {
	VideoID       string
	OriginalPath  string
	OriginalExt   string
	MimeType      string
	ThumbnailPath string
	Segmented     *video.SegmentedOutput
}

// PublishedArtifacts holds the confirmed public URLs for a job. A nil URL
// means the artifact was not published and its catalog field must stay null.
type PublishedArtifacts struct {
	OriginalKey  string
	OriginalURL  string
	ThumbnailURL *string
	ManifestURL  *string
}

type publisher struct {
	store       clients.ObjectStore
	concurrency int
}

func originalKey(videoID, ext string) string {
	return fmt.Sprintf("videos/%s/original%s", videoID, ext)
}

func thumbnailKey(videoID string) string {
	return fmt.Sprintf("videos/%s/%s", videoID, config.ThumbnailFilename)
}

func hlsKey(videoID, filename string) string {
	return path.Join("videos", videoID, config.HLSSubdir, filename)
}

// publish uploads the original (required), then the thumbnail, then the
// segments through a bounded worker pool, and the manifest only once every
// segment it references is confirmed. Optional artifact failures degrade that
// artifact; only an original failure is returned as an error.
func (p *publisher) publish(ctx context.Context, requestID string, job publishJob) (*PublishedArtifacts, error) {
	origKey := originalKey(job.VideoID, job.OriginalExt)
	if err := p.uploadFile(ctx, origKey, job.MimeType, job.OriginalPath); err != nil {
		return nil, fmt.Errorf("failed to publish original: %w", err)
	}
	metrics.Metrics.ArtifactsPublished.WithLabelValues("original").Inc()

	artifacts := &PublishedArtifacts{
		OriginalKey: origKey,
		OriginalURL: p.store.PublicURL(origKey),
	}

	if job.ThumbnailPath != "" {
		key := thumbnailKey(job.VideoID)
		if err := p.uploadFile(ctx, key, config.ThumbnailContentType, job.ThumbnailPath); err != nil {
			log.LogError(requestID, "thumbnail publish failed, continuing without thumbnail", err)
			metrics.Metrics.StageSoftFailures.WithLabelValues("publish_thumbnail").Inc()
		} else {
			url := p.store.PublicURL(key)
			artifacts.ThumbnailURL = &url
			metrics.Metrics.ArtifactsPublished.WithLabelValues("thumbnail").Inc()
		}
	}

	if job.Segmented != nil {
		if err := p.publishManifest(ctx, job.VideoID, job.Segmented); err != nil {
			log.LogError(requestID, "manifest publish failed, continuing with original-only playback", err)
			metrics.Metrics.StageSoftFailures.WithLabelValues("publish_manifest").Inc()
		} else {
			url := p.store.PublicURL(hlsKey(job.VideoID, config.HLSManifestFilename))
			artifacts.ManifestURL = &url
		}
	}

	return artifacts, nil
}

// publishManifest uploads all media segments concurrently and the manifest
// strictly afterwards, so a published manifest never references a segment
// that isn't durably stored.
func (p *publisher) publishManifest(ctx context.Context, videoID string, segmented *video.SegmentedOutput) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)
	for _, segmentPath := range segmented.SegmentPaths {
		segmentPath := segmentPath
		group.Go(func() error {
			key := hlsKey(videoID, filepath.Base(segmentPath))
			if err := p.uploadFile(groupCtx, key, config.SegmentContentType, segmentPath); err != nil {
				return err
			}
			metrics.Metrics.ArtifactsPublished.WithLabelValues("segment").Inc()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to publish segments: %w", err)
	}

	key := hlsKey(videoID, config.HLSManifestFilename)
	if err := p.uploadFile(ctx, key, config.ManifestContentType, segmented.ManifestPath); err != nil {
		return fmt.Errorf("failed to publish manifest: %w", err)
	}
	metrics.Metrics.ArtifactsPublished.WithLabelValues("manifest").Inc()
	return nil
}

func (p *publisher) uploadFile(ctx context.Context, key, contentType, localPath string) error {
	start := time.Now()
	err := backoff.Retry(func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer file.Close()
		return p.store.Upload(ctx, key, contentType, file)
	}, uploadRetries(ctx))
	if err != nil {
		return err
	}
	metrics.Metrics.ArtifactUploadSec.Observe(time.Since(start).Seconds())
	return nil
}

func uploadRetries(ctx context.Context) backoff.BackOff {
	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 5 * time.Second
	backOff.MaxElapsedTime = 0 // don't impose a timeout as part of the retries
	return backoff.WithContext(backoff.WithMaxRetries(backOff, 2), ctx)
}
