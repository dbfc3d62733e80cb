package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gipjazes/ingest-api/catalog"
	"github.com/gipjazes/ingest-api/clients"
	"github.com/gipjazes/ingest-api/log"
	"github.com/gipjazes/ingest-api/metrics"
	"github.com/gipjazes/ingest-api/scratch"
	"github.com/gipjazes/ingest-api/video"
)

// JobState tracks how far along the pipeline a job is. Terminal states are
// cleaned (after success or failure) since scratch removal is always the last
// thing that happens.
type JobState string

const (
	StateReceived       JobState = "received"
	StateMetadataDone   JobState = "metadata_done"
	StateArtifactsReady JobState = "artifacts_ready"
	StatePublished      JobState = "published"
	StatePersisted      JobState = "persisted"
	StateFailed         JobState = "failed"
	StateCleaned        JobState = "cleaned"
)

// IngestRequest is the payload for one upload. Source is the raw byte stream
// from the request body; the coordinator owns draining it.
type IngestRequest struct {
	RequestID   string
	UploaderID  string
	Title       string
	Description string
	Filename    string
	MimeType    string
	Source      io.Reader
}

// JobInfo represents the state of a single ingestion job. Owned exclusively
// by one Ingest call; never shared across requests.
type JobInfo struct {
	JobID     string
	RequestID string
	state     JobState
}

func (j *JobInfo) setState(state JobState) {
	j.state = state
	log.Log(j.RequestID, "job state changed", "job_id", j.JobID, "state", state)
}

type Coordinator struct {
	scratch   *scratch.Manager
	prober    video.Prober
	frames    video.FrameExtractor
	segmenter video.Segmenter
	publisher *publisher
	catalog   catalog.Writer
	caps      video.Capabilities
}

type CoordinatorOpts struct {
	Scratch           *scratch.Manager
	Prober            video.Prober
	Frames            video.FrameExtractor
	Segmenter         video.Segmenter
	Store             clients.ObjectStore
	Catalog           catalog.Writer
	Capabilities      video.Capabilities
	UploadConcurrency int
}

func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.Scratch == nil {
		return nil, fmt.Errorf("scratch manager is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog writer is required")
	}
	concurrency := opts.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Coordinator{
		scratch:   opts.Scratch,
		prober:    opts.Prober,
		frames:    opts.Frames,
		segmenter: opts.Segmenter,
		publisher: &publisher{store: opts.Store, concurrency: concurrency},
		catalog:   opts.Catalog,
		caps:      opts.Capabilities,
	}, nil
}

// Ingest runs the whole pipeline for one upload and returns the persisted
// catalog record. Optional stage failures degrade their artifacts and never
// surface here; only original-publish and catalog failures do. The job's
// scratch directory is removed on every exit path, panics included.
func (c *Coordinator) Ingest(ctx context.Context, req IngestRequest) (*catalog.VideoRecord, error) {
	start := time.Now()
	record, err := recovered(func() (*catalog.VideoRecord, error) {
		return c.runJob(ctx, req)
	})

	success := strconv.FormatBool(err == nil)
	metrics.Metrics.IngestPipelineDurationSec.WithLabelValues(success).Observe(time.Since(start).Seconds())
	metrics.Metrics.IngestPipelineResults.WithLabelValues(success).Inc()
	return record, err
}

func (c *Coordinator) runJob(ctx context.Context, req IngestRequest) (*catalog.VideoRecord, error) {
	job := &JobInfo{
		JobID:     uuid.New().String(),
		RequestID: req.RequestID,
	}
	log.AddContext(req.RequestID, "job_id", job.JobID)
	job.setState(StateReceived)

	dir, err := c.scratch.Acquire(job.JobID)
	if err != nil {
		job.setState(StateFailed)
		return nil, fmt.Errorf("failed to acquire scratch directory: %w", err)
	}
	defer func() {
		dir.Release()
		job.setState(StateCleaned)
	}()

	sourcePath, err := writeSource(dir, req)
	if err != nil {
		job.setState(StateFailed)
		return nil, err
	}

	md := c.extractMetadata(ctx, req.RequestID, sourcePath)
	job.setState(StateMetadataDone)
	if err := ctx.Err(); err != nil {
		job.setState(StateFailed)
		return nil, err
	}

	thumbnailPath := c.generateThumbnail(ctx, req.RequestID, sourcePath, dir.Path, md)
	segmented := c.segment(ctx, req.RequestID, sourcePath, dir.Path)
	job.setState(StateArtifactsReady)
	if err := ctx.Err(); err != nil {
		job.setState(StateFailed)
		return nil, err
	}

	artifacts, err := c.publisher.publish(ctx, req.RequestID, publishJob{
		VideoID:       job.JobID,
		OriginalPath:  sourcePath,
		OriginalExt:   filepath.Ext(req.Filename),
		MimeType:      req.MimeType,
		ThumbnailPath: thumbnailPath,
		Segmented:     segmented,
	})
	if err != nil {
		job.setState(StateFailed)
		return nil, err
	}
	job.setState(StatePublished)

	record, err := c.catalog.InsertVideo(ctx, catalog.InsertVideoParams{
		ID:           job.JobID,
		OwnerID:      req.UploaderID,
		Title:        defaultString(req.Title, "Untitled"),
		Description:  defaultString(req.Description, defaultString(req.Title, "Untitled")),
		Metadata:     md,
		MimeType:     req.MimeType,
		OriginalKey:  artifacts.OriginalKey,
		ManifestURL:  artifacts.ManifestURL,
		ThumbnailURL: artifacts.ThumbnailURL,
	})
	if err != nil {
		// The published artifacts are left in place: they are not rolled
		// back, so a reconciliation sweep can find them under this prefix.
		log.LogError(req.RequestID, "catalog write failed, published artifacts orphaned", err,
			"orphaned_prefix", fmt.Sprintf("videos/%s/", job.JobID))
		job.setState(StateFailed)
		return nil, fmt.Errorf("failed to persist catalog record: %w", err)
	}
	job.setState(StatePersisted)

	return record, nil
}

// writeSource drains the upload body into the scratch directory so the probe
// and ffmpeg stages can operate on a local file.
func writeSource(dir *scratch.Dir, req IngestRequest) (string, error) {
	sourcePath := dir.Join("original" + filepath.Ext(req.Filename))
	file, err := os.Create(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to create local source file: %w", err)
	}
	defer file.Close()
	if _, err := io.Copy(file, req.Source); err != nil {
		return "", fmt.Errorf("failed to write local source file: %w", err)
	}
	return sourcePath, nil
}

// extractMetadata probes the source. Probing failures degrade to zero-valued
// metadata; the job carries on.
func (c *Coordinator) extractMetadata(ctx context.Context, requestID, sourcePath string) video.Metadata {
	if !c.caps.Probing {
		log.Log(requestID, "probing unavailable, continuing with empty metadata")
		metrics.Metrics.StageSoftFailures.WithLabelValues("metadata").Inc()
		return video.Metadata{}
	}
	md, err := c.prober.ProbeFile(ctx, sourcePath)
	if err != nil {
		log.LogError(requestID, "metadata extraction failed, continuing with empty metadata", err)
		metrics.Metrics.StageSoftFailures.WithLabelValues("metadata").Inc()
		return video.Metadata{}
	}
	return md
}

// generateThumbnail returns the local thumbnail path, or empty when the stage
// was degraded.
func (c *Coordinator) generateThumbnail(ctx context.Context, requestID, sourcePath, outDir string, md video.Metadata) string {
	if !c.caps.Transcoding {
		log.Log(requestID, "transcoding unavailable, continuing without thumbnail")
		metrics.Metrics.StageSoftFailures.WithLabelValues("thumbnail").Inc()
		return ""
	}
	path, err := c.frames.ExtractFrame(ctx, sourcePath, outDir, md.Duration)
	if err != nil {
		log.LogError(requestID, "thumbnail generation failed, continuing without thumbnail", err)
		metrics.Metrics.StageSoftFailures.WithLabelValues("thumbnail").Inc()
		return ""
	}
	return path
}

// segment returns the local HLS output, or nil when the stage was degraded
// and playback falls back to the original only.
func (c *Coordinator) segment(ctx context.Context, requestID, sourcePath, outDir string) *video.SegmentedOutput {
	if !c.caps.Transcoding {
		log.Log(requestID, "transcoding unavailable, continuing with original-only playback")
		metrics.Metrics.StageSoftFailures.WithLabelValues("segment").Inc()
		return nil
	}
	segmented, err := c.segmenter.Segment(ctx, sourcePath, outDir)
	if err != nil {
		log.LogError(requestID, "segmenting failed, continuing with original-only playback", err)
		metrics.Metrics.StageSoftFailures.WithLabelValues("segment").Inc()
		return nil
	}
	return segmented
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func recovered[T any](f func() (T, error)) (t T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogNoRequestID("panic in pipeline, recovering", "err", rec)
			err = fmt.Errorf("panic in pipeline: %v", rec)
		}
	}()
	return f()
}
