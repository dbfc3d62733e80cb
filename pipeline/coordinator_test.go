package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gipjazes/ingest-api/catalog"
	"github.com/gipjazes/ingest-api/scratch"
	"github.com/gipjazes/ingest-api/video"
)

type stubProber struct {
	metadata video.Metadata
	err      error
}

func (p stubProber) ProbeFile(ctx context.Context, path string) (video.Metadata, error) {
	return p.metadata, p.err
}

type stubFrames struct {
	err error
}

func (f stubFrames) ExtractFrame(ctx context.Context, sourcePath, outDir string, durationSecs float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(outDir, "thumbnail.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

type stubSegmenter struct {
	segments int
	err      error
}

func (s stubSegmenter) Segment(ctx context.Context, sourcePath, outDir string) (*video.SegmentedOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	hlsDir := filepath.Join(outDir, "hls")
	if err := os.MkdirAll(hlsDir, 0755); err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(hlsDir, "playlist.m3u8")
	if err := os.WriteFile(manifestPath, []byte("#EXTM3U"), 0644); err != nil {
		return nil, err
	}
	out := &video.SegmentedOutput{ManifestPath: manifestPath}
	for i := 0; i < s.segments; i++ {
		segmentPath := filepath.Join(hlsDir, fmt.Sprintf("segment_%d.ts", i))
		if err := os.WriteFile(segmentPath, []byte("ts"), 0644); err != nil {
			return nil, err
		}
		out.SegmentPaths = append(out.SegmentPaths, segmentPath)
	}
	return out, nil
}

type stubStore struct {
	mu      sync.Mutex
	uploads []string
	failKey func(key string) error
}

func (s *stubStore) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	if s.failKey != nil {
		if err := s.failKey(key); err != nil {
			return err
		}
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	return nil
}

func (s *stubStore) PublicURL(key string) string {
	return "https://bucket.s3.amazonaws.com/" + key
}

func (s *stubStore) uploadedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.uploads...)
}

type stubCatalog struct {
	mu      sync.Mutex
	inserts []catalog.InsertVideoParams
	err     error
	panics  bool
}

func (c *stubCatalog) InsertVideo(ctx context.Context, params catalog.InsertVideoParams) (*catalog.VideoRecord, error) {
	if c.panics {
		panic("catalog store blew up")
	}
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	c.inserts = append(c.inserts, params)
	c.mu.Unlock()
	return &catalog.VideoRecord{
		ID:           params.ID,
		OwnerID:      params.OwnerID,
		Title:        params.Title,
		Description:  params.Description,
		Hashtags:     catalog.ExtractHashtags(params.Description),
		OriginalKey:  params.OriginalKey,
		Duration:     params.Metadata.Duration,
		Width:        params.Metadata.Width,
		Height:       params.Metadata.Height,
		MimeType:     params.MimeType,
		ManifestURL:  params.ManifestURL,
		ThumbnailURL: params.ThumbnailURL,
		CreatedAt:    time.Now(),
	}, nil
}

type testPipeline struct {
	coordinator *Coordinator
	scratchRoot string
	store       *stubStore
	catalog     *stubCatalog
}

func newTestPipeline(t *testing.T, mutate func(*CoordinatorOpts)) *testPipeline {
	t.Helper()
	scratchRoot := t.TempDir()
	manager, err := scratch.NewManager(scratchRoot)
	require.NoError(t, err)

	store := &stubStore{}
	catalogStub := &stubCatalog{}
	opts := CoordinatorOpts{
		Scratch:   manager,
		Prober:    stubProber{metadata: video.Metadata{Duration: 5, Width: 576, Height: 1024, Format: "mov,mp4,m4a,3gp,3g2,mj2"}},
		Frames:    stubFrames{},
		Segmenter: stubSegmenter{segments: 3},
		Store:     store,
		Catalog:   catalogStub,
		Capabilities: video.Capabilities{
			Probing:     true,
			Transcoding: true,
		},
		UploadConcurrency: 2,
	}
	if mutate != nil {
		mutate(&opts)
	}

	coordinator, err := NewCoordinator(opts)
	require.NoError(t, err)
	return &testPipeline{
		coordinator: coordinator,
		scratchRoot: scratchRoot,
		store:       store,
		catalog:     catalogStub,
	}
}

func testRequest(requestID string) IngestRequest {
	return IngestRequest{
		RequestID:   requestID,
		UploaderID:  "user-1",
		Title:       "My Upload",
		Description: "park run #skate",
		Filename:    "clip.mp4",
		MimeType:    "video/mp4",
		Source:      strings.NewReader("not-really-an-mp4"),
	}
}

func requireScratchEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directories must never outlive the job")
}

func TestIngestSuccess(t *testing.T) {
	p := newTestPipeline(t, nil)

	record, err := p.coordinator.Ingest(context.Background(), testRequest("req-a"))
	require.NoError(t, err)

	require.Equal(t, "user-1", record.OwnerID)
	require.Equal(t, 5.0, record.Duration)
	require.Equal(t, int64(576), record.Width)
	require.Equal(t, int64(1024), record.Height)
	require.NotNil(t, record.ThumbnailURL)
	require.NotNil(t, record.ManifestURL)
	require.Contains(t, *record.ManifestURL, "hls/playlist.m3u8")
	require.Equal(t, fmt.Sprintf("videos/%s/original.mp4", record.ID), record.OriginalKey)

	requireScratchEmpty(t, p.scratchRoot)
}

func TestIngestDegradesWhenTranscodingUnavailable(t *testing.T) {
	p := newTestPipeline(t, func(opts *CoordinatorOpts) {
		opts.Capabilities.Transcoding = false
	})

	record, err := p.coordinator.Ingest(context.Background(), testRequest("req-b"))
	require.NoError(t, err)

	require.Nil(t, record.ThumbnailURL)
	require.Nil(t, record.ManifestURL)

	// the original backup must still be published
	keys := p.store.uploadedKeys()
	require.Len(t, keys, 1)
	require.Equal(t, record.OriginalKey, keys[0])
	requireScratchEmpty(t, p.scratchRoot)
}

func TestIngestDegradesWhenOptionalStagesFail(t *testing.T) {
	p := newTestPipeline(t, func(opts *CoordinatorOpts) {
		opts.Prober = stubProber{err: errors.New("probe exploded")}
		opts.Frames = stubFrames{err: errors.New("no frame")}
		opts.Segmenter = stubSegmenter{err: errors.New("encode error")}
	})

	record, err := p.coordinator.Ingest(context.Background(), testRequest("req-c"))
	require.NoError(t, err)

	require.Zero(t, record.Duration)
	require.Zero(t, record.Width)
	require.Zero(t, record.Height)
	require.Nil(t, record.ThumbnailURL)
	require.Nil(t, record.ManifestURL)
	requireScratchEmpty(t, p.scratchRoot)
}

func TestIngestFailsWhenOriginalUploadFails(t *testing.T) {
	p := newTestPipeline(t, func(opts *CoordinatorOpts) {
		opts.Store = &stubStore{failKey: func(key string) error {
			if strings.Contains(key, "original") {
				return errors.New("invalid credentials")
			}
			return nil
		}}
	})

	_, err := p.coordinator.Ingest(context.Background(), testRequest("req-d"))
	require.ErrorContains(t, err, "failed to publish original")

	require.Empty(t, p.catalog.inserts, "no catalog record may exist for a failed job")
	requireScratchEmpty(t, p.scratchRoot)
}

func TestIngestFailsWhenCatalogWriteFails(t *testing.T) {
	p := newTestPipeline(t, func(opts *CoordinatorOpts) {
		opts.Catalog = &stubCatalog{err: errors.New("connection refused")}
	})

	_, err := p.coordinator.Ingest(context.Background(), testRequest("req-e"))
	require.ErrorContains(t, err, "failed to persist catalog record")

	// already-published artifacts are orphaned, not rolled back
	require.NotEmpty(t, p.store.uploadedKeys())
	requireScratchEmpty(t, p.scratchRoot)
}

func TestIngestCleansUpOnPanic(t *testing.T) {
	p := newTestPipeline(t, func(opts *CoordinatorOpts) {
		opts.Catalog = &stubCatalog{panics: true}
	})

	_, err := p.coordinator.Ingest(context.Background(), testRequest("req-f"))
	require.ErrorContains(t, err, "panic in pipeline")
	requireScratchEmpty(t, p.scratchRoot)
}

func TestIngestAbortsWhenCancelled(t *testing.T) {
	p := newTestPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.coordinator.Ingest(ctx, testRequest("req-g"))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, p.catalog.inserts)
	requireScratchEmpty(t, p.scratchRoot)
}

func TestConcurrentIngestsAreIsolated(t *testing.T) {
	p := newTestPipeline(t, nil)

	const jobs = 4
	records := make([]*catalog.VideoRecord, jobs)
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := p.coordinator.Ingest(context.Background(), testRequest(fmt.Sprintf("req-conc-%d", i)))
			require.NoError(t, err)
			records[i] = record
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, record := range records {
		require.NotNil(t, record)
		require.False(t, seen[record.ID], "job identifiers must be unique")
		seen[record.ID] = true
	}
	requireScratchEmpty(t, p.scratchRoot)
}
