package video

// Metadata describes the probed properties of an uploaded source file.
// Derived once per job and immutable afterwards. A zero value is valid: it is
// what the pipeline continues with when probing fails.
type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int64   `json:"width"`
	Height   int64   `json:"height"`
	Format   string  `json:"format"`
}

// SegmentedOutput is the local result of segmenting a source file: the
// playback manifest plus the media segments it references, in playback order.
type SegmentedOutput struct {
	ManifestPath string
	SegmentPaths []string
}
