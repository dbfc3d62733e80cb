package config

import (
	"math/rand"
	"time"
)

var Version string

// Object key layout under the bucket. Every artifact for a given video lives
// under videos/<id>/ so a single prefix identifies the whole job's output.
const (
	HLSSubdir             = "hls"
	HLSManifestFilename   = "playlist.m3u8"
	HLSSegmentFilePattern = "segment_%d.ts"
	ThumbnailFilename     = "thumbnail.jpg"
)

// Content types for published artifacts. The original keeps its source MIME
// type as submitted by the uploader.
const (
	ManifestContentType  = "application/x-mpegURL"
	SegmentContentType   = "video/MP2T"
	ThumbnailContentType = "image/jpeg"
)

var r = rand.New(rand.NewSource(time.Now().UnixNano()))

func RandomTrailer(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	res := make([]byte, length)
	for i := 0; i < length; i++ {
		res[i] = charset[r.Intn(len(charset))]
	}
	return string(res)
}
