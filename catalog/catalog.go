// Package catalog persists and serves the durable record of every completed
// ingestion. Records are owned by the database once written; the pipeline
// never mutates them afterwards.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gipjazes/ingest-api/video"
)

// VideoRecord is the catalog row describing one completed upload. ManifestURL
// and ThumbnailURL are nil when their pipeline stages were degraded.
type VideoRecord struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Hashtags     []string  `json:"hashtags"`
	OriginalKey  string    `json:"s3_key"`
	Duration     float64   `json:"duration"`
	Width        int64     `json:"width"`
	Height       int64     `json:"height"`
	MimeType     string    `json:"mime_type"`
	ManifestURL  *string   `json:"playback_hls_url"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at"`
}

type InsertVideoParams struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	Metadata     video.Metadata
	MimeType     string
	OriginalKey  string
	ManifestURL  *string
	ThumbnailURL *string
}

type Writer interface {
	InsertVideo(ctx context.Context, params InsertVideoParams) (*VideoRecord, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertVideoQuery = `
	INSERT INTO videos (id, user_id, title, description, s3_key, duration, width, height, mime_type, hashtags, playback_hls_url, thumbnail_url)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING created_at`

// InsertVideo writes the catalog record for a published upload. Callers must
// only pass URLs for artifacts whose uploads were confirmed.
func (s *Store) InsertVideo(ctx context.Context, params InsertVideoParams) (*VideoRecord, error) {
	hashtags := ExtractHashtags(params.Description)

	record := &VideoRecord{
		ID:           params.ID,
		OwnerID:      params.OwnerID,
		Title:        params.Title,
		Description:  params.Description,
		Hashtags:     hashtags,
		OriginalKey:  params.OriginalKey,
		Duration:     params.Metadata.Duration,
		Width:        params.Metadata.Width,
		Height:       params.Metadata.Height,
		MimeType:     params.MimeType,
		ManifestURL:  params.ManifestURL,
		ThumbnailURL: params.ThumbnailURL,
	}

	err := s.db.QueryRowContext(ctx, insertVideoQuery,
		params.ID,
		params.OwnerID,
		params.Title,
		params.Description,
		params.OriginalKey,
		params.Metadata.Duration,
		params.Metadata.Width,
		params.Metadata.Height,
		params.MimeType,
		pq.Array(hashtags),
		nullableString(params.ManifestURL),
		nullableString(params.ThumbnailURL),
	).Scan(&record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert video record: %w", err)
	}

	return record, nil
}

const listVideosQuery = `
	SELECT id, user_id, title, description, s3_key, duration, width, height, mime_type, hashtags, playback_hls_url, thumbnail_url, created_at
	FROM videos
	ORDER BY created_at DESC
	LIMIT $1 OFFSET $2`

const listUserVideosQuery = `
	SELECT id, user_id, title, description, s3_key, duration, width, height, mime_type, hashtags, playback_hls_url, thumbnail_url, created_at
	FROM videos
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

func (s *Store) ListVideos(ctx context.Context, limit, offset int) ([]VideoRecord, error) {
	rows, err := s.db.QueryContext(ctx, listVideosQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()
	return scanVideoRows(rows)
}

func (s *Store) ListUserVideos(ctx context.Context, userID string, limit, offset int) ([]VideoRecord, error) {
	rows, err := s.db.QueryContext(ctx, listUserVideosQuery, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos for user %s: %w", userID, err)
	}
	defer rows.Close()
	return scanVideoRows(rows)
}

func scanVideoRows(rows *sql.Rows) ([]VideoRecord, error) {
	records := []VideoRecord{}
	for rows.Next() {
		var (
			record       VideoRecord
			hashtags     pq.StringArray
			manifestURL  sql.NullString
			thumbnailURL sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&record.OwnerID,
			&record.Title,
			&record.Description,
			&record.OriginalKey,
			&record.Duration,
			&record.Width,
			&record.Height,
			&record.MimeType,
			&hashtags,
			&manifestURL,
			&thumbnailURL,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video record: %w", err)
		}
		record.Hashtags = hashtags
		if manifestURL.Valid {
			record.ManifestURL = &manifestURL.String
		}
		if thumbnailURL.Valid {
			record.ThumbnailURL = &thumbnailURL.String
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
