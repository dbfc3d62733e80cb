package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/gipjazes/ingest-api/video"
)

func TestInsertVideo(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	createdAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	manifestURL := "https://bucket.s3.amazonaws.com/videos/vid-1/hls/playlist.m3u8"
	thumbnailURL := "https://bucket.s3.amazonaws.com/videos/vid-1/thumbnail.jpg"

	mock.ExpectQuery("INSERT INTO videos").
		WithArgs(
			"vid-1", "user-1", "My Title", "park run #skate", "videos/vid-1/original.mp4",
			5.2, int64(576), int64(1024), "video/mp4",
			pq.Array([]string{"#skate"}), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	store := NewStore(db)
	record, err := store.InsertVideo(context.Background(), InsertVideoParams{
		ID:          "vid-1",
		OwnerID:     "user-1",
		Title:       "My Title",
		Description: "park run #skate",
		Metadata: video.Metadata{
			Duration: 5.2,
			Width:    576,
			Height:   1024,
			Format:   "mov,mp4,m4a,3gp,3g2,mj2",
		},
		MimeType:     "video/mp4",
		OriginalKey:  "videos/vid-1/original.mp4",
		ManifestURL:  &manifestURL,
		ThumbnailURL: &thumbnailURL,
	})
	require.NoError(t, err)

	require.Equal(t, "vid-1", record.ID)
	require.Equal(t, "user-1", record.OwnerID)
	require.Equal(t, []string{"#skate"}, record.Hashtags)
	require.Equal(t, &manifestURL, record.ManifestURL)
	require.Equal(t, &thumbnailURL, record.ThumbnailURL)
	require.Equal(t, createdAt, record.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVideoDegradedArtifactsStayNull(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO videos").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	store := NewStore(db)
	record, err := store.InsertVideo(context.Background(), InsertVideoParams{
		ID:          "vid-2",
		OwnerID:     "user-1",
		Title:       "Untitled",
		Description: "Untitled",
		MimeType:    "video/mp4",
		OriginalKey: "videos/vid-2/original.mp4",
	})
	require.NoError(t, err)
	require.Nil(t, record.ManifestURL)
	require.Nil(t, record.ThumbnailURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVideoPropagatesDatabaseFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO videos").
		WillReturnError(errors.New("connection refused"))

	store := NewStore(db)
	_, err = store.InsertVideo(context.Background(), InsertVideoParams{ID: "vid-3"})
	require.ErrorContains(t, err, "failed to insert video record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListVideos(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"id", "user_id", "title", "description", "s3_key", "duration", "width", "height", "mime_type", "hashtags", "playback_hls_url", "thumbnail_url", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM videos ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("vid-1", "user-1", "First", "#one", "videos/vid-1/original.mp4", 5.0, 576, 1024, "video/mp4",
				pq.Array([]string{"#one"}), "https://bucket.s3.amazonaws.com/videos/vid-1/hls/playlist.m3u8", nil, time.Now()).
			AddRow("vid-2", "user-2", "Second", "", "videos/vid-2/original.mov", 9.5, 1280, 720, "video/quicktime",
				pq.Array([]string{}), nil, nil, time.Now()))

	store := NewStore(db)
	records, err := store.ListVideos(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "vid-1", records[0].ID)
	require.NotNil(t, records[0].ManifestURL)
	require.Nil(t, records[0].ThumbnailURL)

	// degraded record keeps both URLs null
	require.Equal(t, "vid-2", records[1].ID)
	require.Nil(t, records[1].ManifestURL)
	require.Nil(t, records[1].ThumbnailURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUserVideos(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"id", "user_id", "title", "description", "s3_key", "duration", "width", "height", "mime_type", "hashtags", "playback_hls_url", "thumbnail_url", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM videos WHERE user_id =").
		WithArgs("user-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("vid-1", "user-1", "Mine", "", "videos/vid-1/original.mp4", 5.0, 576, 1024, "video/mp4",
				pq.Array([]string{}), nil, nil, time.Now()))

	store := NewStore(db)
	records, err := store.ListUserVideos(context.Background(), "user-1", 20, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "user-1", records[0].OwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}
