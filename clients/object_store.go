package clients

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/hashicorp/go-retryablehttp"
)

// ObjectStore is the destination for published artifacts. Implementations
// must be safe for concurrent use by multiple jobs.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PublicURL(key string) string
}

type S3Config struct {
	// Endpoint overrides the AWS S3 endpoint for S3-compatible stores
	// (minio etc). Empty means AWS.
	Endpoint  *url.URL
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

type S3Store struct {
	uploader *s3manager.Uploader
	cfg      S3Config
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}

	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithHTTPClient(retryablehttp.NewClient().StandardClient())
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	if cfg.Endpoint != nil {
		// Path-style addressing; virtual-hosted style doesn't work against
		// most S3-compatible stores.
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint.String()).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store session: %w", err)
	}

	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		cfg:      cfg,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q to bucket %q: %w", key, s.cfg.Bucket, err)
	}
	return nil
}

// PublicURL derives the playback URL for a key. Pure function of the
// configured endpoint, bucket and key.
func (s *S3Store) PublicURL(key string) string {
	return PublicURL(s.cfg.Endpoint, s.cfg.Bucket, key)
}

func PublicURL(endpoint *url.URL, bucket, key string) string {
	if endpoint != nil {
		return endpoint.JoinPath(bucket, key).String()
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}
