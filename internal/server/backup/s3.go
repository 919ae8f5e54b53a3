package backup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "github.com/goldflix/goldflix/internal/server/config"
)

// s3API is the slice of the S3 client the off-site copy uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store copies dumps to and from an S3-compatible bucket (MinIO in dev).
type S3Store struct {
	backups *Service
	config  *sc.Config
	client  s3API
	now     func() time.Time
}

func NewS3Store(backups *Service, config *sc.Config) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.S3RootUser,
			config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{backups: backups, config: config, client: client, now: time.Now}, nil
}

// NewS3StoreWithClient injects the S3 client; used by tests.
func NewS3StoreWithClient(backups *Service, config *sc.Config, client s3API) *S3Store {
	return &S3Store{backups: backups, config: config, client: client, now: time.Now}
}

// Upload dumps the store and puts the result in the bucket, returning the
// object key.
func (s *S3Store) Upload(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	count, err := s.backups.Dump(ctx, &buf)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("backups/goldflix_%s.ndjson", s.now().UTC().Format("20060102T150405"))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	s.backups.log.Info(ctx, "backup uploaded", "key", key, "lines", count)
	return key, nil
}

// Download fetches a dump from the bucket and restores it.
func (s *S3Store) Download(ctx context.Context, key string) (restored int, err error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 download: %w", err)
	}
	defer out.Body.Close()

	restored, _, err = s.backups.Restore(ctx, out.Body)
	return restored, err
}
