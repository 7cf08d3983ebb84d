package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultKeyPrefix = "FeedSourcing"

// Options configures an S3Uploader.
type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint points at an S3-compatible store; it enables path-style URLs.
	Endpoint string
	// PublicBaseURL overrides the virtual-hosted S3 URL in returned links.
	PublicBaseURL string
	KeyPrefix     string
}

// S3Uploader stores media blobs in a bucket and returns their public URL.
type S3Uploader struct {
	client *s3.Client
	opts   Options
	now    func() time.Time
}

// NewS3Uploader builds an uploader. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, opts Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
			// S3-compatible stores often reject the newer default checksum headers
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	return &S3Uploader{client: client, opts: opts, now: time.Now}, nil
}

// Upload stores data under a fresh key and returns the object's public URL.
func (u *S3Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to upload empty object")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := u.objectKey(contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	url := u.publicURL(key)
	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("media uploaded")
	return url, nil
}

func (u *S3Uploader) objectKey(contentType string) string {
	return fmt.Sprintf("%s/%d-%s%s", u.opts.KeyPrefix, u.now().UnixMilli(), uuid.New().String(), extensionFor(contentType))
}

func (u *S3Uploader) publicURL(key string) string {
	if u.opts.PublicBaseURL != "" {
		return strings.TrimRight(u.opts.PublicBaseURL, "/") + "/" + key
	}
	if u.opts.Endpoint != "" {
		return strings.TrimRight(u.opts.Endpoint, "/") + "/" + u.opts.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.opts.Bucket, u.opts.Region, key)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",
}

func extensionFor(contentType string) string {
	if i := strings.Index(contentType, ";"); i != -1 {
		contentType = contentType[:i]
	}
	if ext, ok := extensions[strings.TrimSpace(strings.ToLower(contentType))]; ok {
		return ext
	}
	return ".png"
}
