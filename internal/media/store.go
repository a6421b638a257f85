// Package media stores user uploaded images in object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fitlog/backend/internal/config"
)

// MaxImageBytes caps the size of an uploaded image.
const MaxImageBytes = 5 << 20

var (
	// ErrUnsupportedType indicates an upload that is neither JPEG nor PNG.
	ErrUnsupportedType = errors.New("media: only image/jpeg and image/png are accepted")
	// ErrTooLarge indicates an upload above MaxImageBytes.
	ErrTooLarge = errors.New("media: image exceeds 5 MiB")
	// ErrEmpty indicates an upload without a body.
	ErrEmpty = errors.New("media: image body is empty")
	// ErrMissingBucket indicates storage was requested without a bucket.
	ErrMissingBucket = errors.New("media: bucket is required")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Store persists an object and returns the URL clients should load it from.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes objects to an S3 compatible bucket.
type S3Store struct {
	client        objectPutter
	bucket        string
	region        string
	publicBaseURL string
}

// NewS3Store builds an S3Store from the default AWS credential chain.
// A configured endpoint switches the client to path-style addressing for MinIO or LocalStack.
func NewS3Store(ctx context.Context, cfg config.MediaConfig) (*S3Store, error) {
	if !cfg.Enabled() {
		return nil, ErrMissingBucket
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if endpoint != "" {
			options.BaseEndpoint = aws.String(endpoint)
			options.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client objectPutter, cfg config.MediaConfig) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        strings.TrimSpace(cfg.Bucket),
		region:        strings.TrimSpace(cfg.Region),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}
}

// Put uploads body under key and returns its URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("media: put %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL is where a stored key can be fetched from.
func (s *S3Store) URL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// ValidateImage sniffs body and returns its content type.
func ValidateImage(body []byte) (string, error) {
	if len(body) == 0 {
		return "", ErrEmpty
	}
	if len(body) > MaxImageBytes {
		return "", ErrTooLarge
	}
	contentType := http.DetectContentType(body)
	if _, ok := extensions[contentType]; !ok {
		return "", ErrUnsupportedType
	}
	return contentType, nil
}

// AvatarKey names the object holding a user's avatar uploaded at now.
func AvatarKey(userID, contentType string, now time.Time) string {
	return path.Join("avatars", userID, fmt.Sprintf("%d%s", now.UTC().UnixMilli(), extensions[contentType]))
}
