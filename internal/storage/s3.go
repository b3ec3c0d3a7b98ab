package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultPresignExpiry = 15 * time.Minute

var ErrInvalidObjectURL = errors.New("invalid s3 object url")

type Options struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. LocalStack or R2.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PresignExpiry   time.Duration
}

// S3Storage turns s3://bucket/key attachment URLs into presigned links.
type S3Storage struct {
	presign *s3.PresignClient
	expiry  time.Duration
}

func NewS3Storage(ctx context.Context, opts Options) (*S3Storage, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &S3Storage{presign: s3.NewPresignClient(client), expiry: expiry}, nil
}

// Resolve presigns s3:// URLs and returns anything else unchanged.
func (s *S3Storage) Resolve(ctx context.Context, raw string) (string, error) {
	bucket, key, ok, err := ParseObjectURL(raw)
	if err != nil || !ok {
		return raw, err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", raw, err)
	}
	return req.URL, nil
}

// ParseObjectURL splits s3://bucket/key. ok is false for other schemes.
func ParseObjectURL(raw string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(strings.ToLower(raw), "s3://") {
		return "", "", false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", true, fmt.Errorf("%w: %w", ErrInvalidObjectURL, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", true, fmt.Errorf("%w: %q", ErrInvalidObjectURL, raw)
	}
	return u.Host, key, true, nil
}
