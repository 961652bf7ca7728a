package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures access to an S3 compatible bucket store such as R2.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Fetcher downloads s3://bucket/key references.
type S3Fetcher struct {
	client   *s3.Client
	maxBytes int64
}

// NewS3Fetcher loads AWS configuration. Static credentials are used when
// both keys are set, otherwise the default chain applies.
func NewS3Fetcher(ctx context.Context, cfg S3Config, maxBytes int64) (*S3Fetcher, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3FetcherWithClient(client, maxBytes), nil
}

// NewS3FetcherWithClient wraps an existing client.
func NewS3FetcherWithClient(client *s3.Client, maxBytes int64) *S3Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &S3Fetcher{client: client, maxBytes: maxBytes}
}

// ParseS3Reference splits s3://bucket/key.
func ParseS3Reference(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 reference: %s", ref)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("missing object key: %s", ref)
	}
	return u.Host, key, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseS3Reference(ref)
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: invalid object reference", err)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: get object failed", err).
			WithContext("bucket", bucket).WithContext("key", key)
	}
	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(out.Body, f.maxBytes+1))
	if err != nil {
		return nil, downloadFailed("Failed to download PDF: reading object body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, downloadFailed(fmt.Sprintf("Failed to download PDF: file exceeds %d bytes", f.maxBytes), nil)
	}
	return data, nil
}
