package sync

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
)

// ObjectStore defines the interface for cloud storage operations.
type ObjectStore interface {
	// Upload uploads data to the store.
	Upload(ctx context.Context, key string, data []byte) error

	// Download downloads data from the store. A missing key yields an
	// error carrying ErrNotFound.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete deletes data from the store.
	Delete(ctx context.Context, key string) error

	// List lists all keys with a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// S3Config holds S3 connection configuration.
type S3Config struct {
	// Endpoint is a full URL; empty selects the AWS regional endpoint.
	Endpoint       string
	BucketName     string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // Use path-style URLs (minio, localstack)
	MaxAttempts    int  // 0 keeps the SDK default
}

// S3API is the subset of *s3.Client used by S3Client.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Client implements ObjectStore for S3-compatible storage.
type S3Client struct {
	api    S3API
	bucket string
}

// NewS3Client creates an S3Client. Static keys are used when both are set,
// otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg *S3Config) (*S3Client, error) {
	if cfg == nil || cfg.BucketName == "" {
		return nil, apperrors.New(apperrors.ErrProviderNotConfigured, "bucket name is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderNotConfigured, "load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3ClientWithAPI(client, cfg.BucketName), nil
}

// NewS3ClientWithAPI wraps an existing S3 API implementation.
func NewS3ClientWithAPI(api S3API, bucket string) *S3Client {
	return &S3Client{api: api, bucket: bucket}
}

// Bucket returns the bucket objects are stored in.
func (c *S3Client) Bucket() string {
	return c.bucket
}

// Upload uploads data to S3.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, fmt.Sprintf("upload %s", key), err)
	}
	return nil
}

// Download downloads data from S3.
func (c *S3Client) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("object not found: %s", key), err)
		}
		return nil, apperrors.Wrap(apperrors.ErrTransport, fmt.Sprintf("download %s", key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, "failed to read response body", err)
	}
	return data, nil
}

// Delete deletes data from S3.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return apperrors.Wrap(apperrors.ErrTransport, fmt.Sprintf("delete %s", key), err)
	}
	return nil
}

// List lists all keys with a prefix, following continuation tokens.
func (c *S3Client) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrTransport, "list objects", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if stderrors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || strings.HasSuffix(code, "NotFound")
	}
	return false
}
