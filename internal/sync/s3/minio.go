package s3

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/sync"
)

// MinIOConfig holds MinIO-specific configuration.
type MinIOConfig struct {
	Endpoint   string // e.g. "localhost:9000" or "https://minio.example.com"
	BucketName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool // applies when Endpoint has no scheme
}

// NewMinIOClient creates an S3 client configured for MinIO.
// MinIO requires path-style URLs (endpoint/bucket/key).
func NewMinIOClient(ctx context.Context, config *MinIOConfig) (*sync.S3Client, error) {
	endpoint, err := ParseMinIOEndpoint(config.Endpoint, config.UseSSL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderNotConfigured, "minio endpoint", err)
	}
	return sync.NewS3Client(ctx, &sync.S3Config{
		Endpoint:       endpoint,
		BucketName:     config.BucketName,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         "us-east-1", // MinIO ignores regions but signing needs one
		ForcePathStyle: true,
	})
}

// ParseMinIOEndpoint adds a scheme when missing and strips a trailing slash.
func ParseMinIOEndpoint(endpoint string, useSSL bool) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}
