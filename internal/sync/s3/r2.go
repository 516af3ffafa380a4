package s3

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/sync"
)

// R2Config holds Cloudflare R2-specific configuration.
type R2Config struct {
	AccountID  string // Cloudflare Account ID
	BucketName string
	AccessKey  string // R2 API Token (Access Key ID)
	SecretKey  string // R2 API Token (Secret Access Key)
}

// NewR2Client creates an S3 client configured for Cloudflare R2.
// The endpoint is https://<accountid>.r2.cloudflarestorage.com and the region is "auto".
func NewR2Client(ctx context.Context, config *R2Config) (*sync.S3Client, error) {
	if config.AccountID == "" {
		return nil, apperrors.New(apperrors.ErrProviderNotConfigured, "R2 account id is required")
	}
	return sync.NewS3Client(ctx, &sync.S3Config{
		Endpoint:       "https://" + R2EndpointForAccount(config.AccountID),
		BucketName:     config.BucketName,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         "auto",
		ForcePathStyle: false,
	})
}

// R2EndpointForAccount returns the R2 host for a given account ID.
func R2EndpointForAccount(accountID string) string {
	return fmt.Sprintf("%s.r2.cloudflarestorage.com", accountID)
}

// IsValidR2AccountID reports whether accountID looks like a Cloudflare
// account ID: 32 hex characters.
func IsValidR2AccountID(accountID string) bool {
	if len(accountID) != 32 {
		return false
	}
	for _, c := range accountID {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
