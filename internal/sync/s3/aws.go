// Package s3 provides the S3-compatible cloud providers: AWS S3, Cloudflare R2 and MinIO.
package s3

import (
	"context"
	"sort"

	"github.com/kimhsiao/nutrilog/backend/internal/sync"
)

// Regions accepted for AWS S3. The SDK resolves the endpoint for each.
var awsRegions = map[string]struct{}{
	"us-east-1": {}, "us-east-2": {}, "us-west-1": {}, "us-west-2": {},
	"eu-west-1": {}, "eu-west-2": {}, "eu-west-3": {}, "eu-central-1": {},
	"eu-north-1": {}, "eu-south-1": {},
	"ap-northeast-1": {}, "ap-northeast-2": {}, "ap-northeast-3": {},
	"ap-southeast-1": {}, "ap-southeast-2": {}, "ap-south-1": {},
	"ca-central-1": {}, "sa-east-1": {}, "me-south-1": {}, "af-south-1": {},
}

// AWSConfig holds AWS S3-specific configuration.
type AWSConfig struct {
	BucketName string
	AccessKey  string
	SecretKey  string
	Region     string // Default: us-east-1
}

// NewAWSClient creates an S3 client configured for AWS S3 with
// virtual-host style addressing.
func NewAWSClient(ctx context.Context, config *AWSConfig) (*sync.S3Client, error) {
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}
	return sync.NewS3Client(ctx, &sync.S3Config{
		BucketName:     config.BucketName,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         region,
		ForcePathStyle: false,
	})
}

// IsSupportedAWSRegion checks if a region is supported.
func IsSupportedAWSRegion(region string) bool {
	_, ok := awsRegions[region]
	return ok
}

// SupportedAWSRegions returns every supported region, sorted.
func SupportedAWSRegions() []string {
	regions := make([]string, 0, len(awsRegions))
	for region := range awsRegions {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}
