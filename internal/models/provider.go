package models

import (
	"fmt"
	"strings"
)

// CloudProvider selects where the profile is mirrored. Exactly one is active.
type CloudProvider string

const (
	ProviderLocalOnly CloudProvider = "local_only"
	ProviderAWS       CloudProvider = "aws_s3"
	ProviderR2        CloudProvider = "cloudflare_r2"
	ProviderMinIO     CloudProvider = "minio"
)

// CloudProviders lists every selectable provider, local_only first.
func CloudProviders() []CloudProvider {
	return []CloudProvider{ProviderLocalOnly, ProviderAWS, ProviderR2, ProviderMinIO}
}

// IsValid reports whether p is a known provider.
func (p CloudProvider) IsValid() bool {
	switch p {
	case ProviderLocalOnly, ProviderAWS, ProviderR2, ProviderMinIO:
		return true
	}
	return false
}

// IsLocal reports whether p keeps data on-device only.
func (p CloudProvider) IsLocal() bool {
	return p == ProviderLocalOnly
}

// DisplayName returns a human-facing label.
func (p CloudProvider) DisplayName() string {
	switch p {
	case ProviderLocalOnly:
		return "On this device only"
	case ProviderAWS:
		return "Amazon S3"
	case ProviderR2:
		return "Cloudflare R2"
	case ProviderMinIO:
		return "MinIO"
	}
	return string(p)
}

// ParseCloudProvider accepts canonical names and a few common aliases.
func ParseCloudProvider(s string) (CloudProvider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local", "local_only", "localonly", "none":
		return ProviderLocalOnly, nil
	case "aws", "s3", "aws_s3":
		return ProviderAWS, nil
	case "r2", "cloudflare", "cloudflare_r2":
		return ProviderR2, nil
	case "minio":
		return ProviderMinIO, nil
	}
	return "", fmt.Errorf("unknown cloud provider %q", s)
}
