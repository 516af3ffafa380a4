package config

import (
	"context"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// CredentialAccounts derives provider sign-in state from the configured
// access keys. A half-filled key pair is reported as an error.
type CredentialAccounts struct {
	cfg *Config
}

// NewCredentialAccounts wraps cfg.
func NewCredentialAccounts(cfg *Config) *CredentialAccounts {
	return &CredentialAccounts{cfg: cfg}
}

// SignedIn implements sync.AccountStatus.
func (a *CredentialAccounts) SignedIn(ctx context.Context, provider models.CloudProvider) (bool, error) {
	var access, secret string
	switch provider {
	case models.ProviderLocalOnly:
		return true, nil
	case models.ProviderAWS:
		access, secret = a.cfg.Cloud.AWS.AccessKey, a.cfg.Cloud.AWS.SecretKey
		if access == "" && secret == "" {
			// the default credential chain (env, shared profile) may still apply
			return a.cfg.Cloud.AWS.Bucket != "", nil
		}
	case models.ProviderR2:
		access, secret = a.cfg.Cloud.R2.AccessKey, a.cfg.Cloud.R2.SecretKey
	case models.ProviderMinIO:
		access, secret = a.cfg.Cloud.MinIO.AccessKey, a.cfg.Cloud.MinIO.SecretKey
	default:
		return false, apperrors.Newf(apperrors.ErrProviderUnknown, "unknown cloud provider %q", provider)
	}

	switch {
	case access != "" && secret != "":
		return true, nil
	case access == "" && secret == "":
		return false, nil
	}
	return false, apperrors.Newf(apperrors.ErrConfigInvalid, "%s has only one of access_key and secret_key", provider.DisplayName())
}
