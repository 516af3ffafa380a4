package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// Adapter is the contract every cloud backend implements.
type Adapter interface {
	// Save writes the profile to the backend.
	Save(ctx context.Context, profile models.UserProfile) error

	// Load reads the profile back. It returns nil, nil when the backend has none.
	Load(ctx context.Context) (*models.UserProfile, error)

	// IsAvailable reports whether the signed-in user can use this backend.
	// An error means availability could not be determined.
	IsAvailable(ctx context.Context) (bool, error)
}

// AccountStatus is the authentication subsystem's view of provider accounts.
type AccountStatus interface {
	SignedIn(ctx context.Context, provider models.CloudProvider) (bool, error)
}

// envelopeFormat tags the remote representation so foreign objects are rejected.
const envelopeFormat = "nutrilog.profile/v1"

type envelope struct {
	Format  string             `json:"format"`
	SavedAt time.Time          `json:"saved_at"`
	Profile models.UserProfile `json:"profile"`
}

// ObjectStoreAdapter stores the profile as a JSON document in an ObjectStore.
type ObjectStoreAdapter struct {
	provider models.CloudProvider
	store    ObjectStore
	accounts AccountStatus
	identity string
	now      func() time.Time
}

// NewObjectStoreAdapter creates the adapter for provider, keyed by the signed-in identity.
func NewObjectStoreAdapter(provider models.CloudProvider, store ObjectStore, accounts AccountStatus, identity string) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{
		provider: provider,
		store:    store,
		accounts: accounts,
		identity: identity,
		now:      time.Now,
	}
}

// Provider returns the backend this adapter talks to.
func (a *ObjectStoreAdapter) Provider() models.CloudProvider {
	return a.provider
}

// ObjectKey returns the object the profile is stored under.
func (a *ObjectStoreAdapter) ObjectKey() string {
	return fmt.Sprintf("profiles/%s.json", a.identity)
}

// Save uploads the profile wrapped in an envelope.
func (a *ObjectStoreAdapter) Save(ctx context.Context, profile models.UserProfile) error {
	data, err := json.Marshal(envelope{
		Format:  envelopeFormat,
		SavedAt: a.now().UTC(),
		Profile: profile,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode profile", err)
	}
	return a.store.Upload(ctx, a.ObjectKey(), data)
}

// Load downloads the profile. A missing object is not an error.
func (a *ObjectStoreAdapter) Load(ctx context.Context) (*models.UserProfile, error) {
	data, err := a.store.Download(ctx, a.ObjectKey())
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptedState, "decode remote profile", err)
	}
	if env.Format != envelopeFormat {
		return nil, apperrors.Newf(apperrors.ErrCorruptedState, "unexpected remote format %q", env.Format)
	}
	p := env.Profile
	return &p, nil
}

// IsAvailable asks the account subsystem whether the user is signed in to the provider.
func (a *ObjectStoreAdapter) IsAvailable(ctx context.Context) (bool, error) {
	if a.accounts == nil {
		return false, nil
	}
	ok, err := a.accounts.SignedIn(ctx, a.provider)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrAvailabilityUnknown, string(a.provider), err)
	}
	return ok, nil
}
