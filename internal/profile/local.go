// Package profile keeps the user's profile durable on-device and mirrors it to the cloud.
package profile

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kimhsiao/nutrilog/backend/internal/db"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// StorageKey is the blob key the profile persists under.
const StorageKey = "user_profile"

// Local is the single on-device profile record.
type Local struct {
	mu    sync.Mutex
	store db.BlobStore
	log   *logging.Logger
}

// NewLocal creates a Local over store.
func NewLocal(store db.BlobStore, log *logging.Logger) *Local {
	if log == nil {
		log = logging.Get()
	}
	return &Local{store: store, log: log}
}

// Save replaces the stored profile in one write.
func (l *Local) Save(ctx context.Context, p models.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode profile", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Put(ctx, StorageKey, data)
}

// Load returns the stored profile, or nil when there is none. An unreadable
// record is logged and reported as absent.
func (l *Local) Load(ctx context.Context) (*models.UserProfile, error) {
	l.mu.Lock()
	data, found, err := l.store.Get(ctx, StorageKey)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !found || len(data) == 0 {
		return nil, nil
	}

	var p models.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		l.log.ErrorWithCode("stored profile is unreadable, treating as absent",
			apperrors.Wrap(apperrors.ErrCorruptedState, "decode profile", err),
			map[string]interface{}{"key": StorageKey})
		return nil, nil
	}
	return &p, nil
}

// LoadLocal reads the stored profile without a caller context.
func (l *Local) LoadLocal() (*models.UserProfile, error) {
	return l.Load(context.Background())
}

// Clear removes the stored profile.
func (l *Local) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(ctx, StorageKey)
}

// Exists reports whether a readable profile is stored.
func (l *Local) Exists(ctx context.Context) (bool, error) {
	p, err := l.Load(ctx)
	return p != nil, err
}
