package profile

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/sync"
	"github.com/kimhsiao/nutrilog/backend/internal/sync/conflict"
)

// Syncer is the cloud side of the store.
type Syncer interface {
	Mirror(p models.UserProfile) *sync.Task
	Fetch(ctx context.Context) (*models.UserProfile, bool)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithResolver overrides the reconciliation policy (remote wins by default).
func WithResolver(r *conflict.Resolver) Option {
	return func(s *Store) { s.resolver = r }
}

// WithValidator overrides the profile validator.
func WithValidator(v *validator.Validate) Option {
	return func(s *Store) { s.validate = v }
}

// Store is the local-first profile facade. Writes commit locally before the
// cloud mirror is scheduled; mirror failures never touch the local copy.
type Store struct {
	local    *Local
	syncer   Syncer
	resolver *conflict.Resolver
	validate *validator.Validate
	now      func() time.Time
	log      *logging.Logger
}

// NewStore creates a Store. syncer may be nil for a device without cloud support.
func NewStore(local *Local, syncer Syncer, opts ...Option) *Store {
	s := &Store{
		local:  local,
		syncer: syncer,
		now:    time.Now,
		log:    logging.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = conflict.NewResolver(conflict.ResolutionStrategyRemoteWins, s.log)
	}
	if s.validate == nil {
		s.validate = NewValidator()
	}
	return s
}

// SaveProfile validates p, stamps UpdatedAt, commits it locally and schedules
// the cloud mirror. The task is nil when nothing is mirrored.
func (s *Store) SaveProfile(ctx context.Context, p models.UserProfile) (*sync.Task, error) {
	if err := Validate(s.validate, p); err != nil {
		return nil, err
	}
	p = p.Clone()
	p.UpdatedAt = s.now().UTC()

	if err := s.local.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Debug("profile saved locally", map[string]interface{}{"profile_id": p.ID})

	if s.syncer == nil {
		return nil, nil
	}
	return s.syncer.Mirror(p), nil
}

// UpdateProfile merges patch into the stored profile and saves the result.
func (s *Store) UpdateProfile(ctx context.Context, patch models.ProfilePatch) (*models.UserProfile, *sync.Task, error) {
	current, err := s.local.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, apperrors.New(apperrors.ErrNotFound, "no profile to update")
	}
	if patch.IsEmpty() {
		return current, nil, nil
	}

	next := patch.Apply(*current)
	task, err := s.SaveProfile(ctx, next)
	if err != nil {
		return nil, nil, err
	}
	saved, err := s.local.Load(ctx)
	if err != nil {
		return nil, task, err
	}
	return saved, task, nil
}

// LoadProfile reconciles the cloud copy with the local one. When the active
// provider has a valid copy it normally wins and is written locally; any cloud
// failure falls back to the local copy. It returns nil when neither exists.
func (s *Store) LoadProfile(ctx context.Context) (*models.UserProfile, error) {
	// the local read happens first so a cloud read that runs into ctx's
	// deadline still leaves a local copy to fall back to
	local, localErr := s.local.Load(ctx)

	var remote *models.UserProfile
	if s.syncer != nil {
		if p, ok := s.syncer.Fetch(ctx); ok {
			if err := Validate(s.validate, *p); err != nil {
				s.log.Warn("ignoring invalid remote profile", map[string]interface{}{"error": err.Error()})
			} else {
				remote = p
			}
		}
	}

	if localErr != nil {
		if remote == nil {
			return nil, localErr
		}
		s.log.Error("failed to read local profile, using remote copy", localErr)
		local = nil
	}

	res := s.resolver.Resolve(local, remote)
	switch {
	case res.Side == conflict.SideRemote && (local == nil || res.Diverged):
		if err := s.local.Save(context.WithoutCancel(ctx), *remote); err != nil {
			s.log.Error("failed to store remote profile locally", err)
		}
	case res.Side == conflict.SideLocal && remote != nil && res.Diverged && s.syncer != nil:
		s.syncer.Mirror(*local)
	}

	if res.Winner == nil {
		return nil, nil
	}
	out := res.Winner.Clone()
	return &out, nil
}

// LocalProfile reads the on-device copy only.
func (s *Store) LocalProfile(ctx context.Context) (*models.UserProfile, error) {
	return s.local.Load(ctx)
}

// ClearProfile removes the on-device copy. Cloud copies are left alone.
func (s *Store) ClearProfile(ctx context.Context) error {
	return s.local.Clear(ctx)
}

// HasProfile reports whether an on-device profile exists.
func (s *Store) HasProfile(ctx context.Context) (bool, error) {
	return s.local.Exists(ctx)
}
