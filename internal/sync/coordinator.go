// Package sync mirrors the user profile to one selectable cloud backend.
package sync

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/nutrilog/backend/internal/db"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// ProviderKey is the blob key holding the selected provider.
const ProviderKey = "cloud_provider"

// StatusAvailabilityUnknown is reported when a provider's account state could not be read.
const StatusAvailabilityUnknown = "could not determine account availability"

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// Status is a snapshot of the coordinator.
type Status struct {
	Provider  models.CloudProvider `json:"provider"`
	State     SyncStatus           `json:"state"`
	Pending   int                  `json:"pending"`
	LastPush  *time.Time           `json:"last_push,omitempty"`
	LastError string               `json:"last_error,omitempty"`
}

// LocalSource reads the on-device profile without touching the network.
type LocalSource interface {
	LoadLocal() (*models.UserProfile, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// Coordinator owns the provider selection and the queues of profile pushes.
// Each provider has its own queue: pushes to one provider run one at a time in
// submission order, and a slow provider never delays another. Adapter errors
// never escape: they are logged and recorded in Status.
type Coordinator struct {
	mu sync.Mutex

	local    LocalSource
	prefs    db.BlobStore
	adapters map[models.CloudProvider]Adapter

	active  models.CloudProvider
	tails   map[models.CloudProvider]*Task // last queued push per provider
	pending int

	state     SyncStatus
	lastPush  *time.Time
	lastError string

	now func() time.Time
	log *logging.Logger
}

// NewCoordinator restores the persisted selection. A stored provider that is
// unknown or has no adapter falls back to local_only.
func NewCoordinator(ctx context.Context, local LocalSource, prefs db.BlobStore, adapters map[models.CloudProvider]Adapter, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		local:    local,
		prefs:    prefs,
		adapters: make(map[models.CloudProvider]Adapter, len(adapters)),
		active:   models.ProviderLocalOnly,
		tails:    make(map[models.CloudProvider]*Task),
		state:    SyncStatusIdle,
		now:      time.Now,
		log:      logging.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for p, a := range adapters {
		if p.IsValid() && !p.IsLocal() && a != nil {
			c.adapters[p] = a
		}
	}

	raw, found, err := prefs.Get(ctx, ProviderKey)
	if err != nil {
		return nil, err
	}
	if found {
		stored, perr := models.ParseCloudProvider(strings.TrimSpace(string(raw)))
		switch {
		case perr != nil:
			c.log.Warn("ignoring unknown stored cloud provider", map[string]interface{}{"stored": string(raw)})
		case !stored.IsLocal() && c.adapters[stored] == nil:
			c.log.Warn("stored cloud provider is not configured, using local only", map[string]interface{}{"provider": stored})
		default:
			c.active = stored
		}
	}
	return c, nil
}

// CurrentCloudProvider returns the active provider.
func (c *Coordinator) CurrentCloudProvider() models.CloudProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ConfiguredProviders lists local_only plus every provider with an adapter.
func (c *Coordinator) ConfiguredProviders() []models.CloudProvider {
	out := []models.CloudProvider{models.ProviderLocalOnly}
	for _, p := range models.CloudProviders() {
		if _, ok := c.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SetCloudProvider makes target the active provider and, for a cloud target,
// pushes the current local profile to it. The previous provider's copy is
// left in place. The returned task is nil when nothing is pushed.
func (c *Coordinator) SetCloudProvider(ctx context.Context, target models.CloudProvider) (*Task, error) {
	if !target.IsValid() {
		return nil, apperrors.Newf(apperrors.ErrProviderUnknown, "unknown cloud provider %q", target)
	}
	if !target.IsLocal() {
		if _, ok := c.adapters[target]; !ok {
			return nil, apperrors.Newf(apperrors.ErrProviderNotConfigured, "%s is not configured", target.DisplayName())
		}
	}

	if err := c.prefs.Put(ctx, ProviderKey, []byte(target)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	previous := c.active
	c.active = target
	c.mu.Unlock()

	c.log.Info("cloud provider selected", map[string]interface{}{
		"provider": target,
		"previous": previous,
	})

	if target.IsLocal() {
		return nil, nil
	}

	profile, err := c.local.LoadLocal()
	if err != nil {
		c.log.Error("failed to read local profile for initial push", err, map[string]interface{}{"provider": target})
		return nil, nil
	}
	if profile == nil {
		return nil, nil
	}
	return c.enqueue(target, *profile), nil
}

// Mirror schedules a push of profile to the active provider. It returns nil
// under local_only.
func (c *Coordinator) Mirror(profile models.UserProfile) *Task {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if active.IsLocal() {
		return nil
	}
	return c.enqueue(active, profile.Clone())
}

func (c *Coordinator) enqueue(provider models.CloudProvider, profile models.UserProfile) *Task {
	adapter := c.adapters[provider]
	t := newTask(provider)

	c.mu.Lock()
	prev := c.tails[provider]
	c.tails[provider] = t
	c.pending++
	c.state = SyncStatusSyncing
	c.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev.done
		}
		started := c.now()
		err := adapter.Save(context.Background(), profile)
		c.finish(t, PushResult{
			Provider: provider,
			Started:  started,
			Finished: c.now(),
			Err:      err,
		})
	}()
	return t
}

func (c *Coordinator) finish(t *Task, r PushResult) {
	c.mu.Lock()
	c.pending--
	if c.tails[r.Provider] == t {
		delete(c.tails, r.Provider)
	}
	r.Discarded = c.active != r.Provider
	if !r.Discarded {
		if r.Err != nil {
			c.state = SyncStatusFailed
			c.lastError = r.Err.Error()
		} else {
			finished := r.Finished
			c.lastPush = &finished
			c.lastError = ""
			c.state = SyncStatusIdle
		}
	}
	if c.pending == 0 && c.state == SyncStatusSyncing {
		c.state = SyncStatusIdle
	}
	c.mu.Unlock()

	fields := map[string]interface{}{
		"provider":    r.Provider,
		"duration_ms": r.Finished.Sub(r.Started).Milliseconds(),
	}
	switch {
	case r.Err != nil:
		c.log.ErrorWithCode("profile push failed", r.Err, fields)
	case r.Discarded:
		c.log.Debug("profile push finished for inactive provider, discarded", fields)
	default:
		c.log.Debug("profile pushed", fields)
	}
	t.finish(r)
}

// Flush waits until every push submitted so far, to any provider, has finished.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	tails := make([]*Task, 0, len(c.tails))
	for _, t := range c.tails {
		tails = append(tails, t)
	}
	c.mu.Unlock()

	for _, t := range tails {
		if _, err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// flushProvider waits for the pushes already queued for provider.
func (c *Coordinator) flushProvider(ctx context.Context, provider models.CloudProvider) error {
	c.mu.Lock()
	tail := c.tails[provider]
	c.mu.Unlock()
	if tail == nil {
		return nil
	}
	_, err := tail.Wait(ctx)
	return err
}

// Fetch reads the active provider's copy. It reports false under local_only,
// when the backend holds nothing, or when the read failed. Pushes already
// queued for the active provider are awaited first so a stale remote never
// wins; pushes to other providers are not waited for.
func (c *Coordinator) Fetch(ctx context.Context) (*models.UserProfile, bool) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active.IsLocal() {
		return nil, false
	}

	if err := c.flushProvider(ctx, active); err != nil {
		c.mu.Lock()
		c.lastError = "remote read skipped, pushes still running: " + err.Error()
		c.mu.Unlock()
		c.log.Warn("pending pushes did not finish, using local copy", map[string]interface{}{
			"provider": active,
			"error":    err.Error(),
		})
		return nil, false
	}

	p, err := c.adapters[active].Load(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		c.log.ErrorWithCode("failed to load remote profile, using local copy", err, map[string]interface{}{"provider": active})
		return nil, false
	}
	if p == nil {
		return nil, false
	}
	return p, true
}

// AvailableCloudProviders returns local_only plus every configured provider
// the user can use right now. Providers whose availability cannot be read are
// left out and the returned message says so.
func (c *Coordinator) AvailableCloudProviders(ctx context.Context) ([]models.CloudProvider, string) {
	candidates := c.ConfiguredProviders()[1:]
	available := make([]bool, len(candidates))
	failed := make([]error, len(candidates))

	// A failed check does not cancel the others; every provider is asked.
	var g errgroup.Group
	for i, p := range candidates {
		i, p := i, p
		g.Go(func() error {
			ok, err := c.adapters[p].IsAvailable(ctx)
			available[i] = ok
			failed[i] = err
			return err
		})
	}

	message := ""
	if err := g.Wait(); err != nil {
		message = StatusAvailabilityUnknown
	}

	out := []models.CloudProvider{models.ProviderLocalOnly}
	for i, p := range candidates {
		if failed[i] != nil {
			c.log.Warn(StatusAvailabilityUnknown, map[string]interface{}{
				"provider": p,
				"error":    failed[i].Error(),
			})
			continue
		}
		if available[i] {
			out = append(out, p)
		}
	}
	return out, message
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Provider:  c.active,
		State:     c.state,
		Pending:   c.pending,
		LastError: c.lastError,
	}
	if c.lastPush != nil {
		t := *c.lastPush
		s.LastPush = &t
	}
	return s
}
