// Package session assembles the nutrilog core for one signed-in user.
package session

import (
	"context"
	"time"

	"github.com/kimhsiao/nutrilog/backend/internal/config"
	"github.com/kimhsiao/nutrilog/backend/internal/db"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/export"
	"github.com/kimhsiao/nutrilog/backend/internal/ledger"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/lookup"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/profile"
	"github.com/kimhsiao/nutrilog/backend/internal/sync"
	"github.com/kimhsiao/nutrilog/backend/internal/sync/conflict"
	"github.com/kimhsiao/nutrilog/backend/internal/sync/s3"
)

// NutritionCacheName is the lookup cache holding resolved nutrition records.
const NutritionCacheName = "nutrition"

// Session owns every component of a running nutrilog instance.
type Session struct {
	Config    *config.Config
	DB        *db.DB
	Store     *db.KVStore
	Ledger    *ledger.Ledger
	Profiles  *profile.Store
	Sync      *sync.Coordinator
	Nutrition *lookup.Cache[models.NutritionRecord]
	Lookup    *lookup.Resolver // nil without a pipeline
	Backups   *export.Service

	log *logging.Logger
}

type options struct {
	conn         *db.DB
	pipeline     lookup.Pipeline
	objectStores map[models.CloudProvider]sync.ObjectStore
	now          func() time.Time
	log          *logging.Logger
}

// Option configures Open.
type Option func(*options)

// WithDB uses an already open database instead of the configured data dir.
func WithDB(conn *db.DB) Option {
	return func(o *options) { o.conn = conn }
}

// WithPipeline enables nutrition lookups through p.
func WithPipeline(p lookup.Pipeline) Option {
	return func(o *options) { o.pipeline = p }
}

// WithObjectStores replaces the S3 clients built from configuration.
func WithObjectStores(stores map[models.CloudProvider]sync.ObjectStore) Option {
	return func(o *options) { o.objectStores = stores }
}

// WithClock overrides time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// Open validates cfg and builds a session on top of it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	o := options{now: time.Now, log: logging.Get()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	conn := o.conn
	if conn == nil {
		if conn, err = db.Open(cfg.GetDataDir()); err != nil {
			return nil, err
		}
	}
	kv := db.NewKVStore(conn)
	s := &Session{Config: cfg, DB: conn, Store: kv, log: o.log}

	fail := func(err error) (*Session, error) {
		kv.Close()
		conn.Close()
		return nil, err
	}

	s.Ledger, err = ledger.New(ctx, kv, cfg.UserID,
		ledger.WithClock(o.now),
		ledger.WithLocation(loc),
		ledger.WithTotalsWindow(cfg.GetTotalsWindow()),
		ledger.WithLogger(o.log),
	)
	if err != nil {
		return fail(err)
	}

	local := profile.NewLocal(kv, o.log)
	adapters := s.buildAdapters(ctx, cfg, o.objectStores)
	s.Sync, err = sync.NewCoordinator(ctx, local, kv, adapters,
		sync.WithClock(o.now), sync.WithLogger(o.log))
	if err != nil {
		return fail(err)
	}
	if err := s.applyInitialProvider(ctx); err != nil {
		return fail(err)
	}

	s.Profiles = profile.NewStore(local, s.Sync,
		profile.WithClock(o.now),
		profile.WithLogger(o.log),
		profile.WithResolver(conflict.NewResolver(cfg.Strategy(), o.log)),
	)

	s.Nutrition, err = lookup.NewCache[models.NutritionRecord](ctx, kv, NutritionCacheName,
		lookup.WithClock(o.now), lookup.WithLogger(o.log))
	if err != nil {
		return fail(err)
	}
	if o.pipeline != nil {
		s.Lookup = lookup.NewResolver(s.Nutrition, o.pipeline, cfg.GetAnalysisTTL(), cfg.GetBarcodeTTL(),
			lookup.WithClock(o.now), lookup.WithLogger(o.log))
	}

	s.Backups = export.NewService(s.Ledger, s.Profiles, export.WithClock(o.now), export.WithLogger(o.log))

	o.log.Debug("session opened", map[string]interface{}{
		"user_id":  cfg.UserID,
		"provider": s.Sync.CurrentCloudProvider(),
	})
	return s, nil
}

// buildAdapters creates one adapter per configured provider. A provider whose
// client cannot be built is logged and left out.
func (s *Session) buildAdapters(ctx context.Context, cfg *config.Config, stores map[models.CloudProvider]sync.ObjectStore) map[models.CloudProvider]sync.Adapter {
	accounts := config.NewCredentialAccounts(cfg)
	adapters := make(map[models.CloudProvider]sync.Adapter)

	if stores != nil {
		for p, store := range stores {
			adapters[p] = sync.NewObjectStoreAdapter(p, store, accounts, cfg.UserID)
		}
		return adapters
	}

	for _, p := range cfg.ConfiguredProviders() {
		store, err := newObjectStore(ctx, cfg, p)
		if err != nil {
			s.log.ErrorWithCode("cloud provider unavailable", err, map[string]interface{}{"provider": p})
			continue
		}
		adapters[p] = sync.NewObjectStoreAdapter(p, store, accounts, cfg.UserID)
	}
	return adapters
}

func newObjectStore(ctx context.Context, cfg *config.Config, p models.CloudProvider) (sync.ObjectStore, error) {
	var (
		client *sync.S3Client
		err    error
	)
	switch p {
	case models.ProviderAWS:
		client, err = s3.NewAWSClient(ctx, &s3.AWSConfig{
			BucketName: cfg.Cloud.AWS.Bucket,
			AccessKey:  cfg.Cloud.AWS.AccessKey,
			SecretKey:  cfg.Cloud.AWS.SecretKey,
			Region:     cfg.Cloud.AWS.Region,
		})
	case models.ProviderR2:
		client, err = s3.NewR2Client(ctx, &s3.R2Config{
			AccountID:  cfg.Cloud.R2.AccountID,
			BucketName: cfg.Cloud.R2.Bucket,
			AccessKey:  cfg.Cloud.R2.AccessKey,
			SecretKey:  cfg.Cloud.R2.SecretKey,
		})
	case models.ProviderMinIO:
		client, err = s3.NewMinIOClient(ctx, &s3.MinIOConfig{
			Endpoint:   cfg.Cloud.MinIO.Endpoint,
			BucketName: cfg.Cloud.MinIO.Bucket,
			AccessKey:  cfg.Cloud.MinIO.AccessKey,
			SecretKey:  cfg.Cloud.MinIO.SecretKey,
			UseSSL:     cfg.Cloud.MinIO.UseSSL,
		})
	default:
		return nil, apperrors.Newf(apperrors.ErrProviderUnknown, "unknown cloud provider %q", p)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// applyInitialProvider selects the configured provider on first run, when no
// selection has been persisted yet.
func (s *Session) applyInitialProvider(ctx context.Context) error {
	initial, err := s.Config.InitialProvider()
	if err != nil || initial.IsLocal() {
		return err
	}
	_, found, err := s.Store.Get(ctx, sync.ProviderKey)
	if err != nil || found {
		return err
	}
	if _, err := s.Sync.SetCloudProvider(ctx, initial); err != nil {
		s.log.Warn("configured cloud provider could not be selected", map[string]interface{}{
			"provider": initial,
			"error":    err.Error(),
		})
	}
	return nil
}

// AutoBackup takes a scheduled backup when one is due.
func (s *Session) AutoBackup(ctx context.Context) (*export.ExportResult, bool, error) {
	interval, err := export.ParseInterval(s.Config.Backup.Interval)
	if err != nil {
		return nil, false, err
	}
	return s.Backups.RunIfDue(ctx, export.AutoConfig{
		Dir:       s.Config.GetBackupDir(),
		Interval:  interval,
		Retention: s.Config.Backup.Retention,
		Password:  s.Config.Backup.Password,
	})
}

// Close waits for queued profile pushes, bounded by ctx, then closes storage.
func (s *Session) Close(ctx context.Context) error {
	if err := s.Sync.Flush(ctx); err != nil {
		s.log.Warn("closing with profile pushes still running", map[string]interface{}{
			"pending": s.Sync.Status().Pending,
		})
	}
	if err := s.Store.Close(); err != nil {
		s.log.Error("failed to close statement cache", err)
	}
	return s.DB.Close()
}
