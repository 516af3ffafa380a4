package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/nutrilog/backend/internal/db"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/ledger"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/profile"
)

var exportTime = time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

type fixture struct {
	ledger   *ledger.Ledger
	profiles *profile.Store
	service  *Service
}

func newFixture(t *testing.T, userID string, now time.Time) *fixture {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	kv := db.NewKVStore(conn)
	t.Cleanup(func() {
		kv.Close()
		conn.Close()
	})

	log := logging.New(&bytes.Buffer{}, logging.LevelDebug)
	clock := func() time.Time { return now }
	l, err := ledger.New(context.Background(), kv, userID,
		ledger.WithClock(clock), ledger.WithLocation(time.UTC), ledger.WithLogger(log))
	require.NoError(t, err)
	store := profile.NewStore(profile.NewLocal(kv, log), nil, profile.WithClock(clock), profile.WithLogger(log))

	return &fixture{
		ledger:   l,
		profiles: store,
		service:  NewService(l, store, WithClock(clock), WithLogger(log)),
	}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"oats", "coffee", "salad"} {
		_, err := f.ledger.AddEntry(ctx, models.FoodEntry{
			Nutrition:   models.NutritionSnapshot{Name: name, Calories: 100},
			InputMethod: models.InputManual,
		})
		require.NoError(t, err)
	}
	_, err := f.profiles.SaveProfile(ctx, models.UserProfile{ID: "u1", FirstName: "Ana", Age: 30, HeightCm: 165, WeightKg: 60})
	require.NoError(t, err)
}

func TestExportImport_roundTrip(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t, "u1", exportTime)
	src.seed(t)

	path := filepath.Join(t.TempDir(), "backup.tar.gz")
	res, err := src.service.Export(ctx, &ExportConfig{OutputPath: path})
	require.NoError(t, err)
	assert.Equal(t, 3, res.EntryCount)
	assert.True(t, res.HasProfile)
	assert.False(t, res.Encrypted)
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")

	dst := newFixture(t, "u1", exportTime.Add(time.Hour))
	imported, err := dst.service.Import(ctx, &ImportConfig{ArchivePath: path})
	require.NoError(t, err)
	assert.Equal(t, 3, imported.ImportedCount)
	assert.Equal(t, 0, imported.SkippedCount)
	assert.True(t, imported.ProfileRestored)

	assert.Equal(t, src.ledger.All(), dst.ledger.All())
	p, err := dst.profiles.LocalProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.FirstName)

	// a second import changes nothing
	again, err := dst.service.Import(ctx, &ImportConfig{ArchivePath: path})
	require.NoError(t, err)
	assert.Equal(t, 0, again.ImportedCount)
	assert.Equal(t, 3, again.SkippedCount)
	assert.False(t, again.ProfileRestored)
}

func TestExportImport_encrypted(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t, "u1", exportTime)
	src.seed(t)
	path := filepath.Join(t.TempDir(), "sealed.tar.gz")

	_, err := src.service.Export(ctx, &ExportConfig{OutputPath: path, Password: "short"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	res, err := src.service.Export(ctx, &ExportConfig{OutputPath: path, Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.True(t, res.Encrypted)

	dst := newFixture(t, "u1", exportTime)
	_, err = dst.service.Import(ctx, &ImportConfig{ArchivePath: path})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = dst.service.Import(ctx, &ImportConfig{ArchivePath: path, Password: "wrong-password"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, 0, dst.ledger.Len())

	imported, err := dst.service.Import(ctx, &ImportConfig{ArchivePath: path, Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.Equal(t, 3, imported.ImportedCount)
}

func TestImport_rejectsForeignArchive(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t, "u1", exportTime)
	src.seed(t)
	path := filepath.Join(t.TempDir(), "b.tar.gz")
	_, err := src.service.Export(ctx, &ExportConfig{OutputPath: path})
	require.NoError(t, err)

	dst := newFixture(t, "someone-else", exportTime)
	_, err = dst.service.Import(ctx, &ImportConfig{ArchivePath: path})
	assert.True(t, apperrors.Is(err, apperrors.ErrForeignUserData))
	assert.Equal(t, 0, dst.ledger.Len())
}

func TestImport_keepsExistingProfileUnlessOverwrite(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t, "u1", exportTime)
	src.seed(t)
	path := filepath.Join(t.TempDir(), "b.tar.gz")
	_, err := src.service.Export(ctx, &ExportConfig{OutputPath: path})
	require.NoError(t, err)

	dst := newFixture(t, "u1", exportTime)
	_, err = dst.profiles.SaveProfile(ctx, models.UserProfile{ID: "u1", FirstName: "Bea", Age: 40, HeightCm: 170, WeightKg: 70})
	require.NoError(t, err)

	res, err := dst.service.Import(ctx, &ImportConfig{ArchivePath: path})
	require.NoError(t, err)
	assert.False(t, res.ProfileRestored)
	p, _ := dst.profiles.LocalProfile(ctx)
	assert.Equal(t, "Bea", p.FirstName)

	res, err = dst.service.Import(ctx, &ImportConfig{ArchivePath: path, OverwriteProfile: true})
	require.NoError(t, err)
	assert.True(t, res.ProfileRestored)
	p, _ = dst.profiles.LocalProfile(ctx)
	assert.Equal(t, "Ana", p.FirstName)
}

func TestImport_detectsTampering(t *testing.T) {
	ctx := context.Background()
	members := map[string][]byte{
		entriesFile:  []byte(`[]`),
		manifestFile: []byte(`{"version":"1","user_id":"u1","checksums":{"entries.json":"deadbeef"}}`),
	}
	archive, err := writeArchive(members, exportTime)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tampered.tar.gz")
	require.NoError(t, os.WriteFile(path, archive, 0600))

	f := newFixture(t, "u1", exportTime)
	_, err = f.service.Import(ctx, &ImportConfig{ArchivePath: path})
	assert.True(t, apperrors.Is(err, apperrors.ErrCorruptedState))
}

func TestImport_errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", exportTime)
	dir := t.TempDir()

	_, err := f.service.Import(ctx, &ImportConfig{ArchivePath: filepath.Join(dir, "missing.tar.gz")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	garbage := filepath.Join(dir, "garbage.tar.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not an archive"), 0600))
	_, err = f.service.Import(ctx, &ImportConfig{ArchivePath: garbage})
	assert.True(t, apperrors.Is(err, apperrors.ErrCorruptedState))

	noManifest, err := writeArchive(map[string][]byte{entriesFile: []byte(`[]`)}, exportTime)
	require.NoError(t, err)
	path := filepath.Join(dir, "nomanifest.tar.gz")
	require.NoError(t, os.WriteFile(path, noManifest, 0600))
	_, err = f.service.Import(ctx, &ImportConfig{ArchivePath: path})
	assert.True(t, apperrors.Is(err, apperrors.ErrCorruptedState))
}

func TestExport_emptyLedgerWithoutProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "u1", exportTime)
	dir := t.TempDir()

	res, err := f.service.Export(ctx, &ExportConfig{OutputPath: filepath.Join(dir, DefaultFileName(exportTime))})
	require.NoError(t, err)
	assert.Equal(t, 0, res.EntryCount)
	assert.False(t, res.HasProfile)
	assert.Equal(t, "nutrilog_20260402_083000.tar.gz", filepath.Base(res.FilePath))
}
