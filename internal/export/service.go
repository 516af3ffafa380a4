// Package export writes and restores portable backups of the profile and food ledger.
package export

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kimhsiao/nutrilog/backend/internal/crypto"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/sync"
)

// FormatVersion is written to every manifest.
const FormatVersion = "1"

// Archive member names.
const (
	manifestFile = "manifest.json"
	profileFile  = "profile.json"
	entriesFile  = "entries.json"
)

// maxMemberSize caps a single archive member on import.
const maxMemberSize = 64 << 20

// Entries is the ledger surface a backup needs.
type Entries interface {
	UserID() string
	All() []models.FoodEntry
	Entry(id string) (models.FoodEntry, bool)
	AddEntry(ctx context.Context, entry models.FoodEntry) (models.FoodEntry, error)
}

// Profiles is the profile surface a backup needs.
type Profiles interface {
	LocalProfile(ctx context.Context) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, p models.UserProfile) (*sync.Task, error)
}

// Service provides export/import functionality.
type Service struct {
	entries  Entries
	profiles Profiles
	now      func() time.Time
	log      *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a new Service.
func NewService(entries Entries, profiles Profiles, opts ...Option) *Service {
	s := &Service{entries: entries, profiles: profiles, now: time.Now, log: logging.Get()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportConfig holds export configuration.
type ExportConfig struct {
	OutputPath string
	Password   string // empty means unencrypted
}

// ImportConfig holds import configuration.
type ImportConfig struct {
	ArchivePath      string
	Password         string
	OverwriteProfile bool // replace an existing local profile
}

// Manifest describes an archive's contents.
type Manifest struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	UserID     string            `json:"user_id"`
	EntryCount int               `json:"entry_count"`
	HasProfile bool              `json:"has_profile"`
	Checksums  map[string]string `json:"checksums"` // member name -> sha256 hex
}

// ExportResult represents the result of an export operation.
type ExportResult struct {
	FilePath   string
	SizeBytes  int64
	EntryCount int
	HasProfile bool
	Encrypted  bool
	Duration   time.Duration
}

// ImportResult represents the result of an import operation.
type ImportResult struct {
	ImportedCount   int
	SkippedCount    int
	ProfileRestored bool
	Duration        time.Duration
}

// DefaultFileName returns the archive name used for a backup taken at t.
func DefaultFileName(t time.Time) string {
	return fmt.Sprintf("nutrilog_%s.tar.gz", t.UTC().Format("20060102_150405"))
}

// Export writes the profile and every ledger entry to an archive.
func (s *Service) Export(ctx context.Context, config *ExportConfig) (*ExportResult, error) {
	start := s.now()

	if config.Password != "" {
		if err := crypto.ValidatePassword(config.Password); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "backup password", err)
		}
	}

	members := make(map[string][]byte)
	manifest := Manifest{
		Version:    FormatVersion,
		ExportedAt: start.UTC(),
		UserID:     s.entries.UserID(),
		Checksums:  make(map[string]string),
	}

	entries := s.entries.All()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode entries", err)
	}
	members[entriesFile] = data
	manifest.EntryCount = len(entries)

	profile, err := s.profiles.LocalProfile(ctx)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		data, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "encode profile", err)
		}
		members[profileFile] = data
		manifest.HasProfile = true
	}

	for name, data := range members {
		manifest.Checksums[name] = checksum(data)
	}
	data, err = json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode manifest", err)
	}
	members[manifestFile] = data

	archive, err := writeArchive(members, start)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "build archive", err)
	}
	if config.Password != "" {
		if archive, err = crypto.Seal(archive, config.Password); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "encrypt archive", err)
		}
	}

	path := config.OutputPath
	if path == "" {
		path = DefaultFileName(start)
	}
	if err := writeFileAtomic(path, archive); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "write archive", err)
	}

	result := &ExportResult{
		FilePath:   path,
		SizeBytes:  int64(len(archive)),
		EntryCount: manifest.EntryCount,
		HasProfile: manifest.HasProfile,
		Encrypted:  config.Password != "",
		Duration:   s.now().Sub(start),
	}
	s.log.Info("backup written", map[string]interface{}{
		"file":        result.FilePath,
		"size_bytes":  result.SizeBytes,
		"entry_count": result.EntryCount,
		"encrypted":   result.Encrypted,
	})
	return result, nil
}

// Import restores an archive. Entries whose ID already exists are skipped;
// the profile is restored when none exists locally or OverwriteProfile is set.
func (s *Service) Import(ctx context.Context, config *ImportConfig) (*ImportResult, error) {
	start := s.now()

	raw, err := os.ReadFile(config.ArchivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "backup archive", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "read archive", err)
	}

	if crypto.IsSealed(raw) {
		if config.Password == "" {
			return nil, apperrors.New(apperrors.ErrValidation, "archive is encrypted, a password is required")
		}
		if raw, err = crypto.Open(raw, config.Password); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "decrypt archive", err)
		}
	}

	members, err := readArchive(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptedState, "read archive", err)
	}
	manifest, err := verify(members)
	if err != nil {
		return nil, err
	}
	if manifest.UserID != s.entries.UserID() {
		return nil, apperrors.Newf(apperrors.ErrForeignUserData, "archive belongs to %q", manifest.UserID)
	}

	var entries []models.FoodEntry
	if err := json.Unmarshal(members[entriesFile], &entries); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptedState, "decode entries", err)
	}

	result := &ImportResult{}
	for _, e := range entries {
		if _, exists := s.entries.Entry(e.ID); exists {
			result.SkippedCount++
			continue
		}
		if _, err := s.entries.AddEntry(ctx, e); err != nil {
			if apperrors.Is(err, apperrors.ErrDatabase) {
				return nil, err
			}
			s.log.Warn("skipping backup entry", map[string]interface{}{"id": e.ID, "error": err.Error()})
			result.SkippedCount++
			continue
		}
		result.ImportedCount++
	}

	if manifest.HasProfile {
		restored, err := s.restoreProfile(ctx, members[profileFile], config.OverwriteProfile)
		if err != nil {
			return nil, err
		}
		result.ProfileRestored = restored
	}

	result.Duration = s.now().Sub(start)
	s.log.Info("backup restored", map[string]interface{}{
		"file":             config.ArchivePath,
		"imported":         result.ImportedCount,
		"skipped":          result.SkippedCount,
		"profile_restored": result.ProfileRestored,
	})
	return result, nil
}

func (s *Service) restoreProfile(ctx context.Context, data []byte, overwrite bool) (bool, error) {
	var p models.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return false, apperrors.Wrap(apperrors.ErrCorruptedState, "decode profile", err)
	}
	if !overwrite {
		existing, err := s.profiles.LocalProfile(ctx)
		if err != nil {
			return false, err
		}
		if existing != nil {
			return false, nil
		}
	}
	if _, err := s.profiles.SaveProfile(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// verify checks the manifest and every checksum it lists.
func verify(members map[string][]byte) (*Manifest, error) {
	data, ok := members[manifestFile]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCorruptedState, "archive has no manifest")
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptedState, "decode manifest", err)
	}
	if manifest.Version != FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrCorruptedState, "unsupported backup version %q", manifest.Version)
	}

	required := []string{entriesFile}
	if manifest.HasProfile {
		required = append(required, profileFile)
	}
	for _, name := range required {
		member, ok := members[name]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrCorruptedState, "archive is missing %s", name)
		}
		if manifest.Checksums[name] != checksum(member) {
			return nil, apperrors.Newf(apperrors.ErrCorruptedState, "checksum mismatch for %s", name)
		}
	}
	return &manifest, nil
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// writeArchive packs members into a gzipped tar, manifest first.
func writeArchive(members map[string][]byte, modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for _, name := range []string{manifestFile, profileFile, entriesFile} {
		data, ok := members[name]
		if !ok {
			continue
		}
		header := &tar.Header{
			Name:    name,
			Mode:    0600,
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readArchive unpacks regular files from a gzipped tar into memory.
func readArchive(data []byte) (map[string][]byte, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	members := make(map[string][]byte)
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Size > maxMemberSize {
			return nil, fmt.Errorf("%s is too large (%d bytes)", header.Name, header.Size)
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxMemberSize))
		if err != nil {
			return nil, err
		}
		members[filepath.Base(header.Name)] = content
	}
	return members, nil
}

// writeFileAtomic writes to a temporary sibling and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
