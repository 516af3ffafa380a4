package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
	_ "time/tzdata"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/sync/conflict"
)

func TestLoad_missingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UserID != "" || cfg.GetTotalsWindow() != DefaultTotalsWindow {
		t.Errorf("Load() = %+v, want empty config", cfg)
	}
}

func TestLoad_parsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
user_id: u-123
timezone: Europe/Lisbon
log_level: debug
ledger:
  totals_window: 2m
lookup:
  analysis_ttl: 1h
cloud:
  provider: minio
  conflict_strategy: last_write_wins
  minio:
    endpoint: localhost:9000
    bucket: profiles
    access_key: minio
    secret_key: minio123
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UserID != "u-123" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if got := cfg.GetTotalsWindow(); got != 2*time.Minute {
		t.Errorf("GetTotalsWindow() = %v, want 2m", got)
	}
	if got := cfg.GetAnalysisTTL(); got != time.Hour {
		t.Errorf("GetAnalysisTTL() = %v, want 1h", got)
	}
	if got := cfg.GetBarcodeTTL(); got != DefaultBarcodeTTL {
		t.Errorf("GetBarcodeTTL() = %v, want default", got)
	}
	if got := cfg.Strategy(); got != conflict.ResolutionStrategyLastWriteWins {
		t.Errorf("Strategy() = %v", got)
	}
	p, err := cfg.InitialProvider()
	if err != nil || p != models.ProviderMinIO {
		t.Errorf("InitialProvider() = %v, %v", p, err)
	}
	if got := cfg.ConfiguredProviders(); !reflect.DeepEqual(got, []models.CloudProvider{models.ProviderMinIO}) {
		t.Errorf("ConfiguredProviders() = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("user_id: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("Load() error = %v, want CONFIG_INVALID", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := &Config{
		UserID: "u1",
		Ledger: LedgerConfig{TotalsWindow: 90 * time.Second},
		Cloud: CloudConfig{
			AWS: AWSConfig{Bucket: "b", Region: "eu-west-1"},
		},
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{UserID: "file-user", Cloud: CloudConfig{AWS: AWSConfig{Bucket: "file-bucket"}}}
	env := map[string]string{
		"NUTRILOG_USER_ID":        "env-user",
		"NUTRILOG_AWS_ACCESS_KEY": "AKIA",
		"NUTRILOG_AWS_SECRET_KEY": "secret",
		"NUTRILOG_R2_BUCKET":      "",
	}
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.UserID != "env-user" {
		t.Errorf("UserID = %q, want env-user", cfg.UserID)
	}
	if cfg.Cloud.AWS.Bucket != "file-bucket" {
		t.Errorf("Bucket = %q, want file value kept", cfg.Cloud.AWS.Bucket)
	}
	if cfg.Cloud.AWS.AccessKey != "AKIA" || cfg.Cloud.AWS.SecretKey != "secret" {
		t.Errorf("AWS keys not applied: %+v", cfg.Cloud.AWS)
	}
}

func TestLoadEnv_file(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("NUTRILOG_MINIO_SECRET_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NUTRILOG_MINIO_SECRET_KEY", "")
	os.Unsetenv("NUTRILOG_MINIO_SECRET_KEY")

	cfg := &Config{}
	if err := cfg.LoadEnv(envFile); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Cloud.MinIO.SecretKey != "from-file" {
		t.Errorf("SecretKey = %q, want from-file", cfg.Cloud.MinIO.SecretKey)
	}

	if err := (&Config{}).LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadEnv(missing) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal", Config{UserID: "u1"}, false},
		{"no user", Config{}, true},
		{"bad timezone", Config{UserID: "u1", Timezone: "Mars/Olympus"}, true},
		{"bad provider", Config{UserID: "u1", Cloud: CloudConfig{Provider: "dropbox"}}, true},
		{"provider alias", Config{UserID: "u1", Cloud: CloudConfig{Provider: "r2"}}, false},
		{"bad strategy", Config{UserID: "u1", Cloud: CloudConfig{ConflictStrategy: "merge"}}, true},
		{"bad region", Config{UserID: "u1", Cloud: CloudConfig{AWS: AWSConfig{Region: "moon-1"}}}, true},
		{"bad r2 account", Config{UserID: "u1", Cloud: CloudConfig{R2: R2Config{AccountID: "xyz"}}}, true},
		{"backup weekly", Config{UserID: "u1", Backup: BackupConfig{Interval: "weekly", Retention: 4}}, false},
		{"bad backup interval", Config{UserID: "u1", Backup: BackupConfig{Interval: "hourly"}}, true},
		{"negative retention", Config{UserID: "u1", Backup: BackupConfig{Retention: -1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Validate() code = %v, want CONFIG_INVALID", apperrors.CodeOf(err))
			}
		})
	}
}

func TestLocation(t *testing.T) {
	loc, err := (&Config{}).Location()
	if err != nil || loc != time.Local {
		t.Errorf("Location() = %v, %v; want time.Local", loc, err)
	}
	loc, err = (&Config{Timezone: "Asia/Tokyo"}).Location()
	if err != nil || loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestCredentialAccounts_SignedIn(t *testing.T) {
	cfg := &Config{Cloud: CloudConfig{
		AWS:   AWSConfig{Bucket: "b"},
		R2:    R2Config{AccessKey: "k", SecretKey: "s"},
		MinIO: MinIOConfig{AccessKey: "only-access"},
	}}
	accounts := NewCredentialAccounts(cfg)
	ctx := context.Background()

	tests := []struct {
		provider models.CloudProvider
		want     bool
		wantCode apperrors.ErrorCode
	}{
		{models.ProviderLocalOnly, true, ""},
		{models.ProviderAWS, true, ""},
		{models.ProviderR2, true, ""},
		{models.ProviderMinIO, false, apperrors.ErrConfigInvalid},
		{models.CloudProvider("dropbox"), false, apperrors.ErrProviderUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			got, err := accounts.SignedIn(ctx, tt.provider)
			if got != tt.want {
				t.Errorf("SignedIn() = %v, want %v", got, tt.want)
			}
			if tt.wantCode == "" && err != nil {
				t.Errorf("SignedIn() error = %v", err)
			}
			if tt.wantCode != "" && !apperrors.Is(err, tt.wantCode) {
				t.Errorf("SignedIn() error = %v, want %s", err, tt.wantCode)
			}
		})
	}

	cfg.Cloud.AWS.Bucket = ""
	if ok, _ := accounts.SignedIn(ctx, models.ProviderAWS); ok {
		t.Error("AWS without bucket or keys should not be signed in")
	}
}

func TestGetBackupDir(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/nutrilog"}
	if got := cfg.GetBackupDir(); got != filepath.Join("/var/lib/nutrilog", "backups") {
		t.Errorf("GetBackupDir() = %q", got)
	}
	cfg.Backup.Dir = "/mnt/backups"
	if got := cfg.GetBackupDir(); got != "/mnt/backups" {
		t.Errorf("GetBackupDir() = %q", got)
	}
}
