// Package config loads the nutrilog configuration file and its environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/sync/conflict"
	"github.com/kimhsiao/nutrilog/backend/internal/sync/s3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NUTRILOG_"

// Defaults applied when a field is left empty.
const (
	DefaultTotalsWindow = 5 * time.Minute
	DefaultAnalysisTTL  = 24 * time.Hour
	DefaultBarcodeTTL   = 30 * 24 * time.Hour
)

// Config holds the application configuration
type Config struct {
	DataDir  string       `yaml:"data_dir,omitempty"`
	UserID   string       `yaml:"user_id"`
	Timezone string       `yaml:"timezone,omitempty"` // IANA name, empty means the system zone
	LogLevel string       `yaml:"log_level,omitempty"`
	Ledger   LedgerConfig `yaml:"ledger,omitempty"`
	Lookup   LookupConfig `yaml:"lookup,omitempty"`
	Cloud    CloudConfig  `yaml:"cloud"`
	Backup   BackupConfig `yaml:"backup,omitempty"`
}

// BackupConfig controls automatic backups.
type BackupConfig struct {
	Dir       string `yaml:"dir,omitempty"`       // default: <data dir>/backups
	Interval  string `yaml:"interval,omitempty"`  // manual, daily, weekly, monthly
	Retention int    `yaml:"retention,omitempty"` // archives to keep, 0 keeps all
	Password  string `yaml:"password,omitempty"`
}

// LedgerConfig tunes the food ledger.
type LedgerConfig struct {
	TotalsWindow time.Duration `yaml:"totals_window,omitempty"` // reuse window for today's totals
}

// LookupConfig sets the nutrition cache lifetimes.
type LookupConfig struct {
	AnalysisTTL time.Duration `yaml:"analysis_ttl,omitempty"`
	BarcodeTTL  time.Duration `yaml:"barcode_ttl,omitempty"`
}

// CloudConfig holds provider credentials. A provider is configured once its
// bucket (and endpoint or account, where needed) is set.
type CloudConfig struct {
	Provider         string      `yaml:"provider,omitempty"`          // first-run selection
	ConflictStrategy string      `yaml:"conflict_strategy,omitempty"` // remote_wins or last_write_wins
	AWS              AWSConfig   `yaml:"aws,omitempty"`
	R2               R2Config    `yaml:"r2,omitempty"`
	MinIO            MinIOConfig `yaml:"minio,omitempty"`
}

// AWSConfig holds Amazon S3 settings.
type AWSConfig struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// R2Config holds Cloudflare R2 settings.
type R2Config struct {
	AccountID string `yaml:"account_id,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// MinIOConfig holds MinIO settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"` // e.g., "localhost:9000"
	Bucket    string `yaml:"bucket,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "reading config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "parsing config file", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// credentials live here
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns ~/.nutrilog/config.yaml, or config.yaml in the
// working directory when there is no home directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".nutrilog", "config.yaml")
}

// LoadEnv reads envFile (when present) into the process environment and then
// applies the NUTRILOG_* overrides. Variables already set are not replaced
// by the file.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return apperrors.Wrap(apperrors.ErrConfigInvalid, "loading env file", err)
		}
	}
	c.applyEnv(os.LookupEnv)
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	set("DATA_DIR", &c.DataDir)
	set("USER_ID", &c.UserID)
	set("TIMEZONE", &c.Timezone)
	set("LOG_LEVEL", &c.LogLevel)
	set("CLOUD_PROVIDER", &c.Cloud.Provider)

	set("AWS_BUCKET", &c.Cloud.AWS.Bucket)
	set("AWS_REGION", &c.Cloud.AWS.Region)
	set("AWS_ACCESS_KEY", &c.Cloud.AWS.AccessKey)
	set("AWS_SECRET_KEY", &c.Cloud.AWS.SecretKey)

	set("R2_ACCOUNT_ID", &c.Cloud.R2.AccountID)
	set("R2_BUCKET", &c.Cloud.R2.Bucket)
	set("R2_ACCESS_KEY", &c.Cloud.R2.AccessKey)
	set("R2_SECRET_KEY", &c.Cloud.R2.SecretKey)

	set("MINIO_ENDPOINT", &c.Cloud.MinIO.Endpoint)
	set("MINIO_BUCKET", &c.Cloud.MinIO.Bucket)
	set("MINIO_ACCESS_KEY", &c.Cloud.MinIO.AccessKey)
	set("MINIO_SECRET_KEY", &c.Cloud.MinIO.SecretKey)

	set("BACKUP_DIR", &c.Backup.Dir)
	set("BACKUP_PASSWORD", &c.Backup.Password)
}

// GetDataDir returns the data directory, defaulting to ~/.nutrilog.
func (c *Config) GetDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Dir(DefaultConfigPath())
}

// GetBackupDir returns the automatic backup directory.
func (c *Config) GetBackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.GetDataDir(), "backups")
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "unknown timezone "+c.Timezone, err)
	}
	return loc, nil
}

// GetTotalsWindow returns the totals reuse window with a default of 5 minutes
func (c *Config) GetTotalsWindow() time.Duration {
	if c.Ledger.TotalsWindow <= 0 {
		return DefaultTotalsWindow
	}
	return c.Ledger.TotalsWindow
}

// GetAnalysisTTL returns the free-text analysis cache lifetime.
func (c *Config) GetAnalysisTTL() time.Duration {
	if c.Lookup.AnalysisTTL <= 0 {
		return DefaultAnalysisTTL
	}
	return c.Lookup.AnalysisTTL
}

// GetBarcodeTTL returns the barcode cache lifetime.
func (c *Config) GetBarcodeTTL() time.Duration {
	if c.Lookup.BarcodeTTL <= 0 {
		return DefaultBarcodeTTL
	}
	return c.Lookup.BarcodeTTL
}

// InitialProvider returns the provider to select on first run.
func (c *Config) InitialProvider() (models.CloudProvider, error) {
	p, err := models.ParseCloudProvider(c.Cloud.Provider)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrConfigInvalid, "cloud.provider", err)
	}
	return p, nil
}

// Strategy returns the profile reconciliation strategy.
func (c *Config) Strategy() conflict.ResolutionStrategy {
	return conflict.ParseStrategy(c.Cloud.ConflictStrategy)
}

// ConfiguredProviders lists the cloud providers with enough settings to build a client.
func (c *Config) ConfiguredProviders() []models.CloudProvider {
	var out []models.CloudProvider
	if c.Cloud.AWS.Bucket != "" {
		out = append(out, models.ProviderAWS)
	}
	if c.Cloud.R2.Bucket != "" && c.Cloud.R2.AccountID != "" {
		out = append(out, models.ProviderR2)
	}
	if c.Cloud.MinIO.Bucket != "" && c.Cloud.MinIO.Endpoint != "" {
		out = append(out, models.ProviderMinIO)
	}
	return out
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, "unknown timezone "+c.Timezone)
	}
	if _, err := c.InitialProvider(); err != nil {
		problems = append(problems, fmt.Sprintf("unknown cloud provider %q", c.Cloud.Provider))
	}
	switch conflict.ResolutionStrategy(c.Cloud.ConflictStrategy) {
	case "", conflict.ResolutionStrategyRemoteWins, conflict.ResolutionStrategyLastWriteWins:
	default:
		problems = append(problems, fmt.Sprintf("unknown conflict strategy %q", c.Cloud.ConflictStrategy))
	}
	if r := c.Cloud.AWS.Region; r != "" && !s3.IsSupportedAWSRegion(r) {
		problems = append(problems, fmt.Sprintf("unsupported AWS region %q", r))
	}
	if id := c.Cloud.R2.AccountID; id != "" && !s3.IsValidR2AccountID(id) {
		problems = append(problems, fmt.Sprintf("invalid R2 account id %q", id))
	}
	switch strings.ToLower(strings.TrimSpace(c.Backup.Interval)) {
	case "", "manual", "daily", "weekly", "monthly":
	default:
		problems = append(problems, fmt.Sprintf("unknown backup interval %q", c.Backup.Interval))
	}
	if c.Backup.Retention < 0 {
		problems = append(problems, "backup.retention cannot be negative")
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}
