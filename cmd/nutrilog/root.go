// Command nutrilog is the command-line front end of the nutrilog core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/config"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

// Version is set at build time
var Version = "0.1.0"

const (
	// closeTimeout bounds how long exit waits for queued profile pushes.
	closeTimeout = 15 * time.Second
	// loadTimeout bounds the cloud read of profile show; past it the local copy is used.
	loadTimeout = 10 * time.Second
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "nutrilog",
	Short: "Log meals and track nutrition from the terminal",
	Long: `nutrilog keeps a local food ledger and user profile in SQLite and can
mirror the profile to Amazon S3, Cloudflare R2 or MinIO.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.nutrilog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with NUTRILOG_* overrides")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file, applies environment overrides and
// initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadEnv(envFile); err != nil {
		return nil, err
	}
	logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// withSession opens a session, runs fn and closes the session again.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := session.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening nutrilog data: %w", err)
	}
	runErr := fn(ctx, s)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.Close(closeCtx); err != nil && runErr == nil {
		return fmt.Errorf("closing nutrilog data: %w", err)
	}
	return runErr
}
