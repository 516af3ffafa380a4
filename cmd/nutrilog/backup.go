package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/export"
	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

var (
	backupOutput    string
	backupPassword  string
	backupOverwrite bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export and import the ledger and profile",
}

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a backup archive",
	RunE:  runBackupExport,
}

var backupImportCmd = &cobra.Command{
	Use:   "import <archive>",
	Short: "Restore entries (and optionally the profile) from an archive",
	Long: `Imports entries missing from the ledger. Entries with an ID already present
are skipped. The profile is restored only when none exists locally, or with
--overwrite-profile.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupImport,
}

var backupAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Take a scheduled backup if one is due",
	RunE:  runBackupAuto,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives in the backup directory",
	RunE:  runBackupList,
}

func init() {
	backupExportCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Archive path (default: backup dir with a timestamped name)")
	backupExportCmd.Flags().StringVar(&backupPassword, "password", "", "Encrypt the archive (default: backup.password from config)")
	backupImportCmd.Flags().StringVar(&backupPassword, "password", "", "Password of an encrypted archive (default: backup.password from config)")
	backupImportCmd.Flags().BoolVar(&backupOverwrite, "overwrite-profile", false, "Replace the local profile with the archived one")

	backupCmd.AddCommand(backupExportCmd, backupImportCmd, backupAutoCmd, backupListCmd)
	rootCmd.AddCommand(backupCmd)
}

func password(s *session.Session) string {
	if backupPassword != "" {
		return backupPassword
	}
	return s.Config.Backup.Password
}

func runBackupExport(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		path := backupOutput
		if path == "" {
			path = filepath.Join(s.Config.GetBackupDir(), export.DefaultFileName(time.Now()))
		}
		res, err := s.Backups.Export(ctx, &export.ExportConfig{OutputPath: path, Password: password(s)})
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		printExport(cmd, res)
		return nil
	})
}

func printExport(cmd *cobra.Command, res *export.ExportResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s (%s)\n", res.FilePath, humanize.Bytes(uint64(res.SizeBytes)))
	fmt.Fprintf(out, "Entries: %s, profile: %t, encrypted: %t\n",
		humanize.Comma(int64(res.EntryCount)), res.HasProfile, res.Encrypted)
}

func runBackupImport(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		res, err := s.Backups.Import(ctx, &export.ImportConfig{
			ArchivePath:      args[0],
			Password:         password(s),
			OverwriteProfile: backupOverwrite,
		})
		if err != nil {
			return fmt.Errorf("importing: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %s entries, skipped %s\n",
			humanize.Comma(int64(res.ImportedCount)), humanize.Comma(int64(res.SkippedCount)))
		if res.ProfileRestored {
			fmt.Fprintln(out, "Profile restored")
		}
		return nil
	})
}

func runBackupAuto(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		res, ran, err := s.AutoBackup(ctx)
		if err != nil {
			return fmt.Errorf("automatic backup: %w", err)
		}
		if !ran {
			fmt.Fprintln(cmd.OutOrStdout(), "No backup due")
			return nil
		}
		printExport(cmd, res)
		return nil
	})
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.GetBackupDir()
	archives, err := export.ListArchives(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(archives) == 0 {
		fmt.Fprintf(out, "No backups in %s\n", dir)
		return nil
	}
	for _, a := range archives {
		fmt.Fprintf(out, "%-40s  %10s  %s\n", filepath.Base(a.Path), humanize.Bytes(uint64(a.SizeBytes)), humanize.Time(a.CreatedAt))
	}
	return nil
}
