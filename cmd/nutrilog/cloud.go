package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Choose where the profile is mirrored",
}

var cloudListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers and whether you can use them",
	RunE:  runCloudList,
}

var cloudUseCmd = &cobra.Command{
	Use:   "use <provider>",
	Short: "Select the provider (local, aws, r2, minio)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCloudUse,
}

var cloudStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync state",
	RunE:  runCloudStatus,
}

func init() {
	cloudCmd.AddCommand(cloudListCmd, cloudUseCmd, cloudStatusCmd)
	rootCmd.AddCommand(cloudCmd)
}

func runCloudList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		available, message := s.Sync.AvailableCloudProviders(ctx)
		usable := make(map[models.CloudProvider]bool, len(available))
		for _, p := range available {
			usable[p] = true
		}
		current := s.Sync.CurrentCloudProvider()

		out := cmd.OutOrStdout()
		for _, p := range s.Sync.ConfiguredProviders() {
			marker := " "
			if p == current {
				marker = "*"
			}
			state := "signed in"
			if !usable[p] {
				state = "not signed in"
			}
			if p.IsLocal() {
				state = "always available"
			}
			fmt.Fprintf(out, "%s %-10s  %-22s  %s\n", marker, p, p.DisplayName(), state)
		}
		if message != "" {
			fmt.Fprintln(out, message)
		}
		return nil
	})
}

func runCloudUse(cmd *cobra.Command, args []string) error {
	target, err := models.ParseCloudProvider(args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		task, err := s.Sync.SetCloudProvider(ctx, target)
		if err != nil {
			return fmt.Errorf("selecting %s: %w", target, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Profile sync: %s\n", target.DisplayName())
		reportPush(ctx, out, task)
		return nil
	})
}

func runCloudStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		st := s.Sync.Status()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Provider:  %s\n", st.Provider.DisplayName())
		fmt.Fprintf(out, "State:     %s\n", st.State)
		fmt.Fprintf(out, "Pending:   %d\n", st.Pending)
		if st.LastPush != nil {
			fmt.Fprintf(out, "Last push: %s\n", humanize.Time(*st.LastPush))
		}
		if st.LastError != "" {
			fmt.Fprintf(out, "Error:     %s\n", st.LastError)
		}
		return nil
	})
}
