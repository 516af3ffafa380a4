package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the nutrition lookup cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many lookups are cached",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached lookup",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Cached lookups: %s\n", humanize.Comma(int64(s.Nutrition.Len())))
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		n := s.Nutrition.Len()
		if err := s.Nutrition.Purge(ctx); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s cached lookups\n", humanize.Comma(int64(n)))
		return nil
	})
}
