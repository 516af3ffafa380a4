package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

var (
	topLimit    int
	historyDays int
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's entries and totals",
	RunE:  runToday,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Statistics over the whole ledger",
}

var statsStreakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Consecutive days with at least one entry",
	RunE:  runStatsStreak,
}

var statsTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Most frequently logged foods",
	RunE:  runStatsTop,
}

var statsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Daily totals for recent days",
	RunE:  runStatsHistory,
}

func init() {
	statsTopCmd.Flags().IntVar(&topLimit, "limit", 10, "Number of foods to show (0 for all)")
	statsHistoryCmd.Flags().IntVar(&historyDays, "days", 7, "Number of days to show, ending today")

	statsCmd.AddCommand(statsStreakCmd, statsTopCmd, statsHistoryCmd)
	rootCmd.AddCommand(todayCmd, statsCmd)
}

func runToday(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		loc, err := s.Config.Location()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		entries := s.Ledger.TodaysEntries()
		if len(entries) == 0 {
			fmt.Fprintln(out, "Nothing logged today")
			return nil
		}

		printEntries(out, entries, loc)
		fmt.Fprintln(out, divider)
		printTotals(out, s.Ledger.TodaysTotals())
		return nil
	})
}

func runStatsStreak(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		streak := s.Ledger.CurrentStreak()
		out := cmd.OutOrStdout()
		switch streak {
		case 0:
			fmt.Fprintln(out, "No streak yet. Log something today to start one.")
		case 1:
			fmt.Fprintln(out, "Current streak: 1 day")
		default:
			fmt.Fprintf(out, "Current streak: %s days\n", humanize.Comma(int64(streak)))
		}
		return nil
	})
}

func runStatsTop(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		foods := s.Ledger.MostConsumedFoods(topLimit)
		out := cmd.OutOrStdout()
		if len(foods) == 0 {
			fmt.Fprintln(out, "No foods logged yet")
			return nil
		}

		fmt.Fprintf(out, "%-4s  %-28s  %6s  %14s\n", "#", "Food", "Times", "Total")
		fmt.Fprintln(out, divider)
		for i, fc := range foods {
			fmt.Fprintf(out, "%-4s  %-28s  %6s  %14s\n",
				humanize.Ordinal(i+1), truncate(fc.Name, 28), humanize.Comma(int64(fc.Count)), kcal(fc.TotalCalories))
		}
		return nil
	})
}

func runStatsHistory(cmd *cobra.Command, args []string) error {
	if historyDays < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		loc, err := s.Config.Location()
		if err != nil {
			return err
		}
		end := time.Now().In(loc)
		start := end.AddDate(0, 0, -(historyDays - 1))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-12s  %7s  %12s  %8s  %8s  %8s\n", "Date", "Entries", "Calories", "Protein", "Carbs", "Fat")
		fmt.Fprintln(out, divider)
		var total float64
		for _, day := range s.Ledger.DailyTotals(start, end) {
			fmt.Fprintf(out, "%-12s  %7d  %12s  %8s  %8s  %8s\n",
				day.Date, day.Entries, kcal(day.Totals.Calories),
				grams(day.Totals.Protein), grams(day.Totals.Carbs), grams(day.Totals.Fat))
			total += day.Totals.Calories
		}
		fmt.Fprintln(out, divider)
		fmt.Fprintf(out, "Average: %s per day\n", kcal(total/float64(historyDays)))
		return nil
	})
}
