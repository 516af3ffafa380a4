package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/nutrition"
	"github.com/kimhsiao/nutrilog/backend/internal/session"
)

var (
	logCalories float64
	logProtein  float64
	logCarbs    float64
	logFat      float64
	logFiber    float64
	logSugar    float64
	logSodium   float64
	logBrand    string
	logServing  string
	logAt       string
	logDate     string
	logYes      bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Add, list and remove food entries",
}

var logAddCmd = &cobra.Command{
	Use:   "add <food name>",
	Short: "Log a food with manually entered nutrition facts",
	Long: `Logs a food entry. Macros are normalized the same way looked-up records
are: values are rounded and clamped, and calories that disagree with the
macros are marked as estimated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLogAdd,
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries of one day",
	RunE:  runLogList,
}

var logDeleteCmd = &cobra.Command{
	Use:   "delete <entry id>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogDelete,
}

var logClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry",
	RunE:  runLogClear,
}

func init() {
	f := logAddCmd.Flags()
	f.Float64Var(&logCalories, "calories", 0, "Calories (kcal)")
	f.Float64Var(&logProtein, "protein", 0, "Protein (g)")
	f.Float64Var(&logCarbs, "carbs", 0, "Carbohydrates (g)")
	f.Float64Var(&logFat, "fat", 0, "Fat (g)")
	f.Float64Var(&logFiber, "fiber", 0, "Fiber (g)")
	f.Float64Var(&logSugar, "sugar", 0, "Sugar (g)")
	f.Float64Var(&logSodium, "sodium", 0, "Sodium (mg)")
	f.StringVar(&logBrand, "brand", "", "Brand")
	f.StringVar(&logServing, "serving", "", "Serving size, e.g. \"1 cup\"")
	f.StringVar(&logAt, "at", "", "When it was eaten (RFC3339, default now)")

	logListCmd.Flags().StringVar(&logDate, "date", "", "Day to list (YYYY-MM-DD, default today)")
	logClearCmd.Flags().BoolVar(&logYes, "yes", false, "Confirm deleting every entry")

	logCmd.AddCommand(logAddCmd, logListCmd, logDeleteCmd, logClearCmd)
	rootCmd.AddCommand(logCmd)
}

// manualRecord builds a normalized record from the add flags.
func manualRecord(cmd *cobra.Command, name string, now time.Time) models.NutritionRecord {
	rec := models.NutritionRecord{
		ID:         models.NewID(),
		Name:       name,
		Calories:   logCalories,
		Protein:    logProtein,
		Carbs:      logCarbs,
		Fat:        logFat,
		Confidence: 1,
		Source:     models.SourceManual,
		Timestamp:  now,
	}
	f := cmd.Flags()
	if f.Changed("fiber") {
		rec.Fiber = models.Float(logFiber)
	}
	if f.Changed("sugar") {
		rec.Sugar = models.Float(logSugar)
	}
	if f.Changed("sodium") {
		rec.Sodium = models.Float(logSodium)
	}
	if logBrand != "" {
		rec.Brand = models.String(logBrand)
	}
	if logServing != "" {
		rec.ServingSize = models.String(logServing)
	}
	return nutrition.NormalizeRecord(rec)
}

func runLogAdd(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return fmt.Errorf("food name is required")
	}
	var at time.Time
	if logAt != "" {
		t, err := time.Parse(time.RFC3339, logAt)
		if err != nil {
			return fmt.Errorf("invalid --at %q, expected RFC3339", logAt)
		}
		at = t
	}

	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		rec := manualRecord(cmd, name, time.Now())
		entry, err := s.Ledger.AddEntry(ctx, models.FoodEntry{
			Timestamp:   at,
			Nutrition:   rec.Snapshot(),
			InputMethod: models.InputManual,
			Kind:        models.ItemStandalone,
		})
		if err != nil {
			return fmt.Errorf("adding entry: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Logged %s (%s)\n", entry.Nutrition.Name, kcal(entry.Nutrition.Calories))
		if nutrition.HasEstimatedMarker(entry.Nutrition.Name) {
			fmt.Fprintln(out, "Calories do not match the macros; marked as estimated")
		}
		fmt.Fprintf(out, "ID: %s\n", entry.ID)
		return nil
	})
}

func runLogList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		loc, err := s.Config.Location()
		if err != nil {
			return err
		}
		day, err := parseDate(logDate, loc, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		entries := s.Ledger.Entries(day)
		if len(entries) == 0 {
			fmt.Fprintf(out, "No entries on %s\n", day.Format(dateLayout))
			return nil
		}
		fmt.Fprintf(out, "\nEntries on %s:\n", day.Format(dateLayout))
		printEntries(out, entries, loc)
		return nil
	})
}

func runLogDelete(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		deleted, err := s.Ledger.DeleteEntry(ctx, args[0])
		if err != nil {
			return fmt.Errorf("deleting entry: %w", err)
		}
		if !deleted {
			return fmt.Errorf("no entry with id %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Entry deleted")
		return nil
	})
}

func runLogClear(cmd *cobra.Command, args []string) error {
	if !logYes {
		return fmt.Errorf("refusing to delete every entry without --yes")
	}
	return withSession(cmd, func(ctx context.Context, s *session.Session) error {
		n := s.Ledger.Len()
		if err := s.Ledger.Clear(ctx); err != nil {
			return fmt.Errorf("clearing entries: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
		return nil
	})
}
