package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/sync"
)

const (
	dateLayout = "2006-01-02"
	divider    = "----------------------------------------------------------------"
)

func kcal(v float64) string {
	return humanize.Comma(int64(math.Round(v))) + " kcal"
}

func grams(v float64) string {
	return humanize.FtoaWithDigits(v, 1) + "g"
}

func printTotals(w io.Writer, t models.Totals) {
	fmt.Fprintf(w, "Calories: %s\n", kcal(t.Calories))
	fmt.Fprintf(w, "Protein:  %s\n", grams(t.Protein))
	fmt.Fprintf(w, "Carbs:    %s\n", grams(t.Carbs))
	fmt.Fprintf(w, "Fat:      %s\n", grams(t.Fat))
	if t.Fiber > 0 {
		fmt.Fprintf(w, "Fiber:    %s\n", grams(t.Fiber))
	}
	if t.Sugar > 0 {
		fmt.Fprintf(w, "Sugar:    %s\n", grams(t.Sugar))
	}
	if t.Sodium > 0 {
		fmt.Fprintf(w, "Sodium:   %smg\n", humanize.FtoaWithDigits(t.Sodium, 0))
	}
}

func printEntries(w io.Writer, entries []models.FoodEntry, loc *time.Location) {
	fmt.Fprintf(w, "%-5s  %-28s  %10s  %7s  %7s  %7s  %s\n", "Time", "Food", "Calories", "Protein", "Carbs", "Fat", "ID")
	fmt.Fprintln(w, divider)
	for _, e := range entries {
		t := e.Totals()
		fmt.Fprintf(w, "%-5s  %-28s  %10s  %7s  %7s  %7s  %s\n",
			e.Timestamp.In(loc).Format("15:04"),
			truncate(e.Nutrition.Name, 28),
			kcal(t.Calories), grams(t.Protein), grams(t.Carbs), grams(t.Fat),
			e.ID)
		for _, sub := range e.SubItems {
			fmt.Fprintf(w, "%-5s    - %-24s  %10s\n", "", truncate(sub.Nutrition.Name, 24), kcal(sub.Totals().Calories))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// parseDate reads a YYYY-MM-DD day in loc. An empty string means today.
func parseDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if s == "" {
		return now.In(loc), nil
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// reportPush waits for a queued profile push and prints its outcome.
func reportPush(ctx context.Context, w io.Writer, task *sync.Task) {
	if task == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()

	res, err := task.Wait(waitCtx)
	switch {
	case err != nil:
		fmt.Fprintf(w, "Sync to %s still running\n", task.Provider().DisplayName())
	case res.Discarded:
		fmt.Fprintf(w, "Sync to %s skipped, provider changed\n", res.Provider.DisplayName())
	case res.Err != nil:
		fmt.Fprintf(w, "Sync to %s failed: %v\n", res.Provider.DisplayName(), res.Err)
	default:
		fmt.Fprintf(w, "Synced to %s\n", res.Provider.DisplayName())
	}
}
