// Package ledger keeps a user's food log with day-scoped caching of derived totals.
package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/nutrilog/backend/internal/db"
	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
)

// StorageKey is the blob key the ledger persists under.
const StorageKey = "food_entries"

// DefaultTotalsWindow is how long today's totals are reused before recomputing.
const DefaultTotalsWindow = 5 * time.Minute

const dayLayout = "2006-01-02"

// FoodCount is one row of MostConsumedFoods.
type FoodCount struct {
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	TotalCalories float64 `json:"total_calories"`
}

// DaySummary aggregates one calendar day.
type DaySummary struct {
	Date    string        `json:"date"`
	Entries int           `json:"entries"`
	Totals  models.Totals `json:"totals"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithTotalsWindow sets how long cached totals for today stay fresh.
func WithTotalsWindow(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.totalsWindow = d
		}
	}
}

// WithLogger overrides the global logger.
func WithLogger(log *logging.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// Ledger is the food log of one user. Every mutation persists the whole set.
type Ledger struct {
	mu sync.Mutex

	store  db.BlobStore
	userID string

	entries []models.FoodEntry

	now          func() time.Time
	loc          *time.Location
	totalsWindow time.Duration
	log          *logging.Logger

	// today's entries, keyed by calendar day
	todayKey     string
	todayEntries []models.FoodEntry
	todayValid   bool

	// today's totals, keyed by calendar day and computation time
	totalsKey   string
	totalsAt    time.Time
	totals      models.Totals
	totalsValid bool
}

// New loads the ledger for userID from store. A corrupted blob is logged and
// treated as an empty ledger; a storage failure is returned.
func New(ctx context.Context, store db.BlobStore, userID string, opts ...Option) (*Ledger, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "user id is required")
	}
	l := &Ledger{
		store:        store,
		userID:       userID,
		now:          time.Now,
		loc:          time.Local,
		totalsWindow: DefaultTotalsWindow,
		log:          logging.Get(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load(ctx context.Context) error {
	data, found, err := l.store.Get(ctx, StorageKey)
	if err != nil {
		return err
	}
	if !found || len(data) == 0 {
		return nil
	}

	var stored []models.FoodEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		l.log.ErrorWithCode("food log is unreadable, starting fresh",
			apperrors.Wrap(apperrors.ErrCorruptedState, "decode food entries", err),
			map[string]interface{}{"key": StorageKey, "bytes": len(data)})
		return nil
	}

	kept := stored[:0]
	for _, e := range stored {
		if e.UserID != "" && e.UserID != l.userID {
			l.log.Warn("dropping food entry owned by another user", map[string]interface{}{
				"entry_id": e.ID,
				"code":     apperrors.ErrForeignUserData,
			})
			continue
		}
		e.UserID = l.userID
		kept = append(kept, e)
	}
	l.entries = kept
	return nil
}

// persist writes the full set. Callers hold l.mu.
func (l *Ledger) persist(ctx context.Context, entries []models.FoodEntry) error {
	if entries == nil {
		entries = []models.FoodEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode food entries", err)
	}
	return l.store.Put(ctx, StorageKey, data)
}

// commit persists next and swaps it in; on failure the in-memory set is unchanged.
func (l *Ledger) commit(ctx context.Context, next []models.FoodEntry) error {
	if err := l.persist(ctx, next); err != nil {
		l.log.Error("failed to persist food log", err, map[string]interface{}{"entries": len(next)})
		return err
	}
	l.entries = next
	l.invalidate()
	return nil
}

func (l *Ledger) invalidate() {
	l.todayValid = false
	l.todayEntries = nil
	l.totalsValid = false
}

func (l *Ledger) snapshot() []models.FoodEntry {
	out := make([]models.FoodEntry, len(l.entries), len(l.entries)+1)
	copy(out, l.entries)
	return out
}

func (l *Ledger) indexOf(id string) int {
	for i := range l.entries {
		if l.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// =====================================================
// Mutations
// =====================================================

// AddEntry appends entry, filling in ID, UserID and Timestamp when empty.
func (l *Ledger) AddEntry(ctx context.Context, entry models.FoodEntry) (models.FoodEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := entry.Clone()
	if e.UserID == "" {
		e.UserID = l.userID
	} else if e.UserID != l.userID {
		return models.FoodEntry{}, apperrors.Newf(apperrors.ErrForeignUserData,
			"entry belongs to user %q, ledger is for %q", e.UserID, l.userID)
	}
	if e.ID == "" {
		e.ID = models.NewID()
	} else if l.indexOf(e.ID) >= 0 {
		return models.FoodEntry{}, apperrors.Newf(apperrors.ErrValidation, "entry %s already exists", e.ID)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.Kind == "" {
		if e.IsComposite() {
			e.Kind = models.ItemMeal
		} else {
			e.Kind = models.ItemStandalone
		}
	}

	next := append(l.snapshot(), e)
	if err := l.commit(ctx, next); err != nil {
		return models.FoodEntry{}, err
	}
	return e.Clone(), nil
}

// DeleteEntry removes the entry with id. It reports false when no such entry exists.
func (l *Ledger) DeleteEntry(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		l.invalidate()
		return false, nil
	}
	next := l.snapshot()
	next = append(next[:i], next[i+1:]...)
	if err := l.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateEntry replaces the entry with id wholesale, keeping its ID and owner.
// A zero Timestamp keeps the original one.
func (l *Ledger) UpdateEntry(ctx context.Context, id string, entry models.FoodEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		l.invalidate()
		return false, nil
	}
	if entry.UserID != "" && entry.UserID != l.userID {
		return false, apperrors.Newf(apperrors.ErrForeignUserData,
			"entry belongs to user %q, ledger is for %q", entry.UserID, l.userID)
	}

	e := entry.Clone()
	e.ID = id
	e.UserID = l.userID
	if e.Timestamp.IsZero() {
		e.Timestamp = l.entries[i].Timestamp
	}

	next := l.snapshot()
	next[i] = e
	if err := l.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every entry.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commit(ctx, []models.FoodEntry{})
}

// =====================================================
// Queries
// =====================================================

func (l *Ledger) dayKey(t time.Time) string {
	return t.In(l.loc).Format(dayLayout)
}

func (l *Ledger) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(l.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, l.loc)
}

func cloneAll(entries []models.FoodEntry) []models.FoodEntry {
	out := make([]models.FoodEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func sortByTime(entries []models.FoodEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// Entry returns the entry with id.
func (l *Ledger) Entry(id string) (models.FoodEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexOf(id); i >= 0 {
		return l.entries[i].Clone(), true
	}
	return models.FoodEntry{}, false
}

// UserID returns the ledger owner.
func (l *Ledger) UserID() string {
	return l.userID
}

// All returns every entry, oldest first.
func (l *Ledger) All() []models.FoodEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := cloneAll(l.entries)
	sortByTime(out)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns the entries logged on date's calendar day, oldest first.
func (l *Ledger) Entries(date time.Time) []models.FoodEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneAll(l.entriesOn(l.dayKey(date)))
}

func (l *Ledger) entriesOn(key string) []models.FoodEntry {
	var out []models.FoodEntry
	for _, e := range l.entries {
		if l.dayKey(e.Timestamp) == key {
			out = append(out, e)
		}
	}
	sortByTime(out)
	return out
}

// EntriesInRange returns entries with start <= Timestamp < end, oldest first.
func (l *Ledger) EntriesInRange(start, end time.Time) []models.FoodEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.FoodEntry
	for _, e := range l.entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e.Clone())
		}
	}
	sortByTime(out)
	return out
}

// TodaysEntries returns today's entries, served from a per-day cache.
func (l *Ledger) TodaysEntries() []models.FoodEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneAll(l.todays())
}

func (l *Ledger) todays() []models.FoodEntry {
	key := l.dayKey(l.now())
	if !l.todayValid || l.todayKey != key {
		l.todayEntries = l.entriesOn(key)
		l.todayKey = key
		l.todayValid = true
	}
	return l.todayEntries
}

// TodaysTotals sums today's entries. The result is reused while it was
// computed today and is younger than the totals window.
func (l *Ledger) TodaysTotals() models.Totals {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := l.dayKey(now)
	if l.totalsValid && l.totalsKey == key && now.Sub(l.totalsAt) < l.totalsWindow {
		return l.totals
	}

	var t models.Totals
	for _, e := range l.todays() {
		t = t.Add(e.Totals())
	}
	l.totals = t
	l.totalsKey = key
	l.totalsAt = now
	l.totalsValid = true
	return t
}

// CurrentStreak counts consecutive calendar days with at least one entry,
// walking back from today. An empty today yields 0.
func (l *Ledger) CurrentStreak() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	days := make(map[string]struct{}, len(l.entries))
	for _, e := range l.entries {
		days[l.dayKey(e.Timestamp)] = struct{}{}
	}

	streak := 0
	day := l.startOfDay(l.now())
	for {
		if _, ok := days[day.Format(dayLayout)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// MostConsumedFoods ranks foods by how often they were logged. Composite
// entries contribute their leaf items; names are grouped case-insensitively.
// A non-positive limit returns every food.
func (l *Ledger) MostConsumedFoods(limit int) []FoodCount {
	l.mu.Lock()
	defer l.mu.Unlock()

	byKey := make(map[string]*FoodCount)
	for _, e := range l.entries {
		for _, leaf := range e.Leaves() {
			name := strings.TrimSpace(leaf.Nutrition.Name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			fc, ok := byKey[key]
			if !ok {
				fc = &FoodCount{Name: name}
				byKey[key] = fc
			}
			fc.Count++
			fc.TotalCalories += leaf.Nutrition.Calories
		}
	}

	out := make([]FoodCount, 0, len(byKey))
	for _, fc := range byKey {
		out = append(out, *fc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DailyTotals returns one summary per calendar day from start's day through
// end's day inclusive, oldest first. Days without entries report zero totals.
func (l *Ledger) DailyTotals(start, end time.Time) []DaySummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	first := l.startOfDay(start)
	last := l.startOfDay(end)
	if last.Before(first) {
		return nil
	}

	byDay := make(map[string]*DaySummary)
	for _, e := range l.entries {
		key := l.dayKey(e.Timestamp)
		s, ok := byDay[key]
		if !ok {
			s = &DaySummary{Date: key}
			byDay[key] = s
		}
		s.Entries++
		s.Totals = s.Totals.Add(e.Totals())
	}

	var out []DaySummary
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		if s, ok := byDay[key]; ok {
			out = append(out, *s)
		} else {
			out = append(out, DaySummary{Date: key})
		}
	}
	return out
}
