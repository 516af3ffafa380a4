package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    Interval
		wantErr bool
	}{
		{"", IntervalManual, false},
		{"manual", IntervalManual, false},
		{"Daily", IntervalDaily, false},
		{" weekly ", IntervalWeekly, false},
		{"monthly", IntervalMonthly, false},
		{"hourly", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterval_Duration(t *testing.T) {
	d, err := IntervalWeekly.Duration()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = IntervalManual.Duration()
	assert.Error(t, err)
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
}

func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "nutrilog_20260103_000000.tar.gz")
	touch(t, dir, "nutrilog_20260101_000000.tar.gz")
	touch(t, dir, "notes.txt")
	touch(t, dir, "nutrilog_garbage.tar.gz")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	archives, err := ListArchives(dir)
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "nutrilog_20260101_000000.tar.gz", filepath.Base(archives[0].Path))
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), archives[1].CreatedAt)

	missing, err := ListArchives(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestApplyRetention(t *testing.T) {
	f := newFixture(t, "u1", exportTime)
	dir := t.TempDir()
	for _, day := range []string{"01", "02", "03", "04"} {
		touch(t, dir, "nutrilog_202601"+day+"_120000.tar.gz")
	}

	removed, err := f.service.ApplyRetention(dir, 2)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	left, err := ListArchives(dir)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "nutrilog_20260103_120000.tar.gz", filepath.Base(left[0].Path))

	removed, err = f.service.ApplyRetention(dir, 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRunIfDue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := exportTime
	f := newFixture(t, "u1", now)
	f.seed(t)
	f.service.now = func() time.Time { return now }
	cfg := AutoConfig{Dir: dir, Interval: IntervalDaily, Retention: 2}

	res, ran, err := f.service.RunIfDue(ctx, cfg)
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, 3, res.EntryCount)

	now = now.Add(2 * time.Hour)
	_, ran, err = f.service.RunIfDue(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, ran, "not due within the interval")

	for i := 0; i < 3; i++ {
		now = now.Add(25 * time.Hour)
		_, ran, err = f.service.RunIfDue(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, ran)
	}
	archives, err := ListArchives(dir)
	require.NoError(t, err)
	assert.Len(t, archives, 2)

	_, ran, err = f.service.RunIfDue(ctx, AutoConfig{Dir: dir, Interval: IntervalManual})
	require.NoError(t, err)
	assert.False(t, ran)
}
