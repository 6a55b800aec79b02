package readingdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/env"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "readings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndRecent(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordReading(sky.Reading{
			Ch0:     uint16(100 + i),
			Ch1:     20,
			MPSAS:   20 + float64(i)/10,
			Valid:   i%2 == 0,
			Lux:     0.01,
			Setting: sky.RangeSetting{Gain: 3, Integration: i % 5},
			Time:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := db.RecentReadings(3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, sky.Reading{
		Ch0:     104,
		Ch1:     20,
		MPSAS:   20.4,
		Valid:   true,
		Lux:     0.01,
		Setting: sky.RangeSetting{Gain: 3, Integration: 4},
		Time:    base.Add(4 * time.Second),
	}, got[0])
	assert.Equal(t, uint16(103), got[1].Ch0)
	assert.False(t, got[1].Valid)
	assert.Equal(t, uint16(102), got[2].Ch0)
}

func TestRecordAmbient(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordReading(sky.Reading{Ch0: 1, Time: at}))
	require.NoError(t, db.RecordReading(sky.Reading{
		Ch0:     2,
		Time:    at.Add(time.Second),
		Ambient: &env.Sample{Temperature: 4.5, PressureHPa: 1013.2},
	}))

	got, err := db.RecentReadings(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, &env.Sample{Temperature: 4.5, PressureHPa: 1013.2}, got[0].Ambient)
	assert.Nil(t, got[1].Ambient)
}

func TestRecentReadings_Empty(t *testing.T) {
	got, err := openTestDB(t).RecentReadings(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCalibrationStore(t *testing.T) {
	db := openTestDB(t)
	store := db.CalibrationStore("default")

	_, err := store.Load()
	assert.ErrorIs(t, err, calibration.ErrNotCalibrated)

	s := sky.RangeSetting{Gain: 2, Integration: 1}
	table := calibration.NewTable("run-1", time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))
	table.Add(s, calibration.Point{Visible: 900, MPSAS: 19})
	table.Add(s, calibration.Point{Visible: 300, MPSAS: 21})
	table.Sort()
	require.NoError(t, store.Save(context.Background(), table))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	mpsas, ok := got.Lookup(s, 600)
	require.True(t, ok)
	assert.InDelta(t, 20, mpsas, 1e-9)

	// saving again replaces the table
	next := calibration.NewTable("run-2", time.Time{})
	next.Add(s, calibration.Point{Visible: 500, MPSAS: 20})
	require.NoError(t, store.Save(context.Background(), next))

	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.ID)
	assert.Equal(t, 1, got.Points())

	_, err = db.CalibrationStore("other").Load()
	assert.ErrorIs(t, err, calibration.ErrNotCalibrated)
}

func TestCalibrationStore_SaveClosed(t *testing.T) {
	db := openTestDB(t)
	store := db.CalibrationStore("default")
	require.NoError(t, db.Close())

	err := store.Save(context.Background(), calibration.NewTable("x", time.Time{}))
	assert.ErrorIs(t, err, calibration.ErrStorageWrite)
}

func TestCalibrationStore_RetriesWhileLocked(t *testing.T) {
	db := openTestDB(t)
	store := db.CalibrationStore("default")
	store.RetryInterval = time.Millisecond

	attempts := 0
	store.exec = func(ctx context.Context, query string, args ...any) (sql.Result, error) {
		attempts++
		switch attempts {
		case 1:
			return nil, errors.New("database is locked (5) (SQLITE_BUSY)")
		case 2:
			return nil, errors.New("attempt to write a readonly database (8)")
		}
		return db.ExecContext(ctx, query, args...)
	}

	require.NoError(t, store.Save(context.Background(), calibration.NewTable("run-1", time.Time{})))
	assert.Equal(t, 3, attempts)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
}

func TestCalibrationStore_RetryStopsOnCancel(t *testing.T) {
	db := openTestDB(t)
	store := db.CalibrationStore("default")
	store.RetryInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	store.exec = func(context.Context, string, ...any) (sql.Result, error) {
		attempts++
		cancel()
		return nil, errors.New("database is locked (5) (SQLITE_BUSY)")
	}

	err := store.Save(ctx, calibration.NewTable("run-1", time.Time{}))
	assert.ErrorIs(t, err, calibration.ErrStorageWrite)
	assert.Equal(t, 1, attempts)
}

func TestTransient(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil":       {nil, false},
		"busy":      {errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		"read-only": {errors.New("attempt to write a readonly database (8)"), true},
		"closed":    {sql.ErrConnDone, false},
		"other":     {errors.New("no such table: calibrations"), false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, transient(tt.err))
		})
	}
}
