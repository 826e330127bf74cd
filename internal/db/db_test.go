package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// openTestDB creates a migrated database in a temp directory. Tests run from
// the package directory, so the migrations live at ./migrations.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp("migrations"))
	return db
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateUp("migrations"))

	version, dirty, err := db.MigrateVersion("migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateRun("run-1", "/dev/ttyUSB0", "/dev/ttyUSB1"))

	// Duplicate run IDs violate the primary key.
	assert.Error(t, db.CreateRun("run-1", "/dev/ttyUSB0", "/dev/ttyUSB1"))

	require.NoError(t, db.CloseRun("run-1", 120, 960))

	var frames, points int64
	var endedAt sql.NullTime
	err := db.QueryRow(
		`SELECT frames_decoded, points_delivered, ended_at FROM runs WHERE run_id = ?`,
		"run-1").Scan(&frames, &points, &endedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(120), frames)
	assert.Equal(t, int64(960), points)
	assert.True(t, endedAt.Valid)
}

func TestRecordAndQueryFrames(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateRun("run-1", "/dev/ttyUSB0", "/dev/ttyUSB1"))

	want := []mmwave.Point{
		{X: 1.5, Y: 2.5, Z: -0.25, Velocity: 3},
		{X: -0.5, Y: 4, Z: 0.75, Velocity: -1.5},
	}
	require.NoError(t, db.RecordFrame("run-1", mmwave.Frame{
		Header: mmwave.FrameHeader{FrameNumber: 42, CPUCycles: 12345},
		Points: want,
	}))
	require.NoError(t, db.RecordFrame("run-1", mmwave.Frame{
		Header: mmwave.FrameHeader{FrameNumber: 43},
		Points: want[:1],
	}))

	recent, err := db.RecentFrames(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Most recent first.
	assert.Equal(t, uint32(43), recent[0].FrameNumber)
	assert.Equal(t, uint32(42), recent[1].FrameNumber)
	assert.Equal(t, "run-1", recent[1].RunID)
	assert.Equal(t, 2, recent[1].NumPoints)

	got, err := db.FramePoints(recent[1].ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored points mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentFramesLimit(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateRun("run-1", "a", "b"))
	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordFrame("run-1", mmwave.Frame{
			Header: mmwave.FrameHeader{FrameNumber: uint32(i)},
			Points: []mmwave.Point{{X: 1, Y: 1}},
		}))
	}

	recent, err := db.RecentFrames(3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	// Non-positive limit falls back to the default.
	recent, err = db.RecentFrames(0)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
}
