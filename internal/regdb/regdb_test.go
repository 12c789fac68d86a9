package regdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/qbyte.report/internal/reg"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	// A second up is a no-op, not an error.
	require.NoError(t, db.Migrate())

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestRecordAndGetRun(t *testing.T) {
	db := testDB(t)

	params := reg.RunParams{ColorZ: 1.65, RotZ: 1.85, SampleWidth: 250, UseTrueRNG: true, Halo: true}
	run := NewRun("QB_1700000000_unit", "/data/QB_1700000000_unit.txt", "unit", 1700000000000, params)
	require.NotEmpty(t, run.ID)
	require.NoError(t, db.RecordRun(run))

	got, err := db.GetRunByName("QB_1700000000_unit")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = db.GetRunByName("QB_0_missing")
	assert.ErrorIs(t, err, reg.ErrNotFound)
}

func TestRecordRunDuplicateName(t *testing.T) {
	db := testDB(t)
	params := reg.DefaultParams()

	require.NoError(t, db.RecordRun(NewRun("QB_1_dup", "a.txt", "", 1000, params)))
	assert.Error(t, db.RecordRun(NewRun("QB_1_dup", "b.txt", "", 2000, params)),
		"duplicate run name should violate the unique constraint")
}

func TestUpdateRunCounts(t *testing.T) {
	db := testDB(t)
	run := NewRun("QB_2_counts", "c.txt", "", 2000, reg.DefaultParams())
	require.NoError(t, db.RecordRun(run))

	counts := reg.EventCounts{Color: 3, Rotation: 1, Trials: 60}
	require.NoError(t, db.UpdateRunCounts(run.ID, counts))

	got, err := db.GetRunByName(run.Name)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Trials)
	assert.Equal(t, 3, got.ColorEvents)
	assert.Equal(t, 1, got.RotationEvents)

	assert.ErrorIs(t, db.UpdateRunCounts("no-such-id", counts), reg.ErrNotFound)
}

func TestListRunsOrdering(t *testing.T) {
	db := testDB(t)
	params := reg.DefaultParams()
	for _, r := range []struct {
		name  string
		start int64
	}{
		{"QB_100_a", 100000},
		{"QB_300_c", 300000},
		{"QB_200_b", 200000},
	} {
		require.NoError(t, db.RecordRun(NewRun(r.name, r.name+".txt", "", r.start, params)))
	}

	runs, err := db.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 3)

	var names []string
	for _, r := range runs {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"QB_300_c", "QB_200_b", "QB_100_a"}, names)
}
