package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenDrivers(t *testing.T) {
	require := require.New(t)

	s, err := Open(Config{Driver: "none"}, nil)
	require.NoError(err)
	require.IsType(Nop{}, s)
	require.NoError(s.RecordSnapshot(context.Background(), time.Now(), 1))
	require.NoError(s.Close())

	_, err = Open(Config{Driver: "mysql"}, nil)
	require.Error(err)

	_, err = Open(Config{Driver: "sqlite"}, nil)
	require.Error(err, "sqlite needs a path")
}

func TestSQLiteRecords(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nested", "stats.db")
	sink, err := Open(Config{Driver: "sqlite", Path: path, RunID: "run-1"}, nil)
	require.NoError(err)
	db := sink.(*SQLite)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	require.NoError(db.RecordSnapshot(ctx, at, 17))
	require.NoError(db.RecordSnapshot(ctx, at.Add(time.Minute), 3))
	require.NoError(db.RecordConsumers(ctx, at, []int32{101, 102}))
	require.NoError(db.RecordConsumers(ctx, at.Add(time.Minute), nil))

	snaps, err := db.Snapshots(ctx, 10)
	require.NoError(err)
	require.Len(snaps, 2)
	require.EqualValues(3, snaps[0].Queue)
	require.EqualValues(17, snaps[1].Queue)
	require.Equal("run-1", snaps[1].RunID)
	require.True(snaps[1].Created.Equal(at), "created is stored in UTC: %v", snaps[1].Created)

	consumers, err := db.Consumers(ctx, 10)
	require.NoError(err)
	require.Len(consumers, 2)
	require.Empty(consumers[0].PIDs)
	require.Equal([]int32{101, 102}, consumers[1].PIDs)

	require.NoError(db.Close())
	require.ErrorIs(db.RecordSnapshot(ctx, at, 1), ErrClosed)
	require.NoError(db.Close())

	// Reopening keeps earlier rows and does not re-run destructive DDL.
	again, err := OpenSQLite(Config{Path: path, RunID: "run-2"}, nil)
	require.NoError(err)
	defer again.Close()
	snaps, err = again.Snapshots(ctx, 10)
	require.NoError(err)
	require.Len(snaps, 2)
}
