package statement

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Snapshot{
		columns: []Column{{Name: "id"}, {Name: "Name"}, {Name: "score"}, {Name: "active"}, {Name: "created"}, {Name: "note"}},
		rows: [][]any{
			{int64(1), "alice", 9.5, int64(1), ts, nil},
			{int64(2), []byte("bob"), "7", "false", ts.Format(time.RFC3339Nano), []byte("hi")},
		},
	}
}

func TestSnapshotAccessors(t *testing.T) {
	snap := testSnapshot()

	assert.Equal(t, 2, snap.Len())
	assert.Len(t, snap.Columns(), 6)
	assert.Equal(t, 1, snap.ColumnIndex("Name"))
	assert.Equal(t, 1, snap.ColumnIndex("name"), "falls back to case-insensitive match")
	assert.Equal(t, -1, snap.ColumnIndex("missing"))

	v, ok := snap.Value(0, "name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = snap.Value(5, "name")
	assert.False(t, ok)

	row := snap.Row(0)
	row[0] = "mutated"
	assert.Equal(t, int64(1), snap.Row(0)[0], "Row returns a copy")

	cols := snap.Columns()
	cols[0].Name = "mutated"
	assert.Equal(t, "id", snap.Columns()[0].Name)
}

func TestSnapshotScanConversions(t *testing.T) {
	snap := testSnapshot()

	var (
		id      int64
		name    string
		score   float64
		active  bool
		created time.Time
		note    any
	)
	require.NoError(t, snap.Scan(0, &id, &name, &score, &active, &created, &note))
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 9.5, score)
	assert.True(t, active)
	assert.Equal(t, 2024, created.Year())
	assert.Nil(t, note)

	var (
		idInt   int
		nameB   []byte
		scoreS  float64
		activeS bool
		createS time.Time
		noteS   sql.NullString
	)
	require.NoError(t, snap.Scan(1, &idInt, &nameB, &scoreS, &activeS, &createS, &noteS))
	assert.Equal(t, 2, idInt)
	assert.Equal(t, []byte("bob"), nameB)
	assert.Equal(t, 7.0, scoreS)
	assert.False(t, activeS)
	assert.True(t, createS.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, sql.NullString{String: "hi", Valid: true}, noteS)
}

func TestSnapshotScanErrors(t *testing.T) {
	snap := testSnapshot()

	var a, b any
	assert.Error(t, snap.Scan(0, &a, &b), "wrong number of destinations")
	assert.Error(t, snap.Scan(3, &a), "row out of range")

	var id, name, score, active, created any
	var note string
	err := snap.Scan(0, &id, &name, &score, &active, &created, &note)
	assert.ErrorContains(t, err, "NULL")

	var notNumber int64
	err = snap.Scan(0, &id, &notNumber, &score, &active, &created, &a)
	assert.ErrorContains(t, err, "Name")
}

func TestSnapshotIteration(t *testing.T) {
	snap := testSnapshot()

	var seen []int
	for i, row := range snap.All() {
		seen = append(seen, i)
		assert.Len(t, row, 6)
	}
	assert.Equal(t, []int{0, 1}, seen)

	for i := range snap.All() {
		if i == 0 {
			break
		}
	}

	cur := snap.Cursor()
	var ids []int64
	for cur.Next() {
		var id int64
		var rest [5]any
		require.NoError(t, cur.Scan(&id, &rest[0], &rest[1], &rest[2], &rest[3], &rest[4]))
		ids = append(ids, id)
		v, ok := cur.Value("id")
		require.True(t, ok)
		assert.Equal(t, id, v)
	}
	assert.Equal(t, []int64{1, 2}, ids)
	assert.False(t, cur.Next())
	assert.Error(t, cur.Scan())
}
