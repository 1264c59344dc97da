package markdup

import (
	"testing"

	"github.com/grailbio/markdup/sortio"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLongCursorFromValues(t *testing.T, tempDir string, values []uint64, queryOrdered bool) *longCursor {
	l := sortio.NewLongs(4, []string{tempDir}, "test-longs")
	for _, v := range values {
		require.NoError(t, l.Add(v))
	}
	require.NoError(t, l.DoneAdding())
	return newLongCursor(l.Iter(), queryOrdered)
}

func newRepSortForTest(t *testing.T, tempDir string, reps []*repRead) *sortio.Collection[*repRead] {
	s := sortio.New[*repRead](compareRepReads, repReadCodec{}, sortio.Opts{
		MaxInMemory: 4,
		TempDirs:    []string{tempDir},
		Prefix:      "test-rep",
	})
	for _, r := range reps {
		require.NoError(t, s.Add(r))
	}
	require.NoError(t, s.DoneAdding())
	return s
}

func TestLongCursorCoordinate(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	c := newLongCursorFromValues(t, tempDir, []uint64{1, 3, 4}, false)
	type step struct {
		index uint64
		qname string
		match bool
	}
	steps := []step{
		{0, "q0", false},
		{1, "q1", true},
		{2, "q2", false},
		{3, "q3", true},
		{4, "q4", true},
		{5, "q5", false},
		{6, "q6", false},
	}
	for _, s := range steps {
		assert.Equal(t, s.match, c.check(s.index, s.qname), "index %d", s.index)
	}
}

// Under queryname ordering all records of a query name share the
// first record's file index, so a match sticks while the name is
// unchanged and the cursor advances only when the name moves on.
func TestLongCursorQuerynameSticky(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	c := newLongCursorFromValues(t, tempDir, []uint64{2, 5}, true)
	type step struct {
		index uint64
		qname string
		match bool
	}
	steps := []step{
		{0, "A", false},
		{1, "A", false},
		{2, "B", true}, // index match
		{3, "B", true}, // sticky: same name, index overshoots
		{4, "B", true}, // still sticky
		{5, "C", true}, // new name advances, then index match
		{6, "C", true}, // sticky again
		{7, "D", false},
	}
	for _, s := range steps {
		assert.Equal(t, s.match, c.check(s.index, s.qname), "index %d qname %s", s.index, s.qname)
	}
}

func TestLongCursorExhausted(t *testing.T) {
	c := newLongCursor(nil, false)
	for i := uint64(0); i < 5; i++ {
		assert.False(t, c.check(i, "q"))
	}
}

func TestRepCursor(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	reps := []*repRead{
		{name: "best1", setSize: 2, read1IndexInFile: 1},
		{name: "best1", setSize: 2, read1IndexInFile: 2},
	}
	s := newRepSortForTest(t, tempDir, reps)
	c := newRepCursor(s.Iter(), false)

	assert.Nil(t, c.check(0, "q0"))
	rep := c.check(1, "q1")
	require.NotNil(t, rep)
	assert.Equal(t, "best1", rep.name)
	assert.Equal(t, int32(2), rep.setSize)
	rep = c.check(2, "q2")
	require.NotNil(t, rep)
	assert.Nil(t, c.check(3, "q3"))
}
