package markdup

import (
	"fmt"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnds(refIdx int32, coord int32, index uint64) *ReadEnds {
	return &ReadEnds{
		Read1RefIndex:    refIdx,
		Read1Coordinate:  coord,
		Orientation:      F,
		Read2RefIndex:    -1,
		Read2Coordinate:  -1,
		Read1IndexInFile: index,
		Read2IndexInFile: index,
		Tile:             -1,
	}
}

func TestMemReadEndsMap(t *testing.T) {
	m := newMemReadEndsMap()
	require.NoError(t, m.put(0, "rg:a", newEnds(0, 100, 1)))
	require.NoError(t, m.put(1, "rg:b", newEnds(0, 200, 2)))
	assert.Equal(t, 2, m.size())

	e, err := m.remove(0, "rg:a")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, uint64(1), e.Read1IndexInFile)

	e, err = m.remove(0, "rg:a")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = m.remove(2, "rg:c")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, 1, m.size())
	require.NoError(t, m.close())
}

// Entries put under many reference indices must survive partition
// eviction and fault-in, and come back intact.
func TestDiskReadEndsMapSpills(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	m, err := newDiskReadEndsMap(tempDir, 3, readEndsCodec{})
	require.NoError(t, err)
	m.maxResident = 2

	const refs = 10
	const perRef = 50
	for ref := 0; ref < refs; ref++ {
		for i := 0; i < perRef; i++ {
			key := fmt.Sprintf("rg:read-%d-%d", ref, i)
			e := newEnds(int32(ref), int32(100+i), uint64(ref*perRef+i))
			require.NoError(t, m.put(ref, key, e))
		}
	}
	assert.Equal(t, refs*perRef, m.size())
	assert.True(t, m.sizeInRAM() < refs*perRef)

	// Remove everything, in a different reference order than the
	// puts, exercising fault-in.
	for ref := refs - 1; ref >= 0; ref-- {
		for i := 0; i < perRef; i++ {
			key := fmt.Sprintf("rg:read-%d-%d", ref, i)
			e, err := m.remove(ref, key)
			require.NoError(t, err)
			require.NotNil(t, e, "missing entry %s", key)
			assert.Equal(t, int32(100+i), e.Read1Coordinate)
			assert.Equal(t, uint64(ref*perRef+i), e.Read1IndexInFile)
		}
	}
	assert.Equal(t, 0, m.size())

	e, err := m.remove(0, "rg:read-0-0")
	require.NoError(t, err)
	assert.Nil(t, e)
	require.NoError(t, m.close())
}

// A representative-tagging codec must carry the recorded read name
// through a spill and back.
func TestDiskReadEndsMapWithNames(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	m, err := newDiskReadEndsMap(tempDir, 2, readEndsCodec{withName: true})
	require.NoError(t, err)
	m.maxResident = 1

	e := newEnds(0, 100, 7)
	e.FirstEncounteredReadName = "read-7"
	require.NoError(t, m.put(0, "rg:read-7", e))
	// Force ref 0 out of residency.
	require.NoError(t, m.put(1, "rg:other", newEnds(1, 50, 8)))
	_, err = m.remove(1, "rg:other")
	require.NoError(t, err)

	got, err := m.remove(0, "rg:read-7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "read-7", got.FirstEncounteredReadName)
	require.NoError(t, m.close())
}
