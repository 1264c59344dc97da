package markdup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIlluminaLocationParser(t *testing.T) {
	p := illuminaLocationParser{}

	loc, ok := p.parse("machine:1:1203:500:600")
	require.True(t, ok)
	assert.Equal(t, physicalLocation{tile: 1203, x: 500, y: 600}, loc)

	loc, ok = p.parse("machine:run:flowcell:1:2304:17:99")
	require.True(t, ok)
	assert.Equal(t, physicalLocation{tile: 2304, x: 17, y: 99}, loc)

	loc, ok = p.parse("machine:run:flowcell:1:2304:17:99:ACGT")
	require.True(t, ok)
	assert.Equal(t, physicalLocation{tile: 2304, x: 17, y: 99}, loc)

	_, ok = p.parse("no-colons-here")
	assert.False(t, ok)
	_, ok = p.parse("a:b:tile:x:y")
	assert.False(t, ok)
}

func TestRegexLocationParser(t *testing.T) {
	p, err := newRegexLocationParser(`^\w+-(\d+)-(\d+)-(\d+)$`)
	require.NoError(t, err)

	loc, ok := p.parse("readname-1101-55-66")
	require.True(t, ok)
	assert.Equal(t, physicalLocation{tile: 1101, x: 55, y: 66}, loc)

	_, ok = p.parse("readname-oops")
	assert.False(t, ok)

	_, err = newRegexLocationParser(`only-(\d+)-groups-(\d+)`)
	assert.Error(t, err)
	_, err = newRegexLocationParser(`broken(`)
	assert.Error(t, err)
}

func opticalEnds(tile int16, x, y int32, index uint64) *ReadEnds {
	e := newEnds(0, 100, index)
	e.Orientation = FR
	e.Read2RefIndex = 0
	e.Read2Coordinate = 300
	e.OrientationForOptical = FR
	e.Tile = tile
	e.X = x
	e.Y = y
	return e
}

func TestTileClusterFinder(t *testing.T) {
	finder := &TileClusterFinder{Distance: 100}

	// Entries 0 and 1 lie within distance of the best entry 2; entry
	// 3 is on another tile, and entry 4 is too far away.
	chunk := []*ReadEnds{
		opticalEnds(1, 10, 10, 0),
		opticalEnds(1, 50, 50, 1),
		opticalEnds(1, 60, 60, 2),
		opticalEnds(2, 60, 60, 3),
		opticalEnds(1, 5000, 5000, 4),
	}
	flags, err := finder.FindOpticalClusters(chunk, 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false, false}, flags)
}

// Transitive closure: a pair far from the best but close to another
// duplicate still clusters.
func TestTileClusterFinderTransitive(t *testing.T) {
	finder := &TileClusterFinder{Distance: 100}
	chunk := []*ReadEnds{
		opticalEnds(1, 10, 10, 0),
		opticalEnds(1, 100, 100, 1),
		opticalEnds(1, 190, 190, 2),
	}
	// Best is entry 0. Entry 1 is within distance of best; entry 2 is
	// within distance of entry 1 only.
	flags, err := finder.FindOpticalClusters(chunk, 0)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true}, flags)
}

// Entries without flowcell coordinates never cluster.
func TestTileClusterFinderNoLocation(t *testing.T) {
	finder := &TileClusterFinder{Distance: 100}
	chunk := []*ReadEnds{
		opticalEnds(-1, noLocation, noLocation, 0),
		opticalEnds(-1, noLocation, noLocation, 1),
	}
	flags, err := finder.FindOpticalClusters(chunk, 0)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, flags)
}
