package sortio

import (
	"encoding/binary"
	"io"
	"math/rand"
	"sort"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	key uint32
	seq uint32 // insertion order, to verify stability
}

type testCodec struct{}

func (testCodec) Encode(w io.Writer, v testRecord) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], v.key)
	binary.LittleEndian.PutUint32(buf[4:8], v.seq)
	_, err := w.Write(buf[:])
	return err
}

func (testCodec) Decode(r io.Reader) (testRecord, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return testRecord{}, err
	}
	return testRecord{
		key: binary.LittleEndian.Uint32(buf[0:4]),
		seq: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

func compareTestRecords(a, b testRecord) int {
	if a.key < b.key {
		return -1
	}
	if a.key > b.key {
		return 1
	}
	return 0
}

func drain(t *testing.T, c *Collection[testRecord]) []testRecord {
	iter := c.Iter()
	out := []testRecord{}
	for iter.Scan() {
		out = append(out, iter.Record())
	}
	require.NoError(t, iter.Err())
	require.NoError(t, iter.Close())
	return out
}

func TestInMemoryOnly(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	c := New[testRecord](compareTestRecords, testCodec{}, Opts{
		MaxInMemory: 100,
		TempDirs:    []string{tempDir},
		Prefix:      "mem",
	})
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Add(testRecord{key: uint32(10 - i), seq: uint32(i)}))
	}
	require.NoError(t, c.DoneAdding())
	assert.Equal(t, 0, c.NumSpills())

	out := drain(t, c)
	require.Len(t, out, 10)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].key <= out[i].key)
	}
	c.Cleanup()
}

func TestSpillAndMerge(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	c := New[testRecord](compareTestRecords, testCodec{}, Opts{
		MaxInMemory: 16,
		TempDirs:    []string{tempDir},
		Prefix:      "spill",
	})
	r := rand.New(rand.NewSource(0))
	keys := make([]uint32, 1000)
	for i := range keys {
		keys[i] = uint32(r.Intn(100))
		require.NoError(t, c.Add(testRecord{key: keys[i], seq: uint32(i)}))
	}
	require.NoError(t, c.DoneAdding())
	assert.True(t, c.NumSpills() > 1)

	out := drain(t, c)
	require.Len(t, out, len(keys))

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for i, rec := range out {
		assert.Equal(t, keys[i], rec.key)
	}
	// Stability: equal keys must come out in insertion order.
	for i := 1; i < len(out); i++ {
		if out[i-1].key == out[i].key {
			assert.True(t, out[i-1].seq < out[i].seq,
				"equal keys out of insertion order at %d: %v %v", i, out[i-1], out[i])
		}
	}
	c.Cleanup()
}

func TestEmptyCollection(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	c := New[testRecord](compareTestRecords, testCodec{}, Opts{
		MaxInMemory: 4,
		TempDirs:    []string{tempDir},
	})
	require.NoError(t, c.DoneAdding())
	out := drain(t, c)
	assert.Len(t, out, 0)
	c.Cleanup()
}

func TestLongs(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	l := NewLongs(8, []string{tempDir}, "longs")
	r := rand.New(rand.NewSource(1))
	values := make([]uint64, 200)
	for i := range values {
		values[i] = r.Uint64()
		require.NoError(t, l.Add(values[i]))
	}
	require.NoError(t, l.DoneAdding())

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	iter := l.Iter()
	for i := 0; iter.Scan(); i++ {
		assert.Equal(t, values[i], iter.Record())
	}
	require.NoError(t, iter.Err())
	require.NoError(t, iter.Close())
	l.Cleanup()
}
