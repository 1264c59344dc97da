package sortio

import (
	"encoding/binary"
	"io"
)

// LongsSizeOf is the in-memory footprint of one index slot, used by
// callers to scale memory budgets.
const LongsSizeOf = 8

// Longs is a sorting collection specialized to 64-bit file indices.
// Slots are unboxed uint64s, so a Longs can hold far more entries per
// byte of budget than a record Collection.
type Longs struct {
	c *Collection[uint64]
}

// NewLongs returns an empty index collection.
func NewLongs(maxInMemory int, tempDirs []string, prefix string) *Longs {
	return &Longs{c: New[uint64](compareUint64, uint64Codec{}, Opts{
		MaxInMemory: maxInMemory,
		TempDirs:    tempDirs,
		Prefix:      prefix,
	})}
}

// Add records one index.
func (l *Longs) Add(v uint64) error { return l.c.Add(v) }

// DoneAdding seals the collection; iteration yields indices in
// ascending order.
func (l *Longs) DoneAdding() error { return l.c.DoneAdding() }

// Iter returns an iterator over the indices in ascending order.
func (l *Longs) Iter() *Iterator[uint64] { return l.c.Iter() }

// Cleanup removes any spill files.
func (l *Longs) Cleanup() { l.c.Cleanup() }

func compareUint64(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// uint64Codec writes raw 8-byte little-endian slots.
type uint64Codec struct{}

func (uint64Codec) Encode(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func (uint64Codec) Decode(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
