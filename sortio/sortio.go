// Package sortio provides disk-backed sorting collections.  A
// Collection accumulates records in memory up to a configured budget,
// spills sorted, snappy-compressed runs to temporary files, and on
// iteration merges the runs back into one sorted stream.  Longs is a
// variant specialized to 64-bit file indices.
package sortio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/biogo/store/llrb"
	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Codec serializes records of type T to and from spill files.  Encode
// and Decode must agree on a fixed, self-delimiting wire format.
type Codec[T any] interface {
	Encode(w io.Writer, v T) error
	Decode(r io.Reader) (T, error)
}

// Opts configures a Collection.
type Opts struct {
	// MaxInMemory is the number of records to accumulate before
	// spilling a sorted run to disk.
	MaxInMemory int

	// TempDirs lists the directories for spill files.  Spills are
	// assigned round-robin.  Empty means the system default.
	TempDirs []string

	// Prefix names the spill files, so that concurrent collections
	// sharing TempDirs never collide.
	Prefix string
}

// Collection is a sorting collection of records of type T.  Add all
// records, call DoneAdding, then iterate.  The collection owns its
// spill files until Cleanup is called.
type Collection[T any] struct {
	cmp    func(a, b T) int
	codec  Codec[T]
	opts   Opts
	buf    []T
	spills []string
	seq    int
	sealed bool
}

// New returns an empty Collection that orders records by cmp and
// serializes spilled runs with codec.
func New[T any](cmp func(a, b T) int, codec Codec[T], opts Opts) *Collection[T] {
	if opts.MaxInMemory <= 0 {
		opts.MaxInMemory = 1 << 16
	}
	if len(opts.TempDirs) == 0 {
		opts.TempDirs = []string{os.TempDir()}
	}
	if opts.Prefix == "" {
		opts.Prefix = "sortio"
	}
	initialCap := opts.MaxInMemory
	if initialCap > 4096 {
		initialCap = 4096
	}
	return &Collection[T]{
		cmp:   cmp,
		codec: codec,
		opts:  opts,
		buf:   make([]T, 0, initialCap),
	}
}

// Add appends v to the collection, spilling to disk if the in-memory
// budget is exhausted.
func (c *Collection[T]) Add(v T) error {
	if c.sealed {
		log.Fatalf("sortio: Add after DoneAdding")
	}
	c.buf = append(c.buf, v)
	if len(c.buf) >= c.opts.MaxInMemory {
		return c.spill()
	}
	return nil
}

// DoneAdding seals the collection.  The residual in-memory records
// are sorted in place; they are merged with any spilled runs during
// iteration.
func (c *Collection[T]) DoneAdding() error {
	if c.sealed {
		log.Fatalf("sortio: DoneAdding called twice")
	}
	c.sealed = true
	sort.SliceStable(c.buf, func(i, j int) bool { return c.cmp(c.buf[i], c.buf[j]) < 0 })
	return nil
}

// NumSpills returns the number of sorted runs written to disk so far.
func (c *Collection[T]) NumSpills() int {
	return len(c.spills)
}

func (c *Collection[T]) spill() error {
	sort.SliceStable(c.buf, func(i, j int) bool { return c.cmp(c.buf[i], c.buf[j]) < 0 })

	dir := c.opts.TempDirs[c.seq%len(c.opts.TempDirs)]
	path := filepath.Join(dir, c.opts.Prefix+"-"+strconv.Itoa(os.Getpid())+"-"+strconv.Itoa(c.seq))
	c.seq++
	f, err := os.Create(path)
	if err != nil {
		return errors.E(err, "sortio: cannot create spill file", path)
	}
	w := snappy.NewBufferedWriter(f)
	for _, v := range c.buf {
		if err := c.codec.Encode(w, v); err != nil {
			f.Close() // nolint: errcheck
			return errors.E(err, "sortio: encode to spill file", path)
		}
	}
	if err := w.Close(); err != nil {
		f.Close() // nolint: errcheck
		return errors.E(err, "sortio: close spill writer", path)
	}
	if err := f.Close(); err != nil {
		return errors.E(err, "sortio: close spill file", path)
	}
	c.spills = append(c.spills, path)
	c.buf = c.buf[:0]
	return nil
}

// Cleanup removes all spill files and releases the in-memory buffer.
func (c *Collection[T]) Cleanup() {
	for _, path := range c.spills {
		if err := os.Remove(path); err != nil {
			log.Error.Printf("sortio: failed to remove spill file %s: %v", path, err)
		}
	}
	c.spills = nil
	c.buf = nil
}

// Iter returns an iterator over the collection in sorted order.
// DoneAdding must have been called.
func (c *Collection[T]) Iter() *Iterator[T] {
	if !c.sealed {
		log.Fatalf("sortio: Iter before DoneAdding")
	}
	it := &Iterator[T]{}
	if len(c.spills) == 0 {
		it.mem = c.buf
		return it
	}
	for i, path := range c.spills {
		r, err := newSpillReader(c.codec, path)
		if err != nil {
			it.err = err
			return it
		}
		leaf := &mergeLeaf[T]{cmp: c.cmp, seq: i, next: r.read}
		it.readers = append(it.readers, r)
		if leaf.advance() {
			it.tree.Insert(leaf)
		} else if leaf.err != io.EOF {
			it.err = leaf.err
			return it
		}
	}
	// The residue is the youngest run; it gets the highest sequence
	// number so that merge ties preserve insertion order.
	mem := c.buf
	leaf := &mergeLeaf[T]{cmp: c.cmp, seq: len(c.spills), next: func() (T, error) {
		var zero T
		if len(mem) == 0 {
			return zero, io.EOF
		}
		v := mem[0]
		mem = mem[1:]
		return v, nil
	}}
	if leaf.advance() {
		it.tree.Insert(leaf)
	}
	return it
}

// Iterator yields the records of a Collection in sorted order.
type Iterator[T any] struct {
	mem     []T // non-nil when no spills occurred
	memPos  int
	tree    llrb.Tree
	readers []*spillReader[T]
	cur     T
	err     error
}

// Scan advances the iterator.  It returns false at the end of the
// stream or on error; check Err after the loop.
func (it *Iterator[T]) Scan() bool {
	if it.err != nil {
		return false
	}
	if it.mem != nil {
		if it.memPos >= len(it.mem) {
			return false
		}
		it.cur = it.mem[it.memPos]
		it.memPos++
		return true
	}
	if it.tree.Len() == 0 {
		return false
	}
	top := it.tree.Min().(*mergeLeaf[T])
	it.tree.Delete(top)
	it.cur = top.cur
	if top.advance() {
		it.tree.Insert(top)
	} else if top.err != io.EOF {
		it.err = top.err
		return false
	}
	return true
}

// Record returns the record produced by the last successful Scan.
func (it *Iterator[T]) Record() T { return it.cur }

// Err returns the first error encountered during iteration.
func (it *Iterator[T]) Err() error { return it.err }

// Close releases the open spill-file readers.
func (it *Iterator[T]) Close() error {
	e := errors.Once{}
	for _, r := range it.readers {
		e.Set(r.close())
	}
	it.readers = nil
	return e.Err()
}

// mergeLeaf is one stream of the k-way merge.  Leaves are ordered by
// their current record, ties broken by stream sequence so that the
// merge is stable.
type mergeLeaf[T any] struct {
	cmp  func(a, b T) int
	seq  int
	next func() (T, error)
	cur  T
	err  error
}

func (l *mergeLeaf[T]) advance() bool {
	v, err := l.next()
	if err != nil {
		l.err = err
		return false
	}
	l.cur = v
	return true
}

// Compare implements llrb.Comparable.
func (l *mergeLeaf[T]) Compare(c llrb.Comparable) int {
	other := c.(*mergeLeaf[T])
	if d := l.cmp(l.cur, other.cur); d != 0 {
		return d
	}
	return l.seq - other.seq
}

// spillReader decodes one sorted run with a bounded read buffer.
type spillReader[T any] struct {
	codec Codec[T]
	f     *os.File
	r     io.Reader
}

func newSpillReader[T any](codec Codec[T], path string) (*spillReader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, "sortio: cannot open spill file", path)
	}
	return &spillReader[T]{
		codec: codec,
		f:     f,
		r:     bufio.NewReaderSize(snappy.NewReader(f), 1<<16),
	}, nil
}

func (r *spillReader[T]) read() (T, error) {
	v, err := r.codec.Decode(r.r)
	if err != nil && err != io.EOF {
		var zero T
		return zero, errors.E(err, "sortio: corrupt spill file", r.f.Name())
	}
	return v, err
}

func (r *spillReader[T]) close() error {
	return r.f.Close()
}
