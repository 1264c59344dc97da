package markdup

import (
	"math"

	"github.com/grailbio/markdup/sortio"
)

// noSuchIndex is the exhausted-cursor sentinel.  It is larger than
// any real file index so the equality tests below always fail.
const noSuchIndex = uint64(math.MaxUint64)

// longCursor walks a sorted stream of file indices and answers, for
// each record position in input order, whether the position is a
// member of the stream.
//
// Under query-name ordering the match is "sticky": all records
// sharing a query name carry the file index of the first such record,
// so later records of the group overshoot the stored index but still
// match while the query name is unchanged.
type longCursor struct {
	it           *sortio.Iterator[uint64]
	next         uint64
	lastMatch    string
	hasMatch     bool
	queryOrdered bool
}

// newLongCursor returns a cursor over it.  A nil iterator yields an
// always-exhausted cursor.
func newLongCursor(it *sortio.Iterator[uint64], queryOrdered bool) *longCursor {
	c := &longCursor{it: it, queryOrdered: queryOrdered}
	c.advance()
	return c
}

func (c *longCursor) advance() {
	if c.it != nil && c.it.Scan() {
		c.next = c.it.Record()
		return
	}
	c.next = noSuchIndex
}

func (c *longCursor) err() error {
	if c.it == nil {
		return nil
	}
	return c.it.Err()
}

// check reports whether the record at position i with the given query
// name matches the stream, advancing the cursor as needed.
func (c *longCursor) check(i uint64, queryName string) bool {
	if i > c.next && (!c.queryOrdered || !c.hasMatch || queryName != c.lastMatch) {
		c.advance()
	}
	match := i == c.next ||
		(c.queryOrdered && i > c.next && c.hasMatch && queryName == c.lastMatch)
	if match {
		c.lastMatch = queryName
		c.hasMatch = true
	}
	return match
}

// repCursor applies the same dual-mode advance rule to the
// representative-read stream, surfacing the matched tuple.
type repCursor struct {
	it           *sortio.Iterator[*repRead]
	cur          *repRead
	next         uint64
	lastMatch    string
	hasMatch     bool
	queryOrdered bool
}

func newRepCursor(it *sortio.Iterator[*repRead], queryOrdered bool) *repCursor {
	c := &repCursor{it: it, queryOrdered: queryOrdered}
	c.advance()
	return c
}

func (c *repCursor) advance() {
	if c.it != nil && c.it.Scan() {
		c.cur = c.it.Record()
		c.next = c.cur.read1IndexInFile
		return
	}
	c.cur = nil
	c.next = noSuchIndex
}

func (c *repCursor) err() error {
	if c.it == nil {
		return nil
	}
	return c.it.Err()
}

// check returns the representative tuple for the record at position i
// when the record belongs to a duplicate set, else nil.
func (c *repCursor) check(i uint64, queryName string) *repRead {
	if i > c.next && (!c.queryOrdered || !c.hasMatch || queryName != c.lastMatch) {
		c.advance()
	}
	match := i == c.next ||
		(c.queryOrdered && i > c.next && c.hasMatch && queryName == c.lastMatch)
	if !match {
		return nil
	}
	c.lastMatch = queryName
	c.hasMatch = true
	return c.cur
}
