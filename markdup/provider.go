package markdup

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// Iterator yields alignment records in file order.
type Iterator interface {
	// Scan advances to the next record, returning false at the end
	// of the stream or on error.
	Scan() bool
	// Record returns the record read by the last successful Scan.
	Record() *sam.Record
	// Err returns the first error encountered, if any.
	Err() error
	Close() error
}

// Provider opens the alignment input.  The engine streams the input
// once per pass, so NewIterator must return a fresh stream from the
// beginning each time it is called.
type Provider interface {
	GetHeader() (*sam.Header, error)
	NewIterator() (Iterator, error)
}

// NewFileProvider returns a Provider reading BAM, or SAM when the
// path ends in ".sam".
func NewFileProvider(path string) Provider {
	return &fileProvider{path: path}
}

type fileProvider struct {
	path string
}

func (p *fileProvider) GetHeader() (*sam.Header, error) {
	iter, err := p.NewIterator()
	if err != nil {
		return nil, err
	}
	defer iter.Close() // nolint: errcheck
	return iter.(*fileIterator).header, nil
}

func (p *fileProvider) NewIterator() (Iterator, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("could not open input %s: %v", p.path, err)
	}
	it := &fileIterator{f: f}
	if strings.HasSuffix(p.path, ".sam") {
		r, err := sam.NewReader(f)
		if err != nil {
			f.Close() // nolint: errcheck
			return nil, fmt.Errorf("could not read SAM header from %s: %v", p.path, err)
		}
		it.read = r.Read
		it.header = r.Header()
	} else {
		r, err := bam.NewReader(f, 1)
		if err != nil {
			f.Close() // nolint: errcheck
			return nil, fmt.Errorf("could not read BAM header from %s: %v", p.path, err)
		}
		it.read = r.Read
		it.header = r.Header()
		it.closer = r
	}
	return it, nil
}

type fileIterator struct {
	f      *os.File
	header *sam.Header
	read   func() (*sam.Record, error)
	closer io.Closer
	rec    *sam.Record
	err    error
}

func (it *fileIterator) Scan() bool {
	rec, err := it.read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = err
		return false
	}
	it.rec = rec
	return true
}

func (it *fileIterator) Record() *sam.Record { return it.rec }
func (it *fileIterator) Err() error          { return it.err }

func (it *fileIterator) Close() error {
	if it.closer != nil {
		if err := it.closer.Close(); err != nil {
			it.f.Close() // nolint: errcheck
			return err
		}
	}
	return it.f.Close()
}

// NewFakeProvider returns a Provider yielding the given records, for
// tests.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs}
}

type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

func (p *fakeProvider) GetHeader() (*sam.Header, error) { return p.header, nil }

func (p *fakeProvider) NewIterator() (Iterator, error) {
	return &fakeIterator{recs: p.recs}, nil
}

type fakeIterator struct {
	recs []*sam.Record
	pos  int
	rec  *sam.Record
}

func (it *fakeIterator) Scan() bool {
	if it.pos >= len(it.recs) {
		return false
	}
	it.rec = it.recs[it.pos]
	it.pos++
	return true
}

func (it *fakeIterator) Record() *sam.Record { return it.rec }
func (it *fakeIterator) Err() error          { return nil }
func (it *fakeIterator) Close() error        { return nil }
