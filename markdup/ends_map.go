package markdup

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"

	"github.com/golang/snappy"
	"github.com/grailbio/base/log"
)

// readEndsMap holds partial pair signatures keyed by (mate reference
// index, read-group-qualified name) until the second mate arrives.
type readEndsMap interface {
	put(refIdx int, key string, e *ReadEnds) error
	remove(refIdx int, key string) (*ReadEnds, error)
	size() int
	sizeInRAM() int
	close() error
}

// memReadEndsMap keeps every entry in memory.  Used when the open
// file budget is zero, and by tests.
type memReadEndsMap struct {
	partitions map[int]map[string]*ReadEnds
	total      int
}

func newMemReadEndsMap() *memReadEndsMap {
	return &memReadEndsMap{partitions: make(map[int]map[string]*ReadEnds)}
}

func (m *memReadEndsMap) put(refIdx int, key string, e *ReadEnds) error {
	p, found := m.partitions[refIdx]
	if !found {
		p = make(map[string]*ReadEnds)
		m.partitions[refIdx] = p
	}
	p[key] = e
	m.total++
	return nil
}

func (m *memReadEndsMap) remove(refIdx int, key string) (*ReadEnds, error) {
	p, found := m.partitions[refIdx]
	if !found {
		return nil, nil
	}
	e, found := p[key]
	if !found {
		return nil, nil
	}
	delete(p, key)
	m.total--
	return e, nil
}

func (m *memReadEndsMap) size() int      { return m.total }
func (m *memReadEndsMap) sizeInRAM() int { return m.total }
func (m *memReadEndsMap) close() error   { return nil }

// diskReadEndsMap partitions entries by reference index.  A small set
// of partitions is resident in RAM; the rest append their entries to
// snappy-compressed partition files through a bounded set of open
// writers.  A remove against a non-resident partition faults the
// whole partition in, which matches the access pattern of coordinate
// ordered input: once the stream reaches a reference, all lookups for
// a while are against that reference.
type diskReadEndsMap struct {
	codec        readEndsCodec
	tempDir      string
	maxOpenFiles int
	maxResident  int

	partitions map[int]*endsPartition
	resident   []*endsPartition // LRU order, oldest first
	open       []*endsPartition // partitions with an open writer, oldest first
	total      int
	inRAM      int
}

type endsPartition struct {
	refIdx    int
	path      string
	entries   map[string]*ReadEnds // non-nil while resident
	f         *os.File
	w         *snappy.Writer
	diskCount int
}

func newDiskReadEndsMap(scratchDir string, maxOpenFiles int, codec readEndsCodec) (*diskReadEndsMap, error) {
	tempDir, err := ioutil.TempDir(scratchDir, "markdup-mates")
	if err != nil {
		return nil, fmt.Errorf("could not create temp dir in %s: %v", scratchDir, err)
	}
	return &diskReadEndsMap{
		codec:        codec,
		tempDir:      tempDir,
		maxOpenFiles: maxOpenFiles,
		maxResident:  4,
		partitions:   make(map[int]*endsPartition),
	}, nil
}

// partition returns the partition for refIdx, creating it resident
// so that mates parked on the reference currently streaming stay in
// RAM.
func (m *diskReadEndsMap) partition(refIdx int) (*endsPartition, error) {
	p, found := m.partitions[refIdx]
	if !found {
		p = &endsPartition{
			refIdx:  refIdx,
			path:    path.Join(m.tempDir, fmt.Sprintf("ends_%06d", refIdx)),
			entries: make(map[string]*ReadEnds),
		}
		m.partitions[refIdx] = p
		if err := m.addResident(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (m *diskReadEndsMap) put(refIdx int, key string, e *ReadEnds) error {
	p, err := m.partition(refIdx)
	if err != nil {
		return err
	}
	if p.entries != nil {
		p.entries[key] = e
		m.inRAM++
		m.touchResident(p)
	} else {
		if err := m.appendToDisk(p, key, e); err != nil {
			return err
		}
	}
	m.total++
	return nil
}

func (m *diskReadEndsMap) remove(refIdx int, key string) (*ReadEnds, error) {
	p, found := m.partitions[refIdx]
	if !found {
		return nil, nil
	}
	if p.entries == nil {
		if err := m.makeResident(p); err != nil {
			return nil, err
		}
	}
	m.touchResident(p)
	e, found := p.entries[key]
	if !found {
		return nil, nil
	}
	delete(p.entries, key)
	m.total--
	m.inRAM--
	return e, nil
}

func (m *diskReadEndsMap) size() int      { return m.total }
func (m *diskReadEndsMap) sizeInRAM() int { return m.inRAM }

func (m *diskReadEndsMap) close() error {
	for _, p := range m.open {
		if err := m.closeWriter(p); err != nil {
			log.Error.Printf("markdup: closing mate map writer: %v", err)
		}
	}
	m.open = nil
	return os.RemoveAll(m.tempDir)
}

func (m *diskReadEndsMap) appendToDisk(p *endsPartition, key string, e *ReadEnds) error {
	if p.w == nil {
		if err := m.openWriter(p); err != nil {
			return err
		}
	}
	var lbuf [4]byte
	binary.LittleEndian.PutUint32(lbuf[:], uint32(len(key)))
	if _, err := p.w.Write(lbuf[:]); err != nil {
		return fmt.Errorf("writing to mate partition %s: %v", p.path, err)
	}
	if _, err := io.WriteString(p.w, key); err != nil {
		return fmt.Errorf("writing to mate partition %s: %v", p.path, err)
	}
	if err := m.codec.Encode(p.w, e); err != nil {
		return fmt.Errorf("writing to mate partition %s: %v", p.path, err)
	}
	p.diskCount++
	return nil
}

// openWriter opens the partition's spill file for appending, closing
// the least recently opened writer if the file-handle budget is
// spent.  Appending snappy frames to an existing file yields a valid
// concatenated stream.
func (m *diskReadEndsMap) openWriter(p *endsPartition) error {
	if len(m.open) >= m.maxOpenFiles {
		oldest := m.open[0]
		m.open = m.open[1:]
		if err := m.closeWriter(oldest); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening mate partition %s: %v", p.path, err)
	}
	p.f = f
	p.w = snappy.NewBufferedWriter(f)
	m.open = append(m.open, p)
	return nil
}

func (m *diskReadEndsMap) closeWriter(p *endsPartition) error {
	if p.w == nil {
		return nil
	}
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("closing mate partition %s: %v", p.path, err)
	}
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("closing mate partition %s: %v", p.path, err)
	}
	p.w = nil
	p.f = nil
	return nil
}

func (m *diskReadEndsMap) removeOpen(p *endsPartition) {
	for i, q := range m.open {
		if q == p {
			m.open = append(m.open[:i], m.open[i+1:]...)
			return
		}
	}
}

// makeResident loads the partition's on-disk entries into RAM and
// removes the file.  Evicts the least recently used resident
// partition when over budget.
func (m *diskReadEndsMap) makeResident(p *endsPartition) error {
	if p.w != nil {
		m.removeOpen(p)
		if err := m.closeWriter(p); err != nil {
			return err
		}
	}
	p.entries = make(map[string]*ReadEnds)
	if p.diskCount > 0 {
		f, err := os.Open(p.path)
		if err != nil {
			return fmt.Errorf("reading mate partition %s: %v", p.path, err)
		}
		r := bufio.NewReaderSize(snappy.NewReader(f), 1<<16)
		for i := 0; i < p.diskCount; i++ {
			var lbuf [4]byte
			if _, err := io.ReadFull(r, lbuf[:]); err != nil {
				f.Close() // nolint: errcheck
				return fmt.Errorf("corrupt mate partition %s: %v", p.path, err)
			}
			keyBytes := make([]byte, binary.LittleEndian.Uint32(lbuf[:]))
			if _, err := io.ReadFull(r, keyBytes); err != nil {
				f.Close() // nolint: errcheck
				return fmt.Errorf("corrupt mate partition %s: %v", p.path, err)
			}
			e, err := m.codec.Decode(r)
			if err != nil {
				f.Close() // nolint: errcheck
				return fmt.Errorf("corrupt mate partition %s: %v", p.path, err)
			}
			p.entries[string(keyBytes)] = e
		}
		if err := f.Close(); err != nil {
			return err
		}
		if err := os.Remove(p.path); err != nil {
			return err
		}
		p.diskCount = 0
	}
	m.inRAM += len(p.entries)
	return m.addResident(p)
}

// addResident records p as resident, evicting the least recently used
// partition when over budget.
func (m *diskReadEndsMap) addResident(p *endsPartition) error {
	m.resident = append(m.resident, p)
	if len(m.resident) > m.maxResident {
		evicted := m.resident[0]
		m.resident = m.resident[1:]
		if err := m.evict(evicted); err != nil {
			return err
		}
	}
	return nil
}

func (m *diskReadEndsMap) touchResident(p *endsPartition) {
	for i, q := range m.resident {
		if q == p {
			copy(m.resident[i:], m.resident[i+1:])
			m.resident[len(m.resident)-1] = p
			return
		}
	}
}

// evict spills a resident partition's remaining entries back to its
// file.
func (m *diskReadEndsMap) evict(p *endsPartition) error {
	m.inRAM -= len(p.entries)
	for key, e := range p.entries {
		if err := m.appendToDisk(p, key, e); err != nil {
			return err
		}
	}
	p.entries = nil
	return nil
}
