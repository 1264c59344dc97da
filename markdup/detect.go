package markdup

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/log"
)

// repRead is the representative-read tuple emitted for every member
// of a duplicate set.  The file index is 64-bit throughout; a 32-bit
// field here would overflow past ~2.1 billion reads.
type repRead struct {
	name             string
	setSize          int32
	read1IndexInFile uint64
}

func compareRepReads(lhs, rhs *repRead) int {
	return compareUint64(lhs.read1IndexInFile, rhs.read1IndexInFile)
}

type repReadCodec struct{}

func (repReadCodec) Encode(w io.Writer, e *repRead) error {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], e.read1IndexInFile)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.setSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(e.name)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, e.name)
	return err
}

func (repReadCodec) Decode(r io.Reader) (*repRead, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	e := &repRead{
		read1IndexInFile: binary.LittleEndian.Uint64(buf[0:8]),
		setSize:          int32(binary.LittleEndian.Uint32(buf[8:12])),
	}
	name := make([]byte, binary.LittleEndian.Uint32(buf[12:16]))
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	e.name = string(name)
	return e, nil
}

// generateDuplicateIndexes traverses the sorted pair and fragment
// signatures, delimiting maximal runs of equivalent signatures and
// marking every member but the highest scoring one.
func (m *MarkDuplicates) generateDuplicateIndexes(ctx context.Context) error {
	useBarcodes := m.Opts.useBarcodes()

	// Pair sweep.
	log.Printf("traversing read pair information and detecting duplicates")
	pairIter := m.pairSort.Iter()
	chunk := make([]*ReadEnds, 0, 200)
	step := uint64(0)
	for pairIter.Scan() {
		if err := checkCancel(ctx, step); err != nil {
			return err
		}
		step++
		next := pairIter.Record()
		if len(chunk) > 0 && areComparableForDuplicates(chunk[0], next, true, useBarcodes) {
			chunk = append(chunk, next)
			continue
		}
		if err := m.flushPairChunk(chunk); err != nil {
			return err
		}
		chunk = append(chunk[:0], next)
	}
	if err := pairIter.Err(); err != nil {
		return err
	}
	if err := m.flushPairChunk(chunk); err != nil {
		return err
	}
	if err := pairIter.Close(); err != nil {
		return err
	}
	m.pairSort.Cleanup()

	// Fragment sweep.  Comparability ignores the read2 fields; the
	// pair/fragment distinction within a chunk drives the
	// pair-beats-fragment rule.
	log.Printf("traversing fragment information and detecting duplicates")
	fragIter := m.fragSort.Iter()
	chunk = chunk[:0]
	containsPairs := false
	containsFrags := false
	for fragIter.Scan() {
		if err := checkCancel(ctx, step); err != nil {
			return err
		}
		step++
		next := fragIter.Record()
		if len(chunk) > 0 && areComparableForDuplicates(chunk[0], next, false, useBarcodes) {
			chunk = append(chunk, next)
			containsPairs = containsPairs || next.IsPaired()
			containsFrags = containsFrags || !next.IsPaired()
			continue
		}
		if len(chunk) > 1 && containsFrags {
			if err := m.markDuplicateFragments(chunk, containsPairs); err != nil {
				return err
			}
		}
		chunk = append(chunk[:0], next)
		containsPairs = next.IsPaired()
		containsFrags = !next.IsPaired()
	}
	if err := fragIter.Err(); err != nil {
		return err
	}
	if len(chunk) > 1 && containsFrags {
		if err := m.markDuplicateFragments(chunk, containsPairs); err != nil {
			return err
		}
	}
	if err := fragIter.Close(); err != nil {
		return err
	}
	m.fragSort.Cleanup()

	log.Printf("sorting %d duplicate indices", m.numDuplicateIndices)
	if err := m.dupIndexes.DoneAdding(); err != nil {
		return err
	}
	if m.opticalIndexes != nil {
		if err := m.opticalIndexes.DoneAdding(); err != nil {
			return err
		}
	}
	if m.repSort != nil {
		if err := m.repSort.DoneAdding(); err != nil {
			return err
		}
	}
	return nil
}

func (m *MarkDuplicates) flushPairChunk(chunk []*ReadEnds) error {
	if len(chunk) <= 1 {
		return nil
	}
	if err := m.markDuplicatePairs(chunk); err != nil {
		return err
	}
	if m.Opts.TagRepresentativeRead {
		return m.markRepresentativeRead(chunk)
	}
	return nil
}

func (m *MarkDuplicates) addIndexAsDuplicate(index uint64) error {
	m.numDuplicateIndices++
	return m.dupIndexes.Add(index)
}

// bestInChunk returns the index of the maximum-score element.  Ties
// go to the earliest element, which the sorter yields first.
func bestInChunk(chunk []*ReadEnds) int {
	best := 0
	for i := 1; i < len(chunk); i++ {
		if chunk[i].Score > chunk[best].Score {
			best = i
		}
	}
	return best
}

// markDuplicatePairs marks every pair in the chunk except the best
// scoring one, and classifies sequencing duplicates through the
// optical cluster finder.
func (m *MarkDuplicates) markDuplicatePairs(chunk []*ReadEnds) error {
	best := bestInChunk(chunk)

	var opticalFlags []bool
	if m.clusterFinder != nil {
		flags, err := m.clusterFinder.FindOpticalClusters(chunk, best)
		if err != nil {
			// Reduced classification fidelity for this chunk only;
			// the chunk is treated as having no optical duplicates.
			log.Error.Printf("optical cluster discovery failed for chunk at (%d,%d): %v",
				chunk[0].Read1RefIndex, chunk[0].Read1Coordinate, err)
		} else {
			opticalFlags = flags
		}
	}

	for i, e := range chunk {
		if i == best {
			continue
		}
		if err := m.addIndexAsDuplicate(e.Read1IndexInFile); err != nil {
			return err
		}
		// Under query-name ordering both ends share one index.
		if e.Read2IndexInFile != e.Read1IndexInFile {
			if err := m.addIndexAsDuplicate(e.Read2IndexInFile); err != nil {
				return err
			}
		}
		if opticalFlags != nil && opticalFlags[i] {
			m.metrics.Get(m.lib.name(e.LibraryID)).ReadPairOpticalDuplicates++
			if m.opticalIndexes != nil {
				if err := m.opticalIndexes.Add(e.Read1IndexInFile); err != nil {
					return err
				}
				if err := m.opticalIndexes.Add(e.Read2IndexInFile); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// markRepresentativeRead emits one representative tuple per chunk
// member, all pointing at the best element's recorded name.
func (m *MarkDuplicates) markRepresentativeRead(chunk []*ReadEnds) error {
	best := bestInChunk(chunk)
	for _, e := range chunk {
		err := m.repSort.Add(&repRead{
			name:             chunk[best].FirstEncounteredReadName,
			setSize:          int32(len(chunk)),
			read1IndexInFile: e.Read1IndexInFile,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// markDuplicateFragments applies the fragment rules to a flushed
// chunk: fragments colliding with any pair lose outright; otherwise
// the best scoring fragment survives.
func (m *MarkDuplicates) markDuplicateFragments(chunk []*ReadEnds, containsPairs bool) error {
	if containsPairs {
		for _, e := range chunk {
			if !e.IsPaired() {
				if err := m.addIndexAsDuplicate(e.Read1IndexInFile); err != nil {
					return err
				}
			}
		}
		return nil
	}
	best := bestInChunk(chunk)
	for i, e := range chunk {
		if i == best {
			continue
		}
		if err := m.addIndexAsDuplicate(e.Read1IndexInFile); err != nil {
			return err
		}
	}
	return nil
}
