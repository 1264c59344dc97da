package markdup

import (
	"context"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// checkCancel polls for host cancellation between records.
func checkCancel(ctx context.Context, index uint64) error {
	if index&0xfff != 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// buildSortedReadEndLists streams the input once, emitting one
// fragment signature per primary mapped read and one pair signature
// per completed mate pair.  Partial pairs wait in the unmatched mate
// map, keyed by the mate's reference index, until the second mate
// arrives.
func (m *MarkDuplicates) buildSortedReadEndLists(ctx context.Context) error {
	iter, err := m.Provider.NewIterator()
	if err != nil {
		return err
	}
	defer iter.Close() // nolint: errcheck

	var tmp readEndsMap
	if m.Opts.MaxFileHandles > 0 {
		tmp, err = newDiskReadEndsMap(m.scratchDir(), m.Opts.MaxFileHandles, m.codec)
		if err != nil {
			return err
		}
	} else {
		tmp = newMemReadEndsMap()
	}
	defer func() {
		if err := tmp.close(); err != nil {
			log.Error.Printf("markdup: closing unmatched mate map: %v", err)
		}
	}()

	useBarcodes := m.Opts.useBarcodes()
	index := uint64(0)
	queryNameIndex := uint64(0)
	lastQueryName := ""

	for iter.Scan() {
		rec := iter.Record()
		if err := checkCancel(ctx, index); err != nil {
			return err
		}

		// Under query-name ordering, every signature emitted for a
		// query name uses the file index of its first record.
		if m.sortOrder == sam.QueryName && rec.Name != lastQueryName {
			lastQueryName = rec.Name
			queryNameIndex = index
		}

		if rec.Flags&sam.Unmapped != 0 {
			if rec.RefID() == -1 && m.sortOrder == sam.Coordinate {
				// The trailing unmapped block; nothing past this
				// point can produce a signature.
				break
			}
			// Unmapped but interleaved with mapped reads: skip.
		} else if !isSecondaryOrSupplementary(rec) {
			indexForRead := index
			if m.sortOrder == sam.QueryName {
				indexForRead = queryNameIndex
			}
			fragmentEnd := m.buildReadEnds(indexForRead, rec, useBarcodes)
			if err := m.fragSort.Add(fragmentEnd); err != nil {
				return err
			}

			if hasMappedMate(rec) {
				rg, _ := getReadGroup(rec)
				key := rg + ":" + rec.Name
				pairedEnds, err := tmp.remove(rec.RefID(), key)
				if err != nil {
					return err
				}
				if pairedEnds == nil {
					// First end of the pair: park it under the
					// mate's reference index.
					pairedEnds = m.buildReadEnds(indexForRead, rec, useBarcodes)
					if err := tmp.put(int(pairedEnds.Read2RefIndex), key, pairedEnds); err != nil {
						return err
					}
				} else {
					if err := m.completePair(pairedEnds, fragmentEnd, rec, indexForRead, useBarcodes); err != nil {
						return err
					}
				}
			}
		}

		index++
		if index%1000000 == 0 {
			log.Printf("read %d records; tracking %d as yet unmatched pairs, %d in RAM",
				index, tmp.size(), tmp.sizeInRAM())
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	log.Printf("read %d records; %d pairs never matched", index, tmp.size())

	if err := m.pairSort.DoneAdding(); err != nil {
		return err
	}
	return m.fragSort.DoneAdding()
}

// completePair merges the second mate into the parked partial pair
// signature and emits the completed pair.
func (m *MarkDuplicates) completePair(pairedEnds, fragmentEnd *ReadEnds, rec *sam.Record, indexForRead uint64, useBarcodes bool) error {
	refIndex := fragmentEnd.Read1RefIndex
	coordinate := fragmentEnd.Read1Coordinate

	if m.Opts.TagRepresentativeRead {
		// The name recorded for representative tagging is the name
		// carried by the mate that completes the pair.
		pairedEnds.FirstEncounteredReadName = rec.Name
	}

	// The optical orientation always leads with the first-of-pair
	// strand, independent of which mate maps earlier.
	if rec.Flags&sam.Read1 != 0 {
		pairedEnds.OrientationForOptical = orientationPair(isReversed(rec), pairedEnds.Orientation == R)
		if useBarcodes && m.Opts.ReadOneBarcodeTag != "" {
			pairedEnds.ReadOneBarcode = barcodeHash(rec, m.Opts.ReadOneBarcodeTag)
		}
	} else {
		pairedEnds.OrientationForOptical = orientationPair(pairedEnds.Orientation == R, isReversed(rec))
		if useBarcodes && m.Opts.ReadTwoBarcodeTag != "" {
			pairedEnds.ReadTwoBarcode = barcodeHash(rec, m.Opts.ReadTwoBarcodeTag)
		}
	}

	// Assign read1/read2 so that read1 carries the lexicographically
	// earlier (reference, coordinate); flip if the newly arrived end
	// sorts first.
	if refIndex > pairedEnds.Read1RefIndex ||
		(refIndex == pairedEnds.Read1RefIndex && coordinate >= pairedEnds.Read1Coordinate) {
		pairedEnds.Read2RefIndex = refIndex
		pairedEnds.Read2Coordinate = coordinate
		pairedEnds.Read2IndexInFile = indexForRead
		pairedEnds.Orientation = orientationPair(pairedEnds.Orientation == R, isReversed(rec))
	} else {
		pairedEnds.Read2RefIndex = pairedEnds.Read1RefIndex
		pairedEnds.Read2Coordinate = pairedEnds.Read1Coordinate
		pairedEnds.Read2IndexInFile = pairedEnds.Read1IndexInFile
		pairedEnds.Read1RefIndex = refIndex
		pairedEnds.Read1Coordinate = coordinate
		pairedEnds.Read1IndexInFile = indexForRead
		pairedEnds.Orientation = orientationPair(isReversed(rec), pairedEnds.Orientation == R)
	}

	pairedEnds.Score += computeScore(rec, m.Opts.ScoringStrategy)
	return m.pairSort.Add(pairedEnds)
}

// buildReadEnds constructs the signature for a single read.
func (m *MarkDuplicates) buildReadEnds(index uint64, rec *sam.Record, useBarcodes bool) *ReadEnds {
	e := &ReadEnds{
		LibraryID:        m.lib.libraryID(rec),
		Score:            computeScore(rec, m.Opts.ScoringStrategy),
		Read1RefIndex:    int32(rec.RefID()),
		Read1Coordinate:  int32(unclippedFivePrime(rec)),
		Orientation:      orientationSingle(isReversed(rec)),
		Read2RefIndex:    -1,
		Read2Coordinate:  -1,
		Read1IndexInFile: index,
		Read2IndexInFile: index,
		Tile:             -1,
		X:                noLocation,
		Y:                noLocation,
	}

	// Lets the fragment sweep distinguish the primary side of a pair
	// from a lone fragment at the same 5' end.
	if hasMappedMate(rec) {
		e.Read2RefIndex = int32(rec.MateRef.ID())
	}

	if m.locParser != nil {
		if loc, ok := m.locParser.parse(rec.Name); ok && loc.tile <= 0x7fff {
			e.Tile = int16(loc.tile)
			e.X = int32(loc.x)
			e.Y = int32(loc.y)
			e.ReadGroup = m.lib.ordinal(rec)
		}
	}

	if useBarcodes {
		if m.Opts.BarcodeTag != "" {
			e.Barcode = barcodeHash(rec, m.Opts.BarcodeTag)
		}
		if rec.Flags&sam.Paired == 0 || rec.Flags&sam.Read1 != 0 {
			if m.Opts.ReadOneBarcodeTag != "" {
				e.ReadOneBarcode = barcodeHash(rec, m.Opts.ReadOneBarcodeTag)
			}
		} else if m.Opts.ReadTwoBarcodeTag != "" {
			e.ReadTwoBarcode = barcodeHash(rec, m.Opts.ReadTwoBarcodeTag)
		}
	}
	return e
}

// barcodeHash reduces a barcode tag value to the fixed-width integer
// carried in the signature.
func barcodeHash(rec *sam.Record, tagName string) int32 {
	v, ok := getStringAux(rec, sam.NewTag(tagName))
	if !ok || v == "" {
		return 0
	}
	return int32(farm.Hash32([]byte(v)))
}
